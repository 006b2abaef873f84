// Package originfs presents a remote, identifier-keyed record store as a
// hierarchical file tree.
//
// A Client loads the owner's path index once, caches records by identifier
// as they are first touched, applies every mutation locally at once and
// queues its wire form in a MutationLog. Nothing reaches the store until
// Commit sends the whole log as one batch.
package originfs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/originfs/originfs/internal/logging"
	"github.com/originfs/originfs/internal/metrics"
	"github.com/originfs/originfs/pkg/cache"
	"github.com/originfs/originfs/pkg/client"
	"github.com/originfs/originfs/pkg/models"
	"github.com/originfs/originfs/pkg/protocol"
	"github.com/originfs/originfs/pkg/tree"
)

const maxIDAttempts = 8

// Remote is the subset of the store transport a Client needs.
// *client.Client satisfies it.
type Remote interface {
	FetchIndex(ctx context.Context) (*protocol.IndexResponse, error)
	FetchRecord(ctx context.Context, id string) (*models.Record, error)
	CommitBatch(ctx context.Context, updates []protocol.Mutation) error
}

var _ Remote = (*client.Client)(nil)

// Config holds Client options.
type Config struct {
	Remote Remote

	// Now and NewID default to time.Now and NewID.
	Now   func() time.Time
	NewID func(owner string) string
}

// Client is a path-addressed view over one owner's records.
// All methods are safe for concurrent use.
type Client struct {
	remote  Remote
	now     func() time.Time
	newID   func(owner string) string
	flights singleflight.Group

	mu      sync.RWMutex
	loaded  bool
	owner   string
	index   *cache.Index
	entries *cache.Entries
	log     MutationLog
	removed map[string]struct{} // ids deleted in this session

	commitMu sync.Mutex
}

// New creates a Client. No request is made until the first operation.
func New(cfg Config) *Client {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = NewID
	}
	return &Client{
		remote:  cfg.Remote,
		now:     cfg.Now,
		newID:   cfg.NewID,
		index:   cache.NewIndex(),
		entries: cache.NewEntries(),
		removed: make(map[string]struct{}),
	}
}

// Owner returns the owner name from the path index, or "" before it loads.
func (c *Client) Owner() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.owner
}

// Dirty reports whether local state has mutations the store has not acknowledged.
func (c *Client) Dirty() bool {
	return c.Pending() > 0
}

// Pending returns the number of queued mutations.
func (c *Client) Pending() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.log.Len()
}

// PendingMutations returns a copy of the queued mutations in issue order.
func (c *Client) PendingMutations() []protocol.Mutation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.log.Snapshot()
}

// loadIndex fetches the path index on first use. Concurrent first callers
// share one request; a failed load is retried by the next caller.
func (c *Client) loadIndex(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if loaded {
		return nil
	}

	flight := context.WithoutCancel(ctx)
	ch := c.flights.DoChan("index", func() (any, error) {
		c.mu.RLock()
		loaded := c.loaded
		c.mu.RUnlock()
		if loaded {
			return nil, nil
		}

		resp, err := c.remote.FetchIndex(flight)
		if err != nil {
			return nil, fmt.Errorf("load path index: %w", err)
		}
		paths := resp.Paths()

		c.mu.Lock()
		c.owner = resp.Username
		c.index.Load(paths)
		c.loaded = true
		n := c.index.Len()
		c.mu.Unlock()

		metrics.SetIndexSize(n)
		logging.Info("path index loaded",
			logging.String("owner", resp.Username),
			logging.Int("paths", n))
		return nil, nil
	})
	return await(ctx, client.OpIndex, "index", ch)
}

// ensureEntry caches the record for id, fetching it if absent. Updates
// still queued for id are replayed onto the fetched copy; a copy landing
// after a local mutation created the same id is dropped in favour of the
// local one. Ids removed in this session are never fetched again.
func (c *Client) ensureEntry(ctx context.Context, id string) error {
	c.mu.RLock()
	ok := c.entries.Has(id)
	_, gone := c.removed[id]
	c.mu.RUnlock()
	metrics.RecordCacheLookup(ok)
	if ok {
		return nil
	}
	if gone {
		return fmt.Errorf("record %s: %w", id, ErrNotFound)
	}

	flight := context.WithoutCancel(ctx)
	ch := c.flights.DoChan("record:"+id, func() (any, error) {
		c.mu.RLock()
		ok := c.entries.Has(id)
		c.mu.RUnlock()
		if ok {
			return nil, nil
		}

		rec, err := c.remote.FetchRecord(flight, id)
		if err != nil {
			if remoteNotFound(err) {
				return nil, fmt.Errorf("record %s: %w: %w", id, ErrNotFound, err)
			}
			return nil, fmt.Errorf("fetch record %s: %w", id, err)
		}
		if rec.ID != id {
			return nil, &client.RemoteError{
				Op:      client.OpRecord,
				Status:  200,
				Message: fmt.Sprintf("requested %s, store returned %s", id, rec.ID),
			}
		}

		c.mu.Lock()
		if _, gone := c.removed[id]; gone {
			c.mu.Unlock()
			return nil, fmt.Errorf("record %s: %w", id, ErrNotFound)
		}
		if err := c.log.Replay(rec); err != nil {
			c.mu.Unlock()
			return nil, fmt.Errorf("record %s: %w", id, err)
		}
		c.entries.PutIfAbsent(rec)
		n := c.entries.Len()
		c.mu.Unlock()

		metrics.SetEntryCacheSize(n)
		logging.Debug("record cached", logging.String("id", id))
		return nil, nil
	})
	return await(ctx, client.OpRecord, "record", ch)
}

// await waits for a shared fetch. A caller whose ctx ends stops waiting
// with a RemoteError; the fetch itself carries on for the other callers.
func await(ctx context.Context, op, kind string, ch <-chan singleflight.Result) error {
	select {
	case res := <-ch:
		if res.Shared {
			metrics.RecordCoalescedFetch(kind)
		}
		return res.Err
	case <-ctx.Done():
		return &client.RemoteError{Op: op, Err: ctx.Err()}
	}
}

// resolve loads the index and returns the identifier for path.
func (c *Client) resolve(ctx context.Context, path string) (key, id string, err error) {
	if err := c.loadIndex(ctx); err != nil {
		return "", "", err
	}
	key = tree.Key(path)
	c.mu.RLock()
	id, ok := c.index.Get(key)
	c.mu.RUnlock()
	if !ok {
		return key, "", fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return key, id, nil
}

// resolveEntry resolves path and makes sure its record is cached.
func (c *Client) resolveEntry(ctx context.Context, path string) (key, id string, err error) {
	key, id, err = c.resolve(ctx, path)
	if err != nil {
		return key, id, err
	}
	if err := c.ensureEntry(ctx, id); err != nil {
		return key, id, err
	}
	return key, id, nil
}

// lockedEntry returns the cached record for key while c.mu is held. It
// fails if key was removed or repointed after the caller resolved it.
func (c *Client) lockedEntry(key, id string) (*models.Record, error) {
	if cur, ok := c.index.Get(key); !ok || cur != id {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	rec, ok := c.entries.Get(id)
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return rec, nil
}

// enqueue appends mutations to the log. c.mu must be held.
func (c *Client) enqueue(muts ...protocol.Mutation) {
	c.log.Append(muts...)
	for _, m := range muts {
		metrics.RecordMutation(m.Command)
	}
	metrics.SetPendingMutations(c.log.Len())
}

// allocateID draws identifiers until one is not already cached. c.mu must be held.
func (c *Client) allocateID() (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := c.newID(c.owner)
		_, gone := c.removed[id]
		if !c.entries.Has(id) && !gone {
			return id, nil
		}
		logging.Warn("identifier collision, drawing again", logging.String("id", id))
	}
	return "", fmt.Errorf("allocate identifier: %d collisions", maxIDAttempts)
}

func (c *Client) nowMillis() int64 {
	return c.now().UnixMilli()
}

// Commit sends every queued mutation as one batch. The log is cleared only
// after the store acknowledges; on failure it is left exactly as it was.
// Mutations queued while the request is in flight stay for the next Commit.
func (c *Client) Commit(ctx context.Context) error {
	c.commitMu.Lock()
	defer c.commitMu.Unlock()

	c.mu.RLock()
	batch := c.log.Snapshot()
	c.mu.RUnlock()
	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	err := c.remote.CommitBatch(ctx, batch)
	metrics.RecordCommit(err == nil)
	if err != nil {
		logging.Warn("commit failed",
			logging.Int("mutations", len(batch)),
			logging.Err(err))
		return fmt.Errorf("commit %d mutations: %w", len(batch), err)
	}

	c.mu.Lock()
	c.log.Drop(len(batch))
	left := c.log.Len()
	c.mu.Unlock()

	metrics.SetPendingMutations(left)
	logging.Info("commit acknowledged",
		logging.Int("mutations", len(batch)),
		logging.Int("pending", left),
		logging.Duration("duration", time.Since(start)))
	return nil
}

// recordPath returns the client path of rec. Folders are addressed without
// their type sentinel.
func recordPath(rec *models.Record) string {
	typ := rec.Type
	if rec.IsFolder() {
		typ = ""
	}
	return tree.EntryPath(rec.Location, rec.Name, typ)
}
