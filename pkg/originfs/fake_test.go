package originfs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/originfs/originfs/pkg/client"
	"github.com/originfs/originfs/pkg/models"
	"github.com/originfs/originfs/pkg/protocol"
	"github.com/originfs/originfs/pkg/tree"
)

const testOwner = "alice"

var testNow = time.UnixMilli(1700000000000)

// fakeRemote is an in-memory Remote with knobs for failure and blocking.
type fakeRemote struct {
	mu      sync.Mutex
	owner   string
	paths   map[string]string
	records map[string]*models.Record

	indexErr  error
	commitErr error

	// fetchGate, when set, blocks FetchIndex and FetchRecord until closed or
	// the request context ends.
	fetchGate chan struct{}
	// commitGate blocks CommitBatch until closed; commitStarted is signalled first.
	commitGate    chan struct{}
	commitStarted chan struct{}

	indexCalls  int
	recordCalls int
	batches     [][]protocol.Mutation
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		owner:   testOwner,
		paths:   make(map[string]string),
		records: make(map[string]*models.Record),
	}
}

// addRecord stores a record at a client path.
func (f *fakeRemote) addRecord(path, id string, folder bool, data string) {
	dir, file := tree.SplitDir(path)
	rec := &models.Record{
		Name:     file,
		Type:     models.FolderType,
		Location: tree.FormatLocation(f.owner, dir),
		Data:     models.ListingPayload(),
		Created:  1,
		Edited:   1,
		ID:       id,
	}
	if !folder {
		rec.Name, rec.Type = tree.SplitName(file)
		rec.Data = models.TextPayload(data)
		rec.Size = models.TextSize(data)
	}
	f.records[id] = rec
	f.paths[tree.StoreRoot+f.owner+path] = id
}

func (f *fakeRemote) addFile(path, id, data string) {
	f.addRecord(path, id, false, data)
}

func (f *fakeRemote) addFolder(path, id string) {
	f.addRecord(path, id, true, "")
}

func (f *fakeRemote) FetchIndex(ctx context.Context) (*protocol.IndexResponse, error) {
	f.mu.Lock()
	f.indexCalls++
	gate, err := f.fetchGate, f.indexErr
	f.mu.Unlock()
	if werr := wait(ctx, gate); werr != nil {
		return nil, werr
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	index := make(map[string]json.RawMessage, len(f.paths))
	for p, id := range f.paths {
		b, _ := json.Marshal(id)
		index[p] = b
	}
	return &protocol.IndexResponse{Username: f.owner, Index: index}, nil
}

func (f *fakeRemote) FetchRecord(ctx context.Context, id string) (*models.Record, error) {
	f.mu.Lock()
	f.recordCalls++
	gate := f.fetchGate
	f.mu.Unlock()
	if err := wait(ctx, gate); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, &client.RemoteError{Op: client.OpRecord, Status: http.StatusNotFound, Body: "not found"}
	}
	return rec.Clone(), nil
}

func (f *fakeRemote) CommitBatch(ctx context.Context, updates []protocol.Mutation) error {
	f.mu.Lock()
	gate, started := f.commitGate, f.commitStarted
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]protocol.Mutation(nil), updates...))
	return f.commitErr
}

func wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeRemote) calls() (index, record int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.indexCalls, f.recordCalls
}

// eventually polls cond until it holds or a second passes.
func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

// sequentialIDs returns an identifier generator yielding 00..01, 00..02, ...
func sequentialIDs() func(string) string {
	var mu sync.Mutex
	n := 0
	return func(string) string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%032x", n)
	}
}

func newTestClient(f *fakeRemote) *Client {
	return New(Config{
		Remote: f,
		Now:    func() time.Time { return testNow },
		NewID:  sequentialIDs(),
	})
}

// decodeAdd returns the record carried by an add mutation.
func decodeAdd(m protocol.Mutation) (*models.Record, error) {
	if m.Command != protocol.CommandAdd {
		return nil, fmt.Errorf("command %s, want %s", m.Command, protocol.CommandAdd)
	}
	var rec models.Record
	if err := json.Unmarshal(m.Data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
