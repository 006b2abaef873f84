package originfs

import (
	"context"
	"fmt"
	"strings"

	"github.com/originfs/originfs/pkg/cache"
	"github.com/originfs/originfs/pkg/models"
	"github.com/originfs/originfs/pkg/protocol"
	"github.com/originfs/originfs/pkg/tree"
)

// JoinPath joins path elements into a lowercase client path.
func JoinPath(elements ...string) string {
	return tree.JoinPath(elements...)
}

// GetID returns the identifier stored for path.
func (c *Client) GetID(ctx context.Context, path string) (string, error) {
	_, id, err := c.resolve(ctx, path)
	return id, err
}

// GetPath returns the client path of the record with the given identifier.
func (c *Client) GetPath(ctx context.Context, id string) (string, error) {
	if err := c.ensureEntry(ctx, id); err != nil {
		return "", err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.entries.Get(id)
	if !ok {
		return "", fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return recordPath(rec), nil
}

// ListPaths returns every indexed path in order.
func (c *Client) ListPaths(ctx context.Context) ([]string, error) {
	if err := c.loadIndex(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index.Keys(), nil
}

// ListDir returns the unique names of the immediate children of dir.
// A path with no children yields an empty list, not an error.
func (c *Client) ListDir(ctx context.Context, dir string) ([]string, error) {
	if err := c.loadIndex(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index.Children(tree.DirKey(dir)), nil
}

// Exists reports whether path is indexed. Any failure reads as false.
func (c *Client) Exists(ctx context.Context, path string) bool {
	if err := c.loadIndex(ctx); err != nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index.Has(tree.Key(path))
}

// ReadRecord returns a copy of the record at path.
func (c *Client) ReadRecord(ctx context.Context, path string) (*models.Record, error) {
	key, id, err := c.resolveEntry(ctx, path)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, err := c.lockedEntry(key, id)
	if err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// ReadContent returns the text payload of the file at path.
func (c *Client) ReadContent(ctx context.Context, path string) (string, error) {
	rec, err := c.ReadRecord(ctx, path)
	if err != nil {
		return "", err
	}
	text, ok := rec.Data.Text()
	if !ok {
		return "", fmt.Errorf("read %s: %w", tree.Key(path), ErrInvalidType)
	}
	return text, nil
}

// StatID returns a copy of the record with the given identifier.
func (c *Client) StatID(ctx context.Context, id string) (*models.Record, error) {
	if err := c.ensureEntry(ctx, id); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.entries.Get(id)
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return rec.Clone(), nil
}

// Write replaces the content of an existing record. It never creates one.
func (c *Client) Write(ctx context.Context, path, data string) error {
	key, id, err := c.resolveEntry(ctx, path)
	if err != nil {
		return err
	}

	now := c.nowMillis()
	size := models.TextSize(data)
	muts, err := updates(id,
		slotValue{models.FieldData, data},
		slotValue{models.FieldEdited, now},
		slotValue{models.FieldSize, size},
	)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	rec, err := c.lockedEntry(key, id)
	if err != nil {
		return err
	}
	rec.Data = models.TextPayload(data)
	rec.Edited = now
	rec.Size = size
	c.enqueue(muts...)
	return nil
}

// CreateFile creates every missing ancestor folder of path and then a file
// record holding data. An existing record at path is replaced.
func (c *Client) CreateFile(ctx context.Context, path, data string) error {
	if err := c.loadIndex(ctx); err != nil {
		return err
	}
	p := tree.Normalize(path)
	if p == "/" {
		return fmt.Errorf("create file %q: %w", path, ErrInvalidPath)
	}
	dir, file := tree.SplitDir(p)
	name, ext := tree.SplitName(file)
	key := tree.Key(p)
	now := c.nowMillis()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.createFolders(dir, now); err != nil {
		return err
	}

	rec := &models.Record{
		Type:     ext,
		Name:     name,
		Location: tree.FormatLocation(c.owner, dir),
		Data:     models.TextPayload(data),
		Created:  now,
		Edited:   now,
		Size:     models.TextSize(data),
	}
	add, err := c.prepareAdd(rec)
	if err != nil {
		return err
	}
	if old, ok := c.index.Get(key); ok {
		c.enqueue(c.dropTree(key, old)...)
	}
	c.insert(key, rec, add)
	return nil
}

// CreateFolder creates the folder at path and any missing ancestors.
// An existing folder is left alone.
func (c *Client) CreateFolder(ctx context.Context, path string) error {
	if err := c.loadIndex(ctx); err != nil {
		return err
	}
	p := tree.Normalize(path)
	if p == "/" {
		return fmt.Errorf("create folder %q: %w", path, ErrInvalidPath)
	}
	now := c.nowMillis()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createFolders(p, now)
}

// CreateFolders creates a folder for every missing level of dir, root first.
func (c *Client) CreateFolders(ctx context.Context, dir string) error {
	if err := c.loadIndex(ctx); err != nil {
		return err
	}
	now := c.nowMillis()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createFolders(dir, now)
}

// createFolders adds a folder record for each level of dir not yet indexed.
// c.mu must be held.
func (c *Client) createFolders(dir string, now int64) error {
	for _, a := range tree.Ancestors(dir) {
		if c.index.Has(a.Key) {
			continue
		}
		rec := &models.Record{
			Type:     models.FolderType,
			Name:     a.Name,
			Location: tree.FormatLocation(c.owner, a.Parent),
			Data:     models.ListingPayload(),
			Created:  now,
			Edited:   now,
		}
		add, err := c.prepareAdd(rec)
		if err != nil {
			return err
		}
		c.insert(a.Key, rec, add)
	}
	return nil
}

// prepareAdd assigns rec a fresh identifier and encodes its add mutation.
// c.mu must be held.
func (c *Client) prepareAdd(rec *models.Record) (protocol.Mutation, error) {
	id, err := c.allocateID()
	if err != nil {
		return protocol.Mutation{}, err
	}
	rec.ID = id
	return protocol.NewAdd(rec)
}

// insert indexes and caches rec and queues its add. c.mu must be held.
func (c *Client) insert(key string, rec *models.Record, add protocol.Mutation) {
	c.entries.Put(rec)
	c.index.Set(key, rec.ID)
	c.enqueue(add)
}

// Rename moves the record at oldPath to newPath, updating its type, name,
// location and edit time in place. Renaming a folder carries its
// descendants along; each gets a location update. A different record
// already at newPath is deleted with everything below it.
func (c *Client) Rename(ctx context.Context, oldPath, newPath string) error {
	oldKey, id, err := c.resolveEntry(ctx, oldPath)
	if err != nil {
		return err
	}
	p := tree.Normalize(newPath)
	newKey := tree.Key(p)
	if p == "/" || oldKey == "/" ||
		strings.HasPrefix(newKey, tree.DirPrefix(oldKey)) ||
		strings.HasPrefix(oldKey, tree.DirPrefix(newKey)) {
		return fmt.Errorf("rename %q to %q: %w", oldPath, newPath, ErrInvalidPath)
	}
	dir, file := tree.SplitDir(p)
	now := c.nowMillis()

	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.lockedEntry(oldKey, id)
	if err != nil {
		return err
	}

	typ, name := models.FolderType, file
	if !rec.IsFolder() {
		name, typ = tree.SplitName(file)
	}
	location := tree.FormatLocation(c.owner, dir)

	muts, err := updates(id,
		slotValue{models.FieldType, typ},
		slotValue{models.FieldName, name},
		slotValue{models.FieldLocation, location},
		slotValue{models.FieldEdited, now},
	)
	if err != nil {
		return err
	}

	descendants := c.index.Descendants(oldKey)
	moves := make([]cache.Entry, len(descendants))
	locations := make([]string, len(descendants))
	for i, d := range descendants {
		rel := strings.TrimPrefix(d.Key, oldKey)
		parent, _ := tree.SplitDir(rel)
		locations[i] = tree.FormatLocation(c.owner, p+parent)
		moves[i] = cache.Entry{Key: newKey + rel, ID: d.ID}

		m, err := protocol.NewUpdate(d.ID, models.FieldLocation, locations[i])
		if err != nil {
			return err
		}
		muts = append(muts, m)
	}

	if displaced, ok := c.index.Get(newKey); ok && displaced != id {
		c.enqueue(c.dropTree(newKey, displaced)...)
	}

	c.index.Delete(oldKey)
	for _, d := range descendants {
		c.index.Delete(d.Key)
	}
	c.index.Set(newKey, id)
	for i, m := range moves {
		c.index.Set(m.Key, m.ID)
		if child, ok := c.entries.Get(m.ID); ok {
			child.Location = locations[i]
		}
	}

	rec.Type = typ
	rec.Name = name
	rec.Location = location
	rec.Edited = now
	c.enqueue(muts...)
	return nil
}

// Remove deletes the record at path. Removing a folder also deletes
// everything below it, deepest entries first.
func (c *Client) Remove(ctx context.Context, path string) error {
	key, id, err := c.resolve(ctx, path)
	if err != nil {
		return err
	}
	if key == "/" {
		return fmt.Errorf("remove %q: %w", path, ErrInvalidPath)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.index.Get(key); !ok || cur != id {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}

	c.enqueue(c.dropTree(key, id)...)
	return nil
}

// dropTree unindexes key and everything below it and returns their deletes,
// deepest first. c.mu must be held.
func (c *Client) dropTree(key, id string) []protocol.Mutation {
	descendants := c.index.Descendants(key)
	muts := make([]protocol.Mutation, 0, len(descendants)+1)
	for i := len(descendants) - 1; i >= 0; i-- {
		d := descendants[i]
		c.index.Delete(d.Key)
		c.entries.Delete(d.ID)
		c.removed[d.ID] = struct{}{}
		muts = append(muts, protocol.NewDelete(d.ID))
	}
	c.index.Delete(key)
	c.entries.Delete(id)
	c.removed[id] = struct{}{}
	return append(muts, protocol.NewDelete(id))
}

type slotValue struct {
	field int
	value any
}

// updates encodes one update mutation per slot, in order.
func updates(id string, values ...slotValue) ([]protocol.Mutation, error) {
	out := make([]protocol.Mutation, 0, len(values))
	for _, v := range values {
		m, err := protocol.NewUpdate(id, v.field, v.value)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
