// Package cache provides the client-side path index and record cache.
package cache

import (
	"github.com/originfs/originfs/pkg/models"
)

// Entries memoizes records by identifier for the life of a client. Nothing
// is ever evicted; entries leave only when the client removes the record.
//
// Entries is not safe for concurrent use; the owning client serializes access.
type Entries struct {
	records map[string]*models.Record
}

// NewEntries creates an empty record cache.
func NewEntries() *Entries {
	return &Entries{records: make(map[string]*models.Record)}
}

// Get returns the cached record. The pointer is the cache's own copy; hand
// out Clone() to anyone outside the client.
func (e *Entries) Get(id string) (*models.Record, bool) {
	rec, ok := e.records[id]
	return rec, ok
}

// Has reports whether id is cached.
func (e *Entries) Has(id string) bool {
	_, ok := e.records[id]
	return ok
}

// Put stores rec under its own identifier.
func (e *Entries) Put(rec *models.Record) {
	e.records[rec.ID] = rec
}

// PutIfAbsent stores rec unless a record with the same identifier is
// already cached, and returns whichever record is cached afterwards.
func (e *Entries) PutIfAbsent(rec *models.Record) *models.Record {
	if existing, ok := e.records[rec.ID]; ok {
		return existing
	}
	e.records[rec.ID] = rec
	return rec
}

// Delete drops id from the cache.
func (e *Entries) Delete(id string) {
	delete(e.records, id)
}

// Len returns the number of cached records.
func (e *Entries) Len() int {
	return len(e.records)
}
