// Package devserver implements a development copy of the remote record
// store: the path-index, by-uuid and batch endpoints over a memory or
// PostgreSQL backend.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/originfs/originfs/pkg/models"
	"github.com/originfs/originfs/pkg/protocol"
)

// ErrNotFound is returned when an owner has no record with the given id.
var ErrNotFound = errors.New("record not found")

// BatchError reports a mutation the store refused. The whole batch is
// rejected; nothing from it is applied.
type BatchError struct {
	Position int // 0-based offset within the batch
	Command  string
	UUID     string
	Reason   string
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("update %d (%s %s): %s", e.Position, e.Command, e.UUID, e.Reason)
}

// Store persists records per owner.
type Store interface {
	// Index returns every record's store-native path mapped to its id.
	Index(ctx context.Context, owner string) (map[string]string, error)
	Get(ctx context.Context, owner, id string) (*models.Record, error)
	// Apply runs a batch atomically.
	Apply(ctx context.Context, owner string, updates []protocol.Mutation) error
	Close() error
}

// storePath is the store-native path under which rec appears in the index.
func storePath(rec *models.Record) string {
	name := rec.Name
	if !rec.IsFolder() {
		name += rec.Type
	}
	if rec.Location == "" {
		return name
	}
	return rec.Location + "/" + name
}

// lookupFunc loads a record for a batch. ok is false when it does not exist.
type lookupFunc func(id string) (rec *models.Record, ok bool, err error)

// applyBatch replays updates against records obtained through lookup. It
// returns the resulting state of every touched id; a nil record means the
// id was deleted. lookup is consulted at most once per id.
func applyBatch(updates []protocol.Mutation, lookup lookupFunc) (map[string]*models.Record, error) {
	touched := make(map[string]*models.Record)

	current := func(id string) (*models.Record, error) {
		if rec, ok := touched[id]; ok {
			return rec, nil
		}
		rec, ok, err := lookup(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			rec = nil
		}
		touched[id] = rec
		return rec, nil
	}

	for i, m := range updates {
		refuse := func(reason string) error {
			return &BatchError{Position: i, Command: m.Command, UUID: m.UUID, Reason: reason}
		}
		if m.UUID == "" {
			return nil, refuse("missing uuid")
		}

		rec, err := current(m.UUID)
		if err != nil {
			return nil, err
		}

		switch m.Command {
		case protocol.CommandAdd:
			if rec != nil {
				return nil, refuse("uuid already exists")
			}
			var added models.Record
			if err := json.Unmarshal(m.Data, &added); err != nil {
				return nil, refuse("invalid record: " + err.Error())
			}
			if added.ID != m.UUID {
				return nil, refuse("record id does not match uuid")
			}
			touched[m.UUID] = &added

		case protocol.CommandUpdate:
			if rec == nil {
				return nil, refuse("no such record")
			}
			field := m.Field()
			if field < 0 {
				return nil, refuse("missing field index")
			}
			if field == models.FieldID {
				return nil, refuse("identifier is immutable")
			}
			if len(m.Data) == 0 {
				return nil, refuse("missing value")
			}
			updated := rec.Clone()
			if err := updated.SetField(field, m.Data); err != nil {
				return nil, refuse(err.Error())
			}
			touched[m.UUID] = updated

		case protocol.CommandDelete:
			if rec == nil {
				return nil, refuse("no such record")
			}
			touched[m.UUID] = nil

		default:
			return nil, refuse("unknown command")
		}
	}

	return touched, nil
}
