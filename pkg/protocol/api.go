// Package protocol defines the remote store request/response types.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/originfs/originfs/pkg/models"
)

// Remote store endpoints.
const (
	PathIndexEndpoint = "/files/path-index"
	RecordEndpoint    = "/files/by-uuid"
	BatchEndpoint     = "/files"
)

// Mutation commands understood by the batch endpoint.
const (
	CommandAdd    = "UUIDa"
	CommandUpdate = "UUIDr"
	CommandDelete = "UUIDd"
)

// IndexResponse is returned by GET /files/path-index.
// Index values that are not strings are reserved and skipped by clients.
type IndexResponse struct {
	Username string                     `json:"username"`
	Index    map[string]json.RawMessage `json:"index"`
	Error    string                     `json:"error,omitempty"`
}

// Paths returns the index entries whose value is a string.
func (r *IndexResponse) Paths() map[string]string {
	out := make(map[string]string, len(r.Index))
	for k, raw := range r.Index {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			continue
		}
		out[k] = id
	}
	return out
}

// Mutation is one entry of a batch update. Index is 1-based on the wire.
type Mutation struct {
	Command string          `json:"command"`
	UUID    string          `json:"uuid"`
	Data    json.RawMessage `json:"dta,omitempty"`
	Index   int             `json:"idx,omitempty"`
}

// Field returns the 0-based record slot an update targets.
func (m Mutation) Field() int {
	return m.Index - 1
}

// BatchRequest is the body of POST /files.
type BatchRequest struct {
	Updates []Mutation `json:"updates"`
}

// ErrorResponse is returned on API errors. The store also embeds an error
// field in otherwise successful responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewAdd encodes an add mutation carrying a snapshot of rec.
func NewAdd(rec *models.Record) (Mutation, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return Mutation{}, fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	return Mutation{Command: CommandAdd, UUID: rec.ID, Data: data}, nil
}

// NewUpdate encodes an update of the 0-based record slot field.
func NewUpdate(id string, field int, value any) (Mutation, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return Mutation{}, fmt.Errorf("encode field %d of %s: %w", field, id, err)
	}
	return Mutation{Command: CommandUpdate, UUID: id, Data: data, Index: field + 1}, nil
}

// NewDelete returns a delete mutation.
func NewDelete(id string) Mutation {
	return Mutation{Command: CommandDelete, UUID: id}
}
