package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/originfs/originfs/pkg/client"
	"github.com/originfs/originfs/pkg/models"
	"github.com/originfs/originfs/pkg/protocol"
)

// LocalRemote serves one owner's records straight from a Store, without
// HTTP. Errors take the same shape the HTTP transport produces.
type LocalRemote struct {
	Store Store
	Owner string
}

func (r *LocalRemote) FetchIndex(ctx context.Context) (*protocol.IndexResponse, error) {
	paths, err := r.Store.Index(ctx, r.Owner)
	if err != nil {
		return nil, &client.RemoteError{Op: client.OpIndex, Status: http.StatusInternalServerError, Err: err}
	}
	index := make(map[string]json.RawMessage, len(paths))
	for p, id := range paths {
		raw, _ := json.Marshal(id)
		index[p] = raw
	}
	return &protocol.IndexResponse{Username: r.Owner, Index: index}, nil
}

func (r *LocalRemote) FetchRecord(ctx context.Context, id string) (*models.Record, error) {
	rec, err := r.Store.Get(ctx, r.Owner, id)
	if errors.Is(err, ErrNotFound) {
		return nil, &client.RemoteError{Op: client.OpRecord, Status: http.StatusNotFound, Body: err.Error()}
	}
	if err != nil {
		return nil, &client.RemoteError{Op: client.OpRecord, Status: http.StatusInternalServerError, Err: err}
	}
	return rec, nil
}

func (r *LocalRemote) CommitBatch(ctx context.Context, updates []protocol.Mutation) error {
	err := r.Store.Apply(ctx, r.Owner, updates)
	var be *BatchError
	if errors.As(err, &be) {
		return &client.RemoteError{Op: client.OpBatch, Status: http.StatusOK, Message: be.Error()}
	}
	if err != nil {
		return &client.RemoteError{Op: client.OpBatch, Status: http.StatusInternalServerError, Err: err}
	}
	return nil
}
