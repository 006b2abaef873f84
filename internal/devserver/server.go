package devserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/originfs/originfs/internal/logging"
	"github.com/originfs/originfs/internal/metrics"
	"github.com/originfs/originfs/pkg/protocol"
)

// maxBatchSize bounds the body of a batch request.
const maxBatchSize = 32 << 20

// Server serves the remote store protocol.
type Server struct {
	store Store
	auth  *Auth
}

// NewServer creates a server over store.
func NewServer(store Store, auth *Auth) *Server {
	return &Server{store: store, auth: auth}
}

// Handler returns the HTTP handler with auth, logging and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	protected := http.NewServeMux()
	protected.HandleFunc("GET "+protocol.PathIndexEndpoint, s.handleIndex)
	protected.HandleFunc("GET "+protocol.RecordEndpoint, s.handleRecord)
	protected.HandleFunc("POST "+protocol.BatchEndpoint, s.handleBatch)

	mux.Handle(protocol.BatchEndpoint, s.auth.Middleware(protected))
	mux.Handle(protocol.BatchEndpoint+"/", s.auth.Middleware(protected))

	observe := func(r *http.Request, status int, d time.Duration) {
		metrics.RecordHTTPRequest(r.Method, r.URL.Path, status, d)
	}
	return logging.Middleware(observe)(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	owner := Owner(r.Context())
	paths, err := s.store.Index(r.Context(), owner)
	if err != nil {
		logging.WithContext(r.Context()).Error("index query failed", zap.Error(err))
		sendError(w, http.StatusInternalServerError, "failed to load index")
		return
	}

	index := make(map[string]json.RawMessage, len(paths))
	for p, id := range paths {
		raw, _ := json.Marshal(id)
		index[p] = raw
	}

	resp := protocol.IndexResponse{Username: owner, Index: index}

	w.Header().Set("Content-Type", "application/json")
	if acceptsGzip(r) {
		w.Header().Set("Content-Encoding", "gzip")
		gw := gzip.NewWriter(w)
		defer gw.Close()
		json.NewEncoder(gw).Encode(resp)
		return
	}
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("uuid")
	if id == "" {
		sendError(w, http.StatusBadRequest, "uuid required")
		return
	}

	rec, err := s.store.Get(r.Context(), Owner(r.Context()), id)
	if errors.Is(err, ErrNotFound) {
		sendError(w, http.StatusNotFound, "record not found: "+id)
		return
	}
	if err != nil {
		logging.WithContext(r.Context()).Error("record query failed", zap.String("id", id), zap.Error(err))
		sendError(w, http.StatusInternalServerError, "failed to load record")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBatchSize)

	var req protocol.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	log := logging.WithContext(r.Context())
	owner := Owner(r.Context())

	err := s.store.Apply(r.Context(), owner, req.Updates)
	var batchErr *BatchError
	if errors.As(err, &batchErr) {
		// The store reports refused batches in a 200 body.
		log.Info("batch refused", zap.String("owner", owner), zap.Error(err))
		sendJSON(w, http.StatusOK, protocol.ErrorResponse{Error: batchErr.Error()})
		return
	}
	if err != nil {
		log.Error("batch failed", zap.String("owner", owner), zap.Error(err))
		sendError(w, http.StatusInternalServerError, "failed to apply batch")
		return
	}

	log.Info("batch applied", zap.String("owner", owner), zap.Int("updates", len(req.Updates)))
	sendJSON(w, http.StatusOK, map[string]int{"applied": len(req.Updates)})
}

func acceptsGzip(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}

func sendJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, code int, message string) {
	sendJSON(w, code, protocol.ErrorResponse{Error: message})
}
