// Package client provides the HTTP transport to the remote record store with
// retry, auth and request metrics.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/originfs/originfs/internal/logging"
	"github.com/originfs/originfs/internal/metrics"
	"github.com/originfs/originfs/pkg/models"
	"github.com/originfs/originfs/pkg/protocol"
	"github.com/originfs/originfs/pkg/retry"
)

// Operation names used in errors, logs and metrics.
const (
	OpIndex  = "path-index"
	OpRecord = "by-uuid"
	OpBatch  = "batch"
)

// Client talks to the remote store. It is safe for concurrent use.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config

	mu        sync.RWMutex
	online    bool
	authToken string
}

// Config holds client configuration.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	RetryConfig retry.Config
	AuthToken   string

	// HTTPClient overrides the default transport, mostly for tests.
	HTTPClient *http.Client
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}

	return &Client{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient:  hc,
		retryConfig: cfg.RetryConfig,
		online:      true,
		authToken:   cfg.AuthToken,
	}
}

// SetAuthToken sets the credential sent with every request.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

// applyAuth adds the credential as the store's auth query parameter and as
// a bearer header.
func (c *Client) applyAuth(req *http.Request) {
	c.mu.RLock()
	token := c.authToken
	c.mu.RUnlock()
	if token == "" {
		return
	}
	q := req.URL.Query()
	q.Set("auth", token)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Authorization", "Bearer "+token)
}

// IsOnline returns true if the last request reached the store.
func (c *Client) IsOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

func (c *Client) setOnline(online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.online != online {
		if online {
			logging.Info("remote store is reachable again", zap.String("url", c.baseURL))
		} else {
			logging.Warn("remote store is unreachable", zap.String("url", c.baseURL))
		}
	}
	c.online = online
}

// FetchIndex fetches the path index snapshot.
func (c *Client) FetchIndex(ctx context.Context) (*protocol.IndexResponse, error) {
	resp, err := retry.Do(ctx, c.retryConfig, func() (*protocol.IndexResponse, error) {
		body, err := c.do(ctx, OpIndex, http.MethodGet, protocol.PathIndexEndpoint, nil, nil)
		if err != nil {
			return nil, err
		}

		var resp protocol.IndexResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, &RemoteError{Op: OpIndex, Status: http.StatusOK, Body: string(body), Err: fmt.Errorf("decode index: %w", err)}
		}
		return &resp, nil
	})
	return resp, asRemote(OpIndex, err)
}

// FetchRecord fetches a single record by identifier. A null or empty body
// yields models.ErrEmptyRecord.
func (c *Client) FetchRecord(ctx context.Context, id string) (*models.Record, error) {
	rec, err := retry.Do(ctx, c.retryConfig, func() (*models.Record, error) {
		query := url.Values{"uuid": {id}}
		body, err := c.do(ctx, OpRecord, http.MethodGet, protocol.RecordEndpoint, query, nil)
		if err != nil {
			return nil, err
		}

		var rec models.Record
		if err := json.Unmarshal(body, &rec); err != nil {
			if errors.Is(err, models.ErrEmptyRecord) {
				return nil, fmt.Errorf("record %s: %w", id, err)
			}
			return nil, &RemoteError{Op: OpRecord, Status: http.StatusOK, Body: string(body), Err: fmt.Errorf("decode record: %w", err)}
		}
		if rec.ID == "" {
			return nil, fmt.Errorf("record %s: %w", id, models.ErrEmptyRecord)
		}
		return &rec, nil
	})
	return rec, asRemote(OpRecord, err)
}

// asRemote wraps errors that did not come from the store itself, such as
// the caller's context ending between attempts, in a RemoteError.
func asRemote(op string, err error) error {
	if err == nil || errors.Is(err, models.ErrEmptyRecord) {
		return err
	}
	if _, ok := AsRemote(err); ok {
		return err
	}
	return &RemoteError{Op: op, Err: err}
}

// CommitBatch sends mutations as one batch. It is never retried here: the
// batch is not idempotent, so the caller decides when to send it again.
func (c *Client) CommitBatch(ctx context.Context, updates []protocol.Mutation) error {
	req := protocol.BatchRequest{Updates: updates}
	_, err := c.do(ctx, OpBatch, http.MethodPost, protocol.BatchEndpoint, nil, req)
	if err != nil && retry.IsRetryable(err) {
		re, _ := AsRemote(err)
		return re
	}
	return err
}

// do performs one request. Transport failures and 5xx answers come back
// marked retryable.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, payload any) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", op, err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	if query != nil {
		req.URL.RawQuery = query.Encode()
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept-Encoding", "gzip")

	requestID := logging.GetRequestID(ctx)
	if requestID == "" {
		requestID = logging.NewRequestID()
	}
	req.Header.Set(logging.RequestIDHeader, requestID)
	c.applyAuth(req)

	log := logging.WithContext(ctx).With(zap.String("op", op), zap.String("request_id", requestID))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordRemoteRequest(op, 0, time.Since(start))
		c.setOnline(false)
		log.Debug("remote request failed", zap.Error(err))
		return nil, retry.Retryable(&RemoteError{Op: op, Err: err})
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	metrics.RecordRemoteRequest(op, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, retry.Retryable(&RemoteError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)})
	}
	c.setOnline(true)

	log.Debug("remote request completed",
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		rerr := &RemoteError{Op: op, Status: resp.StatusCode, Body: string(body), Message: errorField(body)}
		if resp.StatusCode >= 500 {
			return nil, retry.Retryable(rerr)
		}
		return nil, rerr
	}

	if msg := errorField(body); msg != "" {
		return nil, &RemoteError{Op: op, Status: resp.StatusCode, Body: string(body), Message: msg}
	}

	return body, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		r = gr
	}
	return io.ReadAll(r)
}

// errorField returns the application error carried in a JSON object body.
func errorField(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ""
	}
	var e protocol.ErrorResponse
	if err := json.Unmarshal(trimmed, &e); err != nil {
		return ""
	}
	return e.Error
}
