package client

import (
	"errors"
	"fmt"
	"net/http"
)

// RemoteError is returned when the remote store cannot be reached, answers
// with a non-200 status, or reports an application error in its body. The
// raw status and body are kept for diagnostics.
type RemoteError struct {
	Op      string // path-index, by-uuid, batch
	Status  int    // 0 when no response was received
	Body    string
	Message string // application error field, if any
	Err     error  // transport error, if any
}

func (e *RemoteError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
	case e.Message != "":
		return fmt.Sprintf("remote %s: %s", e.Op, e.Message)
	default:
		return fmt.Sprintf("remote %s: HTTP %d: %s", e.Op, e.Status, e.Body)
	}
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// NotFound reports whether the store answered 404.
func (e *RemoteError) NotFound() bool {
	return e.Status == http.StatusNotFound
}

// AsRemote checks if an error is a RemoteError and returns it.
func AsRemote(err error) (*RemoteError, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
