package originfs

import (
	"errors"

	"github.com/originfs/originfs/pkg/client"
	"github.com/originfs/originfs/pkg/models"
)

var (
	// ErrNotFound is returned when a path or identifier is absent locally or remotely.
	ErrNotFound = errors.New("originfs: not found")

	// ErrInvalidType is returned when a payload does not have the expected
	// shape, e.g. reading the content of a folder.
	ErrInvalidType = errors.New("originfs: invalid payload type")

	// ErrInvalidPath is returned for arguments that name no record, such as
	// creating a file at the root.
	ErrInvalidPath = errors.New("originfs: invalid path")
)

// RemoteError is the transport's error type; see client.RemoteError.
type RemoteError = client.RemoteError

// remoteNotFound reports whether a fetch error means the store has no such record.
func remoteNotFound(err error) bool {
	if errors.Is(err, models.ErrEmptyRecord) {
		return true
	}
	if re, ok := client.AsRemote(err); ok {
		return re.NotFound()
	}
	return false
}
