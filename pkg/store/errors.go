package store

import (
	"errors"

	"github.com/harun/memoranda/pkg/memo"
)

var (
	// ErrNotFound means no file holds the requested memo.
	ErrNotFound = errors.New("memo not found")
	// ErrNoStorageRoot means no .memoranda directory exists under the root.
	ErrNoStorageRoot = errors.New("no .memoranda directories found")
	// ErrGitNotFound means no enclosing git repository was found.
	ErrGitNotFound = errors.New("not in a git repository")
	// ErrMalformedMetadata marks an unparseable metadata block. It is
	// recovered internally and never returned by store operations.
	ErrMalformedMetadata = errors.New("malformed memo metadata")
	// ErrSerialization means a memo could not be encoded.
	ErrSerialization = errors.New("failed to serialize memo")
)

// ErrorType classifies err for metrics and exit codes.
func ErrorType(err error) string {
	var verr *memo.ValidationError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNoStorageRoot):
		return "no_storage_root"
	case errors.As(err, &verr):
		return "validation"
	case errors.Is(err, ErrSerialization):
		return "serialization"
	default:
		return "io"
	}
}
