package cli

import (
	"errors"
	"io/fs"

	"github.com/harun/memoranda/pkg/store"
)

// Process exit codes.
const (
	ExitOK               = 0
	ExitFailure          = 1
	ExitNotFound         = 2
	ExitPermissionDenied = 77
)

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, store.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, fs.ErrPermission):
		return ExitPermissionDenied
	default:
		return ExitFailure
	}
}
