package retry

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"syscall"

	"github.com/cenkalti/backoff/v4"
)

// ErrInvalidData marks corrupted or unparseable payloads. Never retried.
var ErrInvalidData = errors.New("invalid data")

// IsTransient reports whether err is worth retrying.
//
// Missing files, invalid input, over-long names and corrupted data are
// permanent. Timeouts, interrupted calls, short writes and permission or
// existence conflicts are transient, as is any other low-level I/O failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return false
	}

	// permanent classes
	switch {
	case errors.Is(err, fs.ErrNotExist),
		errors.Is(err, fs.ErrInvalid),
		errors.Is(err, syscall.EINVAL),
		errors.Is(err, syscall.ENAMETOOLONG),
		errors.Is(err, ErrInvalidData),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return false
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return false
	}

	// transient classes
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return true
	}
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded),
		errors.Is(err, syscall.EINTR),
		errors.Is(err, syscall.EAGAIN),
		errors.Is(err, io.ErrShortWrite),
		errors.Is(err, fs.ErrPermission),
		errors.Is(err, fs.ErrExist):
		return true
	}

	return isIOError(err)
}

func isIOError(err error) bool {
	var pathErr *fs.PathError
	var linkErr *os.LinkError
	var sysErr *os.SyscallError
	var errno syscall.Errno
	return errors.As(err, &pathErr) ||
		errors.As(err, &linkErr) ||
		errors.As(err, &sysErr) ||
		errors.As(err, &errno)
}
