package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	p := ForFileIO()
	p.MaxAttempts = attempts
	p.InitialDelay = time.Millisecond
	p.MaxDelay = 4 * time.Millisecond
	return p
}

func transientErr() error {
	return &fs.PathError{Op: "write", Path: "/tmp/x", Err: syscall.EINTR}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), "noop", func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	v, err := DoValue(context.Background(), fastPolicy(3), "flaky", func() (string, error) {
		calls++
		if calls < 3 {
			return "", transientErr()
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(5), "missing", func() error {
		calls++
		return fmt.Errorf("failed to open: %w", fs.ErrNotExist)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	for _, attempts := range []int{1, 2, 4} {
		t.Run(fmt.Sprintf("attempts_%d", attempts), func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), fastPolicy(attempts), "always", func() error {
				calls++
				return transientErr()
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, syscall.EINTR)
			assert.Equal(t, attempts, calls)
		})
	}
}

func TestDoHonorsCancellation(t *testing.T) {
	p := fastPolicy(10)
	p.InitialDelay = 50 * time.Millisecond
	p.MaxDelay = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, p, "cancelled", func() error {
		calls++
		cancel()
		return transientErr()
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackOffScheduleIsCapped(t *testing.T) {
	p := Policy{MaxAttempts: 6, InitialDelay: 10 * time.Millisecond, MaxDelay: 40 * time.Millisecond, Multiplier: 2}
	b := p.NewBackOff()

	var delays []time.Duration
	for i := 0; i < 5; i++ {
		delays = append(delays, b.NextBackOff())
	}
	assert.Equal(t, []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
		40 * time.Millisecond,
		40 * time.Millisecond,
	}, delays)
	assert.Less(t, b.NextBackOff(), time.Duration(0), "schedule should stop after max attempts")
}

func TestJitterStaysWithinBound(t *testing.T) {
	p := Policy{MaxAttempts: 50, InitialDelay: 100 * time.Millisecond, MaxDelay: 100 * time.Millisecond, Multiplier: 2}.WithJitter()
	b := p.NewBackOff()
	for i := 0; i < 40; i++ {
		d := b.NextBackOff()
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 110*time.Millisecond)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not found", &fs.PathError{Op: "open", Path: "a", Err: fs.ErrNotExist}, false},
		{"invalid input", &fs.PathError{Op: "open", Path: "a", Err: syscall.EINVAL}, false},
		{"name too long", &fs.PathError{Op: "open", Path: "a", Err: syscall.ENAMETOOLONG}, false},
		{"invalid data", fmt.Errorf("parse: %w", ErrInvalidData), false},
		{"unexpected eof", io.ErrUnexpectedEOF, false},
		{"interrupted", transientErr(), true},
		{"would block", syscall.EAGAIN, true},
		{"short write", io.ErrShortWrite, true},
		{"permission", &fs.PathError{Op: "open", Path: "a", Err: fs.ErrPermission}, true},
		{"already exists", fs.ErrExist, true},
		{"unknown io", &fs.PathError{Op: "read", Path: "a", Err: syscall.EIO}, true},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestOnRetryHook(t *testing.T) {
	p := fastPolicy(3)
	var seen []int
	p.OnRetry = func(operation string, attempt int, err error, delay time.Duration) {
		assert.Equal(t, "hooked", operation)
		assert.Error(t, err)
		seen = append(seen, attempt)
	}

	err := Do(context.Background(), p, "hooked", func() error { return transientErr() })
	require.Error(t, err)
	assert.Equal(t, []int{1, 2}, seen)
}
