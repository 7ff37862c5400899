package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncMatchesSync(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()
	a := s.Async()

	created, err := a.Create(ctx, "Async", "first").Wait(ctx)
	require.NoError(t, err)

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Content)

	updated, err := a.Update(ctx, created.ID, "second").Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", updated.Content)

	fetched, err := a.Get(ctx, created.ID).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", fetched.Content)

	memos, err := a.List(ctx).Wait(ctx)
	require.NoError(t, err)
	assert.Len(t, memos, 1)

	results, err := a.Search(ctx, "second").Wait(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, created.ID, results[0].Memo.ID)

	text, err := a.GetAllContext(ctx).Wait(ctx)
	require.NoError(t, err)
	assert.Contains(t, text, "# Async")

	_, err = a.Delete(ctx, created.ID).Wait(ctx)
	require.NoError(t, err)

	_, err = a.Get(ctx, created.ID).Wait(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFutureWaitCancelled(t *testing.T) {
	release := make(chan struct{})
	f := goFuture(func() (int, error) {
		<-release
		return 42, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	select {
	case <-f.Done():
	case <-time.After(time.Second):
		t.Fatal("future never completed")
	}

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}
