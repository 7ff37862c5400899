package store

import (
	"context"

	"github.com/harun/memoranda/pkg/memo"
	"github.com/harun/memoranda/pkg/retry"
	"github.com/harun/memoranda/pkg/search"
)

// Future is the pending result of an asynchronous store operation.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func goFuture[T any](fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.value, f.err = fn()
	}()
	return f
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the operation finishes or ctx is done. Returning early
// does not stop the operation. The operation runs under the context it was
// started with, so cancelling that context is what bounds its lifetime;
// callers that give up waiting should cancel it as well.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// AsyncStore exposes the store operations as futures. Semantics match the
// synchronous methods; retries add jitter to their delays.
type AsyncStore struct {
	s      *Store
	policy retry.Policy
}

// Async returns the asynchronous view of the store.
func (s *Store) Async() *AsyncStore {
	return &AsyncStore{s: s, policy: s.policy.WithJitter()}
}

// Create is the asynchronous form of Store.Create.
func (a *AsyncStore) Create(ctx context.Context, title, content string) *Future[*memo.Memo] {
	return goFuture(func() (*memo.Memo, error) { return a.s.create(ctx, a.policy, title, content) })
}

// Get is the asynchronous form of Store.Get.
func (a *AsyncStore) Get(ctx context.Context, id memo.ID) *Future[*memo.Memo] {
	return goFuture(func() (*memo.Memo, error) { return a.s.get(ctx, a.policy, id) })
}

// Update is the asynchronous form of Store.Update.
func (a *AsyncStore) Update(ctx context.Context, id memo.ID, content string) *Future[*memo.Memo] {
	return goFuture(func() (*memo.Memo, error) { return a.s.update(ctx, a.policy, id, content) })
}

// Delete is the asynchronous form of Store.Delete.
func (a *AsyncStore) Delete(ctx context.Context, id memo.ID) *Future[struct{}] {
	return goFuture(func() (struct{}, error) { return struct{}{}, a.s.delete(ctx, a.policy, id) })
}

// List is the asynchronous form of Store.List.
func (a *AsyncStore) List(ctx context.Context) *Future[[]*memo.Memo] {
	return goFuture(func() ([]*memo.Memo, error) { return a.s.list(ctx, a.policy) })
}

// Search is the asynchronous form of Store.Search.
func (a *AsyncStore) Search(ctx context.Context, text string) *Future[[]search.Result] {
	return goFuture(func() ([]search.Result, error) {
		return a.s.searchQuery(ctx, a.policy, search.Parse(text), text)
	})
}

// GetAllContext is the asynchronous form of Store.GetAllContext.
func (a *AsyncStore) GetAllContext(ctx context.Context) *Future[string] {
	return goFuture(func() (string, error) { return a.s.getAllContext(ctx, a.policy) })
}
