// Package session keeps parsed imports around until they are committed,
// discarded or expire.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-itembank/internal/logger"
)

var ErrNotFound = errors.New("import session not found or expired")

type entry[T any] struct {
	value   T
	expires time.Time
}

// Arena maps opaque handles to values with a fixed time to live. Evict is
// called for every value that leaves the arena without being taken, so it
// can release whatever backs the value (temp files, uploads).
type Arena[T any] struct {
	mu    sync.Mutex
	items map[string]entry[T]
	ttl   time.Duration
	now   func() time.Time
	evict func(id string, v T)
	log   *logger.Logger
}

type Option[T any] func(*Arena[T])

func WithClock[T any](now func() time.Time) Option[T] {
	return func(a *Arena[T]) { a.now = now }
}

func WithEvict[T any](fn func(id string, v T)) Option[T] {
	return func(a *Arena[T]) { a.evict = fn }
}

func WithLogger[T any](l *logger.Logger) Option[T] {
	return func(a *Arena[T]) { a.log = logger.OrNop(l) }
}

func NewArena[T any](ttl time.Duration, opts ...Option[T]) *Arena[T] {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	a := &Arena[T]{
		items: map[string]entry[T]{},
		ttl:   ttl,
		now:   time.Now,
		log:   logger.Nop(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Put stores v under a new handle.
func (a *Arena[T]) Put(v T) (string, time.Time) {
	id := uuid.NewString()
	a.mu.Lock()
	defer a.mu.Unlock()
	exp := a.now().Add(a.ttl)
	a.items[id] = entry[T]{value: v, expires: exp}
	return id, exp
}

func (a *Arena[T]) Get(id string) (T, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.items[id]
	if !ok || !a.now().Before(e.expires) {
		var zero T
		return zero, ErrNotFound
	}
	return e.value, nil
}

// Take removes and returns the value. The evict callback is not run; the
// caller owns the value now.
func (a *Arena[T]) Take(id string) (T, error) {
	var zero T
	a.mu.Lock()
	e, ok := a.items[id]
	if ok {
		delete(a.items, id)
	}
	a.mu.Unlock()
	if !ok {
		return zero, ErrNotFound
	}
	if !a.now().Before(e.expires) {
		a.release(id, e.value)
		return zero, ErrNotFound
	}
	return e.value, nil
}

// Delete discards the value and runs the evict callback.
func (a *Arena[T]) Delete(id string) bool {
	a.mu.Lock()
	e, ok := a.items[id]
	if ok {
		delete(a.items, id)
	}
	a.mu.Unlock()
	if ok {
		a.release(id, e.value)
	}
	return ok
}

func (a *Arena[T]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.items)
}

// Sweep evicts everything expired at now and reports how many went.
// Evict callbacks run after the lock is released.
func (a *Arena[T]) Sweep(now time.Time) int {
	var (
		ids  []string
		vals []T
	)
	a.mu.Lock()
	for id, e := range a.items {
		if now.Before(e.expires) {
			continue
		}
		delete(a.items, id)
		ids = append(ids, id)
		vals = append(vals, e.value)
	}
	remaining := len(a.items)
	a.mu.Unlock()

	for i, id := range ids {
		a.release(id, vals[i])
	}
	if len(ids) > 0 {
		a.log.Info("import sessions expired", "evicted", len(ids), "remaining", remaining)
	}
	return len(ids)
}

// Run sweeps every interval until ctx is done.
func (a *Arena[T]) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 5 * time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.Sweep(a.now())
		}
	}
}

func (a *Arena[T]) release(id string, v T) {
	if a.evict != nil {
		a.evict(id, v)
	}
}
