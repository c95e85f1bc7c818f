// Package inflight tracks keys with work currently queued or running, so
// duplicate triggers collapse into one unit of work.
package inflight

import (
	"context"
	"sync"
)

// Default tracker configuration constants.
const defaultMaxSize = 4096

// Tracker records in-flight keys. A rebuild trigger calls SeenAndRecord
// before enqueuing and Unrecord when the work finishes (or fails to
// enqueue), so at most one rebuild per problem is pending at a time.
type Tracker interface {
	// SeenAndRecord atomically checks if key is tracked and records it if
	// not. Returns true if key was already tracked.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord removes a key, allowing the next trigger through.
	Unrecord(ctx context.Context, key string)

	Size() int
}

// Option applies a configuration option to the tracker.
type Option func(*memTracker)

// WithMaxSize bounds the tracked set. When full, the oldest entry is
// evicted; its work may then be triggered twice, which the per-key rebuild
// lock absorbs.
func WithMaxSize(maxSize int) Option {
	return func(t *memTracker) {
		if maxSize > 0 {
			t.maxSize = maxSize
		}
	}
}

// memTracker implements Tracker with a map plus insertion-order ring.
type memTracker struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	order   []string
	maxSize int
}

// New creates an in-memory tracker with configuration options.
func New(opts ...Option) Tracker {
	t := &memTracker{
		seen:    make(map[string]struct{}),
		maxSize: defaultMaxSize,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *memTracker) SeenAndRecord(_ context.Context, key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.seen[key]; ok {
		return true
	}
	if len(t.order) >= t.maxSize {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.seen, oldest)
	}
	t.seen[key] = struct{}{}
	t.order = append(t.order, key)
	return false
}

func (t *memTracker) Unrecord(_ context.Context, key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.seen[key]; !ok {
		return
	}
	delete(t.seen, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *memTracker) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}
