// Package modelcache owns the rebuild-trigger policy and the in-memory cache
// of per-problem correctness models.
package modelcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/nudge/internal/adapters/repository"
	"github.com/okian/nudge/internal/domain/scoring"
	"github.com/okian/nudge/pkg/logger"
	"github.com/okian/nudge/pkg/metrics"
)

// Default cache configuration constants.
const (
	defaultMinCount   = 10
	defaultIncrement  = 5
	defaultMaxEntries = 128
)

// Store is the slice of the event store the cache depends on.
type Store interface {
	DistinctCodeStateCount(ctx context.Context, problemID string) (int, error)
	TrainingExamples(ctx context.Context, problemID string) ([]scoring.Example, error)
	ModelRecord(ctx context.Context, problemID string) (*repository.ModelRecord, error)
	SetModelRecord(ctx context.Context, problemID string, blob []byte, trainingCount int) error
}

// Cache decides when a problem's model is stale, rebuilds it, and serves
// deserialized models from a bounded in-memory cache.
type Cache struct {
	store   Store
	trainer *scoring.Trainer

	minCount   int
	increment  int
	maxEntries int

	// mu guards the model map, its insertion order, and the lock table.
	mu       sync.Mutex
	models   map[string]scoring.Model
	order    []string
	building map[string]*sync.Mutex

	logger logger.Logger
}

// Option applies a configuration option to the Cache.
type Option func(*Cache)

// WithThresholds sets the rebuild gate: no build below minCount distinct
// submissions, and no rebuild until increment new ones have accumulated.
func WithThresholds(minCount, increment int) Option {
	return func(c *Cache) {
		if minCount > 0 {
			c.minCount = minCount
		}
		if increment > 0 {
			c.increment = increment
		}
	}
}

// WithMaxEntries bounds the in-memory model cache. When full, the oldest
// entry is evicted; evicted models reload from the store on demand.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithLogger sets a custom logger for the cache.
func WithLogger(l logger.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Cache over store, training with trainer.
func New(store Store, trainer *scoring.Trainer, opts ...Option) *Cache {
	c := &Cache{
		store:      store,
		trainer:    trainer,
		minCount:   defaultMinCount,
		increment:  defaultIncrement,
		maxEntries: defaultMaxEntries,
		models:     make(map[string]scoring.Model),
		building:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("modelcache")
	}
	return c
}

// ShouldRebuild reports whether the stored model for a problem is stale.
// Below minCount distinct submissions nothing is built; once a model exists,
// a rebuild waits until increment new distinct submissions have accumulated.
func (c *Cache) ShouldRebuild(ctx context.Context, problemID string) (bool, error) {
	count, err := c.store.DistinctCodeStateCount(ctx, problemID)
	if err != nil {
		return false, err
	}
	if count < c.minCount {
		return false, nil
	}
	rec, err := c.store.ModelRecord(ctx, problemID)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return true, nil
	}
	return count >= rec.TrainingCount+c.increment, nil
}

// Rebuild trains and stores a fresh model for a problem. Rebuilds for the
// same problem are mutually exclusive; a failure leaves the stored record
// and the cached model untouched.
func (c *Cache) Rebuild(ctx context.Context, problemID string) error {
	lock := c.rebuildLock(problemID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	err := c.rebuild(ctx, problemID)
	metrics.RecordRebuildDuration(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordRebuildFailure()
		return err
	}
	metrics.RecordRebuildSuccess()
	return nil
}

func (c *Cache) rebuild(ctx context.Context, problemID string) error {
	examples, err := c.store.TrainingExamples(ctx, problemID)
	if err != nil {
		return fmt.Errorf("load training examples: %w", err)
	}
	model, err := c.trainer.Train(ctx, examples)
	if err != nil {
		return fmt.Errorf("train model for %q: %w", problemID, err)
	}
	blob, err := scoring.Marshal(model)
	if err != nil {
		return fmt.Errorf("serialize model for %q: %w", problemID, err)
	}
	// The stored count is the distinct-submission count at build time; the
	// next rebuild is gated against it.
	count, err := c.store.DistinctCodeStateCount(ctx, problemID)
	if err != nil {
		return fmt.Errorf("count submissions for %q: %w", problemID, err)
	}
	if err := c.store.SetModelRecord(ctx, problemID, blob, count); err != nil {
		return err
	}
	c.put(problemID, model)
	c.logger.Info(ctx, "rebuilt model",
		logger.String("problemID", problemID),
		logger.Int("trainingCount", count),
		logger.Int("examples", len(examples)),
	)
	return nil
}

// Get returns the current model for a problem, or nil when none has been
// built yet. Cache misses fall through to the store.
func (c *Cache) Get(ctx context.Context, problemID string) (scoring.Model, error) {
	c.mu.Lock()
	if model, ok := c.models[problemID]; ok {
		c.mu.Unlock()
		metrics.RecordModelCacheHit()
		return model, nil
	}
	c.mu.Unlock()
	metrics.RecordModelCacheMiss()

	rec, err := c.store.ModelRecord(ctx, problemID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	model, err := scoring.Unmarshal(rec.Model)
	if err != nil {
		return nil, fmt.Errorf("load model for %q: %w", problemID, err)
	}
	c.put(problemID, model)
	return model, nil
}

// put inserts or replaces a cached model, evicting the oldest entry when
// the cache is full.
func (c *Cache) put(problemID string, model scoring.Model) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.models[problemID]; !ok {
		if len(c.order) >= c.maxEntries {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.models, oldest)
		}
		c.order = append(c.order, problemID)
	}
	c.models[problemID] = model
	metrics.UpdateModelCacheSize(len(c.models))
}

// rebuildLock returns the per-problem rebuild mutex, creating it on first use.
func (c *Cache) rebuildLock(problemID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.building[problemID]
	if !ok {
		lock = &sync.Mutex{}
		c.building[problemID] = lock
	}
	return lock
}

// Size returns the number of models currently held in memory.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.models)
}
