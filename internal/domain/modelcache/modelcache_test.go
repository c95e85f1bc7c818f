package modelcache_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/nudge/internal/adapters/repository"
	modelcache "github.com/okian/nudge/internal/domain/modelcache"
	scoring "github.com/okian/nudge/internal/domain/scoring"
	"github.com/okian/nudge/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// fakeStore is an in-memory stand-in for the SQLite store.
type fakeStore struct {
	counts      map[string]int
	examples    map[string][]scoring.Example
	records     map[string]*repository.ModelRecord
	examplesErr error
	recordCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		counts:   make(map[string]int),
		examples: make(map[string][]scoring.Example),
		records:  make(map[string]*repository.ModelRecord),
	}
}

func (s *fakeStore) DistinctCodeStateCount(_ context.Context, problemID string) (int, error) {
	return s.counts[problemID], nil
}

func (s *fakeStore) TrainingExamples(_ context.Context, problemID string) ([]scoring.Example, error) {
	if s.examplesErr != nil {
		return nil, s.examplesErr
	}
	return s.examples[problemID], nil
}

func (s *fakeStore) ModelRecord(_ context.Context, problemID string) (*repository.ModelRecord, error) {
	s.recordCalls++
	return s.records[problemID], nil
}

func (s *fakeStore) SetModelRecord(_ context.Context, problemID string, blob []byte, trainingCount int) error {
	s.records[problemID] = &repository.ModelRecord{
		ProblemID:     problemID,
		Model:         blob,
		TrainingCount: trainingCount,
	}
	return nil
}

func mixedExamples() []scoring.Example {
	return []scoring.Example{
		{Code: "return a + b", Correct: true},
		{Code: "return a - b", Correct: false},
		{Code: "total = a + b", Correct: true},
	}
}

func TestShouldRebuild(t *testing.T) {
	ctx := context.Background()

	convey.Convey("Given a cache gated at 10 submissions with increment 5", t, func() {
		store := newFakeStore()
		cache := modelcache.New(store, scoring.NewTrainer(),
			modelcache.WithThresholds(10, 5),
		)

		convey.Convey("When a problem has too few submissions", func() {
			store.counts["p1"] = 9
			stale, err := cache.ShouldRebuild(ctx, "p1")

			convey.Convey("Then nothing should build", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(stale, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When the threshold is reached and no model exists", func() {
			store.counts["p1"] = 10
			stale, err := cache.ShouldRebuild(ctx, "p1")

			convey.Convey("Then a build should be due", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(stale, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a model was built at count 10", func() {
			store.records["p1"] = &repository.ModelRecord{ProblemID: "p1", TrainingCount: 10}

			convey.Convey("And fewer than increment new submissions arrived", func() {
				store.counts["p1"] = 14
				stale, err := cache.ShouldRebuild(ctx, "p1")

				convey.Convey("Then no rebuild should be due", func() {
					convey.So(err, convey.ShouldBeNil)
					convey.So(stale, convey.ShouldBeFalse)
				})
			})

			convey.Convey("And increment new submissions arrived", func() {
				store.counts["p1"] = 15
				stale, err := cache.ShouldRebuild(ctx, "p1")

				convey.Convey("Then a rebuild should be due", func() {
					convey.So(err, convey.ShouldBeNil)
					convey.So(stale, convey.ShouldBeTrue)
				})
			})
		})
	})
}

func TestRebuild(t *testing.T) {
	ctx := context.Background()

	convey.Convey("Given a cache over a store with graded submissions", t, func() {
		store := newFakeStore()
		store.counts["p1"] = 12
		store.examples["p1"] = mixedExamples()
		cache := modelcache.New(store, scoring.NewTrainer(),
			modelcache.WithThresholds(10, 5),
		)

		convey.Convey("When rebuilding", func() {
			err := cache.Rebuild(ctx, "p1")

			convey.Convey("Then a record should be stored with the current count", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(store.records["p1"], convey.ShouldNotBeNil)
				convey.So(store.records["p1"].TrainingCount, convey.ShouldEqual, 12)
				convey.So(len(store.records["p1"].Model), convey.ShouldBeGreaterThan, 0)
			})

			convey.Convey("Then the model should be servable from memory", func() {
				convey.So(err, convey.ShouldBeNil)
				m, err := cache.Get(ctx, "p1")
				convey.So(err, convey.ShouldBeNil)
				convey.So(m, convey.ShouldNotBeNil)
				convey.So(cache.Size(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When training data cannot be loaded", func() {
			store.records["p1"] = &repository.ModelRecord{ProblemID: "p1", TrainingCount: 10}
			prior := store.records["p1"]
			store.examplesErr = errors.New("table locked")
			err := cache.Rebuild(ctx, "p1")

			convey.Convey("Then the failure should leave the prior record alone", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(store.records["p1"], convey.ShouldEqual, prior)
			})
		})

		convey.Convey("When the problem has no examples at all", func() {
			err := cache.Rebuild(ctx, "empty")

			convey.Convey("Then the rebuild should fail without storing", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(store.records["empty"], convey.ShouldBeNil)
			})
		})
	})
}

func TestGet(t *testing.T) {
	ctx := context.Background()

	convey.Convey("Given a cache", t, func() {
		store := newFakeStore()
		cache := modelcache.New(store, scoring.NewTrainer())

		convey.Convey("When no model exists for a problem", func() {
			m, err := cache.Get(ctx, "p1")

			convey.Convey("Then it should return nil without error", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(m, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a stored model exists", func() {
			blob, err := scoring.Marshal(&scoring.ConstantModel{Probability: 1})
			convey.So(err, convey.ShouldBeNil)
			store.records["p1"] = &repository.ModelRecord{ProblemID: "p1", Model: blob, TrainingCount: 10}

			first, err1 := cache.Get(ctx, "p1")
			callsAfterMiss := store.recordCalls
			second, err2 := cache.Get(ctx, "p1")

			convey.Convey("Then the second read should come from memory", func() {
				convey.So(err1, convey.ShouldBeNil)
				convey.So(err2, convey.ShouldBeNil)
				convey.So(first, convey.ShouldNotBeNil)
				convey.So(second, convey.ShouldEqual, first)
				convey.So(store.recordCalls, convey.ShouldEqual, callsAfterMiss)
			})
		})

		convey.Convey("When the stored blob is corrupt", func() {
			store.records["p1"] = &repository.ModelRecord{ProblemID: "p1", Model: []byte("junk"), TrainingCount: 10}
			_, err := cache.Get(ctx, "p1")

			convey.Convey("Then the load should fail", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestEviction(t *testing.T) {
	ctx := context.Background()

	convey.Convey("Given a cache bounded to two entries", t, func() {
		store := newFakeStore()
		for _, p := range []string{"p1", "p2", "p3"} {
			blob, err := scoring.Marshal(&scoring.ConstantModel{Probability: 1})
			convey.So(err, convey.ShouldBeNil)
			store.records[p] = &repository.ModelRecord{ProblemID: p, Model: blob, TrainingCount: 10}
		}
		cache := modelcache.New(store, scoring.NewTrainer(), modelcache.WithMaxEntries(2))

		convey.Convey("When loading three problems", func() {
			for _, p := range []string{"p1", "p2", "p3"} {
				_, err := cache.Get(ctx, p)
				convey.So(err, convey.ShouldBeNil)
			}

			convey.Convey("Then only two should stay in memory", func() {
				convey.So(cache.Size(), convey.ShouldEqual, 2)
			})

			convey.Convey("Then the evicted problem should reload from the store", func() {
				before := store.recordCalls
				m, err := cache.Get(ctx, "p1")
				convey.So(err, convey.ShouldBeNil)
				convey.So(m, convey.ShouldNotBeNil)
				convey.So(store.recordCalls, convey.ShouldEqual, before+1)
			})
		})
	})
}
