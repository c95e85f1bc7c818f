package assign_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/nudge/internal/config"
	assign "github.com/okian/nudge/internal/domain/assign"
	"github.com/okian/nudge/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// fakeStore is an in-memory ConditionStore with first-writer-wins semantics.
type fakeStore struct {
	conditions map[string]bool
	calls      int
	err        error
}

func newFakeStore() *fakeStore {
	return &fakeStore{conditions: make(map[string]bool)}
}

func (s *fakeStore) GetOrSetSubjectCondition(_ context.Context, subjectID string, defaultFn func() bool) (bool, error) {
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	if v, ok := s.conditions[subjectID]; ok {
		return v, nil
	}
	v := defaultFn()
	s.conditions[subjectID] = v
	return v, nil
}

func TestDeterministicDefault(t *testing.T) {
	convey.Convey("Given an assigner with a fixed database identity", t, func() {
		a := assign.New(newFakeStore(),
			assign.WithDatabaseID("log"),
			assign.WithProbability(0.5),
		)

		convey.Convey("When computing the default repeatedly for one subject", func() {
			first := a.DeterministicDefault("subject-1")

			convey.Convey("Then every recomputation should agree", func() {
				for i := 0; i < 50; i++ {
					convey.So(a.DeterministicDefault("subject-1"), convey.ShouldEqual, first)
				}
			})
		})

		convey.Convey("When the probability is 1", func() {
			certain := assign.New(newFakeStore(),
				assign.WithDatabaseID("log"),
				assign.WithProbability(1),
			)

			convey.Convey("Then every subject should draw intervention", func() {
				for _, id := range []string{"a", "b", "c", "d", "e"} {
					convey.So(certain.DeterministicDefault(id), convey.ShouldBeTrue)
				}
			})
		})

		convey.Convey("When the probability is 0", func() {
			never := assign.New(newFakeStore(),
				assign.WithDatabaseID("log"),
				assign.WithProbability(0),
			)

			convey.Convey("Then every subject should draw control", func() {
				for _, id := range []string{"a", "b", "c", "d", "e"} {
					convey.So(never.DeterministicDefault(id), convey.ShouldBeFalse)
				}
			})
		})

		convey.Convey("When the database identity changes", func() {
			other := assign.New(newFakeStore(),
				assign.WithDatabaseID("other"),
				assign.WithProbability(0.5),
			)

			convey.Convey("Then at least one subject should draw differently", func() {
				differs := false
				for i := 0; i < 64 && !differs; i++ {
					id := string(rune('a' + i%26))
					differs = a.DeterministicDefault(id) != other.DeterministicDefault(id)
				}
				convey.So(differs, convey.ShouldBeTrue)
			})
		})
	})
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	convey.Convey("Given a random-assignment assigner", t, func() {
		store := newFakeStore()
		a := assign.New(store,
			assign.WithDatabaseID("log"),
			assign.WithMode(config.AssignRandomStudent),
			assign.WithProbability(0.5),
		)

		convey.Convey("When resolving the same subject twice", func() {
			first, err1 := a.Resolve(ctx, "subject-1", "problem-1")
			second, err2 := a.Resolve(ctx, "subject-1", "problem-1")

			convey.Convey("Then both calls should agree and hit the store", func() {
				convey.So(err1, convey.ShouldBeNil)
				convey.So(err2, convey.ShouldBeNil)
				convey.So(second, convey.ShouldEqual, first)
				convey.So(store.calls, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When a condition was persisted earlier", func() {
			store.conditions["subject-2"] = true
			resolved, err := a.Resolve(ctx, "subject-2", "problem-1")

			convey.Convey("Then the stored value should win over the default", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(resolved, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the store fails", func() {
			store.err = errors.New("disk gone")
			_, err := a.Resolve(ctx, "subject-3", "problem-1")

			convey.Convey("Then the error should propagate", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})

	convey.Convey("Given fixed assignment modes", t, func() {
		convey.Convey("When the mode is all_control", func() {
			store := newFakeStore()
			a := assign.New(store, assign.WithMode(config.AssignAllControl))
			resolved, err := a.Resolve(ctx, "subject-1", "problem-1")

			convey.Convey("Then it should resolve control without persisting", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(resolved, convey.ShouldBeFalse)
				convey.So(store.calls, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the mode is all_intervention", func() {
			store := newFakeStore()
			a := assign.New(store, assign.WithMode(config.AssignAllIntervention))
			resolved, err := a.Resolve(ctx, "subject-1", "problem-1")

			convey.Convey("Then it should resolve intervention without persisting", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(resolved, convey.ShouldBeTrue)
				convey.So(store.calls, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the mode is unknown", func() {
			a := assign.New(newFakeStore(), assign.WithMode("coin_flip"))
			resolved, err := a.Resolve(ctx, "subject-1", "problem-1")

			convey.Convey("Then it should fail open to intervention", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(resolved, convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given per-problem overrides", t, func() {
		convey.Convey("When a problem is manually pinned", func() {
			store := newFakeStore()
			store.conditions["subject-1"] = true
			a := assign.New(store,
				assign.WithMode(config.AssignRandomStudent),
				assign.WithManualAssignments(map[string]string{"exam-1": "control"}),
			)
			resolved, err := a.Resolve(ctx, "subject-1", "exam-1")

			convey.Convey("Then the pin should win and skip the store", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(resolved, convey.ShouldBeFalse)
				convey.So(store.calls, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When a problem is inverse", func() {
			store := newFakeStore()
			store.conditions["subject-1"] = true
			a := assign.New(store,
				assign.WithMode(config.AssignRandomStudent),
				assign.WithInverseProblems([]string{"warmup-1"}),
			)
			flipped, err := a.Resolve(ctx, "subject-1", "warmup-1")
			straight, err2 := a.Resolve(ctx, "subject-1", "problem-2")

			convey.Convey("Then only the inverse problem should flip", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(err2, convey.ShouldBeNil)
				convey.So(flipped, convey.ShouldBeFalse)
				convey.So(straight, convey.ShouldBeTrue)
			})
		})
	})
}
