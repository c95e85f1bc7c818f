package inflight_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	inflight "github.com/okian/nudge/internal/domain/inflight"
	"github.com/smartystreets/goconvey/convey"
)

func TestTracker(t *testing.T) {
	ctx := context.Background()

	convey.Convey("Given a fresh tracker", t, func() {
		tracker := inflight.New()

		convey.Convey("When recording a new key", func() {
			seen := tracker.SeenAndRecord(ctx, "p1")

			convey.Convey("Then it should not have been seen", func() {
				convey.So(seen, convey.ShouldBeFalse)
				convey.So(tracker.Size(), convey.ShouldEqual, 1)
			})

			convey.Convey("Then recording it again should report seen", func() {
				convey.So(tracker.SeenAndRecord(ctx, "p1"), convey.ShouldBeTrue)
				convey.So(tracker.Size(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When unrecording a key", func() {
			tracker.SeenAndRecord(ctx, "p1")
			tracker.Unrecord(ctx, "p1")

			convey.Convey("Then the next trigger should pass through", func() {
				convey.So(tracker.SeenAndRecord(ctx, "p1"), convey.ShouldBeFalse)
			})
		})

		convey.Convey("When unrecording an unknown key", func() {
			tracker.Unrecord(ctx, "never-seen")

			convey.Convey("Then nothing should change", func() {
				convey.So(tracker.Size(), convey.ShouldEqual, 0)
			})
		})
	})

	convey.Convey("Given a tracker bounded to two keys", t, func() {
		tracker := inflight.New(inflight.WithMaxSize(2))

		convey.Convey("When a third key arrives", func() {
			tracker.SeenAndRecord(ctx, "p1")
			tracker.SeenAndRecord(ctx, "p2")
			tracker.SeenAndRecord(ctx, "p3")

			convey.Convey("Then the oldest key should be evicted", func() {
				convey.So(tracker.Size(), convey.ShouldEqual, 2)
				convey.So(tracker.SeenAndRecord(ctx, "p1"), convey.ShouldBeFalse)
			})
		})
	})
}

func TestTrackerConcurrency(t *testing.T) {
	ctx := context.Background()

	convey.Convey("Given many goroutines racing on one key", t, func() {
		tracker := inflight.New()

		convey.Convey("When they all record concurrently", func() {
			const goroutines = 32
			var wg sync.WaitGroup
			results := make(chan bool, goroutines)
			for i := 0; i < goroutines; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					results <- tracker.SeenAndRecord(ctx, "p1")
				}()
			}
			wg.Wait()
			close(results)

			convey.Convey("Then exactly one should win", func() {
				winners := 0
				for seen := range results {
					if !seen {
						winners++
					}
				}
				convey.So(winners, convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When distinct keys are recorded concurrently", func() {
			const keys = 64
			var wg sync.WaitGroup
			for i := 0; i < keys; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					tracker.SeenAndRecord(ctx, fmt.Sprintf("key-%d", i))
				}(i)
			}
			wg.Wait()

			convey.Convey("Then all keys should be tracked", func() {
				convey.So(tracker.Size(), convey.ShouldEqual, keys)
			})
		})
	})
}
