package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smartystreets/goconvey/convey"
)

func TestNewManager(t *testing.T) {
	convey.Convey("Given a manager on a private registry", t, func() {
		registry := prometheus.NewRegistry()
		m := NewManager(WithPrometheusRegistry(registry))

		convey.Convey("Then it should initialize all metric families", func() {
			convey.So(m, convey.ShouldNotBeNil)
			convey.So(m.eventsLogged, convey.ShouldNotBeNil)
			convey.So(m.policyLatency, convey.ShouldNotBeNil)
			convey.So(m.rebuildsTriggered, convey.ShouldNotBeNil)
			convey.So(m.httpRequests, convey.ShouldNotBeNil)
		})

		convey.Convey("Then the registry should gather without error", func() {
			families, err := registry.Gather()
			convey.So(err, convey.ShouldBeNil)
			convey.So(families, convey.ShouldNotBeNil)
		})
	})

	convey.Convey("Given custom options", t, func() {
		registry := prometheus.NewRegistry()
		m := NewManager(
			WithPrometheusRegistry(registry),
			WithNamespace("testns"),
			WithSubsystem("testsub"),
			WithHistogramBuckets([]float64{1, 2, 3}),
		)

		convey.Convey("Then the options should apply", func() {
			convey.So(m.namespace, convey.ShouldEqual, "testns")
			convey.So(m.subsystem, convey.ShouldEqual, "testsub")
			convey.So(m.histogramBuckets, convey.ShouldResemble, []float64{1, 2, 3})
		})
	})
}

func TestGlobalHelpers(t *testing.T) {
	convey.Convey("Given the package-level helpers", t, func() {
		convey.Convey("When recording a spread of observations", func() {
			record := func() {
				RecordEventLogged("File.Edit")
				RecordActionEmitted("ShowMessage")
				RecordInterventionSkipped("control_group")
				RecordConditionAssigned(true)
				RecordConditionAssigned(false)
				RecordPolicyLatency("run_reminder", 1.5)
				RecordPolicyError("run_reminder")
				RecordStoreAppendLatency(0.7)
				RecordStoreError("append")
				RecordRebuildTriggered()
				RecordRebuildSuccess()
				RecordRebuildFailure()
				RecordRebuildDuration(120)
				RecordModelCacheHit()
				RecordModelCacheMiss()
				UpdateModelCacheSize(4)
				UpdateQueueSize(2)
				UpdateQueueCapacity(1024)
				RecordQueueEnqueue()
				RecordQueueEnqueueError()
				UpdateWorkerCount(2)
				RecordHTTPRequest("file_edit", "POST", "200")
				RecordHTTPRequestDuration("file_edit", "POST", "200", 3.5)
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.1)
			}

			convey.Convey("Then none of them should panic", func() {
				convey.So(record, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When gathering the shared registry", func() {
			families, err := GetRegistry().Gather()

			convey.Convey("Then the registered families should be present", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(families), convey.ShouldBeGreaterThan, 0)
			})
		})
	})
}
