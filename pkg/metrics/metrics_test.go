package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry and custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 5, 10}),
				WithConstLabels(map[string]string{"experiment": "novel"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then collectors should be registered under the namespace", func() {
				So(manager, ShouldNotBeNil)
				manager.sequencesGenerated.WithLabelValues("novel").Inc()

				families, err := registry.Gather()
				So(err, ShouldBeNil)

				var found bool
				for _, f := range families {
					if f.GetName() == "test_unit_sequences_generated_total" {
						found = true
						So(f.GetMetric()[0].GetLabel(), ShouldHaveLength, 2)
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When two managers share a registry", func() {
			registry := prometheus.NewRegistry()
			_ = NewManager(WithPrometheusRegistry(registry))

			Convey("Then the second registration should panic", func() {
				So(func() { _ = NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestGlobalRecorders(t *testing.T) {
	Convey("Given the package-level recorders", t, func() {
		Convey("When recording experiment and sink events", func() {
			before := testutil.ToFloat64(globalManager.sequencesGenerated.WithLabelValues("familiar"))

			RecordSequenceGenerated("familiar", 66)
			RecordInsufficientStimuli()
			RecordDiscoveryFallback("remote")
			UpdateVideosListed("flat", 12)
			RecordGateTrigger("fallback")
			RecordLogPersisted("")
			RecordLogFailed("store")
			RecordStoreLatency(1.5)
			UpdateQueueSize(3)
			UpdateQueueCapacity(10)
			RecordQueueEnqueueError()
			RecordDelivery("delivered")
			RecordHTTPRequest("log", "POST", "200")
			RecordHTTPRequestDuration("log", "POST", "200", 2)
			RecordErrorByEndpoint("log", "POST", "server_error")
			UpdateSystemMemoryUsage(1024)
			UpdateSystemGoroutineCount(4)

			Convey("Then the counters should move", func() {
				after := testutil.ToFloat64(globalManager.sequencesGenerated.WithLabelValues("familiar"))
				So(after-before, ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.videosListed.WithLabelValues("flat")), ShouldEqual, 12)
				So(testutil.ToFloat64(globalManager.logRecordsPersisted.WithLabelValues("unknown")), ShouldBeGreaterThanOrEqualTo, 1)
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 3)
			})

			Convey("And the global registry should gather without error", func() {
				_, err := GetRegistry().Gather()
				So(err, ShouldBeNil)
			})
		})
	})
}
