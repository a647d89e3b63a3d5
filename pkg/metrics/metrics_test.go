package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

// counterValue reads a single unlabeled metric value from a registry.
func counterValue(reg *prometheus.Registry, name string) (float64, bool) {
	families, err := reg.Gather()
	if err != nil {
		return 0, false
	}
	for _, f := range families {
		if f.GetName() != name || len(f.GetMetric()) == 0 {
			continue
		}
		m := f.GetMetric()[0]
		switch {
		case m.GetCounter() != nil:
			return m.GetCounter().GetValue(), true
		case m.GetGauge() != nil:
			return m.GetGauge().GetValue(), true
		case m.GetHistogram() != nil:
			return float64(m.GetHistogram().GetSampleCount()), true
		}
	}
	return 0, false
}

func TestManagerCreation(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom options", func() {
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 10}),
				WithConstLabels(map[string]string{"model": "lasso"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then collectors are registered under the namespace", func() {
				So(manager, ShouldNotBeNil)
				manager.recordsScored.Add(3)
				v, ok := counterValue(registry, "test_unit_records_scored_total")
				So(ok, ShouldBeTrue)
				So(v, ShouldEqual, 3)
			})
		})

		Convey("When registering the same manager twice on one registry", func() {
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then the duplicate registration panics", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestGlobalRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		before, _ := counterValue(GetRegistry(), "factorlens_engine_counterfactual_candidates_total")

		Convey("When recording domain metrics", func() {
			RecordCandidatesEvaluated(4)
			RecordRecordsScored(2)
			RecordScoringAnomaly()
			RecordSchemaMismatch()
			RecordBatchPrepared(10)
			UpdateBatchesStored(1)
			RecordFactorRankLatency(0.5)
			RecordRecommendationRows(2, 1)
			RecordRecommendationLatency(3)
			RecordScoringLatency(1)

			Convey("Then counters move", func() {
				after, ok := counterValue(GetRegistry(), "factorlens_engine_counterfactual_candidates_total")
				So(ok, ShouldBeTrue)
				So(after-before, ShouldEqual, 4)
			})
		})

		Convey("When recording transport and system metrics", func() {
			So(func() {
				RecordHTTPRequest("deploy", "GET", "200")
				RecordHTTPRequestDuration("deploy", "GET", "200", 12)
				RecordRateLimited()
				RecordErrorByComponent("recommender", "empty_candidate_set")
				RecordErrorByEndpoint("process_variables", "POST", "client_error")
				UpdateWorkerCount(4)
				AddWorkerBusy(1)
				AddWorkerBusy(-1)
				RecordWorkerProcessingLatency(2)
				UpdateQueueCapacity(16)
				RecordQueueEnqueueError()
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.2)
			}, ShouldNotPanic)
		})
	})
}
