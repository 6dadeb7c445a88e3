package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom options", func() {
			m := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 10}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then collectors are registered under the namespace", func() {
				So(m, ShouldNotBeNil)
				m.broadcasts.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				var found bool
				for _, f := range families {
					if f.GetName() == "test_unit_state_broadcasts_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "test")
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}

func TestRecordingFunctions(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording scoring metrics", func() {
			before := gatheredValue("bastion_match_ticks_recorded_total")
			RecordTick(2, 1)
			RecordTickDropped()
			RecordFlagCaptured()
			RecordFlagIgnored()
			UpdateScoringMatches(3)

			Convey("Then the counters move", func() {
				So(gatheredValue("bastion_match_ticks_recorded_total"), ShouldEqual, before+1)
				So(gatheredValue("bastion_match_scoring_matches"), ShouldEqual, 3)
			})
		})

		Convey("When recording the remaining metrics", func() {
			So(func() {
				RecordSettlement("ok")
				RecordRatingUpdate(-12.5)
				RecordRankTransition("promoted")
				RecordPoll()
				RecordPollFailure("timeout")
				RecordBroadcast()
				UpdateTrackedMatches(1)
				RecordEngineRequest("status", "ok", 3)
				UpdateQueueSize(1)
				UpdateQueueCapacity(10)
				RecordQueueEnqueue()
				RecordQueueRejected("full")
				UpdateWorkerCount(2)
				RecordWorkerLatency(4)
				RecordWorkerError()
				RecordDuplicateSettlement()
				RecordHTTPRequest("scores", "GET", "200", 1)
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(8)
			}, ShouldNotPanic)
		})

		Convey("Then the registry exposes bastion metrics", func() {
			RecordBroadcast()
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			var names []string
			for _, f := range families {
				names = append(names, f.GetName())
			}
			So(strings.Join(names, ","), ShouldContainSubstring, "bastion_match_state_broadcasts_total")
		})
	})
}

// gatheredValue reads an unlabelled counter or gauge from the global registry.
func gatheredValue(name string) float64 {
	families, err := GetRegistry().Gather()
	if err != nil {
		return -1
	}
	for _, f := range families {
		if f.GetName() != name || len(f.GetMetric()) == 0 {
			continue
		}
		m := f.GetMetric()[0]
		if c := m.GetCounter(); c != nil {
			return c.GetValue()
		}
		return m.GetGauge().GetValue()
	}
	return 0
}
