package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "holyroller"

var (
	raidDetectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "raid_detections_total",
			Help:      "Total number of raids detected",
		},
	)

	raidResponseStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "raid_response_steps_total",
			Help:      "Raid response steps by outcome",
		},
		[]string{"step", "outcome"},
	)

	modlogRegistrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "modlog_registrations_total",
			Help:      "Moderation actions registered for log deduplication",
		},
		[]string{"kind"},
	)

	modlogConsumesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "modlog_consumes_total",
			Help:      "Moderation action lookups by result",
		},
		[]string{"result"},
	)

	eventDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_duration_seconds",
			Help:      "Time spent processing gateway events",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"event"},
	)

	registerOnce sync.Once
)

func registerMetrics(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(
			raidDetectionsTotal,
			raidResponseStepsTotal,
			modlogRegistrationsTotal,
			modlogConsumesTotal,
			eventDuration,
		)
	})
}

// RecordRaidDetection counts a raid detection
func RecordRaidDetection() {
	raidDetectionsTotal.Inc()
}

// RecordRaidStep counts the outcome of a single raid response step
func RecordRaidStep(step, outcome string) {
	raidResponseStepsTotal.WithLabelValues(step, outcome).Inc()
}

func RecordModlogRegistration(kind string) {
	modlogRegistrationsTotal.WithLabelValues(kind).Inc()
}

func RecordModlogConsume(result string) {
	modlogConsumesTotal.WithLabelValues(result).Inc()
}

// StartEventProcessing returns a function to record event processing duration
func StartEventProcessing(event string) func() {
	start := time.Now()
	return func() {
		eventDuration.WithLabelValues(event).Observe(time.Since(start).Seconds())
	}
}
