package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

var (
	selectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "earn",
			Subsystem: "routing",
			Name:      "selections_total",
			Help:      "Total number of provider selections",
		},
		[]string{"venue", "reason", "direction"},
	)

	submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "earn",
			Subsystem: "orchestrator",
			Name:      "submissions_total",
			Help:      "Total number of step submissions",
		},
		[]string{"venue", "direction", "status"},
	)

	refreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "earn",
			Subsystem: "session",
			Name:      "refresh_duration_seconds",
			Help:      "Time taken to refresh quotes, capacity and allowance",
			Buckets:   prometheus.DefBuckets,
		},
	)

	staleResponsesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "earn",
			Subsystem: "session",
			Name:      "stale_responses_total",
			Help:      "Responses discarded because their request key no longer matched",
		},
	)
)

// Register registers all collectors plus Go/process metrics.
func Register(logger *logrus.Logger) {
	registerIfNotExists(collectors.NewGoCollector(), "go_collector", logger)
	registerIfNotExists(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}), "process_collector", logger)
	registerIfNotExists(selectionsTotal, "selections_total", logger)
	registerIfNotExists(submissionsTotal, "submissions_total", logger)
	registerIfNotExists(refreshDuration, "refresh_duration_seconds", logger)
	registerIfNotExists(staleResponsesTotal, "stale_responses_total", logger)
}

func registerIfNotExists(collector prometheus.Collector, name string, logger *logrus.Logger) {
	if err := prometheus.Register(collector); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegErr) {
			logger.Debugf("%s already registered", name)
		} else {
			logger.Errorf("failed to register %s: %v", name, err)
		}
	}
}

// RecordSelection records a routing decision outcome.
func RecordSelection(venue, reason, direction string) {
	selectionsTotal.WithLabelValues(venue, reason, direction).Inc()
}

// RecordSubmission records a step submission outcome.
func RecordSubmission(venue, direction, status string) {
	submissionsTotal.WithLabelValues(venue, direction, status).Inc()
}

// RecordRefresh records how long a keyed refresh took.
func RecordRefresh(duration time.Duration) {
	refreshDuration.Observe(duration.Seconds())
}

// RecordStaleResponse records a discarded out-of-key response.
func RecordStaleResponse() {
	staleResponsesTotal.Inc()
}
