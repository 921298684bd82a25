package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	migrationsApplied = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pgmigrate_migrations_applied_total",
		Help: "Total migrations applied.",
	})

	migrationsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pgmigrate_migrations_failed_total",
		Help: "Total migrations that failed and were rolled back.",
	})

	migrationsReverted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pgmigrate_migrations_reverted_total",
		Help: "Total migrations reverted.",
	})

	migrationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pgmigrate_migration_duration_seconds",
		Help:    "Migration duration in seconds by direction.",
		Buckets: prometheus.ExponentialBuckets(0.005, 4, 9), // 5ms → ~5.5min
	}, []string{"direction"})

	lastRun = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pgmigrate_last_run_timestamp_seconds",
		Help: "Unix time of the last completed migration run.",
	})
)

func init() {
	prometheus.MustRegister(
		migrationsApplied,
		migrationsFailed,
		migrationsReverted,
		migrationDuration,
		lastRun,
	)
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// WriteTextfile dumps every registered metric to path in the text exposition
// format, for node_exporter's textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

// MarkRun records the end of a migration run.
func MarkRun(at time.Time) {
	lastRun.Set(float64(at.Unix()))
}

// Observer feeds runner events into the collectors above.
type Observer struct{}

func (Observer) MigrationApplied(_ string, took time.Duration) {
	migrationsApplied.Inc()
	migrationDuration.WithLabelValues("up").Observe(took.Seconds())
}

func (Observer) MigrationFailed(string, error) {
	migrationsFailed.Inc()
}

func (Observer) MigrationReverted(_ string, took time.Duration) {
	migrationsReverted.Inc()
	migrationDuration.WithLabelValues("down").Observe(took.Seconds())
}
