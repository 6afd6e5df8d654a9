// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "habit_quest"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	missionOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "missions",
			Name:      "completions_total",
			Help:      "Mission completion calls by outcome.",
		},
		[]string{"outcome"},
	)

	synergyAdvances = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "missions",
			Name:      "synergy_advances_total",
			Help:      "Missions advanced by same-title synergy.",
		},
	)

	levelUps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "levels_gained_total",
			Help:      "Levels gained by all users.",
		},
	)

	eventClaims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "claims_total",
			Help:      "Weekly event tier claims by tier and result.",
		},
		[]string{"tier", "result"},
	)

	maintenanceRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "maintenance",
			Name:      "runs_total",
			Help:      "Nightly maintenance runs by trigger and status.",
		},
		[]string{"trigger", "status"},
	)

	maintenanceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "maintenance",
			Name:      "run_duration_seconds",
			Help:      "Duration of maintenance runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	hpDamage = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "maintenance",
			Name:      "hp_damage_total",
			Help:      "HP removed from users for missed missions.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		missionOutcomes,
		synergyAdvances,
		levelUps,
		eventClaims,
		maintenanceRuns,
		maintenanceDuration,
		hpDamage,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RegisterPool exposes connection pool gauges read from stat on each scrape.
func RegisterPool(stat func() *pgxpool.Stat) {
	gauge := func(name, help string, value func(*pgxpool.Stat) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return value(stat()) })
	}
	Registry.MustRegister(
		gauge("total_conns", "Connections currently open.", func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }),
		gauge("idle_conns", "Idle connections.", func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }),
		gauge("acquired_conns", "Connections checked out.", func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }),
		gauge("max_conns", "Configured pool size.", func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) }),
	)
}

// HTTPStarted marks a request as in flight and returns the function that ends it.
func HTTPStarted() func() {
	httpInFlight.Inc()
	return httpInFlight.Dec
}

// RecordHTTPRequest records one finished request. path should be the route template.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	method = strings.ToUpper(method)
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordMissionOutcome counts a completion call result.
func RecordMissionOutcome(outcome string) {
	missionOutcomes.WithLabelValues(outcome).Inc()
}

// RecordSynergy counts missions advanced by synergy.
func RecordSynergy(n int) {
	if n > 0 {
		synergyAdvances.Add(float64(n))
	}
}

// RecordLevelUps counts levels gained.
func RecordLevelUps(n int) {
	if n > 0 {
		levelUps.Add(float64(n))
	}
}

// RecordEventClaim counts a weekly event claim attempt.
func RecordEventClaim(tier int, result string) {
	eventClaims.WithLabelValues(strconv.Itoa(tier), result).Inc()
}

// RecordMaintenanceRun records the status and duration of a nightly run.
func RecordMaintenanceRun(trigger, status string, duration time.Duration) {
	maintenanceRuns.WithLabelValues(trigger, status).Inc()
	if duration > 0 {
		maintenanceDuration.Observe(duration.Seconds())
	}
}

// RecordHPDamage counts HP removed by maintenance.
func RecordHPDamage(hp int) {
	if hp > 0 {
		hpDamage.Add(float64(hp))
	}
}
