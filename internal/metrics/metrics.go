package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce      sync.Once
	graphqlRequests   *prometheus.CounterVec
	graphqlLatency    *prometheus.HistogramVec
	seedItems         *prometheus.CounterVec
	dashboardCache    *prometheus.CounterVec
	jobsProcessed     *prometheus.CounterVec
	unresolvedRecords prometheus.Gauge
)

// Register creates and registers the collectors once per process.
func Register() {
	registerOnce.Do(func() {
		graphqlRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendboard_graphql_requests_total",
			Help: "GraphQL operations sent to the attendance backend.",
		}, []string{"operation", "outcome"})

		graphqlLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "attendboard_graphql_request_seconds",
			Help:    "Latency of GraphQL operations.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"operation"})

		seedItems = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendboard_seed_items_total",
			Help: "Items processed by the seeding driver.",
		}, []string{"kind", "outcome"})

		dashboardCache = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendboard_dashboard_cache_total",
			Help: "Dashboard overview cache lookups.",
		}, []string{"result"})

		jobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendboard_jobs_total",
			Help: "Background jobs handled by the worker.",
		}, []string{"type", "outcome"})

		unresolvedRecords = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "attendboard_unresolved_records",
			Help: "Captures of the current day that matched no roster entry.",
		})

		prometheus.MustRegister(graphqlRequests, graphqlLatency, seedItems, dashboardCache, jobsProcessed, unresolvedRecords)
	})
}

// GraphQLRequests counts operations by name and outcome (ok, error).
func GraphQLRequests() *prometheus.CounterVec {
	Register()
	return graphqlRequests
}

// GraphQLLatency observes operation latency.
func GraphQLLatency() *prometheus.HistogramVec {
	Register()
	return graphqlLatency
}

// SeedItems counts seeded students, attendance rows and alerts.
func SeedItems() *prometheus.CounterVec {
	Register()
	return seedItems
}

// DashboardCache counts cache hits and misses.
func DashboardCache() *prometheus.CounterVec {
	Register()
	return dashboardCache
}

// JobsProcessed counts worker jobs.
func JobsProcessed() *prometheus.CounterVec {
	Register()
	return jobsProcessed
}

// UnresolvedRecords tracks today's unresolved capture count.
func UnresolvedRecords() prometheus.Gauge {
	Register()
	return unresolvedRecords
}
