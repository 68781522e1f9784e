package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docuvault", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docuvault", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	DocumentSaves = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docuvault", Name: "document_saves_total", Help: "Number of document saves by outcome."},
		[]string{"outcome"},
	)
	DocumentLoads = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "docuvault", Name: "document_loads_total", Help: "Number of document loads."},
	)
	AccessDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docuvault", Name: "access_denials_total", Help: "Number of denied operations by kind."},
		[]string{"operation"},
	)
	LockConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "docuvault", Name: "lock_conflicts_total", Help: "Number of optimistic lock conflicts."},
	)
	IndexFlushes = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "docuvault", Name: "index_flushes_total", Help: "Number of event log flush blocks applied to the index."},
	)
	IndexFlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Namespace: "docuvault", Name: "index_flush_duration_seconds", Help: "Duration of event log flush blocks.", Buckets: prometheus.DefBuckets},
	)
	SearchQueries = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "docuvault", Name: "search_queries_total", Help: "Number of index searches."},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(DocumentSaves)
	reg.MustRegister(DocumentLoads)
	reg.MustRegister(AccessDenials)
	reg.MustRegister(LockConflicts)
	reg.MustRegister(IndexFlushes)
	reg.MustRegister(IndexFlushDuration)
	reg.MustRegister(SearchQueries)
}
