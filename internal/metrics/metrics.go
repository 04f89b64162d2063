// Package metrics provides Prometheus metrics for the authoring gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the authoring engine.
type Metrics struct {
	// Lock coordination
	LockAcquiredTotal prometheus.Counter
	LockDeniedTotal   prometheus.Counter
	// Released with mode="self" or mode="forced"; forced release is an
	// administrative override and has to stay distinguishable.
	LockReleasedTotal *prometheus.CounterVec

	// Autosave
	AutosaveWritesTotal   prometheus.Counter
	AutosaveFailuresTotal prometheus.Counter

	// Lifecycle operations, labelled by outcome
	SavesTotal     *prometheus.CounterVec
	PublishesTotal *prometheus.CounterVec
	ConflictsTotal prometheus.Counter

	// Store round trips
	StoreRequestDuration *prometheus.HistogramVec
}

// New creates and registers all metrics on the given registerer. Passing
// nil uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		LockAcquiredTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "newsdesk_lock_acquired_total",
			Help: "Total number of successful item lock acquisitions",
		}),
		LockDeniedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "newsdesk_lock_denied_total",
			Help: "Total number of lock acquisitions rejected because another session holds the lock",
		}),
		LockReleasedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdesk_lock_released_total",
			Help: "Total number of lock releases by mode (self or forced)",
		}, []string{"mode"}),
		AutosaveWritesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "newsdesk_autosave_writes_total",
			Help: "Total number of autosave shadow writes",
		}),
		AutosaveFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "newsdesk_autosave_failures_total",
			Help: "Total number of autosave shadow writes that failed",
		}),
		SavesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdesk_saves_total",
			Help: "Total number of item saves by status",
		}, []string{"status"}),
		PublishesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdesk_publishes_total",
			Help: "Total number of publish transitions by action and status",
		}, []string{"action", "status"}),
		ConflictsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "newsdesk_conflicts_total",
			Help: "Total number of writes rejected with a stale version tag",
		}),
		StoreRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "newsdesk_store_request_duration_seconds",
			Help:    "Duration of archive store round trips",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

// Nop returns metrics registered on a private registry, for tests and for
// components constructed without an explicit Metrics value.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}
