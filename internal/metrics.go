package internal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "haconf_mutations_total",
		Help: "Mutation batches by outcome.",
	}, []string{"result"})

	lockWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "haconf_lock_wait_seconds",
		Help:    "Time spent waiting for the lock token.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
	})

	batchRequests = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "haconf_batch_requests",
		Help:    "Mutation requests applied per batch.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 8),
	})

	commitDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "haconf_commit_duration_seconds",
		Help:    "Time spent writing a snapshot.",
		Buckets: prometheus.DefBuckets,
	})

	rollbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "haconf_rollbacks_total",
		Help: "Rollbacks by outcome.",
	}, []string{"result"})
)

const (
	resultCommitted = "committed"
	resultClean     = "clean"
	resultReverted  = "reverted"
	resultTimeout   = "timeout"
	resultCanceled  = "canceled"
	resultRejected  = "rejected"
	resultFailed    = "failed"
)
