package accrual

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "accrual_ticks_total",
		Help: "Accrual ticks that ran",
	})
	ticksSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "accrual_ticks_skipped_total",
		Help: "Accrual ticks skipped because another run held the tick",
	}, []string{"reason"})
	creditsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "accrual_credits_total",
		Help: "Ledger credits written",
	}, []string{"currency"})
	contractFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "accrual_contract_failures_total",
		Help: "Contracts that failed to accrue in a tick",
	})
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "accrual_tick_duration_seconds",
		Help:    "Duration of accrual ticks",
		Buckets: prometheus.DefBuckets,
	})
)
