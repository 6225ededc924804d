package withdrawal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "withdrawal_requests_total",
		Help: "Withdrawal requests by admission result",
	}, []string{"result"})
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "withdrawal_transitions_total",
		Help: "Withdrawal status transitions",
	}, []string{"status"})
)
