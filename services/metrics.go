package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	purchasesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "node_ledger_purchases_total",
		Help: "Node purchase attempts by result.",
	}, []string{"tier", "result"})

	withdrawalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "node_ledger_withdrawals_total",
		Help: "Withdrawal requests by balance type and result.",
	}, []string{"balance_type", "result"})

	sweepCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "node_ledger_sweep_completed_total",
		Help: "Node instances matured and paid out by the sweep.",
	}, []string{"tier"})

	sweepFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "node_ledger_sweep_failures_total",
		Help: "Node instances the sweep failed to complete.",
	})

	referralsValidatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "node_ledger_referrals_validated_total",
		Help: "Referrals that moved from pending to valid.",
	})
)

func init() {
	prometheus.MustRegister(
		purchasesTotal,
		withdrawalsTotal,
		sweepCompletedTotal,
		sweepFailuresTotal,
		referralsValidatedTotal,
	)
}
