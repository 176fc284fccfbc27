// Package metrics exposes the Prometheus instrumentation for chain
// operations this repo's keepers care about operators watching: which
// destination absorbed a liquidation, how much bad debt fell through to
// auction, and how governance proposals resolve. Grounded on
// josephblackelite-nhbchain's observability/metrics.go
// prometheus.NewCounterVec-per-concern style, lazily registered behind a
// sync.Once the same way.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type liquidationMetrics struct {
	routed   *prometheus.CounterVec
	badDebt  prometheus.Counter
	fullFees prometheus.Counter
}

type governanceMetrics struct {
	outcomes *prometheus.CounterVec
}

var (
	liqOnce sync.Once
	liqReg  *liquidationMetrics

	govOnce sync.Once
	govReg  *governanceMetrics
)

// Liquidation lazily builds and registers the liquidation-orchestrator
// metrics registry.
func Liquidation() *liquidationMetrics {
	liqOnce.Do(func() {
		liqReg = &liquidationMetrics{
			routed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cdpcore",
				Subsystem: "liquidation",
				Name:      "routed_total",
				Help:      "Credit amount routed per liquidation destination (lq_bid, sp_liquidate, sell_wall); debt sent to auction is counted by bad_debt_total.",
			}, []string{"destination"}),
			badDebt: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "cdpcore",
				Subsystem: "liquidation",
				Name:      "bad_debt_total",
				Help:      "Cumulative residual debt routed to the external debt-auction.",
			}),
			fullFees: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "cdpcore",
				Subsystem: "liquidation",
				Name:      "caller_fee_total",
				Help:      "Cumulative caller_fee_amount paid out across all liquidations.",
			}),
		}
		prometheus.MustRegister(liqReg.routed, liqReg.badDebt, liqReg.fullFees)
	})
	return liqReg
}

// RecordRoute increments the per-destination liquidation counter by the
// credit amount (as a float64; this is an observability signal, not a
// consensus-relevant figure) dispatched to that destination.
func (m *liquidationMetrics) RecordRoute(destination string, amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.routed.WithLabelValues(destination).Add(amount)
}

// RecordBadDebt increments the cumulative bad-debt counter.
func (m *liquidationMetrics) RecordBadDebt(amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.badDebt.Add(amount)
}

// RecordCallerFee increments the cumulative caller_fee_amount counter.
func (m *liquidationMetrics) RecordCallerFee(amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.fullFees.Add(amount)
}

// Governance lazily builds and registers the governance metrics registry.
func Governance() *governanceMetrics {
	govOnce.Do(func() {
		govReg = &governanceMetrics{
			outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cdpcore",
				Subsystem: "governance",
				Name:      "proposal_outcomes_total",
				Help:      "Proposal resolutions segmented by final status (passed, rejected, amendment_desired).",
			}, []string{"status"}),
		}
		prometheus.MustRegister(govReg.outcomes)
	})
	return govReg
}

// RecordOutcome increments the proposal-outcome counter for one resolved
// status.
func (m *governanceMetrics) RecordOutcome(status string) {
	if m == nil || status == "" {
		return
	}
	m.outcomes.WithLabelValues(status).Inc()
}
