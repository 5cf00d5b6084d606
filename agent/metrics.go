package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reconciliationRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer_agent",
		Name:      "reconciliation_runs_total",
		Help:      "Reconciliation ticks, by outcome.",
	}, []string{"result"})

	reconciliationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "indexer_agent",
		Name:      "reconciliation_duration_seconds",
		Help:      "Wall time of one reconciliation tick.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	targetDeploymentsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "indexer_agent",
		Name:      "target_deployments",
		Help:      "Deployments the graph node is expected to index.",
	})

	allocationsOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer_agent",
		Name:      "allocations_opened_total",
		Help:      "Allocations opened by the reconciler.",
	}, []string{"protocolNetwork"})

	allocationsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer_agent",
		Name:      "allocations_closed_total",
		Help:      "Allocations closed by the reconciler.",
	}, []string{"protocolNetwork"})

	rewardsClaimed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer_agent",
		Name:      "rebate_claims_total",
		Help:      "Rebate claim batches submitted.",
	}, []string{"protocolNetwork"})

	operatorBalance = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "indexer_agent",
		Name:      "operator_eth_balance",
		Help:      "Operator wallet balance in ETH.",
	}, []string{"protocolNetwork"})
)
