package businessflow

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

// Distribution outcomes used as metric labels
const (
	outcomeDistributed = "distributed"
	outcomeDuplicate   = "duplicate"
	outcomeEmpty       = "empty"
	outcomeFailed      = "failed"
)

// unknownServiceType labels calls whose service type never resolved a config
const unknownServiceType = "unknown"

// labelledServiceTypes holds the service types allowed as a metric label.
// Only types that resolved a config get in, which keeps label cardinality
// bounded by the config table instead of by caller input.
var labelledServiceTypes sync.Map

var (
	// Distribute calls partitioned by service type and outcome
	distributionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commission_distributions_total",
			Help: "Total number of commission distributions by outcome",
		},
		[]string{"service_type", "outcome"},
	)

	// Failed distributions partitioned by the stage they failed in
	distributionStageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commission_distribution_stage_failures_total",
			Help: "Total number of failed commission distributions by stage",
		},
		[]string{"stage"},
	)

	distributionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "commission_distribution_duration_seconds",
			Help:    "Commission distribution latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Money credited to wallets, in currency units
	distributedAmountTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commission_distributed_amount_total",
			Help: "Total commission amount credited to wallets",
		},
		[]string{"service_type"},
	)
)

func markServiceTypeKnown(serviceType string) {
	labelledServiceTypes.Store(serviceType, struct{}{})
}

func serviceTypeLabel(serviceType string) string {
	if _, ok := labelledServiceTypes.Load(serviceType); ok {
		return serviceType
	}
	return unknownServiceType
}

func observeDistribution(serviceType, outcome string, started time.Time, amount decimal.Decimal) {
	serviceType = serviceTypeLabel(serviceType)
	distributionsTotal.WithLabelValues(serviceType, outcome).Inc()
	distributionDuration.Observe(time.Since(started).Seconds())
	if outcome == outcomeDistributed {
		distributedAmountTotal.WithLabelValues(serviceType).Add(amount.InexactFloat64())
	}
}

func observeStageFailure(stage DistributionStage) {
	distributionStageFailures.WithLabelValues(string(stage)).Inc()
}
