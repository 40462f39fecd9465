package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the escrow service.
type Metrics struct {
	InstancesCreated     prometheus.Counter
	DepositsFunded       prometheus.Counter
	WithdrawalsTriggered prometheus.Counter
	ChunksClaimed        *prometheus.CounterVec
	InstancesSettled     prometheus.Counter
	KeeperPassDuration   prometheus.Histogram
	KeeperTriggerErrors  prometheus.Counter
	ScheduleSize         prometheus.Gauge
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		InstancesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rentvault_instances_created_total",
			Help: "Total number of deposit instances cloned from a template",
		}),
		DepositsFunded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rentvault_deposits_funded_total",
			Help: "Total number of deposits funded and routed into the yield position",
		}),
		WithdrawalsTriggered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rentvault_maturity_withdrawals_total",
			Help: "Total number of matured deposits divested from the yield position",
		}),
		ChunksClaimed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rentvault_chunks_claimed_total",
			Help: "Total number of settlement chunks claimed, by party",
		}, []string{"party"}),
		InstancesSettled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rentvault_instances_settled_total",
			Help: "Total number of instances that reached the terminal settled state",
		}),
		KeeperPassDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "rentvault_keeper_pass_duration_seconds",
			Help:    "Duration of automation keeper passes",
			Buckets: prometheus.DefBuckets,
		}),
		KeeperTriggerErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rentvault_keeper_trigger_errors_total",
			Help: "Total number of keeper-initiated withdrawals that failed and were skipped",
		}),
		ScheduleSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rentvault_maturity_schedule_size",
			Help: "Number of currently invested instances registered in the maturity schedule",
		}),
	}
}
