package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics mirror the teacher's pkg/engine/metrics.go naming convention
// (one file of promauto-registered vectors), rescoped to the daemon's
// request/loop/persistence surfaces instead of message-pipeline stages.
var (
	RequestsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cistern_requests_handled_total",
		Help: "The total number of request frames handled by the dispatcher",
	}, []string{"message_type"})

	RequestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cistern_request_errors_total",
		Help: "The total number of request frames that resulted in an error response",
	}, []string{"message_type", "kind"})

	RuntimeFaultsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cistern_runtime_faults_total",
		Help: "The total number of runtime faults surfaced by Manager.Loop",
	}, []string{"kind", "tank"})

	ManagerLoopDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cistern_manager_loop_duration_seconds",
		Help:    "Time taken for one Manager.Loop tick",
		Buckets: prometheus.DefBuckets,
	})

	RegisteredWaterTanks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cistern_registered_water_tanks",
		Help: "The number of currently registered water tanks",
	})

	RegisteredWaterSources = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cistern_registered_water_sources",
		Help: "The number of currently registered water sources",
	})

	SaveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cistern_persist_save_duration_seconds",
		Help:    "Time taken to serialize and write the NV record log",
		Buckets: prometheus.DefBuckets,
	})

	SaveErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cistern_persist_save_errors_total",
		Help: "The total number of failed persistence saves",
	})

	BootReplayRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cistern_persist_boot_replay_records_total",
		Help: "The total number of records replayed from the NV store at boot",
	})
)
