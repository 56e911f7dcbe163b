// Package observability holds the Prometheus metrics shared by the station
// driver, the storage engines and the datafeed.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vantaged"

// Metrics holds the Prometheus counters and gauges for the daemon.
type Metrics struct {
	LoopPackets     prometheus.Counter
	ArchiveRecords  prometheus.Counter
	CRCErrors       prometheus.Counter
	WakeupFailures  prometheus.Counter
	RecoverAttempts prometheus.Counter
	DriverState     prometheus.Gauge
	StationUp       prometheus.Gauge
	RxCheckPercent  prometheus.Gauge

	StorageWrites *prometheus.CounterVec // labels: engine, outcome={ok,error}
	FeedClients   prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		LoopPackets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_packets_total",
			Help:      "LOOP packets read from the console.",
		}),
		ArchiveRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_records_total",
			Help:      "New archive records received from the console.",
		}),
		CRCErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crc_errors_total",
			Help:      "Console frames that failed their CRC check.",
		}),
		WakeupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wakeup_failures_total",
			Help:      "Console wakeup sequences that got no answer.",
		}),
		RecoverAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_recover_attempts_total",
			Help:      "Failed wakeups while recovering from a read error.",
		}),
		DriverState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "driver_state",
			Help:      "Current protocol state of the station driver.",
		}),
		StationUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "station_up",
			Help:      "1 once the startup handshake has completed.",
		}),
		RxCheckPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rx_check_percent",
			Help:      "Percentage of ISS packets received since the last RXCHECK.",
		}),
		StorageWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_writes_total",
			Help:      "Records handed to storage engines by engine and outcome.",
		}, []string{"engine", "outcome"}),
		FeedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "datafeed_clients",
			Help:      "Connected datafeed clients.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.LoopPackets,
		m.ArchiveRecords,
		m.CRCErrors,
		m.WakeupFailures,
		m.RecoverAttempts,
		m.DriverState,
		m.StationUp,
		m.RxCheckPercent,
		m.StorageWrites,
		m.FeedClients,
	}
}

// NewMetrics creates and registers all metrics with reg. A nil reg selects the
// default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := newMetrics()
	reg.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered metrics so tests can build as many
// as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
