package metric

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the core relay metrics shared across components
type Metrics struct {
	// Upstream connection
	UpstreamConnected  prometheus.Gauge
	UpstreamReconnects prometheus.Counter

	// Inbound pipeline
	LinesReceived prometheus.Counter
	ReportsParsed prometheus.Counter
	DecodeErrors  prometheus.Counter

	// Downstream fan-out
	TCPClients   prometheus.Gauge
	WSClients    prometheus.Gauge
	LinesRelayed prometheus.Counter
	ReportsSent  prometheus.Counter

	// Persistence
	StorageWrites prometheus.Counter
	StorageErrors prometheus.Counter
	Rotations     prometheus.Counter

	// NATS republish (optional)
	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
	NATSPublished  prometheus.Counter
}

// NewMetrics creates the core relay metrics
func NewMetrics() *Metrics {
	return &Metrics{
		UpstreamConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ais_upstream_connected",
			Help: "Whether the upstream AIS feed is connected (1) or not (0)",
		}),
		UpstreamReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ais_upstream_reconnects_total",
			Help: "Total upstream reconnection attempts",
		}),
		LinesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ais_lines_received_total",
			Help: "Total raw lines received from the upstream feed",
		}),
		ReportsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ais_reports_parsed_total",
			Help: "Total sentences decoded into position reports",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ais_decode_errors_total",
			Help: "Total sentences that failed to decode",
		}),
		TCPClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ais_tcp_clients",
			Help: "Currently connected TCP relay clients",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ais_ws_clients",
			Help: "Currently connected WebSocket clients",
		}),
		LinesRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ais_lines_relayed_total",
			Help: "Total raw lines fanned out to TCP relay clients",
		}),
		ReportsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ais_reports_sent_total",
			Help: "Total normalized reports sent to WebSocket clients",
		}),
		StorageWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ais_storage_writes_total",
			Help: "Total vessel reports written to storage",
		}),
		StorageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ais_storage_errors_total",
			Help: "Total storage write failures",
		}),
		Rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ais_db_rotations_total",
			Help: "Total database rotations performed",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ais_nats_connected",
			Help: "Whether the NATS republisher is connected (1) or not (0)",
		}),
		NATSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ais_nats_reconnects_total",
			Help: "Total NATS reconnections",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ais_nats_published_total",
			Help: "Total reports republished to NATS",
		}),
	}
}
