package framesock

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors updated by servers, connections and
// decoders. A nil *Metrics is valid and records nothing.
type Metrics struct {
	accepted      prometheus.Counter
	acceptErrors  prometheus.Counter
	openConns     prometheus.Gauge
	framesEncoded prometheus.Counter
	framesDecoded prometheus.Counter
	bytesRecv     prometheus.Counter
	framingErrors *prometheus.CounterVec
}

// NewMetrics creates unregistered collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "connections_accepted_total",
			Help:      "Connections accepted by the listener.",
		}),
		acceptErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "accept_errors_total",
			Help:      "Listener faults not caused by shutdown.",
		}),
		openConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "open",
			Help:      "Connections currently open.",
		}),
		framesEncoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frame",
			Name:      "encoded_total",
			Help:      "Frames written to connections.",
		}),
		framesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frame",
			Name:      "decoded_total",
			Help:      "Frames decoded from streams.",
		}),
		bytesRecv: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frame",
			Name:      "received_bytes_total",
			Help:      "Bytes read from streams by decoders.",
		}),
		framingErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frame",
			Name:      "errors_total",
			Help:      "Decode-side protocol violations.",
		}, []string{"kind"}),
	}
}

// Collectors returns every collector so callers can register them.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.accepted, m.acceptErrors, m.openConns,
		m.framesEncoded, m.framesDecoded, m.bytesRecv, m.framingErrors,
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) connAccepted() {
	if m == nil {
		return
	}
	m.accepted.Inc()
}

func (m *Metrics) acceptFailed() {
	if m == nil {
		return
	}
	m.acceptErrors.Inc()
}

func (m *Metrics) connOpened() {
	if m == nil {
		return
	}
	m.openConns.Inc()
}

func (m *Metrics) connClosed() {
	if m == nil {
		return
	}
	m.openConns.Dec()
}

func (m *Metrics) frameEncoded() {
	if m == nil {
		return
	}
	m.framesEncoded.Inc()
}

func (m *Metrics) frameDecoded() {
	if m == nil {
		return
	}
	m.framesDecoded.Inc()
}

func (m *Metrics) bytesReceived(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesRecv.Add(float64(n))
}

func (m *Metrics) framingError(kind FramingErrorKind) {
	if m == nil {
		return
	}
	m.framingErrors.WithLabelValues(kind.String()).Inc()
}
