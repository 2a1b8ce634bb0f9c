package framesock

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	// These should not panic
	m.connAccepted()
	m.acceptFailed()
	m.connOpened()
	m.connClosed()
	m.frameEncoded()
	m.frameDecoded()
	m.bytesReceived(10)
	m.framingError(CorruptLength)
}

func TestMetrics_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("framesock")

	if err := m.Register(reg); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := m.Register(reg); err == nil {
		t.Error("registering twice should fail")
	}

	m.connAccepted()
	m.framingError(TruncatedStream)

	if n := testutil.CollectAndCount(m.accepted, "framesock_server_connections_accepted_total"); n != 1 {
		t.Errorf("accepted series = %d, want 1", n)
	}
	if n, err := testutil.GatherAndCount(reg, "framesock_frame_errors_total"); err != nil || n != 1 {
		t.Errorf("framing error series = %d (%v), want 1", n, err)
	}
}

func TestMetrics_Counts(t *testing.T) {
	m := NewMetrics("test")

	m.connOpened()
	m.connOpened()
	m.connClosed()
	m.frameEncoded()
	m.bytesReceived(0)
	m.bytesReceived(7)
	m.framingError(CorruptLength)
	m.framingError(CorruptLength)

	if got := testutil.ToFloat64(m.openConns); got != 1 {
		t.Errorf("open conns = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.framesEncoded); got != 1 {
		t.Errorf("frames encoded = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.bytesRecv); got != 7 {
		t.Errorf("bytes received = %v, want 7", got)
	}
	if got := testutil.ToFloat64(m.framingErrors.WithLabelValues("corrupt_length")); got != 2 {
		t.Errorf("corrupt length = %v, want 2", got)
	}
	if len(m.Collectors()) != 7 {
		t.Errorf("Collectors = %d, want 7", len(m.Collectors()))
	}
}
