package framesock

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// mockHandler implements Handler interface for testing
type mockHandler struct {
	mu       sync.Mutex
	conns    []*Conn
	handleCh chan *Conn
}

func newMockHandler() *mockHandler {
	return &mockHandler{
		conns:    make([]*Conn, 0),
		handleCh: make(chan *Conn, 10),
	}
}

func (h *mockHandler) Handle(conn *Conn) {
	h.mu.Lock()
	h.conns = append(h.conns, conn)
	h.mu.Unlock()

	select {
	case h.handleCh <- conn:
	default:
	}
}

func (h *mockHandler) getConns() []*Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conns
}

func newTestServer(t *testing.T, opts ...ServerOption) *Server {
	t.Helper()

	opts = append([]ServerOption{ServerLoggerOption(NopLogger{})}, opts...)
	server, err := Listen("127.0.0.1:0", opts...)
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	t.Cleanup(func() { _ = server.Close() })
	return server
}

func TestNew(t *testing.T) {
	server, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer server.Close()

	if server.listener == nil {
		t.Error("listener is nil")
	}
	if server.Addr().Port == 0 {
		t.Error("ephemeral port not assigned")
	}
	if server.State() != StateCreated {
		t.Errorf("state = %v, want created", server.State())
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backlog = -1

	_, err := New(cfg)
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestNew_AddressInUse(t *testing.T) {
	server1 := newTestServer(t)

	// Try to listen on the same port - should fail
	_, err := Listen(server1.Addr().String())
	if err == nil {
		t.Error("expected error for occupied port")
	}
	if errors.Is(err, ErrConfiguration) {
		t.Errorf("bind failure is not a configuration error: %v", err)
	}
}

func TestNew_ConfigAppliesToConnections(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMessageSize = 64
	cfg.SendBuffer = 8
	cfg.Heartbeat = time.Minute

	server, err := New(cfg, ServerLoggerOption(NopLogger{}), ServerConnOptions(BufferSizeOption(3)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer server.Close()

	opts := server.acceptor.connOpts
	if opts.maxMessageSize != 64 {
		t.Errorf("maxMessageSize = %d, want 64", opts.maxMessageSize)
	}
	if opts.bufferSize != 3 {
		t.Errorf("explicit options should win, bufferSize = %d", opts.bufferSize)
	}
	if opts.heartbeat != time.Minute {
		t.Errorf("heartbeat = %v, want 1m", opts.heartbeat)
	}
	if _, ok := opts.logger.(NopLogger); !ok {
		t.Errorf("connections should inherit the server logger, got %T", opts.logger)
	}
}

func TestNewFromListener(t *testing.T) {
	if _, err := NewFromListener(nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}

	listener, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}

	server, err := NewFromListener(listener, ServerLoggerOption(NopLogger{}))
	if err != nil {
		t.Fatalf("NewFromListener failed: %v", err)
	}
	if server.Addr().String() != listener.Addr().String() {
		t.Errorf("Addr = %v, want %v", server.Addr(), listener.Addr())
	}

	_ = server.Close()
	if _, err := listener.AcceptTCP(); !errors.Is(err, net.ErrClosed) {
		t.Errorf("server should own the listener, accept got %v", err)
	}
}

func TestServer_Close(t *testing.T) {
	server, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	err = server.Close()
	if err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err = server.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if server.State() != StateDisposed {
		t.Errorf("state = %v, want disposed", server.State())
	}

	// The port is released.
	_, err = net.Dial("tcp", server.Addr().String())
	if err == nil {
		t.Error("expected dial to a disposed server to fail")
	}
}

func TestServer_AcceptAll_Order(t *testing.T) {
	m := NewMetrics("test")
	server := newTestServer(t, ServerMetricsOption(m))

	var clients []*net.TCPConn
	for i := 0; i < 3; i++ {
		clients = append(clients, dialTCP(t, server.Addr()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	i := 0
	for conn, err := range server.AcceptAll(ctx) {
		if err != nil {
			t.Fatalf("AcceptAll failed: %v", err)
		}
		if conn.Addr().String() != clients[i].LocalAddr().String() {
			t.Errorf("connection %d from %v, want %v", i, conn.Addr(), clients[i].LocalAddr())
		}
		_ = conn.Close()
		i++
		if i == len(clients) {
			break
		}
	}

	if server.State() != StateAccepting {
		t.Errorf("state = %v, want accepting", server.State())
	}
	if got := testutil.ToFloat64(m.accepted); got != 3 {
		t.Errorf("accepted = %v, want 3", got)
	}
}

func TestServer_AcceptAll_CancelWhileSuspended(t *testing.T) {
	server := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		var lastErr error
		for _, err := range server.AcceptAll(ctx) {
			lastErr = err
		}
		done <- lastErr
	}()

	waitFor(t, "accept to start", func() bool { return server.acceptor.current() == acceptAccepting })
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected a silent end, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("AcceptAll did not end after cancel")
	}

	// The server survives a cancelled iteration.
	client := dialTCP(t, server.Addr())
	for conn, err := range server.AcceptAll(context.Background()) {
		if err != nil {
			t.Fatalf("AcceptAll failed: %v", err)
		}
		if conn.Addr().String() != client.LocalAddr().String() {
			t.Errorf("accepted %v, want %v", conn.Addr(), client.LocalAddr())
		}
		_ = conn.Close()
		break
	}
}

func TestServer_DisposeWhileSuspended(t *testing.T) {
	server := newTestServer(t)

	done := make(chan error, 1)
	go func() {
		var lastErr error
		for _, err := range server.AcceptAll(context.Background()) {
			lastErr = err
		}
		done <- lastErr
	}()

	waitFor(t, "accept to start", func() bool { return server.acceptor.current() == acceptAccepting })

	disposed := make(chan error, 1)
	go func() {
		disposed <- server.Close()
	}()

	select {
	case err := <-disposed:
		if err != nil {
			t.Errorf("Close failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Close hung on a suspended accept")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected a silent end, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("AcceptAll did not end after Close")
	}
}

func TestServer_AcceptAll_AfterDispose(t *testing.T) {
	server := newTestServer(t)
	_ = server.Close()

	n := 0
	var lastErr error
	for _, err := range server.AcceptAll(context.Background()) {
		n++
		lastErr = err
	}
	if n != 1 || !errors.Is(lastErr, ErrClosed) {
		t.Errorf("got %d items ending with %v, want a single ErrClosed", n, lastErr)
	}
}

func TestServer_AcceptAll_Concurrent(t *testing.T) {
	server := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for range server.AcceptAll(ctx) {
		}
	}()
	waitFor(t, "accept to start", func() bool { return server.acceptor.current() == acceptAccepting })

	for _, err := range server.AcceptAll(context.Background()) {
		if !errors.Is(err, ErrAcceptInProgress) {
			t.Errorf("expected ErrAcceptInProgress, got %v", err)
		}
	}
}

func TestServer_Serve(t *testing.T) {
	server := newTestServer(t)
	handler := newMockHandler()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(ctx, handler)
	}()

	// Connect to server
	client := dialTCP(t, server.Addr())

	select {
	case conn := <-handler.handleCh:
		if conn.Addr().String() != client.LocalAddr().String() {
			t.Errorf("handled %v, want %v", conn.Addr(), client.LocalAddr())
		}
		_ = conn.Close()
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for handler")
	}

	cancel()
	select {
	case err := <-serveErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	if len(handler.getConns()) != 1 {
		t.Errorf("handled %d connections, want 1", len(handler.getConns()))
	}
}

func TestServer_Serve_NilHandler(t *testing.T) {
	server := newTestServer(t)

	if err := server.Serve(context.Background(), nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestServer_Serve_StoppedByClose(t *testing.T) {
	server := newTestServer(t)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(context.Background(), HandlerFunc(func(c *Conn) { _ = c.Close() }))
	}()
	waitFor(t, "accept to start", func() bool { return server.acceptor.current() == acceptAccepting })

	_ = server.Close()
	select {
	case err := <-serveErr:
		if err != nil {
			t.Errorf("Serve returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Close")
	}
}

func TestServer_Echo(t *testing.T) {
	server := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = server.Serve(ctx, HandlerFunc(func(c *Conn) {
			defer c.Close()
			for msg, err := range c.Messages() {
				if err != nil {
					return
				}
				if err := c.Send(msg); err != nil {
					return
				}
			}
		}))
	}()

	client, err := Dial(ctx, server.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()

	want := [][]byte{{65, 0}, {}, {65, 0, 66, 0}}
	for _, m := range want {
		if err := client.Send(m); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}

	i := 0
	for msg, err := range client.Messages() {
		if err != nil {
			t.Fatalf("Messages failed: %v", err)
		}
		if string(msg) != string(want[i]) {
			t.Errorf("echo %d = %v, want %v", i, msg, want[i])
		}
		i++
		if i == len(want) {
			break
		}
	}
}
