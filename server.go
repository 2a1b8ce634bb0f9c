package framesock

import (
	"context"
	"iter"
	"net"
	"time"
)

// defaultDisposeTimeout bounds how long Close waits for an outstanding accept.
const defaultDisposeTimeout = 5 * time.Second

// Handler is the interface for handling connections accepted by Serve.
type Handler interface {
	// Handle is called for each new connection, on its own goroutine.
	// The implementation is responsible for closing the connection.
	Handle(conn *Conn)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(conn *Conn)

// Handle calls f(conn).
func (f HandlerFunc) Handle(conn *Conn) { f(conn) }

// Server owns a listening socket, its cancellation source, the acceptor
// pulling connections from it, and the disposer that tears them down.
type Server struct {
	listener       *net.TCPListener
	logger         Logger
	metrics        *Metrics
	disposeTimeout time.Duration
	connOpts       []Option

	source   *cancelSource
	acceptor *acceptor
	disposer *disposer
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// ServerLoggerOption sets the logger for the server and, unless overridden
// with ServerConnOptions, for the connections it accepts.
func ServerLoggerOption(logger Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// ServerMetricsOption records listener and connection metrics on m.
func ServerMetricsOption(m *Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// ServerConnOptions sets options applied to every accepted connection.
// They take precedence over the connection fields of Config.
func ServerConnOptions(opts ...Option) ServerOption {
	return func(s *Server) {
		s.connOpts = append(s.connOpts, opts...)
	}
}

// ServerDisposeTimeoutOption bounds how long Close waits for an outstanding
// accept to return after the listener deadline has been forced.
// Zero or negative means wait until it returns.
func ServerDisposeTimeoutOption(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.disposeTimeout = timeout
	}
}

// New validates cfg, then binds and listens on cfg.Address with cfg.Backlog.
// Invalid configuration is reported as ErrConfiguration.
func New(cfg Config, opts ...ServerOption) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	addr, err := cfg.address()
	if err != nil {
		return nil, err
	}

	s := newServer(opts)
	s.connOpts = append(cfg.connOptions(), s.connOpts...)

	listener, err := listenTCP(addr, cfg.Backlog, s.logger)
	if err != nil {
		return nil, err
	}

	s.init(listener)
	return s, nil
}

// Listen is New with DefaultConfig listening on address.
func Listen(address string, opts ...ServerOption) (*Server, error) {
	cfg := DefaultConfig()
	cfg.Address = address
	return New(cfg, opts...)
}

// NewFromListener creates a Server around an already listening socket.
// The Server takes ownership of the listener.
func NewFromListener(listener *net.TCPListener, opts ...ServerOption) (*Server, error) {
	if listener == nil {
		return nil, ErrInvalidInput
	}

	s := newServer(opts)
	s.init(listener)
	return s, nil
}

func newServer(opts []ServerOption) *Server {
	s := &Server{
		logger:         defaultLogger(),
		disposeTimeout: defaultDisposeTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = NopLogger{}
	}
	return s
}

func (s *Server) init(listener *net.TCPListener) {
	connOpts := options{logger: s.logger, metrics: s.metrics}
	for _, o := range s.connOpts {
		o(&connOpts)
	}
	checkOptions(&connOpts)

	s.listener = listener
	s.source = newCancelSource()
	s.acceptor = newAcceptor(listener, s.logger, s.metrics, connOpts)
	s.disposer = newDisposer(s.source, s.acceptor, listener, s.logger)

	s.logger.Debug("server created", "addr", s.Addr())
}

// AcceptAll lazily yields accepted connections in arrival order. Each pull
// performs one accept and blocks until a connection arrives.
//
// The sequence ends without an error when ctx is cancelled or the server is
// disposed, including while an accept is blocked. A listener fault yields a
// single *AcceptError, after which the server should be closed. Once the
// server is disposed, the sequence yields ErrClosed.
//
// Only one iteration may be active at a time.
func (s *Server) AcceptAll(ctx context.Context) iter.Seq2[*Conn, error] {
	return func(yield func(*Conn, error) bool) {
		if !s.disposer.beginAccepting() {
			yield(nil, ErrClosed)
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(s.source.token(), cancel)
		defer stop()

		for conn, err := range s.acceptor.AcceptAll(ctx) {
			if !yield(conn, err) {
				return
			}
		}
	}
}

// Serve accepts connections and dispatches each to handler on its own goroutine.
// It returns ctx.Err() when ctx is cancelled, nil when the server is closed,
// and the *AcceptError (or ErrClosed) otherwise.
func (s *Server) Serve(ctx context.Context, handler Handler) error {
	if handler == nil {
		return ErrInvalidInput
	}

	s.logger.Info("server started", "addr", s.Addr())
	for conn, err := range s.AcceptAll(ctx) {
		if err != nil {
			return err
		}
		go handler.Handle(conn)
	}
	s.logger.Info("server stopped", "addr", s.Addr())

	return ctx.Err()
}

// Dispose shuts the server down: it cancels accepts, waits for the
// outstanding one, closes the listener and releases the cancellation source.
// It is idempotent; concurrent callers wait for the first to finish.
func (s *Server) Dispose(ctx context.Context) error {
	if s.disposeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.disposeTimeout)
		defer cancel()
	}
	return s.disposer.dispose(ctx)
}

// Close is Dispose with a background context.
func (s *Server) Close() error {
	return s.Dispose(context.Background())
}

// Addr returns the listener's network address.
func (s *Server) Addr() *net.TCPAddr {
	addr, _ := s.listener.Addr().(*net.TCPAddr)
	return addr
}

// State returns the server's lifecycle state.
func (s *Server) State() State {
	return s.disposer.current()
}
