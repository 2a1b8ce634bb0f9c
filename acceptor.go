package framesock

import (
	"context"
	"iter"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

type acceptState int32

const (
	acceptIdle acceptState = iota
	acceptAccepting
	acceptCancelled
	acceptFaulted
)

func (s acceptState) String() string {
	switch s {
	case acceptIdle:
		return "idle"
	case acceptAccepting:
		return "accepting"
	case acceptCancelled:
		return "cancelled"
	case acceptFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// errAcceptStopped ends an accept sequence silently.
var errAcceptStopped = errors.New("accept stopped")

// acceptor turns a listening socket into a lazily pulled sequence of
// connections. At most one accept is outstanding at a time.
type acceptor struct {
	listener *net.TCPListener
	logger   Logger
	metrics  *Metrics
	connOpts options

	busy  atomic.Bool // an AcceptAll iteration is active
	state atomic.Int32

	mu       sync.Mutex
	closing  bool
	inflight chan struct{} // closed when the outstanding accept returns
	fault    error
}

func newAcceptor(listener *net.TCPListener, logger Logger, metrics *Metrics, connOpts options) *acceptor {
	return &acceptor{
		listener: listener,
		logger:   logger,
		metrics:  metrics,
		connOpts: connOpts,
	}
}

func (a *acceptor) current() acceptState {
	return acceptState(a.state.Load())
}

// AcceptAll yields accepted connections until ctx is cancelled, the acceptor
// is disposed, or the listener faults. Cancellation and disposal end the
// sequence without an error; a fault yields one *AcceptError.
//
// Only one iteration may be active; a concurrent one yields ErrAcceptInProgress.
func (a *acceptor) AcceptAll(ctx context.Context) iter.Seq2[*Conn, error] {
	return func(yield func(*Conn, error) bool) {
		if !a.busy.CompareAndSwap(false, true) {
			yield(nil, ErrAcceptInProgress)
			return
		}
		defer a.busy.Store(false)

		for {
			conn, err := a.acceptOne(ctx)
			if errors.Is(err, errAcceptStopped) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(conn, nil) {
				return
			}
		}
	}
}

func (a *acceptor) acceptOne(ctx context.Context) (*Conn, error) {
	done, err := a.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer a.end(done)

	// Accept does not observe ctx; pull the listener deadline in instead.
	stop := context.AfterFunc(ctx, func() {
		_ = a.listener.SetDeadline(time.Now())
	})
	defer stop()

	for {
		raw, err := a.listener.AcceptTCP()
		if err == nil {
			return a.wrap(raw), nil
		}

		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			// Either our own cancellation or a deadline left over from an
			// earlier, cancelled iteration. Clear it, then re-check so a
			// cancel racing the reset still wins.
			_ = a.listener.SetDeadline(time.Time{})
			if a.stopped(ctx) {
				return nil, a.stop(err)
			}
			continue
		}

		if a.stopped(ctx) {
			return nil, a.stop(err)
		}
		return nil, a.setFault(err)
	}
}

func (a *acceptor) stopped(ctx context.Context) bool {
	return ctx.Err() != nil || a.isClosing()
}

func (a *acceptor) stop(cause error) error {
	a.state.Store(int32(acceptCancelled))
	a.logger.Debug("accept stopped", "addr", a.listener.Addr(), "cause", cause)
	return errAcceptStopped
}

// begin registers the outstanding accept so dispose can wait for it.
func (a *acceptor) begin(ctx context.Context) (chan struct{}, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.fault != nil {
		return nil, a.fault
	}
	if a.closing || ctx.Err() != nil {
		a.state.Store(int32(acceptCancelled))
		return nil, errAcceptStopped
	}

	a.inflight = make(chan struct{})
	a.state.Store(int32(acceptAccepting))
	return a.inflight, nil
}

func (a *acceptor) end(done chan struct{}) {
	a.mu.Lock()
	defer a.mu.Unlock()

	close(done)
	a.inflight = nil
	a.state.CompareAndSwap(int32(acceptAccepting), int32(acceptIdle))
}

func (a *acceptor) isClosing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closing
}

func (a *acceptor) setFault(err error) error {
	a.metrics.acceptFailed()
	a.logger.Error("accept error", "addr", a.listener.Addr(), "error", err)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.fault = &AcceptError{Err: err}
	a.state.Store(int32(acceptFaulted))
	return a.fault
}

func (a *acceptor) wrap(raw *net.TCPConn) *Conn {
	_ = raw.SetNoDelay(true)
	conn := newConnWithOptions(raw, a.connOpts)
	a.metrics.connAccepted()
	a.logger.Debug("connection accepted", "conn_id", conn.ID(), "remote_addr", conn.Addr())
	return conn
}

// dispose stops new accepts and forces the outstanding one, if any, to
// return, waiting for it until ctx is done.
func (a *acceptor) dispose(ctx context.Context) error {
	a.mu.Lock()
	a.closing = true
	done := a.inflight
	a.mu.Unlock()

	if done == nil {
		return nil
	}

	_ = a.listener.SetDeadline(time.Now())
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
