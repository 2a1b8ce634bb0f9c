package framesock

import (
	"context"
	"io"
	"net"
	"sync/atomic"

	"github.com/pkg/errors"
)

// State is a server's position in its lifecycle.
type State int32

const (
	// StateCreated means the socket is listening but nothing has accepted yet.
	StateCreated State = iota
	// StateAccepting means AcceptAll has been iterated at least once.
	StateAccepting
	// StateShuttingDown means disposal has begun.
	StateShuttingDown
	// StateDisposed is terminal: every resource has been released.
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateAccepting:
		return "accepting"
	case StateShuttingDown:
		return "shutting_down"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// cancelSource is the server-owned cancellation signal. Its context is shared
// by reference with every accept; once released it hands out no new work.
type cancelSource struct {
	ctx      context.Context
	cancel   context.CancelCauseFunc
	released atomic.Bool
}

func newCancelSource() *cancelSource {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &cancelSource{ctx: ctx, cancel: cancel}
}

// token is the context observed by accept operations.
func (c *cancelSource) token() context.Context {
	return c.ctx
}

// signal cancels the context. It reports false if it was already cancelled.
func (c *cancelSource) signal() bool {
	if c.ctx.Err() != nil {
		return false
	}
	c.cancel(ErrClosed)
	return true
}

// release reports false if the source was already released.
func (c *cancelSource) release() bool {
	if c.released.Swap(true) {
		return false
	}
	c.cancel(ErrClosed)
	return true
}

// disposer tears down a server's resources exactly once, in order:
// cancellation signal, outstanding accept, listening socket, cancel source.
// Cancelling first lets the accept observe shutdown before its socket closes.
type disposer struct {
	state    atomic.Int32
	done     chan struct{}
	source   *cancelSource
	acceptor *acceptor
	listener io.Closer
	logger   Logger
}

func newDisposer(source *cancelSource, a *acceptor, listener io.Closer, logger Logger) *disposer {
	return &disposer{
		done:     make(chan struct{}),
		source:   source,
		acceptor: a,
		listener: listener,
		logger:   logger,
	}
}

func (d *disposer) current() State {
	return State(d.state.Load())
}

// beginAccepting moves Created to Accepting. It reports false once disposal has begun.
func (d *disposer) beginAccepting() bool {
	d.state.CompareAndSwap(int32(StateCreated), int32(StateAccepting))
	return d.current() < StateShuttingDown
}

// dispose runs the teardown on the first call. Later or concurrent calls wait
// for that teardown and return nil; ctx only bounds the waiting.
func (d *disposer) dispose(ctx context.Context) error {
	for {
		s := d.current()
		if s >= StateShuttingDown {
			select {
			case <-d.done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if d.state.CompareAndSwap(int32(s), int32(StateShuttingDown)) {
			break
		}
	}

	defer func() {
		d.state.Store(int32(StateDisposed))
		close(d.done)
	}()

	if !d.source.signal() {
		d.logger.Debug("dispose: cancellation already signaled")
	}

	if err := d.acceptor.dispose(ctx); err != nil {
		d.logger.Debug("dispose: outstanding accept did not finish", "error", err)
	}

	if err := d.listener.Close(); err != nil {
		if errors.Is(err, net.ErrClosed) {
			d.logger.Debug("dispose: listener already closed")
		} else {
			d.logger.Debug("dispose: closing listener failed", "error", err)
		}
	}

	if !d.source.release() {
		d.logger.Debug("dispose: cancellation source already released")
	}
	return nil
}
