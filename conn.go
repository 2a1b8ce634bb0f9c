// Package framesock provides length-prefixed message framing over TCP and a
// listening server that exposes accepted connections as a cancellable,
// lazily pulled sequence with ordered, idempotent shutdown.
//
// Every frame is a big-endian uint32 length followed by that many payload bytes.
package framesock

import (
	"context"
	"io"
	"iter"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Errors returned by connection operations.
var (
	// ErrInvalidOnMessage is returned by Run when no message handler is provided.
	ErrInvalidOnMessage = errors.New("invalid on message callback")
	// ErrConnectionClosed is returned when operating on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrBufferFull is returned when the send buffer is full and cannot accept more messages.
	// This error indicates backpressure - the receiver is not consuming messages fast enough.
	// Recommended handling strategies:
	//   - Drop the message (for non-critical data like metrics)
	//   - Use WriteBlocking or WriteTimeout to wait for buffer space
	//   - Implement application-level flow control
	ErrBufferFull = errors.New("send buffer full")
)

// Default configuration values.
const (
	// defaultBufferSize is the default size of the message channel buffer.
	defaultBufferSize = 1
	// defaultMaxMessageSize is the default maximum size of a single message (1MB).
	defaultMaxMessageSize = 1024 * 1024
	// defaultHeartbeat sets read/write deadlines to one minute.
	defaultHeartbeat = time.Second * 30
)

// Conn is one end of a framed TCP connection: either accepted by a Server
// or opened with Dial. Messages can be exchanged directly with Send and
// Messages, or through Run's concurrent read and write loops.
type Conn struct {
	id      uuid.UUID
	rawConn *net.TCPConn
	decoder *Decoder
	logger  Logger
	metrics *Metrics

	opts options

	sendMsg chan []byte
	writeMu sync.Mutex // keeps frames from interleaving
	closed  atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewConn wraps an established TCP connection.
func NewConn(conn *net.TCPConn, opt ...Option) (*Conn, error) {
	if conn == nil {
		return nil, ErrInvalidInput
	}

	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)

	return newConnWithOptions(conn, opts), nil
}

// checkOptions sets default values for connection options.
func checkOptions(opts *options) {
	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}

	if opts.maxMessageSize == 0 {
		opts.maxMessageSize = defaultMaxMessageSize
	}

	if opts.readChunkSize <= 0 {
		opts.readChunkSize = defaultReadChunkSize
	}

	if opts.heartbeat <= 0 {
		opts.heartbeat = defaultHeartbeat
	}

	if opts.onError == nil {
		opts.onError = func(err error) ErrorAction { return Disconnect }
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}
}

// newConnWithOptions creates a new Conn with already-checked options.
func newConnWithOptions(c *net.TCPConn, opts options) *Conn {
	cc := &Conn{
		id:      uuid.New(),
		rawConn: c,
		decoder: NewDecoder(c,
			DecodeLimitsOption(opts.limits()),
			DecodeChunkSizeOption(opts.readChunkSize),
			DecodeMetricsOption(opts.metrics),
		),
		logger:  opts.logger,
		metrics: opts.metrics,
		opts:    opts,
		sendMsg: make(chan []byte, opts.bufferSize),
	}
	cc.metrics.connOpened()

	return cc
}

// ID returns the identifier assigned to this connection.
func (c *Conn) ID() uuid.UUID {
	return c.id
}

// Addr returns the remote address of the connection.
func (c *Conn) Addr() net.Addr {
	return c.rawConn.RemoteAddr()
}

// LocalAddr returns the local address of the connection.
func (c *Conn) LocalAddr() net.Addr {
	return c.rawConn.LocalAddr()
}

// Send frames message and writes it synchronously.
func (c *Conn) Send(message []byte) error {
	if message == nil {
		return ErrInvalidInput
	}
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	return c.writeFrame(AppendFrame(make([]byte, 0, HeaderSize+len(message)), message))
}

// Messages lazily reads messages from the connection. The sequence ends
// silently when the peer closes on a frame boundary and yields a final error
// otherwise, including a TruncatedStream *FramingError for a partial frame.
//
// Messages shares its read state with Run; use one or the other.
func (c *Conn) Messages() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for {
			msg, err := c.decoder.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if c.closed.Load() {
					err = ErrConnectionClosed
				}
				yield(nil, err)
				return
			}
			if !yield(msg, nil) {
				return
			}
		}
	}
}

// Run starts the connection's read and write loops.
// It creates two goroutines for concurrent reading and writing,
// and blocks until an error occurs or the context is canceled.
// The connection is automatically closed when Run returns.
func (c *Conn) Run(ctx context.Context) error {
	if c.opts.onMessage == nil {
		return ErrInvalidOnMessage
	}
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	c.logger.Info("connection established", "conn_id", c.id, "addr", c.Addr())
	c.logger.Debug("connection options", "conn_id", c.id,
		"buffer_size", c.opts.bufferSize,
		"max_message_size", c.opts.maxMessageSize,
		"heartbeat", c.opts.heartbeat)

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	group, child := errgroup.WithContext(ctx)

	// A blocked Read does not observe ctx; pull its deadline in instead.
	stop := context.AfterFunc(child, func() {
		_ = c.rawConn.SetReadDeadline(time.Now())
	})
	defer stop()

	group.Go(func() error {
		return c.readLoop(child)
	})

	group.Go(func() error {
		return c.writeLoop(child)
	})

	err := group.Wait()
	_ = c.Close()

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		c.logger.Info("connection closed with error", "conn_id", c.id, "addr", c.Addr(), "error", err)
	} else {
		c.logger.Info("connection closed", "conn_id", c.id, "addr", c.Addr())
	}

	return err
}

// Close closes the connection and stops Run if it is active.
// Safe to call multiple times.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil // already closed
	}

	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	c.metrics.connClosed()
	return c.rawConn.Close()
}

// IsClosed returns true if the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// Write queues a message for Run's write loop without blocking (fire-and-forget).
//
// Returns:
//   - nil: message was successfully queued (not yet sent)
//   - ErrBufferFull: send buffer is full, message was NOT queued
//   - ErrConnectionClosed: connection is closed
//   - ErrInvalidInput: message is nil
//
// For guaranteed delivery, use WriteBlocking or WriteTimeout instead.
func (c *Conn) Write(message []byte) error {
	frame, err := c.prepare(message)
	if err != nil {
		return err
	}

	select {
	case c.sendMsg <- frame:
		return nil
	default:
		return ErrBufferFull
	}
}

// WriteBlocking queues a message, blocking until there is buffer space or
// the context is canceled.
func (c *Conn) WriteBlocking(ctx context.Context, message []byte) error {
	frame, err := c.prepare(message)
	if err != nil {
		return err
	}

	select {
	case c.sendMsg <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriteTimeout queues a message, waiting at most timeout for buffer space.
// It returns ErrBufferFull if the timeout expires.
func (c *Conn) WriteTimeout(message []byte, timeout time.Duration) error {
	frame, err := c.prepare(message)
	if err != nil {
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c.sendMsg <- frame:
		return nil
	case <-timer.C:
		return ErrBufferFull
	}
}

func (c *Conn) prepare(message []byte) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrConnectionClosed
	}
	return Encode(message)
}

// readLoop decodes messages and hands them to the message handler.
// Returns when the context is canceled, the peer closes, or an
// unrecoverable error occurs.
func (c *Conn) readLoop(ctx context.Context) error {
	for {
		// Checked after the deadline is pushed out so a concurrent cancel
		// always wins over the fresh deadline.
		_ = c.rawConn.SetReadDeadline(time.Now().Add(c.opts.heartbeat * 2))
		if err := ctx.Err(); err != nil {
			return err
		}

		message, err := c.decoder.Next()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			c.logger.Debug("read error", "conn_id", c.id, "error", err)
			if errors.Is(err, io.EOF) || errors.Is(err, ErrFraming) {
				return err
			}
			if c.opts.onError(err) == Disconnect {
				return err
			}
			continue
		}

		if err = c.opts.onMessage(message); err != nil {
			return err
		}
	}
}

// writeLoop continuously sends frames from the send channel to the connection.
// Returns when the context is canceled or an unrecoverable error occurs.
func (c *Conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-c.sendMsg:
			if err := c.write(frame); err != nil {
				return err
			}
		}
	}
}

// write sends one frame, consulting onError on failure.
func (c *Conn) write(frame []byte) error {
	if err := c.writeFrame(frame); err != nil {
		c.logger.Debug("write error", "conn_id", c.id, "error", err)
		if c.opts.onError(err) == Disconnect {
			return err
		}
	}
	return nil
}

func (c *Conn) writeFrame(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.rawConn.SetWriteDeadline(time.Now().Add(c.opts.heartbeat * 2))
	if _, err := c.rawConn.Write(frame); err != nil {
		return err
	}
	c.metrics.frameEncoded()
	return nil
}
