package framesock

import (
	"time"
)

// ErrorAction defines the action to take when an error occurs.
type ErrorAction int

const (
	// Disconnect closes the connection when an error occurs.
	Disconnect ErrorAction = iota
	// Continue suppresses the error and continues processing.
	Continue
)

// options holds the configuration for a connection.
type options struct {
	logger  Logger
	metrics *Metrics

	onMessage func(message []byte) error
	// onError is called when a transport read or write fails.
	// Framing errors and end of stream always disconnect.
	onError func(error) ErrorAction

	bufferSize     int           // size of the queued-write channel
	maxMessageSize int           // largest accepted message; <0 means unbounded
	readChunkSize  int           // bytes requested per Read
	heartbeat      time.Duration // read/write deadlines are heartbeat * 2
}

// Option is a function that configures connection options.
type Option func(*options)

// BufferSizeOption returns an Option that sets the size of the send channel buffer.
// A larger buffer allows more messages to be queued before blocking.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// HeartbeatOption returns an Option that sets the heartbeat interval.
// Reads and writes time out after heartbeat * 2 without progress.
func HeartbeatOption(heartbeat time.Duration) Option {
	return func(o *options) {
		o.heartbeat = heartbeat
	}
}

// MessageMaxSize returns an Option that caps the size of a received message.
// A header above the cap ends the connection with a CorruptLength error.
// Zero keeps the default; a negative size removes the cap.
func MessageMaxSize(size int) Option {
	return func(o *options) {
		o.maxMessageSize = size
	}
}

// ReadChunkSizeOption returns an Option that sets how many bytes each socket read requests.
func ReadChunkSizeOption(size int) Option {
	return func(o *options) {
		o.readChunkSize = size
	}
}

// OnErrorOption returns an Option that sets the error callback.
// The callback is invoked when a read/write error occurs.
// Return Disconnect to close the connection, or Continue to suppress the error.
func OnErrorOption(cb func(error) ErrorAction) Option {
	return func(o *options) {
		o.onError = cb
	}
}

// OnMessageOption returns an Option that sets the message handler used by Run.
func OnMessageOption(cb func(message []byte) error) Option {
	return func(o *options) {
		o.onMessage = cb
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// MetricsOption returns an Option that records connection and frame metrics on m.
func MetricsOption(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func (o *options) limits() Limits {
	if o.maxMessageSize < 0 {
		return Limits{}
	}
	return Limits{MaxMessageSize: o.maxMessageSize}
}
