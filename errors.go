package framesock

import (
	"fmt"

	"github.com/pkg/errors"
)

// Errors returned by codec, server and acceptor operations.
var (
	// ErrInvalidInput is returned when a required argument is absent.
	ErrInvalidInput = errors.New("framesock: invalid input")
	// ErrConfiguration is returned by New when the Config does not validate.
	ErrConfiguration = errors.New("framesock: invalid configuration")
	// ErrClosed is returned by any server operation after disposal.
	ErrClosed = errors.New("framesock: server closed")
	// ErrNeedMoreData is returned by DecodeOne when the buffer holds no complete frame.
	// It is not a failure: feed more bytes and try again.
	ErrNeedMoreData = errors.New("framesock: need more data")
	// ErrAcceptInProgress is yielded when a second consumer iterates AcceptAll
	// while another iteration is still active.
	ErrAcceptInProgress = errors.New("framesock: accept already in progress")

	// ErrFraming matches every *FramingError via errors.Is.
	ErrFraming = errors.New("framesock: framing error")
	// ErrAccept matches every *AcceptError via errors.Is.
	ErrAccept = errors.New("framesock: accept error")
)

// FramingErrorKind classifies decode-side protocol violations.
type FramingErrorKind int

const (
	// TruncatedStream means the stream ended inside a header or payload.
	TruncatedStream FramingErrorKind = iota + 1
	// CorruptLength means a header declared a length the decoder refuses to honor.
	CorruptLength
)

func (k FramingErrorKind) String() string {
	switch k {
	case TruncatedStream:
		return "truncated_stream"
	case CorruptLength:
		return "corrupt_length"
	default:
		return "unknown"
	}
}

// FramingError reports a protocol violation on the decode side.
// The offending connection should be closed; it is never retried.
type FramingError struct {
	Kind FramingErrorKind
	// Declared is the header value of the frame being assembled, if a header was read.
	Declared uint32
	// Buffered is the number of bytes held when the error was detected.
	Buffered int
	// Limit is the configured maximum message size for CorruptLength.
	Limit int
}

func (e *FramingError) Error() string {
	switch e.Kind {
	case TruncatedStream:
		return fmt.Sprintf("framesock: truncated stream: %d bytes buffered at end of stream", e.Buffered)
	case CorruptLength:
		return fmt.Sprintf("framesock: corrupt length: header declares %d bytes, limit is %d", e.Declared, e.Limit)
	default:
		return "framesock: framing error"
	}
}

// Is reports whether target is ErrFraming.
func (e *FramingError) Is(target error) bool {
	return target == ErrFraming
}

// IsFramingKind reports whether err carries a *FramingError of the given kind.
func IsFramingKind(err error, kind FramingErrorKind) bool {
	var fe *FramingError
	return errors.As(err, &fe) && fe.Kind == kind
}

// AcceptError is a listener fault unrelated to intentional shutdown.
// The server should be considered unusable after one is reported.
type AcceptError struct {
	Err error
}

func (e *AcceptError) Error() string {
	return "framesock: accept: " + e.Err.Error()
}

func (e *AcceptError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrAccept.
func (e *AcceptError) Is(target error) bool {
	return target == ErrAccept
}
