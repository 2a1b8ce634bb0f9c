package framesock

import (
	"encoding/binary"
	"iter"

	"github.com/pkg/errors"
)

// Accumulator reassembles frames from arbitrarily split byte chunks.
// Chunk boundaries need not line up with frame boundaries: one chunk may carry
// several frames plus the start of another, and one frame may span many chunks.
//
// An Accumulator belongs to a single decode pipeline and is not safe for
// concurrent use. The zero value is ready to use with no size limit.
type Accumulator struct {
	buf    []byte
	start  int // offset of the first unconsumed byte in buf
	limits Limits
}

// NewAccumulator returns an empty Accumulator enforcing limits.
func NewAccumulator(limits Limits) *Accumulator {
	return &Accumulator{limits: limits}
}

// Feed appends chunk to the buffered bytes. The chunk is copied.
func (a *Accumulator) Feed(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	a.buf = append(a.buf, chunk...)
}

// Drain yields every complete message currently buffered, in arrival order,
// removing each from the buffer as it is yielded. It stops without error once
// the remaining bytes do not form a whole frame.
//
// The only error yielded is a CorruptLength *FramingError when a header exceeds
// the configured limit; the offending bytes stay buffered.
func (a *Accumulator) Drain() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		defer a.compact()
		for {
			msg, err := a.pop()
			if errors.Is(err, ErrNeedMoreData) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(msg, nil) {
				return
			}
		}
	}
}

// Buffered returns the number of bytes received but not yet returned as a message.
func (a *Accumulator) Buffered() int {
	return len(a.buf) - a.start
}

// Finish must be called when the underlying stream has definitively ended.
// Leftover bytes at that point are a TruncatedStream *FramingError.
func (a *Accumulator) Finish() error {
	n := a.Buffered()
	if n == 0 {
		return nil
	}

	fe := &FramingError{Kind: TruncatedStream, Buffered: n}
	if n >= HeaderSize {
		fe.Declared = binary.BigEndian.Uint32(a.buf[a.start:])
	}
	return fe
}

// pop removes and returns the message at the front of the buffer.
func (a *Accumulator) pop() ([]byte, error) {
	msg, n, err := a.limits.DecodeOne(a.buf[a.start:])
	if err != nil {
		return nil, err
	}
	a.start += n
	return msg, nil
}

// compact moves unconsumed bytes to the front so the buffer does not grow
// without bound on long-lived connections.
func (a *Accumulator) compact() {
	if a.start == 0 {
		return
	}
	n := copy(a.buf, a.buf[a.start:])
	a.buf = a.buf[:n]
	a.start = 0
}
