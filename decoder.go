package framesock

import (
	"io"
	"iter"

	"github.com/pkg/errors"
)

const defaultReadChunkSize = 4096

type decodeOptions struct {
	limits    Limits
	chunkSize int
	metrics   *Metrics
}

// DecodeOption configures a Decoder.
type DecodeOption func(*decodeOptions)

// DecodeLimitsOption sets the limits enforced while decoding.
func DecodeLimitsOption(limits Limits) DecodeOption {
	return func(o *decodeOptions) {
		o.limits = limits
	}
}

// DecodeChunkSizeOption sets how many bytes are requested from the reader per Read.
func DecodeChunkSizeOption(size int) DecodeOption {
	return func(o *decodeOptions) {
		o.chunkSize = size
	}
}

// DecodeMetricsOption records decoded frames and received bytes on m.
func DecodeMetricsOption(m *Metrics) DecodeOption {
	return func(o *decodeOptions) {
		o.metrics = m
	}
}

// Decoder pulls messages from a byte stream one at a time.
// End of stream and framing errors are sticky: once Next reports one, every
// later call returns it again. Other read errors are returned once.
type Decoder struct {
	r       io.Reader
	acc     *Accumulator
	chunk   []byte
	metrics *Metrics

	readErr error // error returned by the last Read, handled once the buffer is drained
	err     error
}

// NewDecoder returns a Decoder reading frames from r.
func NewDecoder(r io.Reader, opts ...DecodeOption) *Decoder {
	var o decodeOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.chunkSize <= 0 {
		o.chunkSize = defaultReadChunkSize
	}

	return &Decoder{
		r:       r,
		acc:     NewAccumulator(o.limits),
		chunk:   make([]byte, o.chunkSize),
		metrics: o.metrics,
	}
}

// Next returns the next message. It returns io.EOF when the stream closed
// cleanly on a frame boundary, and a TruncatedStream *FramingError when the
// stream closed part way through a frame.
func (d *Decoder) Next() ([]byte, error) {
	if d.err != nil {
		return nil, d.err
	}

	for {
		msg, err := d.acc.pop()
		if err == nil {
			d.metrics.frameDecoded()
			return msg, nil
		}
		if !errors.Is(err, ErrNeedMoreData) {
			return nil, d.fail(err)
		}

		if d.readErr != nil {
			err, d.readErr = d.readErr, nil
			if errors.Is(err, io.EOF) {
				if ferr := d.acc.Finish(); ferr != nil {
					return nil, d.fail(ferr)
				}
				return nil, d.fail(io.EOF)
			}
			// Transport errors such as timeouts are not sticky; the caller may retry.
			return nil, err
		}

		d.acc.compact()
		n, rerr := d.r.Read(d.chunk)
		d.acc.Feed(d.chunk[:n])
		d.metrics.bytesReceived(n)
		d.readErr = rerr
	}
}

// Buffered returns the number of bytes read but not yet returned as messages.
func (d *Decoder) Buffered() int {
	return d.acc.Buffered()
}

func (d *Decoder) fail(err error) error {
	var fe *FramingError
	if errors.As(err, &fe) {
		d.metrics.framingError(fe.Kind)
	}
	d.err = err
	return err
}

// ReadMessages lazily decodes r into messages. The sequence ends silently when
// r reaches EOF on a frame boundary; any other end yields one final error.
func ReadMessages(r io.Reader, opts ...DecodeOption) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		d := NewDecoder(r, opts...)
		for {
			msg, err := d.Next()
			if errors.Is(err, io.EOF) {
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
