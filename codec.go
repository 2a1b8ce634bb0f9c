package framesock

import (
	"encoding/binary"
)

// HeaderSize is the length of the big-endian uint32 prefix on every frame.
const HeaderSize = 4

const maxInt = int(^uint(0) >> 1)

// Limits constrains decode memory use.
// A zero MaxMessageSize leaves the declared length unbounded.
type Limits struct {
	MaxMessageSize int
}

// Encode returns message prefixed with its length as a big-endian uint32.
// A nil message is rejected; an empty one encodes to a bare 4-byte header.
func Encode(message []byte) ([]byte, error) {
	if message == nil {
		return nil, ErrInvalidInput
	}
	return AppendFrame(make([]byte, 0, HeaderSize+len(message)), message), nil
}

// AppendFrame appends the frame for message to dst and returns the extended slice.
// Unlike Encode it treats nil as an empty message.
func AppendFrame(dst, message []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(message)))
	return append(dst, message...)
}

// DecodeOne decodes the frame at the front of buf without any size limit.
// It returns the message and the number of bytes the frame occupied, or
// ErrNeedMoreData with consumed == 0 if buf does not yet hold a whole frame.
func DecodeOne(buf []byte) (message []byte, consumed int, err error) {
	return Limits{}.DecodeOne(buf)
}

// TryDecodeOne is DecodeOne reporting incompleteness as ok == false.
func TryDecodeOne(buf []byte) (message []byte, consumed int, ok bool) {
	message, consumed, err := DecodeOne(buf)
	return message, consumed, err == nil
}

// DecodeOne decodes the frame at the front of buf, enforcing l.
// Decoding is all-or-nothing: nothing is consumed unless the whole frame is present.
// The returned message never aliases buf.
func (l Limits) DecodeOne(buf []byte) (message []byte, consumed int, err error) {
	size, err := l.frameSize(buf)
	if err != nil {
		return nil, 0, err
	}
	message = make([]byte, size-HeaderSize)
	copy(message, buf[HeaderSize:size])
	return message, size, nil
}

// frameSize reports the total length of the frame at the front of buf.
func (l Limits) frameSize(buf []byte) (int, error) {
	if len(buf) < HeaderSize {
		return 0, ErrNeedMoreData
	}

	declared := binary.BigEndian.Uint32(buf)
	if l.MaxMessageSize > 0 && uint64(declared) > uint64(l.MaxMessageSize) {
		return 0, &FramingError{Kind: CorruptLength, Declared: declared, Buffered: len(buf), Limit: l.MaxMessageSize}
	}

	// A frame that cannot be indexed on this platform can never complete.
	need := uint64(HeaderSize) + uint64(declared)
	if need > uint64(maxInt) {
		return 0, &FramingError{Kind: CorruptLength, Declared: declared, Buffered: len(buf), Limit: maxInt - HeaderSize}
	}

	if uint64(len(buf)) < need {
		return 0, ErrNeedMoreData
	}
	return int(need), nil
}
