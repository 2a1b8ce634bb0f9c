package framesock

import (
	"context"
	"net"

	"github.com/pkg/errors"
)

// Dial connects to address over TCP and wraps the connection for framed I/O.
func Dial(ctx context.Context, address string, opts ...Option) (*Conn, error) {
	if address == "" {
		return nil, ErrInvalidInput
	}

	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", address)
	}

	tcp, ok := raw.(*net.TCPConn)
	if !ok {
		_ = raw.Close()
		return nil, errors.Errorf("dial %s: unexpected connection type %T", address, raw)
	}
	_ = tcp.SetNoDelay(true)

	return NewConn(tcp, opts...)
}
