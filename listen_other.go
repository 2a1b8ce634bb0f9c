//go:build !unix

package framesock

import (
	"net"

	"github.com/pkg/errors"
)

// listenTCP falls back to the net package, where the backlog is chosen by the OS.
func listenTCP(addr *net.TCPAddr, backlog int, logger Logger) (*net.TCPListener, error) {
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", addr)
	}
	logger.Debug("socket listening, backlog is OS-controlled", "addr", ln.Addr(), "backlog", backlog)
	return ln, nil
}
