//go:build unix

package framesock

import (
	"net"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// listenTCP creates a listening socket with an explicit backlog, which the
// net package does not expose, and hands it to the runtime poller.
func listenTCP(addr *net.TCPAddr, backlog int, logger Logger) (*net.TCPListener, error) {
	family, sa, err := sockaddr(addr)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, errors.Wrap(os.NewSyscallError("socket", err), "listen")
	}
	unix.CloseOnExec(fd)

	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, errors.Wrap(os.NewSyscallError("setsockopt", err), "listen")
	}
	if err = unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, errors.Wrapf(os.NewSyscallError("bind", err), "listen %s", addr)
	}
	if err = unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return nil, errors.Wrapf(os.NewSyscallError("listen", err), "listen %s", addr)
	}

	// FileListener dups the descriptor, so the file is closed either way.
	f := os.NewFile(uintptr(fd), "framesock-listener")
	ln, err := net.FileListener(f)
	_ = f.Close()
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", addr)
	}

	logger.Debug("socket listening", "addr", ln.Addr(), "backlog", backlog)
	return ln.(*net.TCPListener), nil
}

func sockaddr(addr *net.TCPAddr) (int, unix.Sockaddr, error) {
	if addr.Port < 0 || addr.Port > 0xffff {
		return 0, nil, errors.WithMessagef(ErrConfiguration, "port %d out of range", addr.Port)
	}

	if len(addr.IP) == 0 {
		return unix.AF_INET, &unix.SockaddrInet4{Port: addr.Port}, nil
	}
	if ip4 := addr.IP.To4(); ip4 != nil {
		return unix.AF_INET, &unix.SockaddrInet4{Port: addr.Port, Addr: [4]byte(ip4)}, nil
	}
	if ip6 := addr.IP.To16(); ip6 != nil {
		sa := &unix.SockaddrInet6{Port: addr.Port, Addr: [16]byte(ip6)}
		if addr.Zone != "" {
			if ifi, err := net.InterfaceByName(addr.Zone); err == nil {
				sa.ZoneId = uint32(ifi.Index)
			}
		}
		return unix.AF_INET6, sa, nil
	}
	return 0, nil, errors.WithMessagef(ErrConfiguration, "unsupported address %s", addr)
}
