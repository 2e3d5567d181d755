//go:build linux

package reactor

import (
	"net"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/nullbyte-dev/evreactor/pkg/errors"
)

// listener is a non-blocking listening socket registered with the poller.
// Kept distinct from net.Listener because the reactor needs the raw fd for
// epoll registration and non-blocking Accept4.
type listener struct {
	fd   int
	addr string
}

// listenTCP creates a non-blocking IPv4/IPv6 listening socket bound to
// addr ("host:port"), following the same Bind/Listen sequence net.Listen
// performs internally, but with SOCK_NONBLOCK set up front so accepted
// connections inherit non-blocking mode without a second fcntl call.
func listenTCP(addr string) (*listener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, errors.NewConnectionError(addr, err)
	}

	domain := unix.AF_INET
	if tcpAddr.IP != nil && tcpAddr.IP.To4() == nil {
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, errors.NewConnectionError(addr, err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, errors.NewConnectionError(addr, err)
	}

	sa, err := sockaddrFor(domain, tcpAddr)
	if err != nil {
		unix.Close(fd)
		return nil, errors.NewConnectionError(addr, err)
	}

	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, errors.NewConnectionError(addr, err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return nil, errors.NewConnectionError(addr, err)
	}

	return &listener{fd: fd, addr: addr}, nil
}

func sockaddrFor(domain int, addr *net.TCPAddr) (unix.Sockaddr, error) {
	if domain == unix.AF_INET6 {
		sa := &unix.SockaddrInet6{Port: addr.Port}
		if addr.IP != nil {
			copy(sa.Addr[:], addr.IP.To16())
		}
		return sa, nil
	}
	sa := &unix.SockaddrInet4{Port: addr.Port}
	if addr.IP != nil {
		copy(sa.Addr[:], addr.IP.To4())
	}
	return sa, nil
}

// accept accepts one pending connection, returning its fd and remote
// address string. Callers should keep accepting in a loop until accept
// returns unix.EAGAIN.
func (l *listener) accept() (int, string, error) {
	nfd, sa, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, "", err
	}
	return nfd, sockaddrString(sa), nil
}

func sockaddrString(sa unix.Sockaddr) string {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		ip := net.IP(v.Addr[:])
		return net.JoinHostPort(ip.String(), strconv.Itoa(v.Port))
	case *unix.SockaddrInet6:
		ip := net.IP(v.Addr[:])
		return net.JoinHostPort(ip.String(), strconv.Itoa(v.Port))
	default:
		return "unknown"
	}
}

func (l *listener) close() error {
	return unix.Close(l.fd)
}
