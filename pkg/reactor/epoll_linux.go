//go:build linux

package reactor

import (
	"golang.org/x/sys/unix"
)

// epollPoller wraps a Linux epoll instance, grounded on golang.org/x/sys/unix's
// documented EpollCreate1/EpollCtl/EpollWait trio.
type epollPoller struct {
	fd int
}

// NewPoller creates the Linux epoll-backed Poller.
func NewPoller() (Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{fd: fd}, nil
}

func (p *epollPoller) Add(fd int, events uint32) error {
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: events})
}

func (p *epollPoller) Modify(fd int, events uint32) error {
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Fd: int32(fd), Events: events})
}

func (p *epollPoller) Remove(fd int) error {
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) Wait(timeoutMs int) ([]ReadyEvent, error) {
	raw := make([]unix.EpollEvent, 256)
	n, err := unix.EpollWait(p.fd, raw, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	out := make([]ReadyEvent, 0, n)
	for i := 0; i < n; i++ {
		ev := raw[i]
		out = append(out, ReadyEvent{
			Fd:     int(ev.Fd),
			Read:   ev.Events&unix.EPOLLIN != 0,
			Write:  ev.Events&unix.EPOLLOUT != 0,
			Err:    ev.Events&unix.EPOLLERR != 0,
			Hangup: ev.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0,
		})
	}
	return out, nil
}

func (p *epollPoller) Close() error {
	return unix.Close(p.fd)
}

// ReadWriteEvents is the mask a connection is switched to while outbound
// bytes are still queued after a write would block: readable and
// writable, level-triggered (epoll's default, no EPOLLET), so a partial
// read/write is retried on the next Wait.
const ReadWriteEvents = unix.EPOLLIN | unix.EPOLLOUT

// ReadEvents is the mask used once a connection has no pending outbound
// bytes queued.
const ReadEvents = unix.EPOLLIN
