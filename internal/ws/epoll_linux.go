//go:build linux

package ws

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// armEvents registers for read readiness in one-shot mode: after a
// notification the fd stays silent until Done re-arms it, so a connection is
// never reported again while its previous frame is still being handled.
const armEvents = unix.EPOLLIN | unix.EPOLLHUP | unix.EPOLLRDHUP | unix.EPOLLONESHOT

// waitTimeoutMs bounds EpollWait so the event loop notices shutdown.
const waitTimeoutMs = 500

// epoll wraps Linux epoll syscalls. Instead of parking a goroutine per
// connection, file descriptors are registered with the kernel and handed to
// the worker pool only when data is ready to read.
type epoll struct {
	fd     int                 // epoll file descriptor
	conns  map[int]*Connection // fd -> connection
	mu     sync.RWMutex        // protects conns
	events []unix.EpollEvent   // reusable event buffer for Wait
}

func newPoller() (poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epoll{
		fd:     fd,
		conns:  make(map[int]*Connection),
		events: make([]unix.EpollEvent, 128),
	}, nil
}

func (e *epoll) Add(c *Connection) error {
	fd := socketFD(c.Conn)
	if fd < 0 {
		return fmt.Errorf("ws: connection %s has no file descriptor", c.ID)
	}
	c.Fd = fd

	e.mu.Lock()
	e.conns[fd] = c
	e.mu.Unlock()

	if err := unix.EpollCtl(e.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: armEvents, Fd: int32(fd)}); err != nil {
		e.mu.Lock()
		delete(e.conns, fd)
		e.mu.Unlock()
		return err
	}
	return nil
}

func (e *epoll) Remove(c *Connection) error {
	e.mu.Lock()
	if cur, ok := e.conns[c.Fd]; ok && cur == c {
		delete(e.conns, c.Fd)
	}
	e.mu.Unlock()

	if err := unix.EpollCtl(e.fd, unix.EPOLL_CTL_DEL, c.Fd, nil); err != nil && !errors.Is(err, unix.ENOENT) && !errors.Is(err, unix.EBADF) {
		return err
	}
	return nil
}

// Done re-arms the fd after a frame was handled.
func (e *epoll) Done(c *Connection) {
	e.mu.RLock()
	cur, ok := e.conns[c.Fd]
	e.mu.RUnlock()
	if !ok || cur != c {
		return
	}
	_ = unix.EpollCtl(e.fd, unix.EPOLL_CTL_MOD, c.Fd, &unix.EpollEvent{Events: armEvents, Fd: int32(c.Fd)})
}

// Wait blocks until registered connections are ready for reading or the wait
// times out, in which case it returns an empty slice. Connections removed
// between EpollWait returning and the lookup are skipped.
func (e *epoll) Wait() ([]*Connection, error) {
	n, err := unix.EpollWait(e.fd, e.events, waitTimeoutMs)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	ready := make([]*Connection, 0, n)
	for i := 0; i < n; i++ {
		if c, ok := e.conns[int(e.events[i].Fd)]; ok {
			ready = append(ready, c)
		}
	}
	e.mu.RUnlock()
	return ready, nil
}

func (e *epoll) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conns = nil
	return unix.Close(e.fd)
}

func isEINTR(err error) bool {
	return errors.Is(err, unix.EINTR)
}

// socketFD extracts the file descriptor from a net.Conn using the
// SyscallConn interface. This avoids duplicating the file descriptor
// (which File() does), keeping the original fd valid for epoll registration.
func socketFD(conn net.Conn) int {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return -1
	}

	raw, err := sc.SyscallConn()
	if err != nil {
		return -1
	}

	fd := -1
	_ = raw.Control(func(sfd uintptr) {
		fd = int(sfd)
	})
	return fd
}
