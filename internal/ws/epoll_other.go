//go:build !linux

package ws

import (
	"bufio"
	"net"
	"sync"
)

// fallbackPoller provides goroutine-per-connection readiness on platforms
// without epoll. Each connection gets a buffered reader; a monitor goroutine
// peeks one byte (without consuming it) to detect readiness and then waits
// until the server reports the frame handled before peeking again.
type fallbackPoller struct {
	mu      sync.Mutex
	conns   map[*Connection]struct{}
	readyCh chan *Connection
	done    chan struct{}
	once    sync.Once
}

func newPoller() (poller, error) {
	return &fallbackPoller{
		conns:   make(map[*Connection]struct{}),
		readyCh: make(chan *Connection, 128),
		done:    make(chan struct{}),
	}, nil
}

func (p *fallbackPoller) Add(c *Connection) error {
	br := bufio.NewReader(c.Conn)
	c.reader = br

	p.mu.Lock()
	p.conns[c] = struct{}{}
	p.mu.Unlock()

	go p.monitor(c, br)
	return nil
}

func (p *fallbackPoller) monitor(c *Connection, br *bufio.Reader) {
	for {
		// Errors are reported as readiness too so that the read path sees
		// the closure and evicts the connection.
		_, err := br.Peek(1)

		select {
		case p.readyCh <- c:
		case <-p.done:
			return
		case <-c.done:
			return
		}
		if err != nil {
			return
		}

		select {
		case <-c.handled:
		case <-p.done:
			return
		case <-c.done:
			return
		}
	}
}

func (p *fallbackPoller) Remove(c *Connection) error {
	p.mu.Lock()
	delete(p.conns, c)
	p.mu.Unlock()
	return nil
}

func (p *fallbackPoller) Done(c *Connection) {
	select {
	case c.handled <- struct{}{}:
	default:
	}
}

// Wait blocks until at least one connection is ready and drains any others
// that are already queued.
func (p *fallbackPoller) Wait() ([]*Connection, error) {
	var first *Connection
	select {
	case first = <-p.readyCh:
	case <-p.done:
		return nil, net.ErrClosed
	}

	ready := []*Connection{first}
	for {
		select {
		case c := <-p.readyCh:
			ready = append(ready, c)
		default:
			return ready, nil
		}
	}
}

func (p *fallbackPoller) Close() error {
	p.once.Do(func() { close(p.done) })
	p.mu.Lock()
	p.conns = nil
	p.mu.Unlock()
	return nil
}

func isEINTR(error) bool { return false }
