package canbus

import (
	"sync"
	"time"

	"go.einride.tech/can"
)

// portBuffer bounds how many undelivered frames a loopback port holds before
// newer frames are dropped, mirroring a receiver that cannot keep up.
const portBuffer = 256

// Loopback is an in-memory CAN bus. Every port opened from it sees the
// frames every other port sends, which is enough to stand in for a physical
// bus in tests and simulations.
type Loopback struct {
	mu     sync.RWMutex
	closed bool
	ports  map[*Port]struct{}
}

// NewLoopback creates an empty loopback bus.
func NewLoopback() *Loopback {
	return &Loopback{ports: make(map[*Port]struct{})}
}

// Open attaches a new port to the bus.
func (l *Loopback) Open() *Port {
	p := &Port{
		hub:    l,
		frames: make(chan can.Frame, portBuffer),
		closed: make(chan struct{}),
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		// Born dead so a later Close does not close the channel again.
		p.dead = true
		close(p.closed)
		return p
	}
	l.ports[p] = struct{}{}
	l.mu.Unlock()
	return p
}

// Close detaches every port.
func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	for p := range l.ports {
		p.closeLocked()
	}
	l.ports = nil
	return nil
}

// Port is one endpoint on a Loopback bus. It implements Bus.
type Port struct {
	hub    *Loopback
	frames chan can.Frame

	mu     sync.Mutex
	dead   bool
	closed chan struct{}
}

// Send broadcasts the frame to every other port on the bus.
func (p *Port) Send(frame can.Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	dead := p.dead
	p.mu.Unlock()
	if dead {
		return ErrClosed
	}

	p.hub.mu.RLock()
	if p.hub.closed {
		p.hub.mu.RUnlock()
		return ErrClosed
	}
	targets := make([]*Port, 0, len(p.hub.ports))
	for t := range p.hub.ports {
		if t != p {
			targets = append(targets, t)
		}
	}
	p.hub.mu.RUnlock()

	for _, t := range targets {
		select {
		case t.frames <- frame:
		case <-t.closed:
		default:
			// Receiver buffer full; the frame is lost like on a real bus.
		}
	}
	return nil
}

// Receive waits up to timeout for the next frame.
func (p *Port) Receive(timeout time.Duration) (can.Frame, bool, error) {
	if timeout <= 0 {
		select {
		case f := <-p.frames:
			return f, true, nil
		case <-p.closed:
			return can.Frame{}, false, ErrClosed
		default:
			return can.Frame{}, false, nil
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-p.frames:
		return f, true, nil
	case <-p.closed:
		return can.Frame{}, false, ErrClosed
	case <-timer.C:
		return can.Frame{}, false, nil
	}
}

// Close detaches the port from the bus.
func (p *Port) Close() error {
	p.hub.mu.Lock()
	p.closeLocked()
	p.hub.mu.Unlock()
	return nil
}

// closeLocked requires the hub lock to be held.
func (p *Port) closeLocked() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dead {
		return
	}
	p.dead = true
	close(p.closed)
	if p.hub.ports != nil {
		delete(p.hub.ports, p)
	}
}
