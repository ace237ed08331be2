package canbus

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

// socketCANBus drives a kernel SocketCAN interface (or a remote CAN stream
// when dialed over tcp/udp). A single background goroutine owns the blocking
// receive so Receive can offer timeouts without poisoning the decoder.
type socketCANBus struct {
	conn net.Conn
	tx   *socketcan.Transmitter
	rx   *socketcan.Receiver

	frames chan can.Frame
	logger zerolog.Logger

	sendTimeout time.Duration

	closeOnce sync.Once
	closeErr  error

	mu      sync.Mutex
	readErr error
}

// DialOption adjusts a Dial'ed bus.
type DialOption func(*socketCANBus)

// WithLogger attaches a logger; dropped and malformed frames are reported
// at debug level.
func WithLogger(logger zerolog.Logger) DialOption {
	return func(b *socketCANBus) {
		b.logger = logger
	}
}

// WithSendTimeout bounds how long Send may block on a congested interface.
func WithSendTimeout(timeout time.Duration) DialOption {
	return func(b *socketCANBus) {
		b.sendTimeout = timeout
	}
}

// Dial connects to a CAN interface. network is "can" for SocketCAN and
// address the interface name (e.g. "can0"); tcp/udp bridges to a remote
// CAN stream work the same way.
func Dial(ctx context.Context, network, address string, opts ...DialOption) (Bus, error) {
	conn, err := socketcan.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("canbus: dial %s %s: %w", network, address, err)
	}
	b := &socketCANBus{
		conn:        conn,
		tx:          socketcan.NewTransmitter(conn),
		rx:          socketcan.NewReceiver(conn),
		frames:      make(chan can.Frame, portBuffer),
		logger:      zerolog.Nop(),
		sendTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.readLoop()
	return b, nil
}

func (b *socketCANBus) readLoop() {
	for b.rx.Receive() {
		frame := b.rx.Frame()
		select {
		case b.frames <- frame:
		default:
			b.logger.Debug().Uint32("id", frame.ID).Msg("receive buffer full, frame dropped")
		}
	}
	b.mu.Lock()
	if err := b.rx.Err(); err != nil {
		b.readErr = err
	} else {
		b.readErr = ErrClosed
	}
	b.mu.Unlock()
	close(b.frames)
}

// Send transmits the frame, blocking at most the configured send timeout.
func (b *socketCANBus) Send(frame can.Frame) error {
	ctx := context.Background()
	if b.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.sendTimeout)
		defer cancel()
	}
	if err := b.tx.TransmitFrame(ctx, frame); err != nil {
		return fmt.Errorf("canbus: send 0x%X: %w", frame.ID, err)
	}
	return nil
}

// Receive returns the next buffered frame, waiting up to timeout.
func (b *socketCANBus) Receive(timeout time.Duration) (can.Frame, bool, error) {
	if timeout <= 0 {
		select {
		case f, ok := <-b.frames:
			if !ok {
				return can.Frame{}, false, b.receiveErr()
			}
			return f, true, nil
		default:
			return can.Frame{}, false, nil
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f, ok := <-b.frames:
		if !ok {
			return can.Frame{}, false, b.receiveErr()
		}
		return f, true, nil
	case <-timer.C:
		return can.Frame{}, false, nil
	}
}

func (b *socketCANBus) receiveErr() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.readErr != nil {
		return b.readErr
	}
	return ErrClosed
}

// Close shuts the connection down; the read loop exits once the kernel
// returns from the pending read.
func (b *socketCANBus) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = b.conn.Close()
	})
	return b.closeErr
}
