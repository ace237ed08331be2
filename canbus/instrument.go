package canbus

import (
	"time"

	"github.com/rs/zerolog"
	"go.einride.tech/can"

	"github.com/JesseDarr/odrive-can-tools/telemetry"
)

// Instrument wraps a bus with debug logging and frame counters. The CLI
// wraps the dialed bus once; tests wrap loopback ports when they need to
// count traffic.
func Instrument(bus Bus, logger zerolog.Logger, collector telemetry.Collector) Bus {
	if collector == nil {
		collector = telemetry.Noop()
	}
	return &instrumentedBus{inner: bus, logger: logger, collector: collector}
}

type instrumentedBus struct {
	inner     Bus
	logger    zerolog.Logger
	collector telemetry.Collector
}

func (b *instrumentedBus) Send(frame can.Frame) error {
	err := b.inner.Send(frame)
	if err != nil {
		b.logger.Error().Err(err).Uint32("id", frame.ID).Msg("can send failed")
		return err
	}
	b.collector.IncFrameSent()
	b.logger.Debug().
		Uint32("id", frame.ID).
		Uint8("len", frame.Length).
		Hex("data", frame.Data[:frame.Length]).
		Msg("can send")
	return nil
}

func (b *instrumentedBus) Receive(timeout time.Duration) (can.Frame, bool, error) {
	frame, ok, err := b.inner.Receive(timeout)
	if err != nil {
		b.logger.Error().Err(err).Msg("can receive failed")
		return frame, ok, err
	}
	if !ok {
		if timeout > 0 {
			b.collector.IncReceiveTimeout()
		}
		return frame, ok, nil
	}
	b.collector.IncFrameReceived()
	b.logger.Debug().
		Uint32("id", frame.ID).
		Uint8("len", frame.Length).
		Hex("data", frame.Data[:frame.Length]).
		Msg("can receive")
	return frame, ok, nil
}

func (b *instrumentedBus) Close() error {
	return b.inner.Close()
}
