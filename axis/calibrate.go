package axis

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/JesseDarr/odrive-can-tools/drive"
	"github.com/JesseDarr/odrive-can-tools/protocol"
	"github.com/JesseDarr/odrive-can-tools/telemetry"
)

// StatePath is the endpoint reporting the axis state machine's position.
const StatePath = "axis0.current_state"

// CalibrateOptions tunes the calibration supervisor. Zero values fall back
// to the device's typical timing.
type CalibrateOptions struct {
	Interval  time.Duration
	Timeout   time.Duration
	Collector telemetry.Collector
	Logger    zerolog.Logger
}

func (o *CalibrateOptions) applyDefaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.Collector == nil {
		o.Collector = telemetry.Noop()
	}
}

// Calibrate requests the full calibration sequence and polls the axis state
// until it returns to idle. The procedure runs on the device; this side only
// watches. Read misses during the sequence are expected, the device goes
// quiet while measuring, so they never abort, only the deadline does.
func Calibrate(ctx context.Context, client *drive.Client, node protocol.NodeID, opts CalibrateOptions) error {
	opts.applyDefaults()

	stateEp, err := client.Registry().Lookup(StatePath)
	if err != nil {
		return err
	}
	if err := client.Bus().Send(protocol.SetAxisStateFrame(node, uint32(StateFullCalibrationSequence))); err != nil {
		return err
	}
	opts.Logger.Info().Uint8("node", uint8(node)).Msg("calibration started")

	deadline := time.Now().Add(opts.Timeout)
	lastSeen := StateUndefined
	for {
		if value, ok := client.Read(node, stateEp); ok {
			if f, ok := protocol.Float(value); ok {
				lastSeen = State(uint32(f))
			}
			if lastSeen == StateIdle {
				opts.Logger.Info().Uint8("node", uint8(node)).Msg("calibration finished")
				opts.Collector.ObserveCalibration(uint8(node), true)
				return nil
			}
			// A node reporting anything but a calibration state while we
			// wait usually means the request was rejected or pre-empted.
			evt := opts.Logger.Debug()
			if !lastSeen.Calibrating() {
				evt = opts.Logger.Warn()
			}
			evt.Uint8("node", uint8(node)).
				Str("state", lastSeen.String()).
				Msg("calibration in progress")
		}
		if time.Now().After(deadline) {
			opts.Collector.ObserveCalibration(uint8(node), false)
			return fmt.Errorf("node %d calibration did not finish within %s (last state %s)",
				node, opts.Timeout, lastSeen)
		}
		select {
		case <-ctx.Done():
			opts.Collector.ObserveCalibration(uint8(node), false)
			return ctx.Err()
		case <-time.After(opts.Interval):
		}
	}
}
