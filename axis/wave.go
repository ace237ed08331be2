package axis

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/JesseDarr/odrive-can-tools/canbus"
	"github.com/JesseDarr/odrive-can-tools/protocol"
)

// MaxWaveAmplitude bounds the oscillation so an unloaded arm cannot slam
// into its stops.
const MaxWaveAmplitude = 3.0

// WaveOptions tunes the oscillation exercise.
type WaveOptions struct {
	Amplitude float64
	Period    time.Duration
	// Settle is how long the joints get to return to zero before dropping
	// to idle on exit.
	Settle time.Duration
	Logger zerolog.Logger
}

// Wave puts every actuator into closed loop control and oscillates them
// between +amplitude and -amplitude until the context is cancelled. On exit
// all joints return to zero, settle, and drop to idle. Cancellation is the
// normal way to stop; it is not reported as an error.
func Wave(ctx context.Context, bus canbus.Bus, actuators []Actuator, opts WaveOptions) error {
	if opts.Amplitude < 0 || opts.Amplitude > MaxWaveAmplitude {
		return fmt.Errorf("axis: wave amplitude %.2f out of range (0 to %.0f turns)", opts.Amplitude, MaxWaveAmplitude)
	}
	if opts.Period <= 0 {
		opts.Period = time.Second
	}
	if opts.Settle <= 0 {
		opts.Settle = 2 * time.Second
	}

	nodes := collectNodes(actuators)
	for _, node := range nodes {
		if err := RequestState(bus, node, StateClosedLoopControl); err != nil {
			return err
		}
	}
	opts.Logger.Info().
		Int("actuators", len(actuators)).
		Float64("amplitude", opts.Amplitude).
		Msg("wave started")

	defer func() {
		for _, a := range actuators {
			if err := a.Apply(bus, 0); err != nil {
				opts.Logger.Error().Err(err).Msg("resetting position failed")
			}
		}
		time.Sleep(opts.Settle)
		for _, node := range nodes {
			if err := RequestState(bus, node, StateIdle); err != nil {
				opts.Logger.Error().Err(err).Uint8("node", uint8(node)).Msg("idling node failed")
			}
		}
		opts.Logger.Info().Msg("wave stopped")
	}()

	sign := 1.0
	for {
		for _, a := range actuators {
			if err := a.Apply(bus, sign*opts.Amplitude); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(opts.Period / 2):
		}
		sign = -sign
	}
}

func collectNodes(actuators []Actuator) []protocol.NodeID {
	seen := make(map[protocol.NodeID]struct{})
	var nodes []protocol.NodeID
	for _, a := range actuators {
		for _, node := range a.Nodes() {
			if _, dup := seen[node]; dup {
				continue
			}
			seen[node] = struct{}{}
			nodes = append(nodes, node)
		}
	}
	return nodes
}
