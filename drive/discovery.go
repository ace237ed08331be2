package drive

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/JesseDarr/odrive-can-tools/canbus"
	"github.com/JesseDarr/odrive-can-tools/protocol"
)

// Discover listens passively for the given window and reports every node id
// seen in the arbitration traffic, sorted ascending. Buffered frames are
// drained first so stale traffic from before the call does not count.
func Discover(bus canbus.Bus, window time.Duration, logger zerolog.Logger) ([]protocol.NodeID, error) {
	drained, err := canbus.Drain(bus)
	if err != nil {
		return nil, err
	}
	if drained > 0 {
		logger.Debug().Int("frames", drained).Msg("drained stale frames before discovery")
	}

	seen := make(map[protocol.NodeID]struct{})
	deadline := time.Now().Add(window)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		f, ok, err := bus.Receive(remaining)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		node, cmd := protocol.SplitFrameID(f.ID)
		if _, dup := seen[node]; !dup {
			logger.Debug().Uint8("node", uint8(node)).Str("command", cmd.String()).Msg("node seen")
		}
		seen[node] = struct{}{}
	}

	nodes := make([]protocol.NodeID, 0, len(seen))
	for node := range seen {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	logger.Info().Int("count", len(nodes)).Dur("window", window).Msg("discovery finished")
	return nodes, nil
}
