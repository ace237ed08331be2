// Package monitor polls live readings from a set of nodes and publishes
// them as gauges.
package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/JesseDarr/odrive-can-tools/drive"
	"github.com/JesseDarr/odrive-can-tools/protocol"
	"github.com/JesseDarr/odrive-can-tools/telemetry"
)

// Sampler reads the metric table from each node on a fixed interval.
type Sampler struct {
	client    *drive.Client
	nodes     []protocol.NodeID
	interval  time.Duration
	collector telemetry.Collector
	logger    zerolog.Logger
}

// NewSampler creates a sampler. A nil collector falls back to the noop one;
// a non-positive interval falls back to one second.
func NewSampler(client *drive.Client, nodes []protocol.NodeID, interval time.Duration, collector telemetry.Collector, logger zerolog.Logger) *Sampler {
	if collector == nil {
		collector = telemetry.Noop()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Sampler{
		client:    client,
		nodes:     nodes,
		interval:  interval,
		collector: collector,
		logger:    logger,
	}
}

// Run samples until the context is cancelled. The first round happens
// immediately so gauges populate without waiting a full interval.
func (s *Sampler) Run(ctx context.Context) error {
	s.logger.Info().
		Int("nodes", len(s.nodes)).
		Dur("interval", s.interval).
		Msg("monitoring started")
	for {
		s.sampleAll()
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("monitoring stopped")
			return ctx.Err()
		case <-time.After(s.interval):
		}
	}
}

// SampleOnce runs a single round, for one-shot status output.
func (s *Sampler) SampleOnce() map[protocol.NodeID][]drive.Sample {
	out := make(map[protocol.NodeID][]drive.Sample, len(s.nodes))
	for _, node := range s.nodes {
		out[node] = s.sampleNode(node)
	}
	return out
}

func (s *Sampler) sampleAll() {
	for _, node := range s.nodes {
		s.sampleNode(node)
	}
}

func (s *Sampler) sampleNode(node protocol.NodeID) []drive.Sample {
	samples := s.client.SampleMetrics(node)
	for _, sample := range samples {
		if !sample.OK {
			s.collector.IncMetricMiss(uint8(node), sample.Name)
			continue
		}
		value, ok := protocol.Float(sample.Value)
		if !ok {
			s.collector.IncMetricMiss(uint8(node), sample.Name)
			continue
		}
		s.collector.SetNodeMetric(uint8(node), sample.Name, value)
	}
	return samples
}
