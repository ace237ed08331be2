// Package drive implements typed parameter access against a single node:
// SDO-style read, fire-and-forget write, read-after-write validation, plus
// the passive node census and the fixed-format status queries built on top.
package drive

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/JesseDarr/odrive-can-tools/canbus"
	"github.com/JesseDarr/odrive-can-tools/protocol"
	"github.com/JesseDarr/odrive-can-tools/registry"
)

// ErrNoResponse marks a node that did not answer inside the response window.
var ErrNoResponse = errors.New("drive: no response from node")

// Client talks to nodes through a shared bus. It assumes a single goroutine
// owns each Send+Receive sequence; issue requests to different nodes in
// sequence, not concurrently.
type Client struct {
	bus             canbus.Bus
	reg             *registry.Registry
	responseTimeout time.Duration
	tolerance       float64
	logger          zerolog.Logger
}

// Option adjusts a Client.
type Option func(*Client)

// WithResponseTimeout bounds the wait for an SDO response.
func WithResponseTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.responseTimeout = timeout
		}
	}
}

// WithTolerance sets the absolute tolerance for float comparisons.
func WithTolerance(tolerance float64) Option {
	return func(c *Client) {
		if tolerance > 0 {
			c.tolerance = tolerance
		}
	}
}

// WithLogger provides a custom logger instance.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a parameter access client over the given bus and
// endpoint registry.
func NewClient(bus canbus.Bus, reg *registry.Registry, opts ...Option) *Client {
	c := &Client{
		bus:             bus,
		reg:             reg,
		responseTimeout: 50 * time.Millisecond,
		tolerance:       1e-2,
		logger:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Bus exposes the underlying transport for fixed-format commands.
func (c *Client) Bus() canbus.Bus {
	return c.bus
}

// Registry exposes the endpoint registry the client resolves paths against.
func (c *Client) Registry() *registry.Registry {
	return c.reg
}

// Tolerance returns the default float comparison tolerance.
func (c *Client) Tolerance() float64 {
	return c.tolerance
}

// Read requests an endpoint value and waits for the correlated response.
// The boolean is false on timeout or a malformed response; both are
// recoverable misses the caller must handle, not zero values.
func (c *Client) Read(node protocol.NodeID, ep registry.Endpoint) (interface{}, bool) {
	if err := c.bus.Send(protocol.ReadRequest(node, ep.ID)); err != nil {
		c.logger.Error().Err(err).Uint8("node", uint8(node)).Str("path", ep.Path).Msg("read request send failed")
		return nil, false
	}
	want := protocol.FrameID(node, protocol.CmdTxSDO)
	deadline := time.Now().Add(c.responseTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}
		f, ok, err := c.bus.Receive(remaining)
		if err != nil {
			c.logger.Error().Err(err).Uint8("node", uint8(node)).Msg("receive failed")
			return nil, false
		}
		if !ok {
			return nil, false
		}
		if f.ID != want {
			// Traffic for other nodes or commands; keep waiting.
			continue
		}
		endpoint, value, err := protocol.ParseResponse(f, ep.Type)
		if err != nil {
			if endpoint != 0 && endpoint != ep.ID {
				continue
			}
			c.logger.Debug().Err(err).Uint8("node", uint8(node)).Str("path", ep.Path).Msg("malformed response")
			return nil, false
		}
		if endpoint != ep.ID {
			// A stale response for a different endpoint on the same node.
			continue
		}
		return value, true
	}
}

// ReadPath resolves a dotted path and reads it.
func (c *Client) ReadPath(node protocol.NodeID, path string) (interface{}, bool, error) {
	ep, err := c.reg.Lookup(path)
	if err != nil {
		return nil, false, err
	}
	value, ok := c.Read(node, ep)
	return value, ok, nil
}

// Write sends a value to an endpoint. The protocol has no write
// acknowledgement; callers needing certainty follow with a read.
func (c *Client) Write(node protocol.NodeID, ep registry.Endpoint, value interface{}) error {
	f, err := protocol.WriteRequest(node, ep.ID, ep.Type, value)
	if err != nil {
		return err
	}
	return c.bus.Send(f)
}

// WritePath resolves a dotted path and writes it.
func (c *Client) WritePath(node protocol.NodeID, path string, value interface{}) error {
	ep, err := c.reg.Lookup(path)
	if err != nil {
		return err
	}
	return c.Write(node, ep, value)
}

// Validate reads the endpoint back and compares against expected. Floats
// compare within tolerance, other types exactly. A read miss fails the
// validation.
func (c *Client) Validate(node protocol.NodeID, ep registry.Endpoint, expected interface{}, tolerance float64) bool {
	actual, ok := c.Read(node, ep)
	if !ok {
		return false
	}
	return protocol.Equal(ep.Type, expected, actual, tolerance)
}

// Save triggers the node's save_configuration endpoint so written values
// survive a power cycle. Fire and forget, like the device protocol.
func (c *Client) Save(node protocol.NodeID) error {
	ep, err := c.reg.Lookup(registry.SavePath)
	if err != nil {
		return err
	}
	if err := c.bus.Send(protocol.SaveRequest(node, ep.ID)); err != nil {
		return err
	}
	c.logger.Info().Uint8("node", uint8(node)).Msg("configuration saved")
	return nil
}
