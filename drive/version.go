package drive

import (
	"fmt"
	"time"

	"github.com/JesseDarr/odrive-can-tools/protocol"
)

// QueryVersion asks the node for its Get_Version report. The response
// carries the same arbitration id as the query but with an 8-byte payload,
// which is how the two directions are told apart.
func (c *Client) QueryVersion(node protocol.NodeID) (protocol.Version, error) {
	if err := c.bus.Send(protocol.VersionRequest(node)); err != nil {
		return protocol.Version{}, err
	}
	want := protocol.FrameID(node, protocol.CmdGetVersion)
	deadline := time.Now().Add(c.responseTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return protocol.Version{}, fmt.Errorf("querying version of node %d: %w", node, ErrNoResponse)
		}
		f, ok, err := c.bus.Receive(remaining)
		if err != nil {
			return protocol.Version{}, err
		}
		if !ok {
			return protocol.Version{}, fmt.Errorf("querying version of node %d: %w", node, ErrNoResponse)
		}
		if f.ID != want || f.Length < 8 {
			continue
		}
		return protocol.ParseVersion(f)
	}
}

// CheckVersion verifies the node reports the expected firmware and hardware
// versions in dotted major.minor.revision form. Empty strings skip that
// half of the check.
func (c *Client) CheckVersion(node protocol.NodeID, firmware, hardware string) error {
	v, err := c.QueryVersion(node)
	if err != nil {
		return err
	}
	if firmware != "" && v.Firmware() != firmware {
		return fmt.Errorf("node %d firmware %s does not match required %s", node, v.Firmware(), firmware)
	}
	if hardware != "" && v.Hardware() != hardware {
		return fmt.Errorf("node %d hardware %s does not match required %s", node, v.Hardware(), hardware)
	}
	c.logger.Info().
		Uint8("node", uint8(node)).
		Str("firmware", v.Firmware()).
		Str("hardware", v.Hardware()).
		Msg("version check passed")
	return nil
}
