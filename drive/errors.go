package drive

import (
	"github.com/JesseDarr/odrive-can-tools/protocol"
)

// Endpoint paths holding the node's fault words.
const (
	PathActiveErrors = "axis0.active_errors"
	PathDisarmReason = "axis0.disarm_reason"
)

// ErrorReport is one fault word read from a node. Present is false when the
// node did not answer; Cleared is true when a non-zero word was zeroed.
type ErrorReport struct {
	Path    string
	Value   interface{}
	Present bool
	Cleared bool
}

// ErrorStatus reads the node's fault words. With clear set, a non-zero
// active_errors word is written back to zero; disarm_reason is read-only on
// the device and is only reported.
func (c *Client) ErrorStatus(node protocol.NodeID, clear bool) []ErrorReport {
	reports := make([]ErrorReport, 0, 2)
	for _, path := range []string{PathActiveErrors, PathDisarmReason} {
		ep, err := c.reg.Lookup(path)
		if err != nil {
			c.logger.Warn().Str("path", path).Msg("error endpoint missing from registry")
			continue
		}
		report := ErrorReport{Path: path}
		value, ok := c.Read(node, ep)
		if !ok {
			c.logger.Error().Uint8("node", uint8(node)).Str("path", path).Msg("no response reading error word")
			reports = append(reports, report)
			continue
		}
		report.Present = true
		report.Value = value
		if clear && path == PathActiveErrors && !isZero(value) {
			if err := c.Write(node, ep, 0); err != nil {
				c.logger.Error().Err(err).Uint8("node", uint8(node)).Msg("clearing active errors failed")
			} else {
				report.Cleared = true
				c.logger.Info().Uint8("node", uint8(node)).Msg("active errors cleared")
			}
		}
		reports = append(reports, report)
	}
	return reports
}

func isZero(value interface{}) bool {
	f, ok := protocol.Float(value)
	return ok && f == 0
}
