// Package axis drives state transitions and motion on individual axes, and
// composes axes into the actuator arrangements a joint actually uses.
package axis

import "fmt"

// State is a requested or reported axis state code.
type State uint32

const (
	StateUndefined                State = 0
	StateIdle                     State = 1
	StateStartupSequence          State = 2
	StateFullCalibrationSequence  State = 3
	StateMotorCalibration         State = 4
	StateEncoderIndexSearch       State = 6
	StateEncoderOffsetCalibration State = 7
	StateClosedLoopControl        State = 8
)

// String renders the firmware's name for the state, or the raw code for
// ones this package does not know.
func (s State) String() string {
	switch s {
	case StateUndefined:
		return "UNDEFINED"
	case StateIdle:
		return "IDLE"
	case StateStartupSequence:
		return "STARTUP_SEQUENCE"
	case StateFullCalibrationSequence:
		return "FULL_CALIBRATION"
	case StateMotorCalibration:
		return "MOTOR_CALIBRATION"
	case StateEncoderIndexSearch:
		return "ENCODER_INDEX_SEARCH"
	case StateEncoderOffsetCalibration:
		return "ENCODER_OFFSET_CALIBRATION"
	case StateClosedLoopControl:
		return "CLOSED_LOOP_CONTROL"
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint32(s))
}

// Calibrating reports whether the state is one of the calibration
// procedures.
func (s State) Calibrating() bool {
	switch s {
	case StateFullCalibrationSequence, StateMotorCalibration,
		StateEncoderIndexSearch, StateEncoderOffsetCalibration:
		return true
	}
	return false
}
