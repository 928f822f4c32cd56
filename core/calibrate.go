package core

// Frame 0 is a single best-effort pass through all groups that finds a
// usable regulator starting value per node. The master announces it
// with `calibration,start`, which also serves as the chain-wide run
// reset, and closes it with `calibration,end`, which re-aligns every
// node's rotation before user frames.

const (
	// DACCalibrationStart seeds the very first pulse and is the steady
	// state output floor afterwards.
	DACCalibrationStart = 400

	// CalibrationPulseMS is the fixed per-group window of Frame 0.
	// Short: the proportional deficit steps do the heavy lifting.
	CalibrationPulseMS = 100
)

func handleCalibration(n *Node, m Message) (Action, Message, error) {
	switch m.Value {
	case "start":
		if n.role == RoleSlave {
			// The fresh-run reset: clear the latch, discard stale
			// calibration, restart the rotation in calibration mode.
			n.safety.ClearForRun()
			n.reg.ResetCalibration()
			n.trig.ResetRotation(true)
		}
	case "end":
		if n.role == RoleSlave {
			n.trig.ResetRotation(false)
		}
	default:
		return ActConsume, Message{}, ErrBadPayload
	}
	return ActForward, Message{}, nil
}
