package core

// TriggerSync consumes the edge events the interrupt handler posted
// and advances the per-node group rotation. The latency-critical work
// (mirroring the line) already happened in the handler; everything
// here may take its time in the main loop.
type TriggerSync struct {
	node         *Node
	currentGroup int
	calibrating  bool
}

func newTriggerSync(n *Node) *TriggerSync {
	return &TriggerSync{node: n, currentGroup: 1}
}

// CurrentGroup returns the group the next pulse belongs to.
func (t *TriggerSync) CurrentGroup() int { return t.currentGroup }

// Calibrating reports whether the node is inside the Frame 0 pass.
func (t *TriggerSync) Calibrating() bool { return t.calibrating }

// ResetRotation re-aligns the rotation to group 1. Called when the
// master announces the calibration pass and again when it ends, so
// every node enters user frames in lockstep.
func (t *TriggerSync) ResetRotation(calibrating bool) {
	t.currentGroup = 1
	t.calibrating = calibrating
}

// Service drains the edge ring.
func (t *TriggerSync) Service() {
	for {
		e, ok := t.node.edges.Pop()
		if !ok {
			return
		}
		if e.Low {
			t.pulseStart(e.At)
		} else {
			t.pulseEnd()
		}
	}
}

// pulseStart arms regulation if this node's group is the active one.
// The seed value is applied immediately and a blind timer runs until
// sensor feedback confirms control.
func (t *TriggerSync) pulseStart(at uint32) {
	n := t.node
	if n.role == RoleMaster {
		// The master originates pulses; its own falling edge is the
		// ring echo, not a command.
		return
	}
	if n.safety.Latched() {
		return
	}
	if !n.program.Active() || t.currentGroup != n.program.GroupID {
		return
	}
	seed := uint16(DACCalibrationStart)
	if !t.calibrating {
		seed = n.reg.Seed()
	}
	n.reg.Arm(seed, float32(n.program.CurrentMA), t.calibrating)
	n.safety.BeginBlind(at)
}

// pulseEnd captures the calibration result, disarms regulation, and
// rotates the active group.
func (t *TriggerSync) pulseEnd() {
	n := t.node
	if n.role == RoleMaster {
		return
	}
	if n.reg.Active() {
		n.reg.CaptureAndDisarm()
		n.safety.EndBlind()
	}
	t.advance()
}

// advance rotates currentGroup, wrapping back to 1 past groupTotal.
func (t *TriggerSync) advance() {
	total := t.node.program.GroupTotal
	if total < 1 {
		total = 1
	}
	t.currentGroup++
	if t.currentGroup > total {
		t.currentGroup = 1
	}
}
