package core

// FaultReason is the shutdown taxonomy; the wire token doubles as the
// reason string.
type FaultReason string

const (
	ReasonNone         FaultReason = ""
	ReasonOvercurrent  FaultReason = CmdOvercurrent
	ReasonSensorFail   FaultReason = CmdSensorFail
	ReasonBlindTimeout FaultReason = CmdBlindTimeout
	ReasonUserStop     FaultReason = CmdDac
)

// Safety tunables. The overcurrent ceiling sits above the programming
// limit so regulation ripple does not trip it.
const (
	OvercurrentCeilingMA = 1550.0
	OvercurrentLimit     = 3
	SensorMissLimit      = 3
	BlindBoundMS         = 5
)

// SafetyMonitor watches every sensor sample the regulator takes and
// owns the sticky emergency latch. While latched, nothing re-arms and
// the scheduler refuses to advance; only a fresh run command clears it.
type SafetyMonitor struct {
	node *Node

	overStreak int
	missStreak int
	hold       bool
	warned     bool

	latched  bool
	reason   FaultReason
	failedID int

	blindArmed bool
	blindSince uint32

	sensorOK bool
}

func newSafetyMonitor(n *Node) *SafetyMonitor {
	return &SafetyMonitor{node: n, sensorOK: true}
}

// Latched reports whether the emergency latch is set.
func (s *SafetyMonitor) Latched() bool { return s.latched }

// Reason returns why the latch was set, and the reporting device.
func (s *SafetyMonitor) Reason() (FaultReason, int) { return s.reason, s.failedID }

// SensorOK reports whether the local sensor is considered usable.
func (s *SafetyMonitor) SensorOK() bool { return s.sensorOK }

// HoldingIncrease reports whether output increases are being blocked.
func (s *SafetyMonitor) HoldingIncrease() bool { return s.hold }

// ClearForRun resets everything the fresh-run command is allowed to
// reset: the latch, the streaks, the blind timer.
func (s *SafetyMonitor) ClearForRun() {
	s.latched = false
	s.reason = ReasonNone
	s.failedID = 0
	s.overStreak = 0
	s.missStreak = 0
	s.hold = false
	s.warned = false
	s.blindArmed = false
}

// NoteSample screens one fresh current sample. Returns whether the
// regulator must hold (no output increases). The first over-ceiling
// sample of a streak warns and holds; the Nth consecutive one latches.
// A non-consecutive spike resets the streak.
func (s *SafetyMonitor) NoteSample(ma float32) bool {
	s.missStreak = 0
	if ma > OvercurrentCeilingMA {
		s.overStreak++
		s.hold = true
		if !s.warned {
			s.warned = true
			DebugPrintln("safety: overcurrent sample " + itoa(int(ma)) + "mA, holding output")
		}
		if s.overStreak >= OvercurrentLimit {
			s.Fault(ReasonOvercurrent)
		}
		return true
	}
	s.overStreak = 0
	s.hold = false
	s.warned = false
	return false
}

// NoteMiss counts a sensor-not-ready tick while armed. A full streak
// means feedback starvation: the sensor is unusable, shut down.
func (s *SafetyMonitor) NoteMiss() {
	s.missStreak++
	if s.missStreak >= SensorMissLimit {
		s.sensorOK = false
		s.Fault(ReasonSensorFail)
	}
}

// SensorFault handles a garbage reading: immediate shutdown, sensor
// marked unusable.
func (s *SafetyMonitor) SensorFault() {
	s.sensorOK = false
	s.Fault(ReasonSensorFail)
}

// BeginBlind starts the watchdog for output applied before any sensor
// feedback arrived.
func (s *SafetyMonitor) BeginBlind(at uint32) {
	s.blindArmed = true
	s.blindSince = at
}

// EndBlind stops the watchdog; feedback has confirmed control.
func (s *SafetyMonitor) EndBlind() {
	s.blindArmed = false
}

// Tick runs the blind-time watchdog.
func (s *SafetyMonitor) Tick(now uint32) {
	if s.blindArmed && now-s.blindSince > BlindBoundMS {
		s.Fault(ReasonBlindTimeout)
	}
}

// UserStop is the operator-initiated emergency shutdown.
func (s *SafetyMonitor) UserStop() {
	s.Fault(ReasonUserStop)
}

// Fault is the local-detection shutdown path: latch, kill output, and
// tell the rest of the chain, once. A node already latched never
// re-broadcasts.
func (s *SafetyMonitor) Fault(reason FaultReason) {
	if s.latched {
		return
	}
	s.latch(reason, s.node.id)

	m := Message{Target: Broadcast, Command: string(reason), Value: itoa(s.node.id)}
	if reason == ReasonUserStop {
		m.Value = "0"
	}
	// Forward, not Send: fault tokens are fire-and-forget; the echo is
	// swallowed by the latch guard when it comes home.
	s.node.chain.Forward(m.String())
}

// latchRemote reacts to a shutdown-class token from elsewhere on the
// chain: shut down locally, no re-broadcast.
func (s *SafetyMonitor) latchRemote(reason FaultReason, failedID int) {
	if s.latched {
		return
	}
	s.latch(reason, failedID)
}

// latch is the one shutdown sequence: sticky flag, output zeroed
// through the regulator's single disable path, trigger line forced
// HIGH, scheduler stopped.
func (s *SafetyMonitor) latch(reason FaultReason, failedID int) {
	s.latched = true
	s.reason = reason
	s.failedID = failedID
	s.blindArmed = false

	n := s.node
	n.reg.Disarm()
	if n.drv.Trigger != nil {
		n.drv.Trigger.SetOut(true)
	}
	if n.sched != nil {
		n.sched.abort()
	}
	if n.role == RoleMaster {
		n.emit("ERR:SHUTDOWN:" + string(reason) + ":" + itoa(failedID))
	}
}

// ProbeSensor reinitializes and probes the local sensor, recording the
// result. This is both the pre-run self check and the recovery attempt.
func (s *SafetyMonitor) ProbeSensor() bool {
	d := s.node.drv.Sensor
	if d == nil {
		s.sensorOK = false
		return false
	}
	if err := d.Configure(); err != nil {
		s.sensorOK = false
		return false
	}
	if !d.Connected() {
		s.sensorOK = false
		return false
	}
	if _, err := d.CurrentMilliamps(); err != nil {
		s.sensorOK = false
		return false
	}
	s.sensorOK = true
	s.missStreak = 0
	return true
}

// handleHealthcheck runs on slaves: a failure already recorded in the
// payload short-circuits straight through; otherwise the node probes
// its own sensor and either passes the zero along or stamps its id in.
func handleHealthcheck(n *Node, m Message) (Action, Message, error) {
	if n.role == RoleMaster {
		return ActConsume, Message{}, nil
	}
	if m.Value != "0" {
		return ActForward, Message{}, nil
	}
	if n.safety.ProbeSensor() {
		return ActForward, Message{}, nil
	}
	return ActRewrite, Message{Target: Broadcast, Command: CmdHealthcheck, Value: itoa(n.id)}, nil
}

// handleShutdownToken reacts to overcurrent/ina_fail/blind_timeout
// broadcasts: local shutdown, forward for the rest of the ring. A node
// already latched consumes the token, which is what stops the loop.
func handleShutdownToken(n *Node, m Message) (Action, Message, error) {
	if n.safety.Latched() {
		return ActConsume, Message{}, nil
	}
	id, _ := atoi(m.Value)
	n.safety.latchRemote(FaultReason(m.Command), id)
	return ActForward, Message{}, nil
}

// handleDac implements the `dac,0` emergency broadcast.
func handleDac(n *Node, m Message) (Action, Message, error) {
	if m.Value != "0" {
		return ActConsume, Message{}, ErrRange
	}
	if n.safety.Latched() {
		return ActConsume, Message{}, nil
	}
	n.safety.latchRemote(ReasonUserStop, 0)
	return ActForward, Message{}, nil
}
