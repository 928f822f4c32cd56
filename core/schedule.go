package core

// runStage tracks where the master is in the run pipeline. The chain
// round trips (healthcheck, calibration markers) are asynchronous, so
// the pipeline advances from request completions, not inline.
type runStage uint8

const (
	stageIdle runStage = iota
	stageHealthcheck
	stageCalStart
	stagePulses
	stageCalEnd
)

// Scheduler is the master-only timing state machine. It alternates
// Pulse (TRIGGER_OUT low for the active group's window) and
// InterframeGap (high for the configured delay), iterating through the
// calibration pass and then the user frames.
type Scheduler struct {
	node *Node

	stage      runStage
	active     bool
	groupTotal int
	group      int
	frameIdx   int // 0 = calibration pass
	inPulse    bool
	runOK      bool

	timer Timer
}

func newScheduler(n *Node) *Scheduler {
	s := &Scheduler{node: n}
	s.timer.Handler = s.onTimer
	return s
}

// Active reports whether a run is in progress (pipeline or pulses).
func (s *Scheduler) Active() bool { return s.active || s.stage != stageIdle }

// RunOK reports whether the last run's final trigger round trip
// confirmed chain integrity.
func (s *Scheduler) RunOK() bool { return s.runOK }

// StartRun is the explicit fresh-run command: clears the latch,
// validates the programmed groups, healthchecks the chain, then kicks
// off Frame 0. Any refusal happens before a single pulse.
func (s *Scheduler) StartRun() {
	n := s.node
	if s.Active() || n.chain.HasPending() {
		n.reportErr("BUSY")
		return
	}

	groupTotal, code := s.validatePrograms()
	if code != "" {
		n.reportErr(code)
		return
	}

	// The fresh run clears the sticky latch, on the master here and on
	// the slaves via the calibration,start broadcast.
	n.safety.ClearForRun()
	n.reg.ResetCalibration()
	for _, e := range n.devices {
		e.Calibrated = false
	}

	if !n.safety.ProbeSensor() {
		n.reportErr("HEALTHCHECK:" + itoa(MasterID))
		return
	}

	s.groupTotal = groupTotal
	s.runOK = false
	s.stage = stageHealthcheck
	if !n.originate(Message{Target: Broadcast, Command: CmdHealthcheck, Value: "0"}, false) {
		s.stage = stageIdle
	}
}

// validatePrograms enforces the run-start consistency rules: at least
// one programmed device, one agreed groupTotal, and identical
// current/exposure within each group.
func (s *Scheduler) validatePrograms() (int, string) {
	n := s.node
	groupTotal := 0
	programmed := 0
	for _, e := range n.devices {
		p := e.Program
		if !p.Active() {
			continue
		}
		programmed++
		if groupTotal == 0 {
			groupTotal = p.GroupTotal
		} else if groupTotal != p.GroupTotal {
			return 0, "GROUP_TOTAL_MISMATCH"
		}
	}
	if programmed == 0 {
		return 0, "NOT_PROGRAMMED"
	}
	for g := 1; g <= groupTotal; g++ {
		currentMA, exposureMS := -1, -1
		for _, e := range n.devices {
			p := e.Program
			if p.GroupID != g {
				continue
			}
			if currentMA == -1 {
				currentMA, exposureMS = p.CurrentMA, p.ExposureMS
				continue
			}
			if p.CurrentMA != currentMA {
				return 0, "GROUP_MISMATCH_CURRENT"
			}
			if p.ExposureMS != exposureMS {
				return 0, "GROUP_MISMATCH_EXPOSURE"
			}
		}
	}
	return groupTotal, ""
}

// requestDone advances the pipeline when one of the master's chain
// requests completes its round trip.
func (s *Scheduler) requestDone(m Message) {
	switch s.stage {
	case stageHealthcheck:
		if m.Command != CmdHealthcheck {
			return
		}
		if m.Value != "0" {
			id, _ := atoi(m.Value)
			s.stage = stageIdle
			s.node.reportErr("HEALTHCHECK:" + itoa(id))
			return
		}
		s.stage = stageCalStart
		if !s.node.originate(Message{Target: Broadcast, Command: CmdCalibration, Value: "start"}, false) {
			s.stage = stageIdle
		}
	case stageCalStart:
		if m.Command != CmdCalibration {
			return
		}
		s.beginPulses()
	case stageCalEnd:
		if m.Command != CmdCalibration {
			return
		}
		s.stage = stagePulses
		s.frameIdx = 1
		s.group = 1
		s.startPulse()
	}
}

// requestTimeout aborts the pipeline when a round trip never came back.
// The node already reported ERR:TIMEOUT.
func (s *Scheduler) requestTimeout(cmd string) {
	if cmd != CmdHealthcheck && cmd != CmdCalibration {
		return
	}
	if s.stage != stageIdle {
		s.abort()
	}
}

func (s *Scheduler) beginPulses() {
	s.active = true
	s.stage = stagePulses
	s.frameIdx = 0
	s.group = 1
	s.startPulse()
}

// startPulse drives TRIGGER_OUT low for the active group's window and
// arms the master's own regulator if it belongs to that group.
func (s *Scheduler) startPulse() {
	n := s.node
	if n.safety.Latched() {
		s.abort()
		return
	}

	s.announceFrame()
	n.drv.Trigger.SetOut(false)
	s.inPulse = true

	if n.program.Active() && n.program.GroupID == s.group {
		seed := uint16(DACCalibrationStart)
		if s.frameIdx > 0 {
			seed = n.reg.Seed()
		}
		n.reg.Arm(seed, float32(n.program.CurrentMA), s.frameIdx == 0)
		n.safety.BeginBlind(n.clock.Now())
	}

	duration := uint32(CalibrationPulseMS)
	if s.frameIdx > 0 {
		duration = uint32(s.groupExposure(s.group))
	}
	s.timer.WakeTime = n.clock.Now() + duration
	n.timers.Schedule(&s.timer)
}

func (s *Scheduler) announceFrame() {
	n := s.node
	if s.frameIdx == 0 {
		n.emit("FRAME_0: G_ID=" + itoa(s.group))
		return
	}
	n.emit("FRAME_" + itoa(s.frameIdx) + ": G_ID=" + itoa(s.group) +
		", I=" + itoa(s.groupCurrent(s.group)) + "mA" +
		", EXP=" + itoa(s.groupExposure(s.group)) + "ms")
}

func (s *Scheduler) onTimer(t *Timer) uint8 {
	if s.inPulse {
		s.endPulse()
	} else {
		s.endGap()
	}
	return TimerDone
}

// endPulse raises the line, captures the master's own calibration
// result if armed, and schedules the interframe gap.
func (s *Scheduler) endPulse() {
	n := s.node
	n.drv.Trigger.SetOut(true)
	s.inPulse = false

	if n.reg.Active() {
		n.reg.CaptureAndDisarm()
		n.safety.EndBlind()
		if s.frameIdx == 0 {
			if e, ok := n.devices[MasterID]; ok {
				e.Calibrated = true
			}
		}
	}

	gap := n.interframeMS
	if gap < MinGapMS {
		gap = MinGapMS
	}
	s.timer.WakeTime = n.clock.Now() + uint32(gap)
	n.timers.Schedule(&s.timer)
}

// endGap rotates to the next group, crossing frame boundaries and
// finishing the run after the last gap of the last frame.
func (s *Scheduler) endGap() {
	if s.node.safety.Latched() {
		s.abort()
		return
	}

	s.group++
	if s.group > s.groupTotal {
		s.group = 1
		if s.frameIdx == 0 {
			// Calibration rotation finished: re-align the chain before
			// the user frames begin.
			s.stage = stageCalEnd
			if !s.node.originate(Message{Target: Broadcast, Command: CmdCalibration, Value: "end"}, false) {
				s.abort()
			}
			return
		}
		s.frameIdx++
		if s.frameIdx > s.node.frameCount {
			s.finish()
			return
		}
	}
	s.startPulse()
}

// finish forces the line high and reports success only if the node's
// own trigger input returned high after the full round trip, which
// confirms the chain is intact end to end.
func (s *Scheduler) finish() {
	n := s.node
	n.drv.Trigger.SetOut(true)
	s.runOK = n.drv.Trigger.In()
	s.active = false
	s.stage = stageIdle

	if s.runOK {
		n.emit("PROGRAM_ACK:true")
	} else {
		n.emit("PROGRAM_ACK:false")
	}
	n.emit("EOT")
}

// abort stops the run without touching the safety latch: cancel the
// phase timer, raise the line, drop the output.
func (s *Scheduler) abort() {
	n := s.node
	n.timers.Remove(&s.timer)
	n.drv.Trigger.SetOut(true)
	if n.reg.Active() {
		n.reg.Disarm()
	}
	s.active = false
	s.inPulse = false
	s.stage = stageIdle
}

// groupExposure returns the programmed exposure for a group, already
// validated identical across the group's devices.
func (s *Scheduler) groupExposure(g int) int {
	for _, e := range s.node.devices {
		if e.Program.GroupID == g {
			return e.Program.ExposureMS
		}
	}
	return MinExposureMS
}

func (s *Scheduler) groupCurrent(g int) int {
	for _, e := range s.node.devices {
		if e.Program.GroupID == g {
			return e.Program.CurrentMA
		}
	}
	return 0
}
