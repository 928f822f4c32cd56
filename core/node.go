package core

import (
	"math"
	"strings"
)

// Role fixes what a node is for the whole boot session.
type Role uint8

const (
	RoleSlave Role = iota
	RoleMaster
)

func (r Role) String() string {
	if r == RoleMaster {
		return "master"
	}
	return "slave"
}

// MasterID is the device identity the master always owns.
const MasterID = 1

// Node is the per-device context threaded through every component:
// identity, programmed state, transports, and the control subsystems.
// One Node per MCU; Service is its cooperative main-loop tick.
type Node struct {
	role        Role
	id          int
	total       int
	initialized bool // slave has been assigned an id

	clock Clock
	drv   Drivers
	chain *ChainLink
	host  *ChainLink // nil on slaves

	timers   TimerList
	edges    EdgeRing
	registry *CommandRegistry

	program      GroupProgram
	devices      map[int]*DeviceEntry // master only
	frameCount   int
	interframeMS int

	trig   *TriggerSync
	sched  *Scheduler
	reg    *Regulator
	safety *SafetyMonitor
}

// NewMaster builds the host-connected node. It owns device identity 1.
func NewMaster(clock Clock, drv Drivers, chainPort, hostPort ChainPort) *Node {
	n := newNode(RoleMaster, clock, drv, chainPort)
	n.id = MasterID
	n.initialized = true
	n.total = 1
	n.host = NewChainLink(hostPort)
	n.devices = map[int]*DeviceEntry{MasterID: {}}
	n.sched = newScheduler(n)
	n.emit("VER:" + Version)
	return n
}

// NewSlave builds a chain-only node. It has no identity until discovery.
func NewSlave(clock Clock, drv Drivers, chainPort ChainPort) *Node {
	return newNode(RoleSlave, clock, drv, chainPort)
}

func newNode(role Role, clock Clock, drv Drivers, chainPort ChainPort) *Node {
	n := &Node{
		role:         role,
		clock:        clock,
		drv:          drv,
		chain:        NewChainLink(chainPort),
		registry:     defaultRegistry(),
		frameCount:   1,
		interframeMS: MinGapMS,
	}
	n.reg = newRegulator(drv.Analog)
	n.safety = newSafetyMonitor(n)
	n.trig = newTriggerSync(n)
	if drv.Trigger != nil {
		drv.Trigger.SetOut(true) // line idles high
	}
	return n
}

// Accessors used by tests and target code.
func (n *Node) Role() Role            { return n.role }
func (n *Node) ID() int               { return n.id }
func (n *Node) TotalDevices() int     { return n.total }
func (n *Node) Program() GroupProgram { return n.program }
func (n *Node) Safety() *SafetyMonitor { return n.safety }
func (n *Node) Regulator() *Regulator  { return n.reg }
func (n *Node) Scheduler() *Scheduler  { return n.sched }
func (n *Node) Trigger() *TriggerSync  { return n.trig }

// HandleTriggerEdge is the interrupt-context entry point for the
// TRIGGER_IN edge. It must stay minimal: read a pin, mirror a pin,
// post an event. All control-flow branching happens in the main loop.
func (n *Node) HandleTriggerEdge() {
	level := n.drv.Trigger.In()
	if n.role == RoleSlave {
		n.drv.Trigger.SetOut(level) // mirror before anything else
	}
	n.edges.Push(EdgeEvent{Low: !level, At: n.clock.Now()})
}

// Service runs one cooperative main-loop tick: timers, trigger edges,
// host traffic, chain traffic, regulation, safety.
func (n *Node) Service() {
	now := n.clock.Now()
	n.timers.Dispatch(now)
	n.trig.Service()

	if n.host != nil {
		for {
			line, ok := n.host.Poll()
			if !ok {
				break
			}
			n.handleHost(line)
		}
	}

	for {
		line, ok := n.chain.Poll()
		if !ok {
			break
		}
		n.handleChain(line)
	}

	if n.chain.Expired(now) {
		cmd := n.chain.PendingCommand()
		n.chain.Complete()
		n.reportErr("TIMEOUT")
		if n.sched != nil {
			n.sched.requestTimeout(cmd)
		}
	}

	n.regulatorTick()
	n.safety.Tick(now)
}

// handleChain processes one line arriving from the upstream neighbor.
func (n *Node) handleChain(line string) {
	m, err := ParseMessage(line)
	if err != nil {
		// Malformed traffic is logged and dropped, never propagated
		DebugPrintln("chain: dropped malformed line: " + line)
		return
	}

	if n.chain.Completes(line, m) {
		n.chain.Complete()
		n.requestDone(m)
		return
	}

	local := m.Target == Broadcast || (n.id > 0 && m.Target == n.id)
	if !local {
		n.chain.Forward(line)
		return
	}

	act, out, err := n.registry.Dispatch(n, m)
	if err != nil {
		// Protocol errors are rejected locally and not forwarded
		n.reportErr(protoCode(err))
		return
	}
	switch act {
	case ActForward:
		n.chain.Forward(line)
	case ActRewrite:
		n.chain.Forward(out.String())
	case ActConsume:
	}
}

// requestDone runs when this node's own request returned around the ring.
func (n *Node) requestDone(m Message) {
	switch m.Command {
	case CmdInit:
		n.finishDiscovery(m)
	case CmdReinit:
		n.beginDiscovery()
	case CmdHealthcheck, CmdCalibration:
		if n.sched != nil {
			n.sched.requestDone(m)
		}
	case CmdOvercurrent, CmdSensorFail, CmdBlindTimeout:
		// Our own fault token came home; everyone has seen it.
	default:
		n.emit("EOT")
	}
}

// originate puts a request of our own on the chain. When localToo is
// set and the message addresses this node, the handler runs here first.
func (n *Node) originate(m Message, localToo bool) bool {
	if n.chain.HasPending() {
		n.reportErr("BUSY")
		return false
	}
	if localToo && (m.Target == Broadcast || m.Target == n.id) {
		if _, _, err := n.registry.Dispatch(n, m); err != nil {
			n.reportErr(protoCode(err))
			return false
		}
	}
	if err := n.chain.Send(n.clock.Now(), m); err != nil {
		n.reportErr("CHAIN_WRITE")
		return false
	}
	return true
}

// handleHost processes one line from the host link (master only).
func (n *Node) handleHost(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	// Full chain form: ddd,command,value
	if len(line) > 3 && line[3] == ',' && isDigits(line[:3]) {
		m, err := ParseMessage(line)
		if err != nil {
			n.reportErr("BAD_FORMAT")
			return
		}
		n.handleHostMessage(m)
		return
	}

	switch {
	case line == "version":
		n.emit("VER:" + Version)
	case line == "status":
		n.statusReport()
	case line == "reinit":
		n.originate(Message{Target: Broadcast, Command: CmdReinit, Value: "1"}, false)
	case line == "emergency":
		n.safety.UserStop()
	case line == "start":
		n.sched.StartRun()
	case strings.HasPrefix(line, "frame,"):
		n.handleFrameCommand(line)
	default:
		n.reportErr("UNKNOWN_CMD")
	}
}

// handleHostMessage validates and originates a chain command on behalf
// of the host.
func (n *Node) handleHostMessage(m Message) {
	if m.Target < 0 || m.Target > n.total {
		n.reportErr("DEVICE_ID")
		return
	}

	switch m.Command {
	case CmdProgram:
		p, err := ParseGroupProgram(m.Value)
		if err != nil {
			n.reportErr(protoCode(err))
			return
		}
		if m.Target == Broadcast {
			n.reportErr("DEVICE_ID")
			return
		}
		if n.originate(m, true) {
			n.devices[m.Target] = &DeviceEntry{Program: p}
		}
	case CmdServo:
		angle, ok := atoi(m.Value)
		if !ok {
			n.reportErr("BAD_FORMAT")
			return
		}
		if angle < MinServoAngle || angle > MaxServoAngle {
			n.reportErr("RANGE")
			return
		}
		n.originate(m, true)
	case CmdDac:
		if m.Value != "0" {
			n.reportErr("RANGE")
			return
		}
		n.originate(m, true)
	default:
		n.reportErr("UNKNOWN_CMD")
	}
}

// handleFrameCommand parses `frame,<count>,<interframeMs>`.
func (n *Node) handleFrameCommand(line string) {
	parts := strings.SplitN(line, ",", 3)
	if len(parts) != 3 {
		n.reportErr("BAD_FORMAT")
		return
	}
	count, ok1 := atoi(parts[1])
	gap, ok2 := atoi(parts[2])
	if !ok1 || !ok2 {
		n.reportErr("BAD_FORMAT")
		return
	}
	if count < 1 || count > MaxFrameCount || gap < MinGapMS {
		n.reportErr("RANGE")
		return
	}
	n.frameCount = count
	n.interframeMS = gap
	n.emit("FRAME_SET:" + itoa(count) + "," + itoa(gap))
}

// regulatorTick runs one regulation step while armed: one fresh sensor
// sample, safety screening, then the control law. This is the only
// path that mutates the analog output while regulation is active.
func (n *Node) regulatorTick() {
	if n.safety.Latched() || !n.reg.Active() {
		return
	}
	s := n.drv.Sensor
	if s == nil {
		return
	}
	if !s.ConversionReady() {
		n.safety.NoteMiss()
		return
	}
	ma, err := s.CurrentMilliamps()
	if err != nil || math.IsNaN(float64(ma)) || ma < implausibleNegativeMA {
		n.safety.SensorFault()
		return
	}
	n.safety.EndBlind()
	hold := n.safety.NoteSample(ma)
	if n.safety.Latched() {
		return
	}
	n.reg.Tick(ma, hold)
}

// emit writes one status line to the host (master only).
func (n *Node) emit(s string) {
	if n.host != nil {
		n.host.Forward(s)
	}
}

// reportErr reports a coded error: to the host on the master, to the
// debug writer on slaves.
func (n *Node) reportErr(code string) {
	if n.host != nil {
		n.emit("ERR:" + code)
		return
	}
	DebugPrintln("err: " + code)
}

// protoCode maps validation errors to wire error codes.
func protoCode(err error) string {
	switch err {
	case ErrBadPayload, ErrBadFormat:
		return "BAD_FORMAT"
	case ErrRange, ErrGroupInvalid:
		return "RANGE"
	case errUnknownCommand:
		return "UNKNOWN_CMD"
	default:
		return "INTERNAL"
	}
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

// implausibleNegativeMA is the floor below which a reading is garbage
// rather than noise around zero.
const implausibleNegativeMA = -50.0
