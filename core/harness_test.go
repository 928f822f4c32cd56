package core

// In-memory chain simulation used by the package tests: byte-queue
// serial ports, a manually stepped clock, and a trigger line whose
// level changes propagate node to node the way the interrupt mirror
// does on hardware.

import (
	"errors"
	"strings"
)

// errAlways stands in for any persistent peripheral failure.
var errAlways = errors.New("peripheral failure")

// manualClock is a hand-stepped millisecond clock.
type manualClock struct {
	ms uint32
}

func (c *manualClock) Now() uint32      { return c.ms }
func (c *manualClock) Advance(d uint32) { c.ms += d }

// simPort is one end of an in-memory serial link. Reads drain the own
// receive queue; writes append to the destination's.
type simPort struct {
	rx   []byte
	dest *simPort
}

func (p *simPort) ReadByte() (byte, bool) {
	if len(p.rx) == 0 {
		return 0, false
	}
	b := p.rx[0]
	p.rx = p.rx[1:]
	return b, true
}

func (p *simPort) WriteString(s string) error {
	p.dest.rx = append(p.dest.rx, s...)
	return nil
}

// lines drains and returns the complete lines queued at this end.
func (p *simPort) lines() []string {
	s := string(p.rx)
	p.rx = p.rx[:0]
	var out []string
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

// simTrigger models one node's trigger pins. Driving OUT to a new
// level invokes onChange, which the harness wires to the downstream
// node's edge interrupt.
type simTrigger struct {
	inLevel  bool
	outLevel bool
	onChange func(level bool)
}

func (t *simTrigger) SetOut(high bool) {
	if t.outLevel == high {
		return
	}
	t.outLevel = high
	if t.onChange != nil {
		t.onChange(high)
	}
}

func (t *simTrigger) In() bool  { return t.inLevel }
func (t *simTrigger) Out() bool { return t.outLevel }

// simAnalog records the last DAC write.
type simAnalog struct {
	value uint16
}

func (a *simAnalog) Set(counts uint16) { a.value = counts }

// simSensor models the LED load: measured current tracks the DAC
// output through gain, unless an override or failure is configured.
type simSensor struct {
	dac  *simAnalog
	gain float32

	forceMA    float32 // used when forced is set
	forced     bool
	notReady   bool
	confErr    error
	readErr    error
	disconnect bool
}

func newSimSensor(dac *simAnalog) *simSensor {
	return &simSensor{dac: dac, gain: 1.0}
}

func (s *simSensor) Configure() error { return s.confErr }
func (s *simSensor) Connected() bool  { return !s.disconnect }
func (s *simSensor) ConversionReady() bool {
	return !s.notReady
}

func (s *simSensor) CurrentMilliamps() (float32, error) {
	if s.readErr != nil {
		return 0, s.readErr
	}
	if s.forced {
		return s.forceMA, nil
	}
	return float32(s.dac.value) * s.gain, nil
}

// simServo records the last commanded angle.
type simServo struct {
	angle int
	calls int
}

func (s *simServo) SetAngle(degrees int) error {
	s.angle = degrees
	s.calls++
	return nil
}

// simNode bundles one node with its mock peripherals.
type simNode struct {
	node   *Node
	trig   *simTrigger
	dac    *simAnalog
	sensor *simSensor
	servo  *simServo
}

// chainRing is a simulated daisy chain of one master and n-1 slaves.
type chainRing struct {
	clock *manualClock
	sim   []*simNode
	host  *simPort // the test's end of the master's host link
}

// newChainRing wires n nodes into a ring. sim[0] is the master.
func newChainRing(n int) *chainRing {
	r := &chainRing{clock: &manualClock{}}

	ports := make([]*simPort, n)
	for i := range ports {
		ports[i] = &simPort{}
	}
	for i := range ports {
		ports[i].dest = ports[(i+1)%n]
	}

	hostEnd := &simPort{}
	masterEnd := &simPort{dest: hostEnd}
	hostEnd.dest = masterEnd
	r.host = hostEnd

	for i := 0; i < n; i++ {
		dac := &simAnalog{}
		sn := &simNode{
			trig:   &simTrigger{inLevel: true, outLevel: true},
			dac:    dac,
			sensor: newSimSensor(dac),
			servo:  &simServo{},
		}
		drv := Drivers{Trigger: sn.trig, Analog: dac, Sensor: sn.sensor, Servo: sn.servo}
		if i == 0 {
			sn.node = NewMaster(r.clock, drv, ports[i], masterEnd)
		} else {
			sn.node = NewSlave(r.clock, drv, ports[i])
		}
		r.sim = append(r.sim, sn)
	}

	// Trigger line: each node's OUT feeds the next node's IN; a level
	// change raises the downstream edge interrupt, whose mirror write
	// carries the edge on around the ring.
	for i := range r.sim {
		next := r.sim[(i+1)%n]
		r.sim[i].trig.onChange = func(level bool) {
			next.trig.inLevel = level
			next.node.HandleTriggerEdge()
		}
	}

	return r
}

func (r *chainRing) master() *Node { return r.sim[0].node }

// settle services every node until the chain goes quiet, without
// advancing the clock. Bounded so a forwarding loop fails the test
// instead of hanging it.
func (r *chainRing) settle() {
	for pass := 0; pass < 64; pass++ {
		for _, s := range r.sim {
			s.node.Service()
		}
	}
}

// run advances simulated time one millisecond at a time, servicing the
// whole ring at each step.
func (r *chainRing) run(ms int) {
	for i := 0; i < ms; i++ {
		r.settle()
		r.clock.Advance(1)
	}
	r.settle()
}

// discover performs chain discovery and drains the resulting host output.
func (r *chainRing) discover() {
	r.master().beginDiscovery()
	r.settle()
	r.host.lines()
}

// hostSend pushes one host command line at the master and settles.
func (r *chainRing) hostSend(line string) {
	r.host.WriteString(line + "\n")
	r.settle()
}

// hostLines runs a host command and returns the master's response lines.
func (r *chainRing) hostLines(line string) []string {
	r.hostSend(line)
	return r.host.lines()
}

func containsLine(lines []string, want string) bool {
	for _, l := range lines {
		if l == want {
			return true
		}
	}
	return false
}

func prefixedLine(lines []string, prefix string) (string, bool) {
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			return l, true
		}
	}
	return "", false
}
