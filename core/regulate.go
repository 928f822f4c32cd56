package core

// DAC output range. The drive is a 12-bit value; 0 is fully off.
const (
	DACMax = 4095

	// targetBandRatio defines the regulation band [0.99×target, target].
	targetBandRatio = 0.99
)

// stepBucket maps "percentage past threshold" to a step size. Buckets
// are ordered largest threshold first; the first match wins.
type stepBucket struct {
	pct  float32
	step uint16
}

// overshootBuckets: measured current above target. Bigger overshoot
// backs off harder; the smallest non-zero overshoot steps down by 1.
var overshootBuckets = []stepBucket{
	{20, 40},
	{10, 20},
	{5, 8},
	{2, 3},
	{0, 1},
}

// deficitBuckets: measured current below target, used only during the
// calibration pass where convergence speed matters more than ripple.
var deficitBuckets = []stepBucket{
	{50, 64},
	{25, 32},
	{10, 16},
	{5, 8},
	{0, 4},
}

// OvershootStep returns the decrement for a given percentage over
// target. Zero overshoot steps zero.
func OvershootStep(pct float32) uint16 {
	return bucketStep(overshootBuckets, pct)
}

// DeficitStep returns the calibration increment for a given percentage
// under target.
func DeficitStep(pct float32) uint16 {
	return bucketStep(deficitBuckets, pct)
}

func bucketStep(buckets []stepBucket, pct float32) uint16 {
	for _, b := range buckets {
		if pct > b.pct {
			return b.step
		}
	}
	return 0
}

// Regulator is the closed-loop current controller for one node's LED
// drive. It is the only writer of the analog output while active;
// every disable path funnels through shutdownOutput.
type Regulator struct {
	out AnalogOutDriver

	value      uint16
	lastStable uint16
	calibrated bool
	active     bool

	calibrating bool
	targetMA    float32
}

func newRegulator(out AnalogOutDriver) *Regulator {
	return &Regulator{out: out}
}

// Active reports whether regulation is armed.
func (r *Regulator) Active() bool { return r.active }

// Value returns the current DAC output value.
func (r *Regulator) Value() uint16 { return r.value }

// LastStable returns the seed captured at the end of the previous pulse.
func (r *Regulator) LastStable() uint16 { return r.lastStable }

// Calibrated reports whether a Frame 0 result exists.
func (r *Regulator) Calibrated() bool { return r.calibrated }

// Seed returns the starting output for a steady-state pulse: the last
// known-good value, or the fixed calibration start if none exists yet.
func (r *Regulator) Seed() uint16 {
	if r.calibrated {
		return r.lastStable
	}
	return DACCalibrationStart
}

// ResetCalibration discards the Frame 0 result. Run start does this on
// every node.
func (r *Regulator) ResetCalibration() {
	r.calibrated = false
	r.lastStable = 0
}

// Arm enables regulation and applies the seed value immediately.
func (r *Regulator) Arm(seed uint16, targetMA float32, calibrating bool) {
	if seed > DACMax {
		seed = DACMax
	}
	r.value = seed
	r.targetMA = targetMA
	r.calibrating = calibrating
	r.active = true
	r.apply()
}

// CaptureAndDisarm records the output reached during the pulse as the
// next seed, then shuts the output down. Reaching DACMax without
// hitting target is accepted, not an error.
func (r *Regulator) CaptureAndDisarm() uint16 {
	r.lastStable = r.value
	r.calibrated = true
	r.shutdownOutput()
	return r.lastStable
}

// Disarm shuts the output down without capturing a seed. Safety
// shutdowns route through here.
func (r *Regulator) Disarm() {
	r.shutdownOutput()
}

// shutdownOutput is the one path that turns the drive off.
func (r *Regulator) shutdownOutput() {
	r.active = false
	r.value = 0
	r.apply()
}

// Tick runs one control step against a fresh sample. Below the band it
// steps up (fast during calibration, one count otherwise, never while
// holdIncrease is set); above target it steps down proportionally to
// the overshoot. Output is clamped to [floor, DACMax] where the floor
// in steady operation is the calibration start value, so the drive
// never drops below a known-working point.
func (r *Regulator) Tick(measuredMA float32, holdIncrease bool) {
	if !r.active || r.targetMA <= 0 {
		return
	}

	switch {
	case measuredMA < r.targetMA*targetBandRatio:
		if holdIncrease {
			return
		}
		step := uint16(1)
		if r.calibrating {
			deficitPct := (r.targetMA - measuredMA) / r.targetMA * 100
			step = DeficitStep(deficitPct)
		}
		r.value = clampAdd(r.value, step, DACMax)
		r.apply()
	case measuredMA > r.targetMA:
		overPct := (measuredMA - r.targetMA) / r.targetMA * 100
		step := OvershootStep(overPct)
		if step == 0 {
			return
		}
		r.value = clampSub(r.value, step, r.floor())
		r.apply()
	default:
		// In band; hold.
	}
}

// floor is the lowest value regulation may steer to.
func (r *Regulator) floor() uint16 {
	if r.calibrating {
		return 0
	}
	return DACCalibrationStart
}

func (r *Regulator) apply() {
	if r.out != nil {
		r.out.Set(r.value)
	}
}

func clampAdd(v, step, max uint16) uint16 {
	if v > max-step {
		return max
	}
	return v + step
}

func clampSub(v, step, min uint16) uint16 {
	if v < min+step {
		return min
	}
	return v - step
}
