package core

import "testing"

func TestOvershootSteps(t *testing.T) {
	cases := []struct {
		pct  float32
		step uint16
	}{
		{25, 40},
		{20.5, 40},
		{15, 20},
		{7, 8},
		{3, 3},
		{1, 1},
		{0.5, 1},
		{0, 0},
	}
	for _, c := range cases {
		if got := OvershootStep(c.pct); got != c.step {
			t.Errorf("OvershootStep(%v) = %d, want %d", c.pct, got, c.step)
		}
	}
}

func TestDeficitSteps(t *testing.T) {
	cases := []struct {
		pct  float32
		step uint16
	}{
		{60, 64},
		{30, 32},
		{15, 16},
		{7, 8},
		{2, 4},
		{0, 0},
	}
	for _, c := range cases {
		if got := DeficitStep(c.pct); got != c.step {
			t.Errorf("DeficitStep(%v) = %d, want %d", c.pct, got, c.step)
		}
	}
}

func TestRegulatorArmAppliesSeed(t *testing.T) {
	dac := &simAnalog{}
	r := newRegulator(dac)

	r.Arm(500, 1000, false)
	if !r.Active() {
		t.Fatal("not active after arm")
	}
	if dac.value != 500 {
		t.Errorf("seed not applied, dac=%d", dac.value)
	}

	// Seeds above the range are clamped
	r.Arm(DACMax+100, 1000, false)
	if dac.value != DACMax {
		t.Errorf("oversized seed not clamped, dac=%d", dac.value)
	}
}

func TestRegulatorSteadyStateStep(t *testing.T) {
	dac := &simAnalog{}
	r := newRegulator(dac)
	r.Arm(500, 1000, false)

	// Below the band: one count per sample in steady state
	r.Tick(900, false)
	if dac.value != 501 {
		t.Errorf("expected +1 step, dac=%d", dac.value)
	}

	// Hold blocks the increase without touching the output
	r.Tick(900, true)
	if dac.value != 501 {
		t.Errorf("held step still moved output, dac=%d", dac.value)
	}

	// In band: output untouched
	r.Tick(995, false)
	if dac.value != 501 {
		t.Errorf("in-band sample moved output, dac=%d", dac.value)
	}
}

func TestRegulatorOvershootClampsToFloor(t *testing.T) {
	dac := &simAnalog{}
	r := newRegulator(dac)
	r.Arm(DACCalibrationStart+5, 1000, false)

	// Massive overshoot wants a big step down, but steady-state
	// regulation never drops below the calibration start value.
	r.Tick(1300, false)
	if dac.value != DACCalibrationStart {
		t.Errorf("dropped below floor, dac=%d", dac.value)
	}

	// During calibration the floor is zero
	r.Arm(50, 1000, true)
	r.Tick(1300, false)
	if dac.value != 10 {
		t.Errorf("calibration overshoot step wrong, dac=%d", dac.value)
	}
}

func TestRegulatorCaptureAndDisarm(t *testing.T) {
	dac := &simAnalog{}
	r := newRegulator(dac)

	if r.Seed() != DACCalibrationStart {
		t.Errorf("uncalibrated seed = %d", r.Seed())
	}

	r.Arm(DACCalibrationStart, 1000, true)
	r.Tick(500, false) // deficit 50%: +64
	stable := r.CaptureAndDisarm()

	if stable != DACCalibrationStart+64 {
		t.Errorf("captured %d", stable)
	}
	if !r.Calibrated() || r.Seed() != stable {
		t.Error("capture did not become the next seed")
	}
	if r.Active() || dac.value != 0 {
		t.Errorf("output still live after disarm: active=%v dac=%d", r.Active(), dac.value)
	}

	r.ResetCalibration()
	if r.Calibrated() || r.Seed() != DACCalibrationStart {
		t.Error("reset did not discard the calibration result")
	}
}

func TestRegulatorDisarmWithoutCapture(t *testing.T) {
	dac := &simAnalog{}
	r := newRegulator(dac)

	r.Arm(800, 1000, false)
	r.Disarm()
	if dac.value != 0 {
		t.Errorf("disarm left output at %d", dac.value)
	}
	if r.Calibrated() {
		t.Error("disarm captured a seed")
	}
}

func TestRegulatorCalibrationConverges(t *testing.T) {
	dac := &simAnalog{}
	r := newRegulator(dac)

	// Plant model: 1 mA per count. Target 1300 from the fixed start.
	const target = 1300
	r.Arm(DACCalibrationStart, target, true)

	for i := 0; i < 100; i++ {
		r.Tick(float32(dac.value), false)
	}

	ma := float32(dac.value)
	if ma < target*targetBandRatio || ma > target {
		t.Errorf("did not converge into the band: %v mA", ma)
	}
}

func TestRegulatorMaxOutputAccepted(t *testing.T) {
	dac := &simAnalog{}
	r := newRegulator(dac)

	// An unreachable target pegs the output at DACMax without error;
	// the capture still records it as the stable value.
	r.Arm(DACCalibrationStart, 1500, true)
	for i := 0; i < 200; i++ {
		r.Tick(float32(dac.value)/10, false) // weak load, target unreachable
	}
	if dac.value != DACMax {
		t.Errorf("output not pegged at max, dac=%d", dac.value)
	}
	if got := r.CaptureAndDisarm(); got != DACMax {
		t.Errorf("captured %d", got)
	}
}
