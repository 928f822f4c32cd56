package core

// TriggerDriver controls the dedicated trigger line pins.
// The line is active-low: SetOut(false) starts a pulse.
type TriggerDriver interface {
	// SetOut drives TRIGGER_OUT high (true) or low (false)
	SetOut(high bool)

	// In reads the current TRIGGER_IN level
	In() bool

	// Out reads back the current TRIGGER_OUT level
	Out() bool
}

// AnalogOutDriver drives the current-setting DAC.
type AnalogOutDriver interface {
	// Set writes a raw DAC value in [0, DACMax]
	Set(counts uint16)
}

// SensorDriver is the abstract current sensor interface. Targets back
// it with an INA260 over I2C; tests install mocks.
type SensorDriver interface {
	// Configure powers up and configures the sensor peripheral.
	// Called again during healthcheck as the recovery attempt.
	Configure() error

	// Connected reports whether the sensor answers on the bus
	Connected() bool

	// ConversionReady reports whether a fresh sample is available
	ConversionReady() bool

	// CurrentMilliamps returns the latest measured LED current
	CurrentMilliamps() (float32, error)
}

// ServoDriver positions the collimation servo.
type ServoDriver interface {
	// SetAngle moves the servo to the given angle in degrees
	SetAngle(degrees int) error
}

// Drivers bundles the hardware interfaces one node runs against.
// Target-specific code fills this in at boot; tests install mocks.
// Per-node rather than package-global so a test process can host a
// whole simulated chain.
type Drivers struct {
	Trigger TriggerDriver
	Analog  AnalogOutDriver
	Sensor  SensorDriver
	Servo   ServoDriver
}
