//go:build tinygo

package main

import (
	"errors"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/ina260"
)

var errSensorAbsent = errors.New("ina260: not responding")

// ina260Sensor implements core.SensorDriver over the INA260
// current/voltage monitor. The part runs continuous conversions, so a
// configured and responding device always has a sample to offer.
type ina260Sensor struct {
	dev        ina260.Device
	configured bool
}

func newINA260(bus drivers.I2C) *ina260Sensor {
	return &ina260Sensor{dev: ina260.New(bus)}
}

func (s *ina260Sensor) Configure() error {
	if !s.dev.Connected() {
		s.configured = false
		return errSensorAbsent
	}
	s.dev.Configure()
	s.configured = true
	return nil
}

func (s *ina260Sensor) Connected() bool {
	return s.dev.Connected()
}

func (s *ina260Sensor) ConversionReady() bool {
	return s.configured
}

// CurrentMilliamps converts the device's microamp reading.
func (s *ina260Sensor) CurrentMilliamps() (float32, error) {
	if !s.configured {
		return 0, errSensorAbsent
	}
	ua := s.dev.Current()
	return float32(ua) / 1000.0, nil
}
