//go:build tinygo

package main

import (
	"machine"

	"tinygo.org/x/drivers/servo"
)

// servoOut implements core.ServoDriver over a hobby servo on TCC0.
type servoOut struct {
	s  servo.Servo
	ok bool
}

func newServoOut(pin machine.Pin) *servoOut {
	s, err := servo.New(machine.TCC0, pin)
	if err != nil {
		return &servoOut{}
	}
	return &servoOut{s: s, ok: true}
}

// SetAngle maps degrees onto pulse width: 60°..120° spans
// 1200..1800 µs, centered at the usual 1.5 ms midpoint.
func (s *servoOut) SetAngle(degrees int) error {
	if !s.ok {
		return nil
	}
	us := 600 + degrees*10
	s.s.SetMicroseconds(int16(us))
	return nil
}
