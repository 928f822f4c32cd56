//go:build tinygo

package main

import "machine"

// dacOut drives the LED current-set line through the SAMD51 DAC.
type dacOut struct {
	dac machine.DAC
}

func newDACOut(pin machine.Pin) *dacOut {
	d := machine.DAC0
	d.Configure(machine.DACConfig{})
	_ = pin // A0 is hardwired to DAC0 on the M4
	return &dacOut{dac: d}
}

// Set writes a 12-bit value, left-aligned into the 16-bit register the
// machine API expects.
func (d *dacOut) Set(counts uint16) {
	if counts > core12BitMax {
		counts = core12BitMax
	}
	d.dac.Set(counts << 4)
}

const core12BitMax = 4095
