//go:build tinygo

// Firmware entry point for the ItsyBitsy M4 chain node. Pin map:
//
//	TRIGGER_IN   D7  (input pull-up, edge interrupt, active low)
//	TRIGGER_OUT  D9  (push-pull output, idles high)
//	LED drive    A0  (12-bit DAC)
//	Servo        D5  (PWM via TCC0)
//	Chain UART   D0/D1 (UART1, downstream TX / upstream RX)
//	Host link    USB CDC (master only)
//	INA260       I2C0 (SDA/SCL)
package main

import (
	"machine"
	"time"

	"github.com/Neurotech-Hub/SOLAR-ControllerV3/core"
)

const chainBaud = 115200

var node *core.Node

func main() {
	machine.InitADC()

	uart := machine.UART1
	uart.Configure(machine.UARTConfig{BaudRate: chainBaud, TX: machine.D1, RX: machine.D0})

	i2c := machine.I2C0
	i2c.Configure(machine.I2CConfig{})

	drv := core.Drivers{
		Trigger: newTriggerPins(machine.D7, machine.D9),
		Analog:  newDACOut(machine.A0),
		Sensor:  newINA260(i2c),
		Servo:   newServoOut(machine.D5),
	}

	clock := core.NewSystemClock()
	chainPort := &uartPort{uart: uart}

	// The node that first sees host-side serial activity is the
	// master; everyone else waits for chain traffic and is a slave.
	if waitForRole(uart) {
		core.SetDebugWriter(func(s string) { machine.Serial.Write([]byte(s + "\n")) })
		node = core.NewMaster(clock, drv, chainPort, &usbPort{})
	} else {
		node = core.NewSlave(clock, drv, chainPort)
	}

	attachTriggerInterrupt(machine.D7)

	for {
		node.Service()
		time.Sleep(200 * time.Microsecond)
	}
}

// waitForRole polls both links until one shows traffic. USB activity
// first means this node is host-connected.
func waitForRole(uart *machine.UART) bool {
	for {
		if machine.Serial.Buffered() > 0 {
			return true
		}
		if uart.Buffered() > 0 {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

// attachTriggerInterrupt wires the edge interrupt. The handler body
// lives in core: read pin, mirror pin, post event, nothing else.
func attachTriggerInterrupt(pin machine.Pin) {
	pin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	pin.SetInterrupt(machine.PinToggle, func(machine.Pin) {
		node.HandleTriggerEdge()
	})
}

// uartPort adapts the chain UART to core.ChainPort.
type uartPort struct {
	uart *machine.UART
}

func (p *uartPort) ReadByte() (byte, bool) {
	if p.uart.Buffered() == 0 {
		return 0, false
	}
	b, err := p.uart.ReadByte()
	if err != nil {
		return 0, false
	}
	return b, true
}

func (p *uartPort) WriteString(s string) error {
	_, err := p.uart.Write([]byte(s))
	return err
}

// usbPort adapts the USB CDC host link to core.ChainPort.
type usbPort struct{}

func (p *usbPort) ReadByte() (byte, bool) {
	if machine.Serial.Buffered() == 0 {
		return 0, false
	}
	b, err := machine.Serial.ReadByte()
	if err != nil {
		return 0, false
	}
	return b, true
}

func (p *usbPort) WriteString(s string) error {
	_, err := machine.Serial.Write([]byte(s))
	return err
}

// triggerPins implements core.TriggerDriver over two GPIOs.
type triggerPins struct {
	in, out machine.Pin
	level   bool
}

func newTriggerPins(in, out machine.Pin) *triggerPins {
	out.Configure(machine.PinConfig{Mode: machine.PinOutput})
	out.High()
	return &triggerPins{in: in, out: out, level: true}
}

func (t *triggerPins) SetOut(high bool) {
	t.level = high
	t.out.Set(high)
}

func (t *triggerPins) In() bool  { return t.in.Get() }
func (t *triggerPins) Out() bool { return t.level }
