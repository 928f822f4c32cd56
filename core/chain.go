package core

import (
	"errors"
	"strings"
)

// Broadcast is the target ID addressing every node on the chain.
const Broadcast = 0

// RequestTimeoutMS is how long a sender waits for its own message to
// come back around the ring before abandoning the request.
const RequestTimeoutMS = 2000

// Chain command tokens
const (
	CmdInit         = "init"
	CmdReinit       = "reinit"
	CmdProgram      = "program"
	CmdServo        = "servo"
	CmdHealthcheck  = "healthcheck"
	CmdCalibration  = "calibration"
	CmdOvercurrent  = "overcurrent"
	CmdSensorFail   = "ina_fail"
	CmdBlindTimeout = "blind_timeout"
	CmdDac          = "dac"
)

var (
	ErrBadFormat   = errors.New("chain: malformed message")
	ErrSendPending = errors.New("chain: request already in flight")
)

// Message is one parsed chain message: `ddd,command,value`.
// Target 0 is broadcast. Immutable once parsed.
type Message struct {
	Target  int
	Command string
	Value   string
}

// ParseMessage parses a newline-stripped chain line. The value field
// may itself contain commas (program payloads do).
func ParseMessage(line string) (Message, error) {
	parts := strings.SplitN(line, ",", 3)
	if len(parts) < 2 {
		return Message{}, ErrBadFormat
	}
	if len(parts[0]) != 3 {
		return Message{}, ErrBadFormat
	}
	target, ok := atoi(parts[0])
	if !ok || target < 0 {
		return Message{}, ErrBadFormat
	}
	if parts[1] == "" {
		return Message{}, ErrBadFormat
	}
	m := Message{Target: target, Command: parts[1]}
	if len(parts) == 3 {
		m.Value = parts[2]
	}
	return m, nil
}

// String renders the wire form without the trailing newline.
func (m Message) String() string {
	return itoa3(m.Target) + "," + m.Command + "," + m.Value
}

// ChainPort is one serial link endpoint. Reads are non-blocking polls
// so the main loop never stalls on a quiet neighbor.
type ChainPort interface {
	// ReadByte returns the next received byte, or false if none is buffered
	ReadByte() (byte, bool)

	// WriteString transmits raw bytes down the link
	WriteString(s string) error
}

// mutatingInFlight lists commands whose payload is rewritten while the
// message circulates, so the sender cannot match its request by exact
// echo and matches on the command token instead.
var mutatingInFlight = map[string]bool{
	CmdInit:        true,
	CmdHealthcheck: true,
}

// ChainLink is the point-to-point transport for one node: assembles
// newline-delimited lines from the upstream neighbor, writes to the
// downstream one, and tracks the single in-flight request this node
// originated.
type ChainLink struct {
	port ChainPort
	line []byte

	pending    bool
	pendingRaw string
	pendingCmd string
	sentAt     uint32
}

// NewChainLink wraps a serial port as a chain transport.
func NewChainLink(port ChainPort) *ChainLink {
	return &ChainLink{port: port, line: make([]byte, 0, 64)}
}

// Poll assembles received bytes and returns the next complete line.
// Carriage returns and empty lines are dropped.
func (l *ChainLink) Poll() (string, bool) {
	for {
		b, ok := l.port.ReadByte()
		if !ok {
			return "", false
		}
		switch b {
		case '\r':
			// Ignore
		case '\n':
			if len(l.line) == 0 {
				continue
			}
			s := string(l.line)
			l.line = l.line[:0]
			return s, true
		default:
			if len(l.line) < 256 {
				l.line = append(l.line, b)
			}
		}
	}
}

// Send originates a request and arms the round-trip watch for it.
// Only one request may be in flight at a time.
func (l *ChainLink) Send(now uint32, m Message) error {
	if l.pending {
		return ErrSendPending
	}
	raw := m.String()
	if err := l.port.WriteString(raw + "\n"); err != nil {
		return err
	}
	l.pending = true
	l.pendingRaw = raw
	l.pendingCmd = m.Command
	l.sentAt = now
	return nil
}

// Forward passes a raw line down the chain without tracking it.
func (l *ChainLink) Forward(raw string) error {
	return l.port.WriteString(raw + "\n")
}

// Completes reports whether the received line closes this node's
// in-flight request: either the exact string returned, or, for
// commands rewritten in flight, the same command token did.
func (l *ChainLink) Completes(line string, m Message) bool {
	if !l.pending {
		return false
	}
	if line == l.pendingRaw {
		return true
	}
	return mutatingInFlight[l.pendingCmd] && m.Command == l.pendingCmd
}

// Complete clears the in-flight request.
func (l *ChainLink) Complete() {
	l.pending = false
	l.pendingRaw = ""
	l.pendingCmd = ""
}

// HasPending reports whether a request is in flight.
func (l *ChainLink) HasPending() bool { return l.pending }

// PendingCommand returns the in-flight command token, or "".
func (l *ChainLink) PendingCommand() string { return l.pendingCmd }

// Expired reports whether the in-flight request has outlived the
// round-trip timeout.
func (l *ChainLink) Expired(now uint32) bool {
	return l.pending && now-l.sentAt >= RequestTimeoutMS
}
