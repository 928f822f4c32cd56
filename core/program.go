package core

import "errors"

// Programming limits. These mirror what the host GUI enforces; the
// firmware re-checks because the chain is reachable without the GUI.
const (
	MaxCurrentMA  = 1500
	MinExposureMS = 10
	MinGapMS      = 5
	MaxFrameCount = 1000
	MaxGroupTotal = 50
	MinServoAngle = 60
	MaxServoAngle = 120
)

var (
	ErrRange        = errors.New("program: field out of range")
	ErrBadPayload   = errors.New("program: malformed payload")
	ErrGroupInvalid = errors.New("program: group id out of range")
)

// GroupProgram is one node's programmed assignment: which group it
// fires with, how many groups rotate, and what it drives during its
// window. GroupID 0 means the node is not part of the run.
type GroupProgram struct {
	GroupID    int
	GroupTotal int
	CurrentMA  int
	ExposureMS int
}

// Active reports whether this node participates in runs.
func (p GroupProgram) Active() bool { return p.GroupID > 0 }

// ParseGroupProgram parses the wire payload `{groupId,groupTotal,currentMA,exposureMs}`.
func ParseGroupProgram(payload string) (GroupProgram, error) {
	if len(payload) < 2 || payload[0] != '{' || payload[len(payload)-1] != '}' {
		return GroupProgram{}, ErrBadPayload
	}
	inner := payload[1 : len(payload)-1]
	var fields [4]int
	n := 0
	start := 0
	for i := 0; i <= len(inner); i++ {
		if i == len(inner) || inner[i] == ',' {
			if n >= 4 {
				return GroupProgram{}, ErrBadPayload
			}
			v, ok := atoi(inner[start:i])
			if !ok {
				return GroupProgram{}, ErrBadPayload
			}
			fields[n] = v
			n++
			start = i + 1
		}
	}
	if n != 4 {
		return GroupProgram{}, ErrBadPayload
	}
	p := GroupProgram{
		GroupID:    fields[0],
		GroupTotal: fields[1],
		CurrentMA:  fields[2],
		ExposureMS: fields[3],
	}
	return p, p.Validate()
}

// Validate checks every field against the programming limits.
func (p GroupProgram) Validate() error {
	if p.GroupTotal < 1 || p.GroupTotal > MaxGroupTotal {
		return ErrRange
	}
	if p.GroupID < 0 || p.GroupID > p.GroupTotal {
		return ErrGroupInvalid
	}
	if p.CurrentMA < 0 || p.CurrentMA > MaxCurrentMA {
		return ErrRange
	}
	if p.ExposureMS < MinExposureMS {
		return ErrRange
	}
	return nil
}

// Payload renders the wire payload form.
func (p GroupProgram) Payload() string {
	return "{" + itoa(p.GroupID) + "," + itoa(p.GroupTotal) + "," +
		itoa(p.CurrentMA) + "," + itoa(p.ExposureMS) + "}"
}

// DeviceEntry is the master's cached view of one chain device.
type DeviceEntry struct {
	Program    GroupProgram
	Calibrated bool
}

// handleProgram stores a node's group assignment. Consistency across a
// group is deliberately not checked here; that happens at run start.
func handleProgram(n *Node, m Message) (Action, Message, error) {
	p, err := ParseGroupProgram(m.Value)
	if err != nil {
		return ActConsume, Message{}, err
	}
	n.program = p
	n.reg.ResetCalibration()
	if n.role == RoleMaster {
		n.devices[n.id] = &DeviceEntry{Program: p}
	}
	return ActForward, Message{}, nil
}
