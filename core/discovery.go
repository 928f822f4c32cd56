package core

// Discovery assigns device IDs round-robin: the master emits
// `000,init,1`; each slave in arrival order takes payload+1 as its own
// identity and forwards the incremented message; the count that comes
// back to the master is the chain population.

// beginDiscovery resets the master's device cache and starts a new
// round of ID assignment.
func (n *Node) beginDiscovery() {
	if n.role != RoleMaster {
		return
	}
	n.total = 1
	n.program = GroupProgram{}
	n.devices = map[int]*DeviceEntry{MasterID: {}}
	n.originate(Message{Target: Broadcast, Command: CmdInit, Value: itoa(MasterID)}, false)
}

// finishDiscovery consumes the returned init message carrying the
// final device count.
func (n *Node) finishDiscovery(m Message) {
	count, ok := atoi(m.Value)
	if !ok || count < 1 {
		n.reportErr("BAD_FORMAT")
		return
	}
	n.total = count
	for id := 1; id <= count; id++ {
		if _, exists := n.devices[id]; !exists {
			n.devices[id] = &DeviceEntry{}
		}
	}
	n.emit("INIT:TOTAL:" + itoa(count))
	n.emit("EOT")
}

// handleInit runs on slaves when the discovery message arrives. An
// unassigned slave claims payload+1 and forwards the bumped count; an
// already-assigned one passes the message through untouched.
func handleInit(n *Node, m Message) (Action, Message, error) {
	if n.role == RoleMaster {
		// The master never re-handles discovery traffic; its copy is
		// matched as the pending request instead.
		return ActConsume, Message{}, nil
	}
	if n.initialized {
		return ActForward, Message{}, nil
	}
	v, ok := atoi(m.Value)
	if !ok || v < 1 {
		return ActConsume, Message{}, ErrBadFormat
	}
	n.id = v + 1
	n.initialized = true
	return ActRewrite, Message{Target: Broadcast, Command: CmdInit, Value: itoa(n.id)}, nil
}

// handleReinit drops a slave back to its unassigned boot state.
// Programs are wiped; the safety latch is not (only a fresh run
// command clears that).
func handleReinit(n *Node, m Message) (Action, Message, error) {
	if n.role == RoleMaster {
		return ActConsume, Message{}, nil
	}
	n.id = 0
	n.initialized = false
	n.program = GroupProgram{}
	n.reg.ResetCalibration()
	n.trig.ResetRotation(false)
	return ActForward, Message{}, nil
}
