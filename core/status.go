package core

// Version is the firmware version reported to the host on connect.
const Version = "3.1.0"

// statusReport answers the host `status` command with the token set
// the GUI parses, terminated by EOT.
func (n *Node) statusReport() {
	n.emit("VER:" + Version)
	n.emit("TOTAL:" + itoa(n.total))
	n.emit("STATE:" + n.stateString())
	n.emit("GROUP_TOTAL:" + itoa(n.systemGroupTotal()))
	n.emit("FRAME_COUNT:" + itoa(n.frameCount))
	n.emit("INTERFRAME_DELAY:" + itoa(n.interframeMS))
	n.emit("EOT")
}

func (n *Node) stateString() string {
	switch {
	case n.safety.Latched():
		return "SHUTDOWN"
	case n.sched != nil && n.sched.Active():
		return "RUNNING"
	default:
		return "IDLE"
	}
}

// systemGroupTotal is the group count of the programmed run, taken
// from the first active cache entry.
func (n *Node) systemGroupTotal() int {
	for _, e := range n.devices {
		if e.Program.Active() {
			return e.Program.GroupTotal
		}
	}
	return 1
}
