package core

// handleServo positions the collimation servo. The angle range matches
// the mechanical stops; anything outside is a protocol error and never
// reaches the hardware.
func handleServo(n *Node, m Message) (Action, Message, error) {
	angle, ok := atoi(m.Value)
	if !ok {
		return ActConsume, Message{}, ErrBadPayload
	}
	if angle < MinServoAngle || angle > MaxServoAngle {
		return ActConsume, Message{}, ErrRange
	}
	if n.drv.Servo != nil {
		if err := n.drv.Servo.SetAngle(angle); err != nil {
			DebugPrintln("servo: " + err.Error())
		}
	}
	return ActForward, Message{}, nil
}
