package core

import "testing"

func TestParseMessage(t *testing.T) {
	m, err := ParseMessage("003,servo,90")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if m.Target != 3 || m.Command != "servo" || m.Value != "90" {
		t.Errorf("got %+v", m)
	}

	// Broadcast target
	m, err = ParseMessage("000,init,1")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if m.Target != Broadcast {
		t.Errorf("expected broadcast target, got %d", m.Target)
	}

	// Program payloads keep their internal commas in the value field
	m, err = ParseMessage("001,program,{1,2,1300,30}")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if m.Value != "{1,2,1300,30}" {
		t.Errorf("value split wrongly: %q", m.Value)
	}

	// Value is optional
	m, err = ParseMessage("002,status")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if m.Value != "" {
		t.Errorf("expected empty value, got %q", m.Value)
	}
}

func TestParseMessageMalformed(t *testing.T) {
	bad := []string{
		"",
		"noseparator",
		"1,servo,90",     // target not three digits
		"0001,servo,90",  // four digits
		"abc,servo,90",   // non-numeric target
		"001,,90",        // empty command
	}
	for _, line := range bad {
		if _, err := ParseMessage(line); err == nil {
			t.Errorf("accepted malformed line %q", line)
		}
	}
}

func TestMessageString(t *testing.T) {
	m := Message{Target: 7, Command: "servo", Value: "90"}
	if got := m.String(); got != "007,servo,90" {
		t.Errorf("got %q", got)
	}
	m = Message{Target: Broadcast, Command: "init", Value: "1"}
	if got := m.String(); got != "000,init,1" {
		t.Errorf("got %q", got)
	}
}

func TestChainLinkPoll(t *testing.T) {
	a := &simPort{}
	b := &simPort{dest: a}
	a.dest = b
	link := NewChainLink(b)

	a.WriteString("001,servo,90\r\n\n002,dac,0\n")

	line, ok := link.Poll()
	if !ok || line != "001,servo,90" {
		t.Fatalf("got %q %v", line, ok)
	}
	line, ok = link.Poll()
	if !ok || line != "002,dac,0" {
		t.Fatalf("got %q %v", line, ok)
	}
	if _, ok := link.Poll(); ok {
		t.Error("expected no more lines")
	}

	// Partial line stays buffered until its newline arrives
	a.WriteString("003,ser")
	if _, ok := link.Poll(); ok {
		t.Error("returned an incomplete line")
	}
	a.WriteString("vo,60\n")
	line, ok = link.Poll()
	if !ok || line != "003,servo,60" {
		t.Fatalf("got %q %v", line, ok)
	}
}

func TestChainLinkRequestLifecycle(t *testing.T) {
	a := &simPort{}
	b := &simPort{dest: a}
	a.dest = b
	link := NewChainLink(b)

	m := Message{Target: 2, Command: CmdServo, Value: "90"}
	if err := link.Send(100, m); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if !link.HasPending() {
		t.Fatal("request not pending after send")
	}
	if err := link.Send(100, m); err != ErrSendPending {
		t.Errorf("second send should be rejected, got %v", err)
	}

	// Unrelated traffic does not close the request
	other := Message{Target: 3, Command: CmdServo, Value: "60"}
	if link.Completes(other.String(), other) {
		t.Error("unrelated line closed the request")
	}

	// The exact echo does
	if !link.Completes(m.String(), m) {
		t.Error("own echo did not close the request")
	}
	link.Complete()
	if link.HasPending() {
		t.Error("still pending after complete")
	}
}

func TestChainLinkMutatingCompletion(t *testing.T) {
	a := &simPort{}
	b := &simPort{dest: a}
	a.dest = b
	link := NewChainLink(b)

	// Discovery payloads are rewritten in flight, so the echo differs
	// from what was sent and must match on the command token.
	sent := Message{Target: Broadcast, Command: CmdInit, Value: "1"}
	link.Send(0, sent)

	echo := Message{Target: Broadcast, Command: CmdInit, Value: "4"}
	if !link.Completes(echo.String(), echo) {
		t.Error("mutated init echo did not close the request")
	}

	// A rewritten servo echo would not: servo is matched byte-exact.
	link.Complete()
	link.Send(0, Message{Target: 2, Command: CmdServo, Value: "90"})
	wrong := Message{Target: 2, Command: CmdServo, Value: "60"}
	if link.Completes(wrong.String(), wrong) {
		t.Error("non-mutating command matched a different payload")
	}
}

func TestChainLinkExpired(t *testing.T) {
	a := &simPort{}
	b := &simPort{dest: a}
	a.dest = b
	link := NewChainLink(b)

	link.Send(1000, Message{Target: Broadcast, Command: CmdReinit, Value: "1"})
	if link.Expired(1000 + RequestTimeoutMS - 1) {
		t.Error("expired before the timeout")
	}
	if !link.Expired(1000 + RequestTimeoutMS) {
		t.Error("not expired at the timeout")
	}

	link.Complete()
	if link.Expired(1000 + 2*RequestTimeoutMS) {
		t.Error("completed request reported expired")
	}
}
