package core

import "testing"

func TestParseGroupProgram(t *testing.T) {
	p, err := ParseGroupProgram("{1,2,1300,30}")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if p.GroupID != 1 || p.GroupTotal != 2 || p.CurrentMA != 1300 || p.ExposureMS != 30 {
		t.Errorf("got %+v", p)
	}
	if !p.Active() {
		t.Error("programmed node not active")
	}
	if p.Payload() != "{1,2,1300,30}" {
		t.Errorf("payload roundtrip: %q", p.Payload())
	}
}

func TestParseGroupProgramRejectsMalformed(t *testing.T) {
	bad := []string{
		"",
		"1,2,1300,30",      // missing braces
		"{1,2,1300}",       // too few fields
		"{1,2,1300,30,5}",  // too many fields
		"{1,2,x,30}",       // non-numeric
		"{}",
	}
	for _, payload := range bad {
		if _, err := ParseGroupProgram(payload); err == nil {
			t.Errorf("accepted %q", payload)
		}
	}
}

func TestGroupProgramValidate(t *testing.T) {
	ok := GroupProgram{GroupID: 1, GroupTotal: 2, CurrentMA: 1300, ExposureMS: 30}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid program rejected: %v", err)
	}

	cases := []struct {
		name string
		p    GroupProgram
	}{
		{"current over limit", GroupProgram{GroupID: 1, GroupTotal: 1, CurrentMA: MaxCurrentMA + 1, ExposureMS: 30}},
		{"negative current", GroupProgram{GroupID: 1, GroupTotal: 1, CurrentMA: -1, ExposureMS: 30}},
		{"exposure too short", GroupProgram{GroupID: 1, GroupTotal: 1, CurrentMA: 100, ExposureMS: MinExposureMS - 1}},
		{"group beyond total", GroupProgram{GroupID: 3, GroupTotal: 2, CurrentMA: 100, ExposureMS: 30}},
		{"zero group total", GroupProgram{GroupID: 0, GroupTotal: 0, CurrentMA: 100, ExposureMS: 30}},
		{"group total over limit", GroupProgram{GroupID: 1, GroupTotal: MaxGroupTotal + 1, CurrentMA: 100, ExposureMS: 30}},
	}
	for _, c := range cases {
		if err := c.p.Validate(); err == nil {
			t.Errorf("%s: accepted %+v", c.name, c.p)
		}
	}

	// Group 0 with a valid total means "not participating" and is legal
	idle := GroupProgram{GroupID: 0, GroupTotal: 2, CurrentMA: 0, ExposureMS: 30}
	if err := idle.Validate(); err != nil {
		t.Errorf("idle assignment rejected: %v", err)
	}
	if idle.Active() {
		t.Error("group 0 reported active")
	}
}
