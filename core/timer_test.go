package core

import "testing"

func TestTimerListOrdering(t *testing.T) {
	var tl TimerList
	var fired []int

	mk := func(id int, wake uint32) *Timer {
		return &Timer{
			WakeTime: wake,
			Handler: func(*Timer) uint8 {
				fired = append(fired, id)
				return TimerDone
			},
		}
	}

	tl.Schedule(mk(3, 30))
	tl.Schedule(mk(1, 10))
	tl.Schedule(mk(2, 20))

	tl.Dispatch(15)
	if len(fired) != 1 || fired[0] != 1 {
		t.Fatalf("expected only timer 1, got %v", fired)
	}

	tl.Dispatch(30)
	if len(fired) != 3 || fired[1] != 2 || fired[2] != 3 {
		t.Fatalf("expected 1,2,3 order, got %v", fired)
	}
}

func TestTimerReschedule(t *testing.T) {
	var tl TimerList
	count := 0

	timer := &Timer{WakeTime: 10}
	timer.Handler = func(tm *Timer) uint8 {
		count++
		if count < 3 {
			tm.WakeTime += 10
			return TimerReschedule
		}
		return TimerDone
	}
	tl.Schedule(timer)

	tl.Dispatch(10)
	tl.Dispatch(20)
	tl.Dispatch(30)
	tl.Dispatch(100)

	if count != 3 {
		t.Errorf("expected 3 firings, got %d", count)
	}
}

func TestTimerRemove(t *testing.T) {
	var tl TimerList
	fired := false

	timer := &Timer{
		WakeTime: 10,
		Handler: func(*Timer) uint8 {
			fired = true
			return TimerDone
		},
	}
	tl.Schedule(timer)
	tl.Remove(timer)
	tl.Dispatch(100)

	if fired {
		t.Error("removed timer fired")
	}

	// Rescheduling after removal works
	tl.Schedule(timer)
	tl.Dispatch(100)
	if !fired {
		t.Error("rescheduled timer did not fire")
	}
}

func TestTimeBeforeWraps(t *testing.T) {
	// Near the uint32 wrap, "later" timestamps are small numbers
	if !timeBefore(0xFFFFFFF0, 5) {
		t.Error("pre-wrap time not before post-wrap time")
	}
	if timeBefore(5, 0xFFFFFFF0) {
		t.Error("post-wrap time before pre-wrap time")
	}
	if timeBefore(100, 100) {
		t.Error("a time is before itself")
	}
}
