package core

// Timer represents a scheduled event
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	TimerDone       = 0
	TimerReschedule = 1
)

// TimerList is a sorted list of pending timers, dispatched from the
// cooperative main loop. Each node owns exactly one list; nothing here
// is touched from interrupt context.
type TimerList struct {
	head *Timer
}

// timeBefore compares wrap-safe millisecond timestamps
func timeBefore(a, b uint32) bool {
	return int32(a-b) < 0
}

// Schedule adds a timer to the list in sorted order
func (tl *TimerList) Schedule(t *Timer) {
	tl.Remove(t)
	tl.insert(t)
}

// insert inserts a timer in sorted order by WakeTime
func (tl *TimerList) insert(t *Timer) {
	if tl.head == nil || timeBefore(t.WakeTime, tl.head.WakeTime) {
		t.Next = tl.head
		tl.head = t
		return
	}

	current := tl.head
	for current.Next != nil && timeBefore(current.Next.WakeTime, t.WakeTime) {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// Remove unlinks a timer if it is scheduled
func (tl *TimerList) Remove(t *Timer) {
	if tl.head == nil {
		return
	}
	if tl.head == t {
		tl.head = t.Next
		t.Next = nil
		return
	}
	current := tl.head
	for current.Next != nil {
		if current.Next == t {
			current.Next = t.Next
			t.Next = nil
			return
		}
		current = current.Next
	}
}

// Dispatch processes all timers due at the given time
func (tl *TimerList) Dispatch(now uint32) {
	for tl.head != nil && !timeBefore(now, tl.head.WakeTime) {
		timer := tl.head
		tl.head = timer.Next
		timer.Next = nil // Clear Next pointer to avoid circular references

		// Call handler
		result := timer.Handler(timer)

		// Reschedule if requested
		if result == TimerReschedule {
			tl.insert(timer)
		}
	}
}
