package checkin

import "time"

const (
	DefaultOpensBefore = 60 * time.Minute
	DefaultClosesAfter = 15 * time.Minute
)

// Window is the closed interval in which attendance may be recorded.
type Window struct {
	OpensAt  time.Time
	ClosesAt time.Time
}

func windowFor(start time.Time, opensBefore, closesAfter time.Duration) Window {
	return Window{
		OpensAt:  start.Add(-opensBefore),
		ClosesAt: start.Add(closesAfter),
	}
}

// Check returns an OutOfWindowError when now falls outside w. Both
// boundaries are inclusive.
func (w Window) Check(now time.Time) error {
	if now.Before(w.OpensAt) {
		return OutOfWindowError{Reason: TooEarly, OpensAt: w.OpensAt, ClosesAt: w.ClosesAt}
	}

	if now.After(w.ClosesAt) {
		return OutOfWindowError{Reason: TooLate, OpensAt: w.OpensAt, ClosesAt: w.ClosesAt}
	}

	return nil
}
