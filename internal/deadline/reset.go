package deadline

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// MidnightSpec is the cron expression of the daily reset boundary.
const MidnightSpec = "0 0 * * *"

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ResetScheduler tracks the next local midnight and fires once per day.
// After firing it re-targets the following midnight, so it never goes idle.
type ResetScheduler struct {
	sched cron.Schedule
	loc   *time.Location
	next  time.Time
}

// NewResetScheduler targets the first midnight after now in loc.
// A nil loc means time.Local.
func NewResetScheduler(loc *time.Location, now time.Time) (*ResetScheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	sched, err := parser.Parse(MidnightSpec)
	if err != nil {
		return nil, fmt.Errorf("parse reset schedule: %w", err)
	}
	r := &ResetScheduler{sched: sched, loc: loc}
	r.next = r.after(now)
	return r, nil
}

// NextMidnight returns the first local midnight strictly after now.
func NextMidnight(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	sched, err := parser.Parse(MidnightSpec)
	if err != nil {
		panic(fmt.Sprintf("deadline: invalid midnight spec: %v", err))
	}
	return sched.Next(now.In(loc))
}

// Next returns the currently targeted reset time.
func (r *ResetScheduler) Next() time.Time {
	return r.next
}

// NextAfter returns the first reset strictly after now, without changing the
// scheduler's target.
func (r *ResetScheduler) NextAfter(now time.Time) time.Time {
	return r.after(now)
}

// Remaining returns the countdown to the targeted reset.
func (r *ResetScheduler) Remaining(now time.Time) Countdown {
	return Until(r.next, now)
}

// Tick fires when now has reached the target. Several midnights missed
// during a suspension still fire only once; the next target is always
// computed from now.
func (r *ResetScheduler) Tick(now time.Time) (Event, bool) {
	if now.Before(r.next) {
		return Event{}, false
	}
	fired := r.next
	r.next = r.after(now)
	return Event{
		Kind:     EventDailyReset,
		Deadline: fired,
		At:       now,
	}, true
}

func (r *ResetScheduler) after(now time.Time) time.Time {
	return r.sched.Next(now.In(r.loc))
}
