// Package deadline tracks quest countdowns and the daily reset boundary.
//
// Nothing in this package mutates a quest. The Monitor and ResetScheduler
// compare wall-clock deadlines against the time they are ticked with and
// return typed events; the engine applies those events on its own loop. A
// countdown is torn down the moment it reports expiry, so each deadline
// expires at most once.
package deadline

import (
	"fmt"
	"sort"
	"time"
)

// DefaultWarningWindow is how close to a deadline the warning fires.
const DefaultWarningWindow = 4 * time.Hour

// EventKind distinguishes deadline events.
type EventKind int

const (
	// EventWarning fires once when a deadline enters the warning window.
	EventWarning EventKind = iota + 1
	// EventExpired fires once when a deadline passes.
	EventExpired
	// EventDailyReset fires at each local midnight.
	EventDailyReset
)

func (k EventKind) String() string {
	switch k {
	case EventWarning:
		return "warning"
	case EventExpired:
		return "expired"
	case EventDailyReset:
		return "daily_reset"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is emitted by a tick.
type Event struct {
	Kind      EventKind
	QuestID   string // empty for EventDailyReset
	Deadline  time.Time
	Remaining Countdown
	At        time.Time
}

// Countdown is a remaining duration split into whole hours, minutes and
// seconds, truncated toward zero. Negative durations count as zero.
type Countdown struct {
	Hours   int
	Minutes int
	Seconds int
}

// NewCountdown splits d into a Countdown.
func NewCountdown(d time.Duration) Countdown {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return Countdown{
		Hours:   total / 3600,
		Minutes: (total % 3600) / 60,
		Seconds: total % 60,
	}
}

// Until returns the countdown from now to deadline.
func Until(deadline, now time.Time) Countdown {
	return NewCountdown(deadline.Sub(now))
}

// String formats the countdown as H:MM:SS.
func (c Countdown) String() string {
	return fmt.Sprintf("%d:%02d:%02d", c.Hours, c.Minutes, c.Seconds)
}

// MarshalText renders the countdown as H:MM:SS.
func (c Countdown) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Duration converts the countdown back to a duration.
func (c Countdown) Duration() time.Duration {
	return time.Duration(c.Hours)*time.Hour + time.Duration(c.Minutes)*time.Minute + time.Duration(c.Seconds)*time.Second
}

type countdown struct {
	questID  string
	deadline time.Time
	warned   bool
}

// Monitor holds one countdown per watched quest.
// Not safe for concurrent use; the engine ticks it from its event loop.
type Monitor struct {
	timers map[string]*countdown
	window time.Duration
}

// NewMonitor creates a monitor. A non-positive window means
// DefaultWarningWindow.
func NewMonitor(window time.Duration) *Monitor {
	if window <= 0 {
		window = DefaultWarningWindow
	}
	return &Monitor{
		timers: make(map[string]*countdown),
		window: window,
	}
}

// Watch arms (or re-arms) the countdown for a quest. warned carries the
// quest's persisted warning flag so a restart does not warn twice.
func (m *Monitor) Watch(questID string, deadline time.Time, warned bool) {
	m.timers[questID] = &countdown{questID: questID, deadline: deadline, warned: warned}
}

// Unwatch tears down a countdown. It reports whether one was armed.
func (m *Monitor) Unwatch(questID string) bool {
	_, ok := m.timers[questID]
	delete(m.timers, questID)
	return ok
}

// Watching reports whether a quest has an armed countdown.
func (m *Monitor) Watching(questID string) bool {
	_, ok := m.timers[questID]
	return ok
}

// Len returns the number of armed countdowns.
func (m *Monitor) Len() int {
	return len(m.timers)
}

// Remaining returns the countdown for a watched quest.
func (m *Monitor) Remaining(questID string, now time.Time) (Countdown, bool) {
	t, ok := m.timers[questID]
	if !ok {
		return Countdown{}, false
	}
	return Until(t.deadline, now), true
}

// Tick evaluates every countdown against now.
//
// A countdown whose deadline has passed yields one EventExpired and is torn
// down. One inside the warning window that has not warned yet yields one
// EventWarning. Events are ordered by quest id.
func (m *Monitor) Tick(now time.Time) []Event {
	if len(m.timers) == 0 {
		return nil
	}

	ids := make([]string, 0, len(m.timers))
	for id := range m.timers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var events []Event
	for _, id := range ids {
		t := m.timers[id]
		remaining := t.deadline.Sub(now)

		switch {
		case remaining <= 0:
			delete(m.timers, id)
			events = append(events, Event{
				Kind:     EventExpired,
				QuestID:  id,
				Deadline: t.deadline,
				At:       now,
			})
		case remaining <= m.window && !t.warned:
			t.warned = true
			events = append(events, Event{
				Kind:      EventWarning,
				QuestID:   id,
				Deadline:  t.deadline,
				Remaining: NewCountdown(remaining),
				At:        now,
			})
		}
	}
	return events
}
