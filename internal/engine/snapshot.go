package engine

import (
	"context"
	"time"

	"github.com/roach88/lifequest/internal/catalog"
	"github.com/roach88/lifequest/internal/deadline"
	"github.com/roach88/lifequest/internal/inventory"
	"github.com/roach88/lifequest/internal/ledger"
	"github.com/roach88/lifequest/internal/quest"
)

// Snapshot is a consistent read of the whole engine state.
type Snapshot struct {
	// Seq is the number of events applied so far.
	Seq        int64                         `json:"seq"`
	At         time.Time                     `json:"at"`
	Resources  ledger.State                  `json:"resources"`
	Quests     []quest.Quest                 `json:"quests"`
	Inventory  []inventory.Entry             `json:"inventory"`
	Countdowns map[string]deadline.Countdown `json:"countdowns"`
	NextReset  time.Time                     `json:"next_reset"`
	UntilReset deadline.Countdown            `json:"until_reset"`
}

// Snapshot reads the current state through the loop, so it reflects every
// command and tick enqueued before it.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	return call(ctx, e, "snapshot", func(ctx context.Context, now time.Time) (Snapshot, error) {
		s := Snapshot{
			Seq:        e.seq,
			At:         now,
			Resources:  e.ledger.State(),
			Quests:     e.book.All(),
			Inventory:  e.inv.Entries(),
			Countdowns: make(map[string]deadline.Countdown),
			NextReset:  e.reset.Next(),
			UntilReset: e.reset.Remaining(now),
		}
		for _, q := range e.book.InProgress() {
			if c, ok := e.monitor.Remaining(q.ID, now); ok {
				s.Countdowns[q.ID] = c
			}
		}
		return s, nil
	})
}

// Quest returns one quest.
func (s Snapshot) Quest(id string) (quest.Quest, bool) {
	for _, q := range s.Quests {
		if q.ID == id {
			return q, true
		}
	}
	return quest.Quest{}, false
}

// Item returns one inventory entry.
func (s Snapshot) Item(id string) (inventory.Entry, bool) {
	for _, it := range s.Inventory {
		if it.ItemID == id {
			return it, true
		}
	}
	return inventory.Entry{}, false
}

// Catalog returns the shop items by price. The catalog is immutable, so
// this does not go through the loop.
func (e *Engine) Catalog() []catalog.Item {
	return e.catalog.Items()
}
