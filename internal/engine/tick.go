package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/lifequest/internal/deadline"
	"github.com/roach88/lifequest/internal/notify"
	"github.com/roach88/lifequest/internal/quest"
)

// tick applies timer events for now.
//
// The daily reset runs before deadline checks. A repeatable daily that is
// still in progress at midnight is settled by the reset alone and unwatched,
// so it is never penalized twice for the same day.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) tick(ctx context.Context, now time.Time) {
	if ev, fired := e.reset.Tick(now); fired {
		e.dailyReset(ev, now)
	}

	events := e.monitor.Tick(now)
	if len(events) > 0 {
		e.logger.Debug("deadline events", "count", len(events), "at", now)
	}
	for _, ev := range events {
		switch ev.Kind {
		case deadline.EventWarning:
			e.warn(ev)
		case deadline.EventExpired:
			e.expire(ev, now)
		}
	}
}

func (e *Engine) warn(ev deadline.Event) {
	// Re-validate: the quest may have been completed or deleted since the
	// countdown was armed.
	q, ok := e.book.Get(ev.QuestID)
	if !ok || q.Status != quest.StatusInProgress {
		return
	}
	q, ok = e.book.MarkWarned(ev.QuestID)
	if !ok {
		return
	}
	e.saveQuest(q)
	e.logger.Info("deadline warning", "id", q.ID, "remaining", ev.Remaining.String())
	e.sink.AddNotification(fmt.Sprintf("%s is due in %s", q.Name, ev.Remaining), notify.CategoryWarning)
	if e.onWarning != nil {
		e.onWarning(ev)
	}
}

func (e *Engine) expire(ev deadline.Event, now time.Time) {
	res, err := e.penalties.Expire(ev.QuestID, now)
	if err != nil {
		e.logger.Debug("expiry skipped", "id", ev.QuestID, "error", err)
		return
	}
	if !res.Penalized {
		return
	}

	e.saveResources()
	for _, q := range res.Reset {
		e.monitor.Unwatch(q.ID)
		e.saveQuest(q)
		e.logger.Info("quest expired",
			"id", q.ID,
			"hp_lost", res.Loss.HP,
			"mana_lost", res.Loss.Mana,
			"coins_lost", res.Loss.Coins,
		)
		e.sink.AddNotification(fmt.Sprintf("%s expired: -%g hp, -%g mana, -%d coins", q.Name, res.Loss.HP, res.Loss.Mana, res.Loss.Coins), notify.CategoryPenalty)
	}
	if e.onExpired != nil {
		e.onExpired(ev, res)
	}
}

func (e *Engine) dailyReset(ev deadline.Event, now time.Time) {
	res, err := e.penalties.ResetRepeatableDailies(now)
	if err != nil {
		e.logger.Error("daily reset failed", "error", err)
	}

	for _, q := range res.Reset {
		e.monitor.Unwatch(q.ID)
		e.saveQuest(q)
	}
	for _, q := range res.Renewed {
		e.monitor.Unwatch(q.ID)
		e.saveQuest(q)
	}

	e.logger.Info("daily reset",
		"boundary", ev.Deadline,
		"missed", len(res.Reset),
		"renewed", len(res.Renewed),
		"next", e.reset.Next(),
	)
	if res.Penalized {
		e.saveResources()
		e.sink.AddNotification(fmt.Sprintf("%d daily quest(s) missed: -%g hp, -%g mana, -%d coins", len(res.Reset), res.Loss.HP, res.Loss.Mana, res.Loss.Coins), notify.CategoryPenalty)
	}
	if len(res.Reset)+len(res.Renewed) > 0 {
		e.sink.AddNotification("A new day begins. Daily quests are ready.", notify.CategoryInfo)
	}
}
