package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/lifequest/internal/deadline"
	"github.com/roach88/lifequest/internal/gateway"
	"github.com/roach88/lifequest/internal/inventory"
	"github.com/roach88/lifequest/internal/ledger"
	"github.com/roach88/lifequest/internal/notify"
	"github.com/roach88/lifequest/internal/quest"
)

// Completion is the result of completing a quest.
type Completion struct {
	Quest   quest.Quest    `json:"quest"`
	Outcome ledger.Outcome `json:"outcome"`
}

// Create adds a quest and waits for it to be saved.
//
// If the durable write fails the quest is kept locally and returned together
// with an ErrCodePersistence error.
func (e *Engine) Create(ctx context.Context, d quest.Draft) (quest.Quest, error) {
	return call(ctx, e, "create", func(ctx context.Context, now time.Time) (quest.Quest, error) {
		q, err := e.book.Create(d, now)
		if err != nil {
			return quest.Quest{}, wrap("create", "", err)
		}
		e.logger.Info("quest created", "id", q.ID, "kind", q.Kind, "difficulty", q.Difficulty)
		e.sink.AddNotification(fmt.Sprintf("New quest: %s", q.Name), notify.CategoryQuest)

		if e.persist != nil {
			if err := e.persist.PutNow(ctx, gateway.CollectionQuests, q.ID, q); err != nil {
				return q, &Error{Code: ErrCodePersistence, Op: "create", Target: q.ID, Err: err}
			}
		}
		return q, nil
	})
}

// Edit changes an existing quest.
func (e *Engine) Edit(ctx context.Context, id string, p quest.Patch) (quest.Quest, error) {
	return call(ctx, e, "edit", func(ctx context.Context, now time.Time) (quest.Quest, error) {
		q, err := e.book.Edit(id, p)
		if err != nil {
			return quest.Quest{}, wrap("edit", id, err)
		}
		e.rewatch(q)
		e.saveQuest(q)
		e.logger.Info("quest edited", "id", q.ID)
		return q, nil
	})
}

// Delete removes a quest and strips it from other quests' dependencies.
func (e *Engine) Delete(ctx context.Context, id string) (quest.Quest, error) {
	return call(ctx, e, "delete", func(ctx context.Context, now time.Time) (quest.Quest, error) {
		q, touched, err := e.book.Delete(id)
		if err != nil {
			return quest.Quest{}, wrap("delete", id, err)
		}
		e.monitor.Unwatch(id)
		if e.persist != nil {
			e.persist.Remove(gateway.CollectionQuests, id)
		}
		for _, t := range touched {
			e.saveQuest(t)
		}
		e.logger.Info("quest deleted", "id", id, "dependents", len(touched))
		return q, nil
	})
}

// Start moves a quest to in_progress after checking its gates, and begins
// its deadline countdown.
func (e *Engine) Start(ctx context.Context, id string) (quest.Quest, error) {
	return call(ctx, e, "start", func(ctx context.Context, now time.Time) (quest.Quest, error) {
		q, err := e.book.Start(id, e.ledger.State(), now)
		if err != nil {
			return quest.Quest{}, wrap("start", id, err)
		}
		e.rewatch(q)
		e.saveQuest(q)
		e.logger.Info("quest started", "id", q.ID)
		e.sink.AddNotification(fmt.Sprintf("Quest started: %s", q.Name), notify.CategoryQuest)
		return q, nil
	})
}

// Complete finishes a quest and pays its reward.
func (e *Engine) Complete(ctx context.Context, id string) (Completion, error) {
	return call(ctx, e, "complete", func(ctx context.Context, now time.Time) (Completion, error) {
		q, out, err := e.book.Complete(id, e.ledger, now)
		if err != nil {
			return Completion{}, wrap("complete", id, err)
		}
		e.monitor.Unwatch(id)
		e.saveQuest(q)
		e.saveResources()

		e.logger.Info("quest completed",
			"id", q.ID,
			"xp", out.XPGained,
			"coins", out.CoinsGained,
			"level", out.Level,
		)
		e.sink.AddNotification(fmt.Sprintf("Quest complete: %s (+%g xp, +%d coins)", q.Name, out.XPGained, out.CoinsGained), notify.CategorySuccess)
		if out.LevelsGained > 0 {
			e.sink.AddNotification(fmt.Sprintf("Level up! You are now level %d", out.Level), notify.CategorySuccess)
		}
		return Completion{Quest: q, Outcome: out}, nil
	})
}

// CompleteSubquest checks off one sub-entry of a quest.
func (e *Engine) CompleteSubquest(ctx context.Context, questID, subID string) (quest.Quest, error) {
	return call(ctx, e, "complete subquest", func(ctx context.Context, now time.Time) (quest.Quest, error) {
		q, err := e.book.CompleteSubquest(questID, subID, e.ledger)
		if err != nil {
			return quest.Quest{}, wrap("complete subquest", questID+"/"+subID, err)
		}
		e.saveQuest(q)
		e.saveResources()
		e.logger.Info("subquest completed", "quest", questID, "subquest", subID)
		e.sink.AddNotification(fmt.Sprintf("Step done on %s (+%d coins)", q.Name, quest.SubquestCoins), notify.CategorySuccess)
		return q, nil
	})
}

// Buy purchases one unit of a catalog item.
func (e *Engine) Buy(ctx context.Context, itemID string) (inventory.Entry, error) {
	return call(ctx, e, "buy", func(ctx context.Context, now time.Time) (inventory.Entry, error) {
		item, ok := e.catalog.Lookup(itemID)
		if !ok {
			return inventory.Entry{}, wrap("buy", itemID, ErrUnknownItem)
		}
		if err := e.ledger.SpendCoins(item.Price); err != nil {
			return inventory.Entry{}, wrap("buy", itemID, err)
		}
		entry, err := e.inv.Add(inventory.Entry{
			ItemID:      item.ID,
			Kind:        inventory.ItemKind(item.Kind),
			Name:        item.Name,
			Description: item.Description,
			Count:       1,
			AcquiredAt:  now,
		})
		if err != nil {
			return inventory.Entry{}, wrap("buy", itemID, err)
		}
		e.saveResources()
		e.saveEntry(entry)
		e.logger.Info("item bought", "item", item.ID, "price", item.Price, "count", entry.Count)
		e.sink.AddNotification(fmt.Sprintf("Bought %s for %d coins", item.Name, item.Price), notify.CategorySuccess)
		return entry, nil
	})
}

// UseItem consumes one unit of an owned item and applies its effect.
func (e *Engine) UseItem(ctx context.Context, itemID string) (inventory.UseResult, error) {
	return call(ctx, e, "use", func(ctx context.Context, now time.Time) (inventory.UseResult, error) {
		res, err := e.inv.Use(itemID, e.ledger)
		if err != nil {
			return inventory.UseResult{}, wrap("use", itemID, err)
		}
		e.saveResources()
		if res.Removed {
			if e.persist != nil {
				e.persist.Remove(gateway.CollectionInventory, itemID)
			}
		} else if entry, ok := e.inv.Get(itemID); ok {
			e.saveEntry(entry)
		}
		e.logger.Info("item used", "item", itemID, "remaining", res.Remaining)
		e.sink.AddNotification(fmt.Sprintf("Used %s", itemID), notify.CategoryInfo)
		return res, nil
	})
}

// Reconcile replaces engine state with a persisted snapshot and rebuilds the
// deadline countdowns of in-progress quests. A snapshot without resources
// keeps the current ledger and saves it.
func (e *Engine) Reconcile(ctx context.Context, snap gateway.Snapshot) error {
	_, err := call(ctx, e, "reconcile", func(ctx context.Context, now time.Time) (struct{}, error) {
		if snap.Resources != nil {
			e.ledger.Load(*snap.Resources)
		} else {
			e.saveResources()
		}
		e.book.Load(snap.Quests)
		e.inv.Load(snap.Inventory)

		e.monitor = deadline.NewMonitor(e.warningWindow)
		for _, q := range e.book.InProgress() {
			e.rewatch(q)
		}
		e.logger.Info("state reconciled",
			"quests", e.book.Len(),
			"items", len(snap.Inventory),
			"watching", e.monitor.Len(),
		)
		return struct{}{}, nil
	})
	return err
}

// rewatch keeps the monitor in step with a quest's status and deadline.
func (e *Engine) rewatch(q quest.Quest) {
	if q.Status != quest.StatusInProgress || q.Deadline == nil {
		e.monitor.Unwatch(q.ID)
		return
	}
	e.monitor.Watch(q.ID, *q.Deadline, q.WarningSent)
}

func (e *Engine) saveQuest(q quest.Quest) {
	if e.persist == nil {
		return
	}
	if err := e.persist.Put(gateway.CollectionQuests, q.ID, q); err != nil {
		e.logger.Error("save quest failed", "id", q.ID, "error", err)
	}
}

func (e *Engine) saveResources() {
	if e.persist == nil {
		return
	}
	if err := e.persist.Put(gateway.CollectionResources, gateway.ResourcesID, e.ledger.State()); err != nil {
		e.logger.Error("save resources failed", "error", err)
	}
}

func (e *Engine) saveEntry(entry inventory.Entry) {
	if e.persist == nil {
		return
	}
	if err := e.persist.Put(gateway.CollectionInventory, entry.ItemID, entry); err != nil {
		e.logger.Error("save inventory failed", "item", entry.ItemID, "error", err)
	}
}
