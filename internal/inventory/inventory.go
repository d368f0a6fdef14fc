// Package inventory tracks purchased items and resolves what using one does.
//
// Item effects are an explicit table keyed by ItemKind. A kind with no entry
// in the table still consumes stock when used; it just changes nothing else.
package inventory

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/roach88/lifequest/internal/ledger"
)

// ErrEmptyStock is returned when using an item the player has none of.
var ErrEmptyStock = errors.New("empty stock")

// ItemKind selects the effect an item has when used.
type ItemKind string

const (
	KindHealthPotion ItemKind = "hp_potion"
	KindManaPotion   ItemKind = "mana_potion"
	KindElixir       ItemKind = "elixir"
)

// Effect restores Amount of a resource, capped at the resource's maximum.
type Effect struct {
	Resource ledger.Resource
	Amount   float64
}

var effects = map[ItemKind][]Effect{
	KindHealthPotion: {{Resource: ledger.ResourceHP, Amount: 50}},
	KindManaPotion:   {{Resource: ledger.ResourceMana, Amount: 50}},
	KindElixir: {
		{Resource: ledger.ResourceHP, Amount: 50},
		{Resource: ledger.ResourceMana, Amount: 50},
	},
}

// EffectsOf returns the effects of a kind. Unknown kinds have none.
func EffectsOf(kind ItemKind) []Effect {
	return effects[kind]
}

// Entry is a stack of identical items in the inventory.
type Entry struct {
	ItemID      string    `json:"item_id"`
	Kind        ItemKind  `json:"kind"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Count       int       `json:"count"`
	AcquiredAt  time.Time `json:"acquired_at"`
}

// Restorer is the part of the ledger item effects need.
type Restorer interface {
	State() ledger.State
	Restore(res ledger.Resource, amount, cap float64) float64
}

// UseResult reports the outcome of using an item.
type UseResult struct {
	ItemID    string
	Kind      ItemKind
	Restored  map[ledger.Resource]float64
	Remaining int
	Removed   bool
}

// Inventory holds entries keyed by item id.
// Not safe for concurrent use; the engine serializes access.
type Inventory struct {
	entries map[string]*Entry
}

// New creates an inventory from persisted entries. Entries with a count of
// zero or less are dropped.
func New(entries []Entry) *Inventory {
	inv := &Inventory{entries: make(map[string]*Entry)}
	inv.Load(entries)
	return inv
}

// Load replaces the inventory contents.
func (inv *Inventory) Load(entries []Entry) {
	inv.entries = make(map[string]*Entry, len(entries))
	for _, e := range entries {
		if e.Count <= 0 || e.ItemID == "" {
			continue
		}
		e := e
		if e.Kind == "" {
			e.Kind = ItemKind(e.ItemID)
		}
		inv.entries[e.ItemID] = &e
	}
}

// Add records a purchase: creates the entry or increments its count.
func (inv *Inventory) Add(e Entry) (Entry, error) {
	if e.ItemID == "" {
		return Entry{}, fmt.Errorf("add item: empty item id")
	}
	if e.Count <= 0 {
		return Entry{}, fmt.Errorf("add item %s: count must be positive, got %d", e.ItemID, e.Count)
	}

	if existing, ok := inv.entries[e.ItemID]; ok {
		existing.Count += e.Count
		return *existing, nil
	}

	if e.Kind == "" {
		e.Kind = ItemKind(e.ItemID)
	}
	inv.entries[e.ItemID] = &e
	return e, nil
}

// Use consumes one unit of an item and applies its effects to r.
//
// Fails with ErrEmptyStock, changing nothing, when the item is absent or its
// count is not positive. An entry reaching zero is removed.
func (inv *Inventory) Use(itemID string, r Restorer) (UseResult, error) {
	e, ok := inv.entries[itemID]
	if !ok || e.Count <= 0 {
		return UseResult{}, fmt.Errorf("use %s: %w", itemID, ErrEmptyStock)
	}

	res := UseResult{
		ItemID:   itemID,
		Kind:     e.Kind,
		Restored: make(map[ledger.Resource]float64),
	}

	for _, eff := range EffectsOf(e.Kind) {
		res.Restored[eff.Resource] += r.Restore(eff.Resource, eff.Amount, capOf(r.State(), eff.Resource))
	}

	e.Count--
	res.Remaining = e.Count
	if e.Count == 0 {
		delete(inv.entries, itemID)
		res.Removed = true
	}

	return res, nil
}

// Get returns a copy of an entry.
func (inv *Inventory) Get(itemID string) (Entry, bool) {
	e, ok := inv.entries[itemID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Entries returns copies of all entries, oldest acquisition first.
func (inv *Inventory) Entries() []Entry {
	out := make([]Entry, 0, len(inv.entries))
	for _, e := range inv.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AcquiredAt.Equal(out[j].AcquiredAt) {
			return out[i].AcquiredAt.Before(out[j].AcquiredAt)
		}
		return out[i].ItemID < out[j].ItemID
	})
	return out
}

func capOf(s ledger.State, res ledger.Resource) float64 {
	switch res {
	case ledger.ResourceHP:
		return s.MaxHP
	case ledger.ResourceMana:
		return s.MaxMana
	default:
		return 0
	}
}
