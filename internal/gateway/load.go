package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/lifequest/internal/inventory"
	"github.com/roach88/lifequest/internal/ledger"
	"github.com/roach88/lifequest/internal/quest"
	"github.com/roach88/lifequest/internal/store"
)

// Snapshot is the persisted state read back for reconciliation.
type Snapshot struct {
	// Resources is nil when the remote holds no resource document yet.
	Resources *ledger.State
	Quests    []quest.Quest
	Inventory []inventory.Entry
}

// Load reads resources, quests and inventory from the remote.
func (g *Gateway) Load(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	var doc store.Document
	err := g.retry(ctx, "get resources", func(ctx context.Context) error {
		var err error
		doc, err = g.remote.Get(ctx, CollectionResources, ResourcesID)
		return err
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return Snapshot{}, fmt.Errorf("load resources: %w", err)
	default:
		var s ledger.State
		if err := store.UnmarshalBody(doc.Body, &s); err != nil {
			return Snapshot{}, fmt.Errorf("load resources: %w", err)
		}
		snap.Resources = &s
	}

	quests, err := listAs[quest.Quest](ctx, g, CollectionQuests)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Quests = quests

	entries, err := listAs[inventory.Entry](ctx, g, CollectionInventory)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Inventory = entries

	return snap, nil
}

func listAs[T any](ctx context.Context, g *Gateway, collection string) ([]T, error) {
	var docs []store.Document
	err := g.retry(ctx, "list "+collection, func(ctx context.Context) error {
		var err error
		docs, err = g.remote.List(ctx, collection)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", collection, err)
	}

	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := store.UnmarshalBody(d.Body, &v); err != nil {
			return nil, fmt.Errorf("load %s/%s: %w", collection, d.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}
