package gateway

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lifequest/internal/inventory"
	"github.com/roach88/lifequest/internal/ledger"
	"github.com/roach88/lifequest/internal/notify"
	"github.com/roach88/lifequest/internal/quest"
	"github.com/roach88/lifequest/internal/store"
	"github.com/roach88/lifequest/internal/testutil"
)

type flaky struct{ retry bool }

func (e flaky) Error() string   { return "flaky remote" }
func (e flaky) Retryable() bool { return e.retry }

func newGateway(t *testing.T, remote RemoteStore) (*Gateway, *notify.Recorder) {
	t.Helper()
	rec := notify.NewRecorder(nil)
	return New(remote, WithSink(rec), WithRetry(3, time.Millisecond)), rec
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("nope"), false},
		{"throttled", fmt.Errorf("call: %w", ErrThrottled), true},
		{"exhausted", ErrExhausted, true},
		{"retryable method", flaky{retry: true}, true},
		{"retryable false", flaky{retry: false}, false},
		{"store transient", &store.TransientError{Op: "upsert", Err: errors.New("busy")}, true},
		{"not found", store.ErrNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestPut_LatestIntentWins(t *testing.T) {
	remote := testutil.NewMemoryStore()
	g, _ := newGateway(t, remote)

	require.NoError(t, g.Put(CollectionQuests, "q1", map[string]int{"v": 1}))
	require.NoError(t, g.Put(CollectionQuests, "q2", map[string]int{"v": 1}))
	require.NoError(t, g.Put(CollectionQuests, "q1", map[string]int{"v": 2}))
	assert.Equal(t, 2, g.Pending())

	require.NoError(t, g.Flush(context.Background()))

	assert.Equal(t, 0, g.Pending())
	assert.Equal(t, 2, remote.Writes())
	assert.JSONEq(t, `{"v":2}`, string(remote.Body(CollectionQuests, "q1")))
}

func TestRemove_SupersedesPut(t *testing.T) {
	remote := testutil.NewMemoryStore()
	g, _ := newGateway(t, remote)
	ctx := context.Background()

	require.NoError(t, remote.Upsert(ctx, CollectionQuests, "q1", []byte(`{}`)))
	require.NoError(t, g.Put(CollectionQuests, "q1", map[string]int{"v": 1}))
	g.Remove(CollectionQuests, "q1")

	require.NoError(t, g.Flush(ctx))
	assert.Nil(t, remote.Body(CollectionQuests, "q1"))
}

func TestFlush_RetriesTransientFailures(t *testing.T) {
	remote := testutil.NewMemoryStore()
	remote.FailNext(2, ErrThrottled)
	g, rec := newGateway(t, remote)

	require.NoError(t, g.Put(CollectionQuests, "q1", map[string]int{"v": 1}))
	require.NoError(t, g.Flush(context.Background()))

	assert.Equal(t, 3, remote.Attempts())
	assert.Equal(t, 1, remote.Writes())
	assert.Empty(t, rec.All())
}

func TestFlush_GivesUpAfterThreeAttempts(t *testing.T) {
	remote := testutil.NewMemoryStore()
	remote.FailNext(5, flaky{retry: true})
	g, rec := newGateway(t, remote)

	require.NoError(t, g.Put(CollectionQuests, "q1", map[string]int{"v": 1}))
	err := g.Flush(context.Background())

	require.Error(t, err)
	assert.Equal(t, 3, remote.Attempts())
	assert.Equal(t, 0, g.Pending(), "failed intents are dropped")

	errs := rec.ByCategory(notify.CategoryError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "q1")
}

func TestFlush_PermanentFailureIsNotRetried(t *testing.T) {
	remote := testutil.NewMemoryStore()
	remote.FailNext(1, errors.New("schema mismatch"))
	g, rec := newGateway(t, remote)

	require.NoError(t, g.Put(CollectionQuests, "q1", map[string]int{"v": 1}))
	assert.Error(t, g.Flush(context.Background()))

	assert.Equal(t, 1, remote.Attempts())
	assert.Len(t, rec.ByCategory(notify.CategoryError), 1)
}

func TestPutNow(t *testing.T) {
	remote := testutil.NewMemoryStore()
	g, _ := newGateway(t, remote)

	require.NoError(t, g.Put(CollectionQuests, "q1", map[string]int{"v": 1}))
	require.NoError(t, g.PutNow(context.Background(), CollectionQuests, "q1", map[string]int{"v": 2}))

	assert.Equal(t, 0, g.Pending(), "awaited write supersedes the pending intent")
	assert.JSONEq(t, `{"v":2}`, string(remote.Body(CollectionQuests, "q1")))
}

func TestPutNow_ReportsFailure(t *testing.T) {
	remote := testutil.NewMemoryStore()
	remote.FailNext(3, ErrExhausted)
	g, rec := newGateway(t, remote)

	err := g.PutNow(context.Background(), CollectionQuests, "q1", map[string]int{"v": 1})

	assert.ErrorIs(t, err, ErrExhausted)
	assert.Len(t, rec.ByCategory(notify.CategoryError), 1)
}

func TestRun_FlushesInBackground(t *testing.T) {
	remote := testutil.NewMemoryStore()
	g, _ := newGateway(t, remote)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		g.Run(ctx)
		close(done)
	}()

	require.NoError(t, g.Put(CollectionQuests, "q1", map[string]int{"v": 1}))
	assert.Eventually(t, func() bool { return remote.Writes() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestRun_FlushesRemainderOnShutdown(t *testing.T) {
	remote := testutil.NewMemoryStore()
	g, _ := newGateway(t, remote)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, g.Put(CollectionQuests, "q1", map[string]int{"v": 1}))
	g.Run(ctx)

	assert.Equal(t, 0, g.Pending())
	assert.NotNil(t, remote.Body(CollectionQuests, "q1"))
}

func TestLoad_Empty(t *testing.T) {
	g, _ := newGateway(t, testutil.NewMemoryStore())

	snap, err := g.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap.Resources)
	assert.Empty(t, snap.Quests)
	assert.Empty(t, snap.Inventory)
}

func TestLoad_RetriesTransientRead(t *testing.T) {
	remote := testutil.NewMemoryStore()
	remote.FailNext(1, ErrThrottled)
	g, _ := newGateway(t, remote)

	_, err := g.Load(context.Background())
	assert.NoError(t, err)
}

func TestResourceStateRoundTrip_SQLite(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "lifequest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	g, _ := newGateway(t, s)
	ctx := context.Background()

	penalty := time.Date(2026, 10, 15, 1, 0, 0, 0, time.UTC)
	state := ledger.State{
		Level: 2, XP: 370, MaxXP: 1156, Coins: 675,
		HP: 73, MaxHP: 110, Mana: 100, MaxMana: 132,
		PenaltyUntil: penalty,
	}
	deadline := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	q := quest.Quest{
		ID: "q1", Name: "Café run", Kind: quest.KindDaily, Difficulty: ledger.DifficultyHard,
		Status: quest.StatusInProgress, Repeatable: true, Deadline: &deadline, Priority: 1,
		Dependencies: []string{}, Subquests: []quest.Subquest{{ID: "q1-1", Name: "lace up"}},
		CreatedAt: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC),
	}
	entry := inventory.Entry{
		ItemID: "elixir", Kind: inventory.KindElixir, Name: "Elixir", Count: 2,
		AcquiredAt: time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC),
	}

	require.NoError(t, g.PutNow(ctx, CollectionResources, ResourcesID, state))
	require.NoError(t, g.Put(CollectionQuests, q.ID, q))
	require.NoError(t, g.Put(CollectionInventory, entry.ItemID, entry))
	require.NoError(t, g.Flush(ctx))

	snap, err := g.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap.Resources)
	assert.Equal(t, state.Level, snap.Resources.Level)
	assert.Equal(t, state.MaxXP, snap.Resources.MaxXP)
	assert.Equal(t, state.Coins, snap.Resources.Coins)
	assert.Equal(t, state.HP, snap.Resources.HP)
	assert.True(t, state.PenaltyUntil.Equal(snap.Resources.PenaltyUntil))

	require.Len(t, snap.Quests, 1)
	assert.Equal(t, q.Name, snap.Quests[0].Name)
	assert.Equal(t, q.Status, snap.Quests[0].Status)
	require.NotNil(t, snap.Quests[0].Deadline)
	assert.True(t, deadline.Equal(*snap.Quests[0].Deadline))
	assert.Equal(t, q.Subquests, snap.Quests[0].Subquests)

	require.Len(t, snap.Inventory, 1)
	assert.Equal(t, entry.Count, snap.Inventory[0].Count)
	assert.Equal(t, entry.Kind, snap.Inventory[0].Kind)
}
