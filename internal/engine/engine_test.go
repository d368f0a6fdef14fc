package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lifequest/internal/deadline"
	"github.com/roach88/lifequest/internal/gateway"
	"github.com/roach88/lifequest/internal/ledger"
	"github.com/roach88/lifequest/internal/notify"
	"github.com/roach88/lifequest/internal/penalty"
	"github.com/roach88/lifequest/internal/quest"
	"github.com/roach88/lifequest/internal/testutil"
)

var start = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

type fixture struct {
	e      *Engine
	clock  *testutil.FakeClock
	rec    *notify.Recorder
	remote *testutil.MemoryStore
	gw     *gateway.Gateway
}

func newFixture(t *testing.T, opts ...EngineOption) *fixture {
	t.Helper()
	f := &fixture{
		clock:  testutil.NewFakeClock(start),
		remote: testutil.NewMemoryStore(),
	}
	f.rec = notify.NewRecorder(f.clock.Now)
	f.gw = gateway.New(f.remote, gateway.WithSink(f.rec), gateway.WithRetry(3, time.Millisecond))

	base := []EngineOption{
		WithClock(f.clock),
		WithLocation(time.UTC),
		WithIDGenerator(&quest.SequenceGenerator{Prefix: "q"}),
		WithSink(f.rec),
		WithPersister(f.gw),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	e, err := New(append(base, opts...)...)
	require.NoError(t, err)
	f.e = e

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return f
}

func (f *fixture) snapshot(t *testing.T) Snapshot {
	t.Helper()
	s, err := f.e.Snapshot(context.Background())
	require.NoError(t, err)
	return s
}

// tickAt moves the clock and pushes a tick through the loop.
func (f *fixture) tickAt(t *testing.T, at time.Time) Snapshot {
	t.Helper()
	f.clock.Set(at)
	require.True(t, f.e.Tick(at))
	return f.snapshot(t)
}

func (f *fixture) seed(t *testing.T, s ledger.State, quests ...quest.Quest) {
	t.Helper()
	require.NoError(t, f.e.Reconcile(context.Background(), gateway.Snapshot{Resources: &s, Quests: quests}))
}

func ptr[T any](v T) *T { return &v }

func TestEngine_CreateStartComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q, err := f.e.Create(ctx, quest.Draft{Name: "Ship release", Kind: quest.KindMain, Difficulty: ledger.DifficultyMedium})
	require.NoError(t, err)
	assert.Equal(t, "q-1", q.ID)
	assert.Equal(t, quest.StatusNotStarted, q.Status)
	assert.NotNil(t, f.remote.Body(gateway.CollectionQuests, "q-1"), "creation is saved before returning")

	_, err = f.e.Start(ctx, q.ID)
	require.NoError(t, err)

	c, err := f.e.Complete(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, quest.StatusCompleted, c.Quest.Status)
	assert.Equal(t, 1100.0, c.Outcome.XPGained)
	assert.Equal(t, 550, c.Outcome.CoinsGained)
	assert.Equal(t, 1, c.Outcome.LevelsGained)

	s := f.snapshot(t)
	assert.Equal(t, 2, s.Resources.Level)
	assert.Equal(t, 120.0, s.Resources.XP)
	assert.Equal(t, 1156.0, s.Resources.MaxXP)
	assert.Equal(t, 550, s.Resources.Coins)

	require.NoError(t, f.gw.Flush(ctx))
	assert.Contains(t, string(f.remote.Body(gateway.CollectionQuests, q.ID)), `"status":"completed"`)
	assert.Contains(t, string(f.remote.Body(gateway.CollectionResources, gateway.ResourcesID)), `"level":2`)

	var levelUp bool
	for _, n := range f.rec.ByCategory(notify.CategorySuccess) {
		if n.Message == "Level up! You are now level 2" {
			levelUp = true
		}
	}
	assert.True(t, levelUp)
}

func TestEngine_CompleteTwiceIsInvalidTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q, err := f.e.Create(ctx, quest.Draft{Name: "stretch", Kind: quest.KindDaily})
	require.NoError(t, err)
	_, err = f.e.Complete(ctx, q.ID)
	require.NoError(t, err)

	_, err = f.e.Complete(ctx, q.ID)
	assert.True(t, IsInvalidTransition(err))
	assert.ErrorIs(t, err, quest.ErrInvalidTransition)
}

func TestEngine_StartGates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q, err := f.e.Create(ctx, quest.Draft{Name: "dragon", Kind: quest.KindMain, RequiredLevel: 5})
	require.NoError(t, err)

	_, err = f.e.Start(ctx, q.ID)
	assert.True(t, IsNotEligible(err))
	assert.ErrorIs(t, err, quest.ErrQuestNotEligible)

	_, err = f.e.Start(ctx, "missing")
	assert.True(t, IsNotFound(err))
}

func TestEngine_DailyCap(t *testing.T) {
	f := newFixture(t, WithDailyCap(1))
	ctx := context.Background()

	_, err := f.e.Create(ctx, quest.Draft{Name: "one", Kind: quest.KindDaily})
	require.NoError(t, err)

	_, err = f.e.Create(ctx, quest.Draft{Name: "two", Kind: quest.KindDaily})
	assert.True(t, IsLimitExceeded(err))
}

func TestEngine_CreateKeepsQuestWhenSaveFails(t *testing.T) {
	f := newFixture(t)
	f.remote.FailNext(3, gateway.ErrThrottled)

	q, err := f.e.Create(context.Background(), quest.Draft{Name: "offline", Kind: quest.KindMain})

	require.Error(t, err)
	assert.True(t, IsPersistence(err))
	assert.Equal(t, "q-1", q.ID)

	_, ok := f.snapshot(t).Quest("q-1")
	assert.True(t, ok, "local state is kept")
	assert.Len(t, f.rec.ByCategory(notify.CategoryError), 1)
}

func TestEngine_WarningFiresOnce(t *testing.T) {
	var warned []deadline.Event
	f := newFixture(t, WithWarningObserver(func(ev deadline.Event) { warned = append(warned, ev) }))
	ctx := context.Background()

	q, err := f.e.Create(ctx, quest.Draft{Name: "report", Kind: quest.KindMain, Deadline: ptr(start.Add(5 * time.Hour))})
	require.NoError(t, err)
	_, err = f.e.Start(ctx, q.ID)
	require.NoError(t, err)

	s := f.tickAt(t, start.Add(30*time.Minute))
	assert.Equal(t, "4:30:00", s.Countdowns[q.ID].String())
	assert.Empty(t, f.rec.ByCategory(notify.CategoryWarning))

	s = f.tickAt(t, start.Add(time.Hour))
	got, _ := s.Quest(q.ID)
	assert.True(t, got.WarningSent)

	f.tickAt(t, start.Add(2*time.Hour))

	require.Len(t, f.rec.ByCategory(notify.CategoryWarning), 1)
	assert.Equal(t, "report is due in 4:00:00", f.rec.ByCategory(notify.CategoryWarning)[0].Message)
	require.Len(t, warned, 1)
	assert.Equal(t, q.ID, warned[0].QuestID)
}

func TestEngine_ExpiryPenalizesOnce(t *testing.T) {
	var expired int
	f := newFixture(t, WithExpiryObserver(func(deadline.Event, penalty.Result) { expired++ }))
	ctx := context.Background()

	q, err := f.e.Create(ctx, quest.Draft{Name: "report", Kind: quest.KindMain, Deadline: ptr(start.Add(time.Hour))})
	require.NoError(t, err)
	_, err = f.e.Start(ctx, q.ID)
	require.NoError(t, err)

	s := f.tickAt(t, start.Add(time.Hour))
	assert.Equal(t, 15.0, s.Resources.HP)
	assert.Equal(t, 18.0, s.Resources.Mana)

	got, _ := s.Quest(q.ID)
	assert.Equal(t, quest.StatusNotStarted, got.Status)
	require.NotNil(t, got.Deadline)
	assert.Equal(t, start.Add(25*time.Hour), *got.Deadline)
	assert.NotContains(t, s.Countdowns, q.ID)

	s = f.tickAt(t, start.Add(2*time.Hour))
	assert.Equal(t, 15.0, s.Resources.HP, "a torn down countdown never fires again")
	assert.Len(t, f.rec.ByCategory(notify.CategoryPenalty), 1)
	assert.Equal(t, 1, expired)
}

func TestEngine_CompletionBeforeExpiryWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q, err := f.e.Create(ctx, quest.Draft{Name: "report", Kind: quest.KindMain, Deadline: ptr(start.Add(time.Hour))})
	require.NoError(t, err)
	_, err = f.e.Start(ctx, q.ID)
	require.NoError(t, err)

	f.clock.Set(start.Add(time.Hour))
	_, err = f.e.Complete(ctx, q.ID)
	require.NoError(t, err)

	s := f.tickAt(t, start.Add(time.Hour))
	got, _ := s.Quest(q.ID)
	assert.Equal(t, quest.StatusCompleted, got.Status)
	assert.Empty(t, f.rec.ByCategory(notify.CategoryPenalty))
}

func TestEngine_ExpiryBeforeCompletionWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q, err := f.e.Create(ctx, quest.Draft{Name: "report", Kind: quest.KindMain, Deadline: ptr(start.Add(time.Hour))})
	require.NoError(t, err)
	_, err = f.e.Start(ctx, q.ID)
	require.NoError(t, err)

	f.tickAt(t, start.Add(time.Hour))
	_, err = f.e.Complete(ctx, q.ID)

	assert.True(t, IsInvalidTransition(err), "expired quest is back to not_started")
	assert.Len(t, f.rec.ByCategory(notify.CategoryPenalty), 1)
}

func TestEngine_ConcurrentCompleteAndExpire(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		ctx := context.Background()

		q, err := f.e.Create(ctx, quest.Draft{Name: "race", Kind: quest.KindMain, Deadline: ptr(start.Add(time.Hour))})
		require.NoError(t, err)
		_, err = f.e.Start(ctx, q.ID)
		require.NoError(t, err)
		f.clock.Set(start.Add(time.Hour))

		var wg sync.WaitGroup
		var completeErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, completeErr = f.e.Complete(ctx, q.ID)
		}()
		go func() {
			defer wg.Done()
			f.e.Tick(start.Add(time.Hour))
		}()
		wg.Wait()

		s := f.snapshot(t)
		got, _ := s.Quest(q.ID)
		penalties := len(f.rec.ByCategory(notify.CategoryPenalty))
		if completeErr == nil {
			assert.Equal(t, quest.StatusCompleted, got.Status)
			assert.Equal(t, 0, penalties)
		} else {
			assert.True(t, IsInvalidTransition(completeErr))
			assert.Equal(t, quest.StatusNotStarted, got.Status)
			assert.Equal(t, 1, penalties)
		}
	}
}

func TestEngine_DailyResetAtMidnight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q, err := f.e.Create(ctx, quest.Draft{Name: "meditate", Kind: quest.KindDaily, Repeatable: true})
	require.NoError(t, err)

	midnight := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, midnight, f.snapshot(t).NextReset)

	f.tickAt(t, midnight.Add(-time.Second))
	assert.Empty(t, f.rec.ByCategory(notify.CategoryPenalty))

	s := f.tickAt(t, midnight)
	assert.Equal(t, 15.0, s.Resources.HP)
	assert.Equal(t, midnight.Add(24*time.Hour), s.NextReset)
	assert.Equal(t, midnight.Add(time.Hour), s.Resources.PenaltyUntil)

	got, _ := s.Quest(q.ID)
	require.NotNil(t, got.Deadline)
	assert.Equal(t, midnight.Add(24*time.Hour), *got.Deadline)

	_, err = f.e.Start(ctx, q.ID)
	assert.True(t, IsNotEligible(err), "penalty window blocks repeatable dailies")
}

func TestEngine_InProgressDailyIsPenalizedOnceAtMidnight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	midnight := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)

	q, err := f.e.Create(ctx, quest.Draft{Name: "meditate", Kind: quest.KindDaily, Repeatable: true, Deadline: ptr(midnight)})
	require.NoError(t, err)
	_, err = f.e.Start(ctx, q.ID)
	require.NoError(t, err)

	s := f.tickAt(t, midnight)
	assert.Equal(t, 15.0, s.Resources.HP)
	assert.Len(t, f.rec.ByCategory(notify.CategoryPenalty), 1)

	got, _ := s.Quest(q.ID)
	assert.Equal(t, quest.StatusNotStarted, got.Status)
}

func TestEngine_BuyAndUseItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.e.Buy(ctx, "hp_potion")
	assert.True(t, IsInsufficientResource(err), "new profile has no coins")

	st := ledger.DefaultState()
	st.Coins = 100
	st.HP = 10
	f.seed(t, st)

	entry, err := f.e.Buy(ctx, "hp_potion")
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Count)
	assert.Equal(t, 60, f.snapshot(t).Resources.Coins)

	res, err := f.e.UseItem(ctx, "hp_potion")
	require.NoError(t, err)
	assert.True(t, res.Removed)
	assert.Equal(t, 50.0, res.Restored[ledger.ResourceHP])

	s := f.snapshot(t)
	assert.Equal(t, 60.0, s.Resources.HP)
	assert.Empty(t, s.Inventory)

	_, err = f.e.UseItem(ctx, "hp_potion")
	assert.True(t, IsEmptyStock(err))

	_, err = f.e.Buy(ctx, "dragon_egg")
	assert.True(t, IsNotFound(err))
	assert.ErrorIs(t, err, ErrUnknownItem)

	require.NoError(t, f.gw.Flush(ctx))
	assert.Nil(t, f.remote.Body(gateway.CollectionInventory, "hp_potion"), "used up item is removed")
}

func TestEngine_CompleteSubquest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q, err := f.e.Create(ctx, quest.Draft{
		Name:      "move house",
		Kind:      quest.KindMain,
		Subquests: []quest.Subquest{{Name: "pack"}, {Name: "drive"}},
	})
	require.NoError(t, err)
	require.Len(t, q.Subquests, 2)

	got, err := f.e.CompleteSubquest(ctx, q.ID, q.Subquests[0].ID)
	require.NoError(t, err)
	assert.True(t, got.Subquests[0].Done)
	assert.Equal(t, quest.StatusNotStarted, got.Status)

	s := f.snapshot(t)
	assert.Equal(t, 20, s.Resources.Coins)
	assert.Equal(t, 115.0, s.Resources.Mana)

	_, err = f.e.CompleteSubquest(ctx, q.ID, q.Subquests[0].ID)
	assert.True(t, IsInvalidTransition(err))
}

func TestEngine_DeleteStripsDependencies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.e.Create(ctx, quest.Draft{Name: "a", Kind: quest.KindMain})
	require.NoError(t, err)
	b, err := f.e.Create(ctx, quest.Draft{Name: "b", Kind: quest.KindMain, Dependencies: []string{a.ID}})
	require.NoError(t, err)

	_, err = f.e.Delete(ctx, a.ID)
	require.NoError(t, err)

	got, _ := f.snapshot(t).Quest(b.ID)
	assert.Empty(t, got.Dependencies)

	_, err = f.e.Start(ctx, b.ID)
	assert.NoError(t, err)
}

func TestEngine_EditDeadlineRearmsCountdown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q, err := f.e.Create(ctx, quest.Draft{Name: "report", Kind: quest.KindMain, Deadline: ptr(start.Add(time.Hour))})
	require.NoError(t, err)
	_, err = f.e.Start(ctx, q.ID)
	require.NoError(t, err)

	_, err = f.e.Edit(ctx, q.ID, quest.Patch{Deadline: ptr(start.Add(10 * time.Hour))})
	require.NoError(t, err)
	assert.Equal(t, "10:00:00", f.snapshot(t).Countdowns[q.ID].String())

	_, err = f.e.Edit(ctx, q.ID, quest.Patch{ClearDeadline: true})
	require.NoError(t, err)
	assert.NotContains(t, f.snapshot(t).Countdowns, q.ID)
}

func TestEngine_ReconcileRebuildsCountdowns(t *testing.T) {
	f := newFixture(t)

	dl := start.Add(90 * time.Minute)
	f.seed(t, ledger.DefaultState(),
		quest.Quest{ID: "a", Name: "in flight", Kind: quest.KindMain, Status: quest.StatusInProgress, Deadline: &dl, Difficulty: ledger.DifficultyEasy},
		quest.Quest{ID: "b", Name: "idle", Kind: quest.KindMain, Status: quest.StatusNotStarted, Deadline: &dl, Difficulty: ledger.DifficultyEasy},
	)

	s := f.snapshot(t)
	require.Len(t, s.Quests, 2)
	assert.Equal(t, "1:30:00", s.Countdowns["a"].String())
	assert.NotContains(t, s.Countdowns, "b")
}

func TestEngine_ReconcileWithoutResourcesSavesDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.e.Reconcile(ctx, gateway.Snapshot{}))
	require.NoError(t, f.gw.Flush(ctx))

	assert.NotNil(t, f.remote.Body(gateway.CollectionResources, gateway.ResourcesID))
}

func TestEngine_Stop(t *testing.T) {
	f := newFixture(t)

	f.e.Stop()

	_, err := f.e.Create(context.Background(), quest.Draft{Name: "late", Kind: quest.KindMain})
	assert.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, ErrCodeStopped, CodeOf(err))
	assert.False(t, f.e.Tick(start))
}

func TestEngine_CommandHonorsContext(t *testing.T) {
	e, err := New(WithClock(testutil.NewFakeClock(start)), WithLocation(time.UTC))
	require.NoError(t, err)

	// No Run loop: the command can only end through its context.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = e.Snapshot(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestError_Format(t *testing.T) {
	err := wrap("start", "q-1", quest.ErrQuestNotEligible)

	assert.Equal(t, "NOT_ELIGIBLE: start q-1: quest not eligible", err.Error())
	assert.Same(t, err, wrap("again", "", err), "an *Error passes through")
	assert.Nil(t, wrap("noop", "", nil))
	assert.Equal(t, ErrCodeInternal, CodeOf(wrap("x", "", errors.New("boom"))))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
}
