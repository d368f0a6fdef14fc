package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/lifequest/internal/engine"
	"github.com/roach88/lifequest/internal/gateway"
	"github.com/roach88/lifequest/internal/ledger"
	"github.com/roach88/lifequest/internal/notify"
	"github.com/roach88/lifequest/internal/quest"
	"github.com/roach88/lifequest/internal/store"
	"github.com/roach88/lifequest/internal/testutil"
)

// Harness is the scenario execution environment.
type Harness struct {
	store   *store.Store
	gateway *gateway.Gateway
	engine  *engine.Engine
	clock   *testutil.FakeClock
	rec     *notify.Recorder
	logger  *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database, gateway and engine on a fake clock
// 2. Seed the resource state
// 3. Execute setup steps, which must succeed
// 4. Execute flow steps with expect validation
// 5. Flush pending writes and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in scenarios
	clock := testutil.NewFakeClock(scenario.StartAt())
	rec := notify.NewRecorder(clock.Now)
	gw := gateway.New(st,
		gateway.WithSink(rec),
		gateway.WithRetry(gateway.DefaultMaxTries, time.Millisecond),
		gateway.WithLogger(logger),
	)

	opts := []engine.EngineOption{
		engine.WithClock(clock),
		engine.WithLocation(scenario.Location()),
		engine.WithIDGenerator(&quest.SequenceGenerator{Prefix: "q"}),
		engine.WithSink(rec),
		engine.WithPersister(gw),
		engine.WithLogger(logger),
	}
	if scenario.DailyCap > 0 {
		opts = append(opts, engine.WithDailyCap(scenario.DailyCap))
	}
	eng, err := engine.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	h := &Harness{
		store:   st,
		gateway: gw,
		engine:  eng,
		clock:   clock,
		rec:     rec,
		logger:  logger,
	}

	if err := h.seed(ctx, scenario.Resources); err != nil {
		return nil, fmt.Errorf("failed to seed resources: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Setup {
		outcome, err := h.execute(ctx, step, result)
		if err != nil {
			return nil, fmt.Errorf("setup step %d: %w", i, err)
		}
		if outcome != OutcomeOK {
			return nil, fmt.Errorf("setup step %d (%s): outcome %s", i, step.Do, outcome)
		}
	}

	for i, step := range scenario.Flow {
		outcome, err := h.execute(ctx, step, result)
		if err != nil {
			return nil, fmt.Errorf("flow step %d: %w", i, err)
		}
		if step.Expect != nil && step.Expect.Outcome != outcome {
			result.AddError(fmt.Sprintf("flow[%d] %s: expected outcome %s, got %s", i, step.Do, step.Expect.Outcome, outcome))
		}
	}

	if err := gw.Flush(ctx); err != nil {
		return nil, fmt.Errorf("failed to flush writes: %w", err)
	}
	final, err := eng.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read final state: %w", err)
	}
	result.Final = final
	result.Notifications = append(result.Notifications, rec.All()...)

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// seed overlays the scenario's resource overrides on the default state.
func (h *Harness) seed(ctx context.Context, overrides map[string]any) error {
	if len(overrides) == 0 {
		return nil
	}
	state := ledger.DefaultState()
	base, err := json.Marshal(state)
	if err != nil {
		return err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(base, &fields); err != nil {
		return err
	}
	for k, v := range overrides {
		if _, ok := fields[k]; !ok {
			return fmt.Errorf("unknown resource field %q", k)
		}
		fields[k] = v
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(merged, &state); err != nil {
		return err
	}
	return h.engine.Reconcile(ctx, gateway.Snapshot{Resources: &state})
}

// execute runs one step and records it in the trace. The returned error is
// reserved for harness failures; engine errors become the outcome.
func (h *Harness) execute(ctx context.Context, st Step, result *Result) (string, error) {
	now := h.clock.Now()
	target := st.Quest
	var err error

	switch st.Do {
	case "create":
		d, derr := st.Args.draft(now)
		if derr != nil {
			return "", derr
		}
		var q quest.Quest
		q, err = h.engine.Create(ctx, d)
		target = q.ID
	case "edit":
		p, perr := st.Args.patch(now)
		if perr != nil {
			return "", perr
		}
		_, err = h.engine.Edit(ctx, st.Quest, p)
	case "start":
		_, err = h.engine.Start(ctx, st.Quest)
	case "complete":
		_, err = h.engine.Complete(ctx, st.Quest)
	case "subquest":
		target = st.Quest + "/" + st.Sub
		_, err = h.engine.CompleteSubquest(ctx, st.Quest, st.Sub)
	case "delete":
		_, err = h.engine.Delete(ctx, st.Quest)
	case "buy":
		target = st.Item
		_, err = h.engine.Buy(ctx, st.Item)
	case "use":
		target = st.Item
		_, err = h.engine.UseItem(ctx, st.Item)
	case "advance", "tick":
		if st.Do == "advance" {
			now = h.clock.Advance(st.By)
		}
		if !h.engine.Tick(now) {
			return "", engine.ErrStopped
		}
		// The snapshot waits until the tick has been applied.
		_, err = h.engine.Snapshot(ctx)
	default:
		return "", fmt.Errorf("unknown step %q", st.Do)
	}

	outcome := outcomeOf(err)
	result.AddTrace(st.Do, target, outcome, now)
	h.logger.Info("step executed", "step", st.Do, "target", target, "outcome", outcome)
	return outcome, nil
}

func outcomeOf(err error) string {
	if err == nil {
		return OutcomeOK
	}
	if code := engine.CodeOf(err); code != "" {
		return string(code)
	}
	return OutcomeError
}
