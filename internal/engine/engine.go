package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/lifequest/internal/catalog"
	"github.com/roach88/lifequest/internal/deadline"
	"github.com/roach88/lifequest/internal/inventory"
	"github.com/roach88/lifequest/internal/ledger"
	"github.com/roach88/lifequest/internal/notify"
	"github.com/roach88/lifequest/internal/penalty"
	"github.com/roach88/lifequest/internal/quest"
)

// Persister receives every state change for durable storage.
// *gateway.Gateway satisfies it.
type Persister interface {
	Put(collection, id string, v any) error
	Remove(collection, id string)
	PutNow(ctx context.Context, collection, id string, v any) error
}

// Engine is the single owner of player state.
//
// Every mutation happens in the Run loop goroutine. Public commands enqueue
// a closure and wait for its reply; the deadline ticker enqueues ticks. Since
// both share one FIFO queue, a command and a timer can never interleave on
// the same quest.
//
// Thread-safety model:
//   - commands, Tick(), Stop(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Engine struct {
	ledger    *ledger.Ledger
	book      *quest.Book
	inv       *inventory.Inventory
	catalog   *catalog.Catalog
	monitor   *deadline.Monitor
	reset     *deadline.ResetScheduler
	penalties *penalty.Engine

	persist Persister
	sink    notify.Sink
	clock   deadline.Clock
	loc     *time.Location
	logger  *slog.Logger
	queue   *eventQueue

	// seq counts applied events. Only the Run loop touches it.
	seq int64

	ids           quest.IDGenerator
	dailyCap      int
	warningWindow time.Duration
	penaltyWindow time.Duration
	tickInterval  time.Duration

	onWarning func(deadline.Event)
	onExpired func(deadline.Event, penalty.Result)
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithClock sets the wall clock. Default: the system clock.
func WithClock(c deadline.Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

// WithLocation sets the time zone of the daily reset. Default: time.Local.
func WithLocation(loc *time.Location) EngineOption {
	return func(e *Engine) { e.loc = loc }
}

// WithIDGenerator sets the quest id generator. Default: UUIDv7.
func WithIDGenerator(g quest.IDGenerator) EngineOption {
	return func(e *Engine) { e.ids = g }
}

// WithDailyCap sets how many active dailies block new non-repeatable ones.
func WithDailyCap(n int) EngineOption {
	return func(e *Engine) { e.dailyCap = n }
}

// WithWarningWindow sets how long before a deadline the warning fires.
func WithWarningWindow(d time.Duration) EngineOption {
	return func(e *Engine) { e.warningWindow = d }
}

// WithPenaltyWindow sets how long a penalty blocks repeatable dailies.
func WithPenaltyWindow(d time.Duration) EngineOption {
	return func(e *Engine) { e.penaltyWindow = d }
}

// WithTickInterval sets the countdown resolution used by RunTicker.
func WithTickInterval(d time.Duration) EngineOption {
	return func(e *Engine) { e.tickInterval = d }
}

// WithCatalog sets the shop catalog. Default: catalog.Default().
func WithCatalog(c *catalog.Catalog) EngineOption {
	return func(e *Engine) { e.catalog = c }
}

// WithPersister sets where state changes are saved. Without one the engine
// runs in memory only.
func WithPersister(p Persister) EngineOption {
	return func(e *Engine) { e.persist = p }
}

// WithSink sets where user-facing notifications go.
func WithSink(s notify.Sink) EngineOption {
	return func(e *Engine) { e.sink = s }
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithWarningObserver registers a callback run on the loop for each
// deadline warning that was delivered.
func WithWarningObserver(fn func(deadline.Event)) EngineOption {
	return func(e *Engine) { e.onWarning = fn }
}

// WithExpiryObserver registers a callback run on the loop for each expiry
// that applied a penalty.
func WithExpiryObserver(fn func(deadline.Event, penalty.Result)) EngineOption {
	return func(e *Engine) { e.onExpired = fn }
}

// New creates an engine with default player state. Use Reconcile to load
// persisted state before Run.
func New(opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		clock:         deadline.SystemClock{},
		loc:           time.Local,
		logger:        slog.Default(),
		sink:          notify.Discard,
		ids:           quest.UUIDv7Generator{},
		warningWindow: deadline.DefaultWarningWindow,
		penaltyWindow: penalty.DefaultWindow,
		tickInterval:  deadline.DefaultTickInterval,
		queue:         newEventQueue(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.catalog == nil {
		e.catalog = catalog.Default()
	}
	if e.sink == nil {
		e.sink = notify.Discard
	}

	reset, err := deadline.NewResetScheduler(e.loc, e.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("new engine: %w", err)
	}

	e.ledger = ledger.New(ledger.DefaultState())
	e.book = quest.NewBook(e.ids, e.dailyCap)
	e.inv = inventory.New(nil)
	e.monitor = deadline.NewMonitor(e.warningWindow)
	e.reset = reset
	e.penalties = penalty.New(e.ledger, e.book, e.nextMidnight, penalty.WithWindow(e.penaltyWindow))

	return e, nil
}

// Tick submits a wall-clock tick. Thread-safe. Returns false once the engine
// has stopped, which also stops deadline.RunTicker.
func (e *Engine) Tick(now time.Time) bool {
	return e.queue.Enqueue(Event{Type: EventTypeTick, Name: "tick", At: now})
}

// RunTicker feeds ticks from the engine clock until ctx is cancelled or the
// engine stops.
func (e *Engine) RunTicker(ctx context.Context) {
	deadline.RunTicker(ctx, e.tickInterval, e.clock, e.Tick)
}

// Run starts the single-writer event loop.
// Blocks until context is cancelled or Stop() is called.
//
// CRITICAL: Must be called from exactly ONE goroutine.
//
// A failing command replies with its error and the loop continues; a
// failing tick is logged and the loop continues.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", "zone", e.loc.String(), "next_reset", e.reset.Next())

	for {
		event, ok := e.queue.TryDequeue()
		if ok {
			e.processEvent(ctx, event)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.abortPending()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes when the queue is closed,
			// which will cause this case to fire immediately
			if e.queue.Len() == 0 && e.queue.Closed() {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the engine. Commands still queued fail with
// ErrStopped.
func (e *Engine) Stop() {
	e.abortPending()
}

func (e *Engine) abortPending() {
	for _, ev := range e.queue.Close() {
		if ev.abort != nil {
			ev.abort(wrap(ev.Name, "", ErrStopped))
		}
	}
}

// processEvent routes an event to the appropriate handler.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) processEvent(ctx context.Context, ev Event) {
	switch ev.Type {
	case EventTypeCommand:
		e.seq++
		ev.apply(ctx, e.clock.Now())
	case EventTypeTick:
		e.seq++
		e.tick(ctx, ev.At)
	default:
		e.logger.Warn("dropping unknown event", "type", ev.Type.String(), "name", ev.Name)
	}
}

type reply[T any] struct {
	value T
	err   error
}

// call runs fn on the loop and waits for its reply. If ctx ends first the
// command may still be applied later; its reply is discarded.
func call[T any](ctx context.Context, e *Engine, name string, fn func(ctx context.Context, now time.Time) (T, error)) (T, error) {
	done := make(chan reply[T], 1)
	ev := Event{
		Type: EventTypeCommand,
		Name: name,
		apply: func(ctx context.Context, now time.Time) {
			v, err := fn(ctx, now)
			done <- reply[T]{value: v, err: err}
		},
		abort: func(err error) {
			var zero T
			done <- reply[T]{value: zero, err: err}
		},
	}
	if !e.queue.Enqueue(ev) {
		var zero T
		return zero, wrap(name, "", ErrStopped)
	}

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (e *Engine) nextMidnight(now time.Time) time.Time {
	return e.reset.NextAfter(now)
}
