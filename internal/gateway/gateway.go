// Package gateway keeps the remote store in step with the engine's state.
//
// Writes are recorded as intents keyed by (collection, id). A later intent for
// the same key replaces an earlier one that has not been flushed yet, so the
// remote only ever sees the latest state of an entity. A background flusher
// drains the log; quest creation uses PutNow to wait for the durable write.
//
// Transient failures are retried with exponential backoff. When retries run
// out the gateway reports an error notification and drops the intent; the
// engine's local state is never rolled back.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/roach88/lifequest/internal/notify"
	"github.com/roach88/lifequest/internal/store"
)

// Collections used by the engine.
const (
	CollectionResources = "resources"
	CollectionQuests    = "quests"
	CollectionInventory = "inventory"

	// ResourcesID is the id of the single resource document.
	ResourcesID = "player"
)

const (
	DefaultMaxTries        = 3
	DefaultInitialInterval = 200 * time.Millisecond
)

var (
	// ErrThrottled is returned by remotes that rate-limited a request.
	ErrThrottled = errors.New("remote store throttled")
	// ErrExhausted is returned by remotes out of quota or capacity.
	ErrExhausted = errors.New("remote store resources exhausted")
)

// RemoteStore is the durable document store the gateway writes to.
// *store.Store satisfies it.
type RemoteStore interface {
	Get(ctx context.Context, collection, id string) (store.Document, error)
	List(ctx context.Context, collection string) ([]store.Document, error)
	Upsert(ctx context.Context, collection, id string, body []byte) error
	Delete(ctx context.Context, collection, id string) error
}

// IsRetryable reports whether err is worth retrying: it says so through a
// Retryable() bool method, or wraps ErrThrottled or ErrExhausted.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrThrottled) || errors.Is(err, ErrExhausted) {
		return true
	}
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}

type key struct {
	collection string
	id         string
}

// Intent is one pending write.
type Intent struct {
	Collection string
	ID         string
	Body       []byte
	Delete     bool
}

// Gateway is safe for concurrent use.
type Gateway struct {
	remote   RemoteStore
	sink     notify.Sink
	logger   *slog.Logger
	maxTries uint
	initial  time.Duration

	mu      sync.Mutex
	pending map[key]Intent
	order   []key

	signal chan struct{}
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithSink sets where failure notifications go.
func WithSink(s notify.Sink) Option {
	return func(g *Gateway) {
		if s != nil {
			g.sink = s
		}
	}
}

// WithRetry sets the attempt limit and first backoff interval.
func WithRetry(maxTries uint, initial time.Duration) Option {
	return func(g *Gateway) {
		if maxTries > 0 {
			g.maxTries = maxTries
		}
		if initial > 0 {
			g.initial = initial
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// New creates a gateway over remote.
func New(remote RemoteStore, opts ...Option) *Gateway {
	g := &Gateway{
		remote:   remote,
		sink:     notify.Discard,
		logger:   slog.Default(),
		maxTries: DefaultMaxTries,
		initial:  DefaultInitialInterval,
		pending:  make(map[key]Intent),
		signal:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Put records an upsert intent for v, replacing any pending intent for the
// same entity.
func (g *Gateway) Put(collection, id string, v any) error {
	body, err := store.MarshalBody(v)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	g.enqueue(Intent{Collection: collection, ID: id, Body: body})
	return nil
}

// Remove records a delete intent.
func (g *Gateway) Remove(collection, id string) {
	g.enqueue(Intent{Collection: collection, ID: id, Delete: true})
}

// PutNow writes v immediately, with retries, and returns the final error.
// Any pending intent for the same entity is superseded.
func (g *Gateway) PutNow(ctx context.Context, collection, id string, v any) error {
	body, err := store.MarshalBody(v)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}

	g.mu.Lock()
	g.drop(key{collection, id})
	g.mu.Unlock()

	in := Intent{Collection: collection, ID: id, Body: body}
	if err := g.write(ctx, in); err != nil {
		g.fail(in, err)
		return err
	}
	return nil
}

// Pending returns the number of unflushed intents.
func (g *Gateway) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.order)
}

// Flush writes every pending intent in first-recorded order. Failed intents
// are reported and dropped. Returns the joined write errors.
func (g *Gateway) Flush(ctx context.Context) error {
	g.mu.Lock()
	batch := make([]Intent, 0, len(g.order))
	for _, k := range g.order {
		batch = append(batch, g.pending[k])
	}
	g.pending = make(map[key]Intent)
	g.order = nil
	g.mu.Unlock()

	var errs []error
	for _, in := range batch {
		if err := g.write(ctx, in); err != nil {
			g.fail(in, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run drains the intent log whenever new intents arrive until ctx is
// cancelled, then flushes whatever is left.
func (g *Gateway) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			_ = g.Flush(context.WithoutCancel(ctx))
			return
		case <-g.signal:
			if ctx.Err() != nil {
				continue
			}
			_ = g.Flush(ctx)
		}
	}
}

func (g *Gateway) enqueue(in Intent) {
	k := key{in.Collection, in.ID}

	g.mu.Lock()
	if _, ok := g.pending[k]; !ok {
		g.order = append(g.order, k)
	}
	g.pending[k] = in
	g.mu.Unlock()

	select {
	case g.signal <- struct{}{}:
	default:
	}
}

// drop removes a pending intent. Caller holds g.mu.
func (g *Gateway) drop(k key) {
	if _, ok := g.pending[k]; !ok {
		return
	}
	delete(g.pending, k)
	for i, o := range g.order {
		if o == k {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
}

func (g *Gateway) write(ctx context.Context, in Intent) error {
	op := "upsert"
	if in.Delete {
		op = "delete"
	}
	err := g.retry(ctx, op+" "+in.Collection+"/"+in.ID, func(ctx context.Context) error {
		if in.Delete {
			return g.remote.Delete(ctx, in.Collection, in.ID)
		}
		return g.remote.Upsert(ctx, in.Collection, in.ID, in.Body)
	})
	if err != nil {
		return fmt.Errorf("%s %s/%s: %w", op, in.Collection, in.ID, err)
	}
	return nil
}

func (g *Gateway) fail(in Intent, err error) {
	g.logger.Error("sync write failed", "collection", in.Collection, "id", in.ID, "error", err)
	g.sink.AddNotification(fmt.Sprintf("Could not save %s %s: %v", in.Collection, in.ID, err), notify.CategoryError)
}

// retry runs fn until it succeeds, fails permanently, or maxTries attempts
// have been made.
func (g *Gateway) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.initial

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := fn(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		if !IsRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		g.logger.Debug("remote call failed, retrying", "op", op, "attempt", attempt, "error", err)
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(g.maxTries))
	return err
}
