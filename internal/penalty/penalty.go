// Package penalty applies the punishment for a missed deadline or an
// incomplete repeatable daily at the end of a day.
//
// Expire and ResetRepeatableDailies share one contract: hp and mana each lose
// 85% of their maximum, coins lose 15% of the current balance, and the
// affected quests go back to not_started with a fresh deadline and a cleared
// warning flag.
package penalty

import (
	"fmt"
	"time"

	"github.com/roach88/lifequest/internal/ledger"
	"github.com/roach88/lifequest/internal/quest"
)

const (
	HPFraction   = 0.85
	ManaFraction = 0.85
	CoinFraction = 0.15

	// ExpiryExtension is the new deadline granted to an expired quest.
	ExpiryExtension = 24 * time.Hour

	// DefaultWindow is how long a penalty blocks repeatable dailies.
	DefaultWindow = time.Hour
)

// Ledger is the part of the resource ledger penalties touch.
type Ledger interface {
	ApplyPenalty(hpFraction, manaFraction, coinFraction float64) ledger.Loss
	SetPenaltyUntil(t time.Time)
}

// Quests is the part of the quest book penalties touch.
type Quests interface {
	Get(id string) (quest.Quest, bool)
	Reset(id string, deadline time.Time) (quest.Quest, error)
	RepeatableDailies() []quest.Quest
}

// Result reports what a penalty run did.
type Result struct {
	// Penalized is false when nothing qualified and no resources were taken.
	Penalized bool
	Loss      ledger.Loss

	// Reset holds quests forced back to not_started by the penalty.
	Reset []quest.Quest

	// Renewed holds completed repeatable dailies returned to not_started
	// for the new day without a penalty.
	Renewed []quest.Quest
}

// Engine applies penalties.
type Engine struct {
	ledger       Ledger
	quests       Quests
	window       time.Duration
	nextMidnight func(now time.Time) time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithWindow sets how long a penalty blocks repeatable dailies.
func WithWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.window = d
		}
	}
}

// New creates a penalty engine. nextMidnight computes the reset deadline for
// repeatable dailies, normally deadline.NextMidnight in the configured zone.
func New(l Ledger, q Quests, nextMidnight func(now time.Time) time.Time, opts ...Option) *Engine {
	e := &Engine{
		ledger:       l,
		quests:       q,
		window:       DefaultWindow,
		nextMidnight: nextMidnight,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expire penalizes a quest whose deadline passed while in progress and gives
// it a new deadline 24h from now.
//
// A quest that is no longer in progress, because a completion won the race
// or it was already reset, is left alone and nothing is taken.
func (e *Engine) Expire(id string, now time.Time) (Result, error) {
	q, ok := e.quests.Get(id)
	if !ok {
		return Result{}, fmt.Errorf("expire quest %s: %w", id, quest.ErrNotFound)
	}
	if q.Status != quest.StatusInProgress {
		return Result{}, nil
	}

	loss := e.punish(now)
	reset, err := e.quests.Reset(id, now.Add(ExpiryExtension))
	if err != nil {
		return Result{}, fmt.Errorf("expire quest %s: %w", id, err)
	}

	return Result{Penalized: true, Loss: loss, Reset: []quest.Quest{reset}}, nil
}

// ResetRepeatableDailies runs the end-of-day reset.
//
// Every repeatable daily not completed is penalized and reset; the penalty is
// applied once for the whole batch. Completed repeatable dailies are renewed
// for the new day without a penalty. All of them get next midnight as their
// deadline.
func (e *Engine) ResetRepeatableDailies(now time.Time) (Result, error) {
	deadline := e.nextMidnight(now)

	var missed, done []string
	for _, q := range e.quests.RepeatableDailies() {
		if q.Status == quest.StatusCompleted {
			done = append(done, q.ID)
		} else {
			missed = append(missed, q.ID)
		}
	}

	var res Result
	if len(missed) > 0 {
		res.Penalized = true
		res.Loss = e.punish(now)
	}

	for _, id := range missed {
		q, err := e.quests.Reset(id, deadline)
		if err != nil {
			return res, fmt.Errorf("reset daily %s: %w", id, err)
		}
		res.Reset = append(res.Reset, q)
	}
	for _, id := range done {
		q, err := e.quests.Reset(id, deadline)
		if err != nil {
			return res, fmt.Errorf("renew daily %s: %w", id, err)
		}
		res.Renewed = append(res.Renewed, q)
	}

	return res, nil
}

func (e *Engine) punish(now time.Time) ledger.Loss {
	loss := e.ledger.ApplyPenalty(HPFraction, ManaFraction, CoinFraction)
	if e.window > 0 {
		e.ledger.SetPenaltyUntil(now.Add(e.window))
	}
	return loss
}
