// Package ledger holds the player's numeric resources and owns the leveling
// curve.
//
// The Ledger is the only writer of State. Every mutation either validates
// up front and commits completely, or fails without touching anything.
// After every mutation hp and mana are clamped into [0, max].
//
// A Ledger is not safe for concurrent use. The engine owns exactly one and
// serializes all access through its event loop.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Leveling curve growth factors, applied once per level gained.
const (
	XPGrowth   = 1.18
	HPGrowth   = 1.10
	ManaGrowth = 1.10
)

// epsilon absorbs binary representation error before flooring, so that
// 20 x 1.35 floors to 27 and not 26.
const epsilon = 1e-9

// ErrInsufficientResource is returned when hp or mana is too low to pay for
// an action.
var ErrInsufficientResource = errors.New("insufficient resource")

// InsufficientError describes which resource blocked an action.
// It matches ErrInsufficientResource with errors.Is.
type InsufficientError struct {
	Resource Resource
	Have     float64
	Need     float64
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("insufficient %s: have %g, need %g", e.Resource, e.Have, e.Need)
}

// Is reports whether target is ErrInsufficientResource.
func (e *InsufficientError) Is(target error) bool {
	return target == ErrInsufficientResource
}

// Resource names a restorable resource.
type Resource string

const (
	ResourceHP    Resource = "hp"
	ResourceMana  Resource = "mana"
	ResourceCoins Resource = "coins"
)

// Difficulty scales quest rewards and costs symmetrically.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

var multipliers = map[Difficulty]float64{
	DifficultyEasy:   1.0,
	DifficultyMedium: 1.1,
	DifficultyHard:   1.35,
}

// Multiplier returns the reward/cost multiplier for d.
// Unknown difficulties scale like easy.
func (d Difficulty) Multiplier() float64 {
	if m, ok := multipliers[d]; ok {
		return m
	}
	return 1.0
}

// Valid reports whether d is one of the known difficulties.
func (d Difficulty) Valid() bool {
	_, ok := multipliers[d]
	return ok
}

// State is a snapshot of the player's resources.
type State struct {
	Level   int     `json:"level"`
	XP      float64 `json:"xp"`
	MaxXP   float64 `json:"max_xp"`
	Coins   int     `json:"coins"`
	HP      float64 `json:"hp"`
	MaxHP   float64 `json:"max_hp"`
	Mana    float64 `json:"mana"`
	MaxMana float64 `json:"max_mana"`

	// PenaltyUntil is the end of the current penalty window. Repeatable
	// dailies cannot be started before it passes.
	PenaltyUntil time.Time `json:"penalty_until"`
}

// DefaultState is the state of a brand new profile.
func DefaultState() State {
	return State{
		Level:   1,
		XP:      0,
		MaxXP:   980,
		Coins:   0,
		HP:      100,
		MaxHP:   100,
		Mana:    120,
		MaxMana: 120,
	}
}

// PenaltyActive reports whether a penalty window covers now.
func (s State) PenaltyActive(now time.Time) bool {
	return now.Before(s.PenaltyUntil)
}

// Reward is the unscaled payout and cost of a quest.
type Reward struct {
	XP       float64
	Coins    float64
	HPCost   float64
	ManaCost float64
}

// Scale applies a difficulty multiplier to every field, flooring each.
func (r Reward) Scale(multiplier float64) Reward {
	return Reward{
		XP:       scale(r.XP, multiplier),
		Coins:    scale(r.Coins, multiplier),
		HPCost:   scale(r.HPCost, multiplier),
		ManaCost: scale(r.ManaCost, multiplier),
	}
}

// Outcome reports what a reward actually did to the ledger.
type Outcome struct {
	XPGained     float64
	CoinsGained  int
	HPSpent      float64
	ManaSpent    float64
	LevelsGained int
	Level        int
}

// Loss reports what a penalty took away.
type Loss struct {
	HP    float64
	Mana  float64
	Coins int
}

// Ledger is the authoritative holder of player resources.
type Ledger struct {
	state State
}

// New creates a ledger from a persisted or default state.
// The state is normalized so that the clamping invariant holds from the start.
func New(s State) *Ledger {
	l := &Ledger{state: s}
	l.normalize()
	return l
}

// State returns a copy of the current resources.
func (l *Ledger) State() State {
	return l.state
}

// Load replaces the current state, typically after reconciling with the store.
func (l *Ledger) Load(s State) {
	l.state = s
	l.normalize()
}

// ApplyQuestReward charges the scaled hp/mana cost of a quest and pays out its
// scaled xp and coins, leveling up as many times as the xp allows.
//
// It fails with an *InsufficientError, and mutates nothing, when hp or mana is
// below the scaled cost.
func (l *Ledger) ApplyQuestReward(base Reward, multiplier float64) (Outcome, error) {
	r := base.Scale(multiplier)

	if l.state.HP < r.HPCost {
		return Outcome{}, &InsufficientError{Resource: ResourceHP, Have: l.state.HP, Need: r.HPCost}
	}
	if l.state.Mana < r.ManaCost {
		return Outcome{}, &InsufficientError{Resource: ResourceMana, Have: l.state.Mana, Need: r.ManaCost}
	}

	l.state.HP = math.Max(0, l.state.HP-r.HPCost)
	l.state.Mana = math.Max(0, l.state.Mana-r.ManaCost)
	l.state.Coins += int(r.Coins)
	l.state.XP += r.XP

	levels := l.levelUp()
	l.normalize()

	return Outcome{
		XPGained:     r.XP,
		CoinsGained:  int(r.Coins),
		HPSpent:      r.HPCost,
		ManaSpent:    r.ManaCost,
		LevelsGained: levels,
		Level:        l.state.Level,
	}, nil
}

// levelUp consumes xp one threshold at a time. Growth compounds per level.
func (l *Ledger) levelUp() int {
	levels := 0
	for l.state.MaxXP > 0 && l.state.XP >= l.state.MaxXP {
		l.state.XP -= l.state.MaxXP
		l.state.Level++
		l.state.MaxXP = scale(l.state.MaxXP, XPGrowth)
		l.state.MaxHP = scale(l.state.MaxHP, HPGrowth)
		l.state.MaxMana = scale(l.state.MaxMana, ManaGrowth)
		levels++
	}
	return levels
}

// ApplySubquestReward pays a fixed coin reward for a sub-entry at a fixed mana
// cost. Fails with an *InsufficientError when mana is short.
func (l *Ledger) ApplySubquestReward(coins int, manaCost float64) error {
	if l.state.Mana < manaCost {
		return &InsufficientError{Resource: ResourceMana, Have: l.state.Mana, Need: manaCost}
	}
	l.state.Mana = math.Max(0, l.state.Mana-manaCost)
	l.state.Coins += coins
	l.normalize()
	return nil
}

// SpendCoins removes amount coins, failing when the balance is short.
func (l *Ledger) SpendCoins(amount int) error {
	if amount < 0 {
		return fmt.Errorf("spend coins: negative amount %d", amount)
	}
	if l.state.Coins < amount {
		return &InsufficientError{Resource: ResourceCoins, Have: float64(l.state.Coins), Need: float64(amount)}
	}
	l.state.Coins -= amount
	return nil
}

// ApplyPenalty takes floor(maxHp*hpFraction) hp, floor(maxMana*manaFraction)
// mana and floor(coins*coinFraction) coins. Every value saturates at zero, so
// a penalty always succeeds.
func (l *Ledger) ApplyPenalty(hpFraction, manaFraction, coinFraction float64) Loss {
	hpLoss := scale(l.state.MaxHP, hpFraction)
	manaLoss := scale(l.state.MaxMana, manaFraction)
	coinLoss := int(scale(float64(l.state.Coins), coinFraction))

	before := l.state
	l.state.HP = math.Max(0, l.state.HP-hpLoss)
	l.state.Mana = math.Max(0, l.state.Mana-manaLoss)
	l.state.Coins = max(0, l.state.Coins-coinLoss)
	l.normalize()

	return Loss{
		HP:    before.HP - l.state.HP,
		Mana:  before.Mana - l.state.Mana,
		Coins: before.Coins - l.state.Coins,
	}
}

// Restore adds amount to a resource, then clamps it to cap. The cap never
// exceeds the resource's own maximum, and a restore never lowers a value.
// Returns the amount actually gained.
func (l *Ledger) Restore(res Resource, amount, cap float64) float64 {
	switch res {
	case ResourceHP:
		before := l.state.HP
		l.state.HP = math.Max(before, math.Min(l.state.HP+amount, math.Min(cap, l.state.MaxHP)))
		l.normalize()
		return l.state.HP - before
	case ResourceMana:
		before := l.state.Mana
		l.state.Mana = math.Max(before, math.Min(l.state.Mana+amount, math.Min(cap, l.state.MaxMana)))
		l.normalize()
		return l.state.Mana - before
	default:
		return 0
	}
}

// SetPenaltyUntil opens (or extends) the global penalty window.
func (l *Ledger) SetPenaltyUntil(t time.Time) {
	if t.After(l.state.PenaltyUntil) {
		l.state.PenaltyUntil = t
	}
}

// normalize enforces the clamping invariants.
func (l *Ledger) normalize() {
	s := &l.state
	if s.Level < 1 {
		s.Level = 1
	}
	if s.MaxXP <= 0 {
		s.MaxXP = DefaultState().MaxXP
	}
	if s.MaxHP <= 0 {
		s.MaxHP = DefaultState().MaxHP
	}
	if s.MaxMana <= 0 {
		s.MaxMana = DefaultState().MaxMana
	}
	s.XP = math.Max(0, s.XP)
	s.Coins = max(0, s.Coins)
	s.HP = clamp(s.HP, 0, s.MaxHP)
	s.Mana = clamp(s.Mana, 0, s.MaxMana)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

func scale(v, m float64) float64 {
	return math.Floor(v*m + epsilon)
}
