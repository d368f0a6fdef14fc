package quest

import (
	"fmt"
	"sort"
	"time"

	"github.com/roach88/lifequest/internal/ledger"
)

// DefaultDailyCap is the number of active daily quests after which new
// non-repeatable dailies are refused.
const DefaultDailyCap = 5

// Rewarder is the part of the ledger quest completion needs.
type Rewarder interface {
	State() ledger.State
	ApplyQuestReward(base ledger.Reward, multiplier float64) (ledger.Outcome, error)
}

// SubquestPayer is the part of the ledger sub-entry completion needs.
type SubquestPayer interface {
	State() ledger.State
	ApplySubquestReward(coins int, manaCost float64) error
}

// Draft is the user input for a new quest.
type Draft struct {
	Name          string
	Description   string
	Kind          Kind
	Difficulty    Difficulty
	Repeatable    bool
	Deadline      *time.Time
	RequiredLevel int
	RewardXP      float64
	RewardCoins   int
	Dependencies  []string
	Subquests     []Subquest
}

// Patch edits an existing quest. Nil fields are left unchanged.
type Patch struct {
	Name          *string
	Description   *string
	Difficulty    *Difficulty
	Repeatable    *bool
	Deadline      *time.Time
	ClearDeadline bool
	RequiredLevel *int
	Priority      *int
	Dependencies  *[]string
}

// Book is the quest collection and its state machine.
//
// Book is not safe for concurrent use. The engine owns one and serializes
// every call through its event loop.
type Book struct {
	quests   map[string]*Quest
	ids      IDGenerator
	dailyCap int
}

// NewBook creates an empty book. A dailyCap of zero or less means
// DefaultDailyCap.
func NewBook(ids IDGenerator, dailyCap int) *Book {
	if ids == nil {
		ids = UUIDv7Generator{}
	}
	if dailyCap <= 0 {
		dailyCap = DefaultDailyCap
	}
	return &Book{
		quests:   make(map[string]*Quest),
		ids:      ids,
		dailyCap: dailyCap,
	}
}

// Load replaces the collection with persisted quests.
func (b *Book) Load(quests []Quest) {
	b.quests = make(map[string]*Quest, len(quests))
	for _, q := range quests {
		c := q.Clone()
		if c.Status == "" {
			c.Status = StatusNotStarted
		}
		if c.RequiredLevel < 1 {
			c.RequiredLevel = 1
		}
		b.quests[c.ID] = &c
	}
}

// Len returns the number of quests.
func (b *Book) Len() int {
	return len(b.quests)
}

// Get returns a copy of a quest.
func (b *Book) Get(id string) (Quest, bool) {
	q, ok := b.quests[id]
	if !ok {
		return Quest{}, false
	}
	return q.Clone(), true
}

// Create validates a draft and adds it as a not_started quest with
// priority one above the current maximum.
func (b *Book) Create(d Draft, now time.Time) (Quest, error) {
	name := normalizeText(d.Name)
	if name == "" {
		return Quest{}, fmt.Errorf("create quest: name is required: %w", ErrInvalidQuest)
	}
	if !d.Kind.Valid() {
		return Quest{}, fmt.Errorf("create quest: unknown kind %q: %w", d.Kind, ErrInvalidQuest)
	}
	difficulty := d.Difficulty
	if difficulty == "" {
		difficulty = ledger.DifficultyEasy
	}
	if !difficulty.Valid() {
		return Quest{}, fmt.Errorf("create quest: unknown difficulty %q: %w", d.Difficulty, ErrInvalidQuest)
	}
	for _, dep := range d.Dependencies {
		if _, ok := b.quests[dep]; !ok {
			return Quest{}, fmt.Errorf("create quest: dependency %s: %w", dep, ErrNotFound)
		}
	}

	if d.Kind == KindDaily && !d.Repeatable && b.activeDailies() >= b.dailyCap {
		return Quest{}, fmt.Errorf("create quest: %d active dailies: %w", b.dailyCap, ErrQuestLimitExceeded)
	}

	level := d.RequiredLevel
	if level < 1 {
		level = 1
	}

	q := &Quest{
		ID:            b.ids.Generate(),
		Name:          name,
		Description:   normalizeText(d.Description),
		Kind:          d.Kind,
		Difficulty:    difficulty,
		Status:        StatusNotStarted,
		Repeatable:    d.Repeatable,
		RequiredLevel: level,
		RewardXP:      d.RewardXP,
		RewardCoins:   d.RewardCoins,
		Dependencies:  dedupe(d.Dependencies),
		Priority:      b.maxPriority() + 1,
		CreatedAt:     now,
	}
	if d.Deadline != nil {
		dl := *d.Deadline
		q.Deadline = &dl
	}
	for _, s := range d.Subquests {
		sub := Subquest{
			ID:          s.ID,
			Name:        normalizeText(s.Name),
			Description: normalizeText(s.Description),
		}
		if sub.ID == "" {
			sub.ID = b.ids.Generate()
		}
		q.Subquests = append(q.Subquests, sub)
	}

	b.quests[q.ID] = q
	return q.Clone(), nil
}

// Edit applies a patch. Dependencies must exist and must not form a cycle.
// Every field is validated before any is applied, so a rejected patch
// leaves the quest unchanged.
func (b *Book) Edit(id string, p Patch) (Quest, error) {
	q, ok := b.quests[id]
	if !ok {
		return Quest{}, fmt.Errorf("edit quest %s: %w", id, ErrNotFound)
	}

	var name string
	if p.Name != nil {
		name = normalizeText(*p.Name)
		if name == "" {
			return Quest{}, fmt.Errorf("edit quest %s: name is required: %w", id, ErrInvalidQuest)
		}
	}
	if p.Difficulty != nil && !p.Difficulty.Valid() {
		return Quest{}, fmt.Errorf("edit quest %s: unknown difficulty %q: %w", id, *p.Difficulty, ErrInvalidQuest)
	}
	var deps []string
	if p.Dependencies != nil {
		deps = dedupe(*p.Dependencies)
		for _, dep := range deps {
			if dep == id {
				return Quest{}, fmt.Errorf("edit quest %s: depends on itself: %w", id, ErrInvalidQuest)
			}
			if _, ok := b.quests[dep]; !ok {
				return Quest{}, fmt.Errorf("edit quest %s: dependency %s: %w", id, dep, ErrNotFound)
			}
			if b.dependsOn(dep, id) {
				return Quest{}, fmt.Errorf("edit quest %s: dependency cycle through %s: %w", id, dep, ErrInvalidQuest)
			}
		}
	}
	// Turning an active repeatable daily into a one-off counts against the
	// daily cap like creating one does.
	if p.Repeatable != nil && !*p.Repeatable && q.Repeatable &&
		q.Kind == KindDaily && q.Status != StatusCompleted &&
		b.activeDailies()-1 >= b.dailyCap {
		return Quest{}, fmt.Errorf("edit quest %s: %d active dailies: %w", id, b.dailyCap, ErrQuestLimitExceeded)
	}

	if p.Name != nil {
		q.Name = name
	}
	if p.Description != nil {
		q.Description = normalizeText(*p.Description)
	}
	if p.Difficulty != nil {
		q.Difficulty = *p.Difficulty
	}
	if p.Dependencies != nil {
		q.Dependencies = deps
	}
	if p.Repeatable != nil {
		q.Repeatable = *p.Repeatable
	}
	if p.RequiredLevel != nil {
		q.RequiredLevel = max(1, *p.RequiredLevel)
	}
	if p.Priority != nil {
		q.Priority = *p.Priority
	}
	if p.ClearDeadline {
		q.Deadline = nil
		q.WarningSent = false
	} else if p.Deadline != nil {
		dl := *p.Deadline
		q.Deadline = &dl
		q.WarningSent = false
	}

	return q.Clone(), nil
}

// Delete removes a quest and strips it from other quests' dependencies.
// The quests whose dependencies changed are returned so they can be
// persisted.
func (b *Book) Delete(id string) (Quest, []Quest, error) {
	q, ok := b.quests[id]
	if !ok {
		return Quest{}, nil, fmt.Errorf("delete quest %s: %w", id, ErrNotFound)
	}
	delete(b.quests, id)

	var touched []Quest
	for _, other := range b.sorted(ascending) {
		kept := other.Dependencies[:0]
		changed := false
		for _, dep := range other.Dependencies {
			if dep == id {
				changed = true
				continue
			}
			kept = append(kept, dep)
		}
		if changed {
			other.Dependencies = kept
			touched = append(touched, other.Clone())
		}
	}

	return q.Clone(), touched, nil
}

// Start moves a quest from not_started to in_progress. No cost is charged.
//
// Gates, all required: hp and mana above zero; no active penalty window when
// the quest is a repeatable daily; every dependency completed; the player's
// level at least the quest's required level.
func (b *Book) Start(id string, res ledger.State, now time.Time) (Quest, error) {
	q, ok := b.quests[id]
	if !ok {
		return Quest{}, fmt.Errorf("start quest %s: %w", id, ErrNotFound)
	}
	if q.Status != StatusNotStarted {
		return Quest{}, &TransitionError{QuestID: id, Op: "start", From: q.Status}
	}
	if err := b.checkEligible(q, res, now); err != nil {
		return Quest{}, err
	}

	q.Status = StatusInProgress
	return q.Clone(), nil
}

// Complete finishes a quest and pays its reward through the ledger.
//
// Legal from in_progress, and from not_started for dailies, which may be
// completed directly after passing the start gates. When the ledger rejects
// the cost the quest is left exactly as it was.
func (b *Book) Complete(id string, l Rewarder, now time.Time) (Quest, ledger.Outcome, error) {
	q, ok := b.quests[id]
	if !ok {
		return Quest{}, ledger.Outcome{}, fmt.Errorf("complete quest %s: %w", id, ErrNotFound)
	}

	switch {
	case q.Status == StatusInProgress:
	case q.Status == StatusNotStarted && q.Kind == KindDaily:
		if err := b.checkEligible(q, l.State(), now); err != nil {
			return Quest{}, ledger.Outcome{}, err
		}
	default:
		return Quest{}, ledger.Outcome{}, &TransitionError{QuestID: id, Op: "complete", From: q.Status}
	}

	out, err := l.ApplyQuestReward(BaseReward(q.Kind, q.Difficulty), q.Difficulty.Multiplier())
	if err != nil {
		return Quest{}, ledger.Outcome{}, fmt.Errorf("complete quest %s: %w", id, err)
	}

	q.Status = StatusCompleted
	done := now
	q.CompletedAt = &done
	return q.Clone(), out, nil
}

// CompleteSubquest checks off one sub-entry for a fixed reward. The parent
// quest's status is not affected.
func (b *Book) CompleteSubquest(parentID, subID string, l SubquestPayer) (Quest, error) {
	q, ok := b.quests[parentID]
	if !ok {
		return Quest{}, fmt.Errorf("complete subquest: parent %s: %w", parentID, ErrNotFound)
	}

	idx := -1
	for i := range q.Subquests {
		if q.Subquests[i].ID == subID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Quest{}, fmt.Errorf("complete subquest %s/%s: %w", parentID, subID, ErrNotFound)
	}
	if q.Subquests[idx].Done {
		return Quest{}, &TransitionError{QuestID: parentID + "/" + subID, Op: "complete subquest", From: StatusCompleted}
	}

	if err := l.ApplySubquestReward(SubquestCoins, SubquestMana); err != nil {
		return Quest{}, fmt.Errorf("complete subquest %s/%s: %w", parentID, subID, err)
	}

	q.Subquests[idx].Done = true
	return q.Clone(), nil
}

// Reset forces a quest back to not_started with a new deadline, clearing the
// warning flag and sub-entry progress. Used by the penalty engine.
func (b *Book) Reset(id string, deadline time.Time) (Quest, error) {
	q, ok := b.quests[id]
	if !ok {
		return Quest{}, fmt.Errorf("reset quest %s: %w", id, ErrNotFound)
	}

	q.Status = StatusNotStarted
	dl := deadline
	q.Deadline = &dl
	q.WarningSent = false
	q.CompletedAt = nil
	for i := range q.Subquests {
		q.Subquests[i].Done = false
	}
	return q.Clone(), nil
}

// MarkWarned sets the warning flag. It reports false when the flag was
// already set or the quest is unknown, so a warning is only ever sent once.
func (b *Book) MarkWarned(id string) (Quest, bool) {
	q, ok := b.quests[id]
	if !ok || q.WarningSent {
		return Quest{}, false
	}
	q.WarningSent = true
	return q.Clone(), true
}

// All returns every quest by ascending priority (the aggregate view).
func (b *Book) All() []Quest {
	return clones(b.sorted(ascending))
}

// Active returns quests not yet completed, highest priority first.
func (b *Book) Active() []Quest {
	return b.filter(descending, func(q *Quest) bool { return q.Status != StatusCompleted })
}

// InProgress returns in_progress quests, highest priority first.
func (b *Book) InProgress() []Quest {
	return b.filter(descending, func(q *Quest) bool { return q.Status == StatusInProgress })
}

// RepeatableDailies returns every repeatable daily by ascending priority.
func (b *Book) RepeatableDailies() []Quest {
	return b.filter(ascending, func(q *Quest) bool { return q.IsRepeatableDaily() })
}

func (b *Book) checkEligible(q *Quest, res ledger.State, now time.Time) error {
	if res.HP <= 0 || res.Mana <= 0 {
		return &NotEligibleError{QuestID: q.ID, Gate: GateResources, Detail: "hp and mana must be above zero"}
	}
	if q.IsRepeatableDaily() && res.PenaltyActive(now) {
		return &NotEligibleError{QuestID: q.ID, Gate: GatePenalty, Detail: "penalty active until " + res.PenaltyUntil.Format(time.RFC3339)}
	}
	for _, dep := range q.Dependencies {
		d, ok := b.quests[dep]
		if !ok || d.Status != StatusCompleted {
			return &NotEligibleError{QuestID: q.ID, Gate: GateDependencies, Detail: "requires " + dep}
		}
	}
	if q.RequiredLevel > res.Level {
		return &NotEligibleError{QuestID: q.ID, Gate: GateLevel, Detail: fmt.Sprintf("requires level %d, have %d", q.RequiredLevel, res.Level)}
	}
	return nil
}

// dependsOn reports whether from transitively depends on target.
func (b *Book) dependsOn(from, target string) bool {
	seen := make(map[string]bool)
	stack := []string{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == target {
			return true
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		if q, ok := b.quests[id]; ok {
			stack = append(stack, q.Dependencies...)
		}
	}
	return false
}

func (b *Book) activeDailies() int {
	n := 0
	for _, q := range b.quests {
		if q.Kind == KindDaily && q.Status != StatusCompleted {
			n++
		}
	}
	return n
}

// maxPriority is the highest priority in the book, or 0 when it is empty.
func (b *Book) maxPriority() int {
	highest, seen := 0, false
	for _, q := range b.quests {
		if !seen || q.Priority > highest {
			highest, seen = q.Priority, true
		}
	}
	return highest
}

type order int

const (
	ascending order = iota
	descending
)

func (b *Book) sorted(o order) []*Quest {
	out := make([]*Quest, 0, len(b.quests))
	for _, q := range b.quests {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			if o == descending {
				return out[i].Priority > out[j].Priority
			}
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (b *Book) filter(o order, keep func(*Quest) bool) []Quest {
	var out []Quest
	for _, q := range b.sorted(o) {
		if keep(q) {
			out = append(out, q.Clone())
		}
	}
	return out
}

func clones(qs []*Quest) []Quest {
	out := make([]Quest, len(qs))
	for i, q := range qs {
		out[i] = q.Clone()
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
