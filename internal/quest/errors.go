package quest

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for an unknown quest or sub-entry id.
	ErrNotFound = errors.New("quest not found")

	// ErrQuestNotEligible is returned when a level, dependency, resource or
	// penalty gate blocks a transition.
	ErrQuestNotEligible = errors.New("quest not eligible")

	// ErrQuestLimitExceeded is returned when the active daily cap is reached.
	ErrQuestLimitExceeded = errors.New("quest limit exceeded")

	// ErrInvalidTransition is returned when the quest is not in a state the
	// operation can start from, e.g. completing a completed quest.
	ErrInvalidTransition = errors.New("invalid quest transition")

	// ErrInvalidQuest is returned for a malformed quest definition.
	ErrInvalidQuest = errors.New("invalid quest")
)

// Gate names the eligibility check that failed.
type Gate string

const (
	GateResources    Gate = "resources"
	GatePenalty      Gate = "penalty"
	GateDependencies Gate = "dependencies"
	GateLevel        Gate = "level"
	GateMana         Gate = "mana"
)

// NotEligibleError reports which gate blocked a quest.
// It matches ErrQuestNotEligible with errors.Is.
type NotEligibleError struct {
	QuestID string
	Gate    Gate
	Detail  string
}

func (e *NotEligibleError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("quest %s not eligible (%s): %s", e.QuestID, e.Gate, e.Detail)
	}
	return fmt.Sprintf("quest %s not eligible (%s)", e.QuestID, e.Gate)
}

// Is reports whether target is ErrQuestNotEligible.
func (e *NotEligibleError) Is(target error) bool {
	return target == ErrQuestNotEligible
}

// TransitionError reports an operation attempted from the wrong status.
// It matches ErrInvalidTransition with errors.Is.
type TransitionError struct {
	QuestID string
	Op      string
	From    Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s quest %s from status %s", e.Op, e.QuestID, e.From)
}

// Is reports whether target is ErrInvalidTransition.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
