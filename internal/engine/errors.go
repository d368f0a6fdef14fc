package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/lifequest/internal/inventory"
	"github.com/roach88/lifequest/internal/ledger"
	"github.com/roach88/lifequest/internal/quest"
)

var (
	// ErrStopped is returned for commands sent to an engine that has shut down.
	ErrStopped = errors.New("engine stopped")
	// ErrUnknownItem is returned when buying an item the catalog does not list.
	ErrUnknownItem = errors.New("unknown item")
)

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	ErrCodeNotFound             ErrorCode = "NOT_FOUND"
	ErrCodeNotEligible          ErrorCode = "NOT_ELIGIBLE"
	ErrCodeLimitExceeded        ErrorCode = "LIMIT_EXCEEDED"
	ErrCodeInvalidTransition    ErrorCode = "INVALID_TRANSITION"
	ErrCodeInvalidInput         ErrorCode = "INVALID_INPUT"
	ErrCodeInsufficientResource ErrorCode = "INSUFFICIENT_RESOURCE"
	ErrCodeEmptyStock           ErrorCode = "EMPTY_STOCK"

	// ErrCodePersistence means the local change was applied but could not be
	// written to the durable store.
	ErrCodePersistence ErrorCode = "PERSISTENCE"

	ErrCodeStopped  ErrorCode = "STOPPED"
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Error is returned by every engine command that fails.
//
// The wrapped error keeps the domain sentinel, so errors.Is(err,
// quest.ErrQuestNotEligible) still works on an *Error.
type Error struct {
	Code ErrorCode
	// Op is the command that failed, e.g. "start".
	Op string
	// Target is the quest or item id the command addressed, if any.
	Target string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s: %s %s: %v", e.Code, e.Op, e.Target, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// wrap classifies a domain error. Nil stays nil and an *Error passes through.
func wrap(op, target string, err error) error {
	if err == nil {
		return nil
	}
	var ee *Error
	if errors.As(err, &ee) {
		return err
	}
	return &Error{Code: codeFor(err), Op: op, Target: target, Err: err}
}

func codeFor(err error) ErrorCode {
	switch {
	case errors.Is(err, quest.ErrNotFound), errors.Is(err, ErrUnknownItem):
		return ErrCodeNotFound
	case errors.Is(err, quest.ErrQuestNotEligible):
		return ErrCodeNotEligible
	case errors.Is(err, quest.ErrQuestLimitExceeded):
		return ErrCodeLimitExceeded
	case errors.Is(err, quest.ErrInvalidTransition):
		return ErrCodeInvalidTransition
	case errors.Is(err, quest.ErrInvalidQuest):
		return ErrCodeInvalidInput
	case errors.Is(err, ledger.ErrInsufficientResource):
		return ErrCodeInsufficientResource
	case errors.Is(err, inventory.ErrEmptyStock):
		return ErrCodeEmptyStock
	case errors.Is(err, ErrStopped):
		return ErrCodeStopped
	default:
		return ErrCodeInternal
	}
}

// CodeOf returns the code of an *Error in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// IsNotFound reports whether the addressed quest, sub-entry or item is missing.
func IsNotFound(err error) bool { return CodeOf(err) == ErrCodeNotFound }

// IsNotEligible reports whether a start gate refused the quest.
func IsNotEligible(err error) bool { return CodeOf(err) == ErrCodeNotEligible }

// IsLimitExceeded reports whether the daily cap refused a new quest.
func IsLimitExceeded(err error) bool { return CodeOf(err) == ErrCodeLimitExceeded }

// IsInvalidTransition reports whether the quest was in the wrong status.
func IsInvalidTransition(err error) bool { return CodeOf(err) == ErrCodeInvalidTransition }

// IsInsufficientResource reports whether the player could not pay a cost.
func IsInsufficientResource(err error) bool { return CodeOf(err) == ErrCodeInsufficientResource }

// IsEmptyStock reports whether an item use found no stock.
func IsEmptyStock(err error) bool { return CodeOf(err) == ErrCodeEmptyStock }

// IsPersistence reports whether a change was kept locally but not saved.
func IsPersistence(err error) bool { return CodeOf(err) == ErrCodePersistence }
