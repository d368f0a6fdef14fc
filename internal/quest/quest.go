// Package quest implements the quest lifecycle.
//
// A quest moves not_started -> in_progress -> completed. Two transitions run
// backwards: a daily reset returns a repeatable daily to not_started, and an
// expired deadline forces an in_progress quest back to not_started. Both are
// driven by the penalty engine through Book.Reset.
//
// Every transition re-validates the quest's current status immediately
// before mutating it, so a stale request fails with ErrInvalidTransition
// instead of corrupting state.
package quest

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/lifequest/internal/ledger"
)

// Kind categorizes quests.
type Kind string

const (
	KindDaily    Kind = "daily"
	KindMain     Kind = "main"
	KindSubquest Kind = "subquest"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindDaily, KindMain, KindSubquest:
		return true
	}
	return false
}

// Status is a quest's lifecycle state.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Difficulty is the ledger's difficulty scale.
type Difficulty = ledger.Difficulty

// Subquest is an ordered sub-entry of a quest with its own done flag.
type Subquest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Done        bool   `json:"done"`
}

// Quest is a trackable user task.
type Quest struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Kind          Kind       `json:"kind"`
	Difficulty    Difficulty `json:"difficulty"`
	Status        Status     `json:"status"`
	Repeatable    bool       `json:"repeatable"`
	Deadline      *time.Time `json:"deadline,omitempty"`
	RequiredLevel int        `json:"required_level"`
	RewardXP      float64    `json:"reward_xp"`
	RewardCoins   int        `json:"reward_coins"`
	Dependencies  []string   `json:"dependencies"`
	Priority      int        `json:"priority"`
	WarningSent   bool       `json:"warning_sent"`
	Subquests     []Subquest `json:"subquests"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// IsRepeatableDaily reports whether the quest resets every day.
func (q *Quest) IsRepeatableDaily() bool {
	return q.Kind == KindDaily && q.Repeatable
}

// Clone returns a deep copy, safe to hand outside the owning engine.
func (q Quest) Clone() Quest {
	c := q
	if q.Deadline != nil {
		d := *q.Deadline
		c.Deadline = &d
	}
	if q.CompletedAt != nil {
		t := *q.CompletedAt
		c.CompletedAt = &t
	}
	c.Dependencies = append([]string(nil), q.Dependencies...)
	c.Subquests = append([]Subquest(nil), q.Subquests...)
	return c
}

// Fixed reward table. Stored RewardXP/RewardCoins are informational only;
// payouts always come from this table.
const (
	mainXP    = 1000
	mainCoins = 500
	mainHP    = 20

	dailyXP    = 30
	dailyCoins = 50
	dailyHP    = 5

	hardMana = 15
	baseMana = 5

	// SubquestCoins and SubquestMana are the fixed payout and cost of
	// checking off one sub-entry.
	SubquestCoins = 20
	SubquestMana  = 5
)

// BaseReward returns the unscaled reward and cost for a kind and difficulty.
// Subquest-kind quests pay like dailies.
func BaseReward(kind Kind, difficulty Difficulty) ledger.Reward {
	mana := float64(baseMana)
	if difficulty == ledger.DifficultyHard {
		mana = hardMana
	}

	if kind == KindMain {
		return ledger.Reward{XP: mainXP, Coins: mainCoins, HPCost: mainHP, ManaCost: mana}
	}
	return ledger.Reward{XP: dailyXP, Coins: dailyCoins, HPCost: dailyHP, ManaCost: mana}
}

// normalizeText trims and NFC-normalizes user-entered text so visually
// identical names compare equal.
func normalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
