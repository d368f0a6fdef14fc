package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/lifequest/internal/deadline"
	"github.com/roach88/lifequest/internal/engine"
	"github.com/roach88/lifequest/internal/inventory"
	"github.com/roach88/lifequest/internal/ledger"
	"github.com/roach88/lifequest/internal/quest"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show resources, active quests and inventory",
		Long: `Show the player's resources, the active quests with their
deadline countdowns, the inventory, and the time left until the daily reset.

Deadlines that passed since the last command are applied first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				snap, err := s.engine.Snapshot(ctx)
				if err != nil {
					return newFormatter(rootOpts, cmd).EngineError("status", err)
				}
				return newFormatter(rootOpts, cmd).Success(statusView(snap))
			})
		},
	}
}

// statusView renders a snapshot. JSON output is the snapshot itself.
type statusView engine.Snapshot

func (v statusView) MarshalJSON() ([]byte, error) {
	return json.Marshal(engine.Snapshot(v))
}

func (v statusView) String() string {
	var b strings.Builder
	fmt.Fprintln(&b, formatResources(v.Resources, v.At))

	active := activeQuests(v.Quests)
	fmt.Fprintf(&b, "\nQuests (%d active)\n", len(active))
	if len(active) == 0 {
		fmt.Fprintln(&b, "  none")
	}
	for _, q := range active {
		c, watched := v.Countdowns[q.ID]
		fmt.Fprintf(&b, "  %s\n", formatQuest(q, c, watched))
	}

	fmt.Fprintln(&b, "\nInventory")
	if len(v.Inventory) == 0 {
		fmt.Fprintln(&b, "  empty")
	}
	for _, e := range v.Inventory {
		fmt.Fprintf(&b, "  %s\n", formatEntry(e))
	}

	fmt.Fprintf(&b, "\nDaily reset in %s", v.UntilReset)
	return b.String()
}

func formatResources(s ledger.State, now time.Time) string {
	line := fmt.Sprintf("Level %d  XP %g/%g  HP %g/%g  Mana %g/%g  Coins %d",
		s.Level, s.XP, s.MaxXP, s.HP, s.MaxHP, s.Mana, s.MaxMana, s.Coins)
	if s.PenaltyActive(now) {
		line += fmt.Sprintf("  (penalty for %s)", deadline.Until(s.PenaltyUntil, now))
	}
	return line
}

func formatQuest(q quest.Quest, c deadline.Countdown, watched bool) string {
	line := fmt.Sprintf("[%s] %s  %s (%s, %s)  prio %d", q.Status, q.ID, q.Name, q.Kind, q.Difficulty, q.Priority)
	if q.Repeatable {
		line += "  repeats"
	}
	switch {
	case watched:
		line += "  due in " + c.String()
	case q.Deadline != nil:
		line += "  due " + q.Deadline.Format(time.RFC3339)
	}
	if len(q.Subquests) > 0 {
		done := 0
		for _, s := range q.Subquests {
			if s.Done {
				done++
			}
		}
		line += fmt.Sprintf("  steps %d/%d", done, len(q.Subquests))
	}
	return line
}

func formatEntry(e inventory.Entry) string {
	return fmt.Sprintf("%s x%d  %s", e.ItemID, e.Count, e.Name)
}

// activeQuests returns quests not yet completed, highest priority first.
func activeQuests(qs []quest.Quest) []quest.Quest {
	var out []quest.Quest
	for _, q := range qs {
		if q.Status != quest.StatusCompleted {
			out = append(out, q)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}
