package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/lifequest/internal/deadline"
	"github.com/roach88/lifequest/internal/engine"
	"github.com/roach88/lifequest/internal/ledger"
	"github.com/roach88/lifequest/internal/quest"
)

// QuestOptions holds the flags shared by quest create and quest edit.
type QuestOptions struct {
	*RootOptions
	Name          string
	Description   string
	Kind          string
	Difficulty    string
	Repeatable    bool
	Deadline      string
	ClearDeadline bool
	RequiredLevel int
	Priority      int
	Dependencies  []string
	Steps         []string
}

// NewQuestCommand creates the quest command group.
func NewQuestCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quest",
		Short: "Create, start and complete quests",
	}

	cmd.AddCommand(newQuestCreateCommand(rootOpts))
	cmd.AddCommand(newQuestEditCommand(rootOpts))
	cmd.AddCommand(newQuestListCommand(rootOpts))
	cmd.AddCommand(newQuestTransitionCommand(rootOpts, "start", "Start a quest", func(ctx context.Context, e *engine.Engine, id string) (any, error) {
		q, err := e.Start(ctx, id)
		return questView(q), err
	}))
	cmd.AddCommand(newQuestTransitionCommand(rootOpts, "complete", "Complete a quest and collect its reward", func(ctx context.Context, e *engine.Engine, id string) (any, error) {
		c, err := e.Complete(ctx, id)
		return completionView(c), err
	}))
	cmd.AddCommand(newQuestTransitionCommand(rootOpts, "delete", "Delete a quest", func(ctx context.Context, e *engine.Engine, id string) (any, error) {
		q, err := e.Delete(ctx, id)
		return questView(q), err
	}))
	cmd.AddCommand(newSubquestCommand(rootOpts))

	return cmd
}

func newQuestCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QuestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a quest",
		Long: `Create a quest. New quests get the highest priority.

Deadlines are RFC 3339 times, "YYYY-MM-DD HH:MM" in the configured time
zone, offsets such as +4h, or "midnight" for the next daily reset.

Examples:
  lifequest quest create "Ship the release" --kind main --difficulty hard
  lifequest quest create Meditate --kind daily --repeatable --deadline midnight
  lifequest quest create Essay --kind main --step Draft --step Edit`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Name = args[0]
			return runQuestCreate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Description, "description", "", "quest description")
	cmd.Flags().StringVarP(&opts.Kind, "kind", "k", string(quest.KindDaily), "quest kind (daily|main|subquest)")
	cmd.Flags().StringVarP(&opts.Difficulty, "difficulty", "d", string(ledger.DifficultyEasy), "difficulty (easy|medium|hard)")
	cmd.Flags().BoolVar(&opts.Repeatable, "repeatable", false, "reset the quest every day")
	cmd.Flags().StringVar(&opts.Deadline, "deadline", "", "deadline")
	cmd.Flags().IntVar(&opts.RequiredLevel, "level", 1, "required player level")
	cmd.Flags().StringSliceVar(&opts.Dependencies, "depends", nil, "quest ids that must be completed first")
	cmd.Flags().StringArrayVar(&opts.Steps, "step", nil, "sub-entry name (repeatable)")

	return cmd
}

func runQuestCreate(opts *QuestOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd)
	return withSession(opts.RootOptions, cmd, func(ctx context.Context, s *session) error {
		loc, _ := s.cfg.Location()
		d := quest.Draft{
			Name:          opts.Name,
			Description:   opts.Description,
			Kind:          quest.Kind(opts.Kind),
			Difficulty:    ledger.Difficulty(opts.Difficulty),
			Repeatable:    opts.Repeatable,
			RequiredLevel: opts.RequiredLevel,
			Dependencies:  opts.Dependencies,
		}
		if opts.Deadline != "" {
			dl, err := parseDeadline(opts.Deadline, s.clock.Now(), loc)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid deadline", err)
			}
			d.Deadline = &dl
		}
		for _, step := range opts.Steps {
			d.Subquests = append(d.Subquests, quest.Subquest{Name: step})
		}

		q, err := s.engine.Create(ctx, d)
		if err != nil {
			if engine.IsPersistence(err) {
				out.VerboseLog("quest %s kept locally: %v", q.ID, err)
			}
			return out.EngineError("create", err)
		}
		return out.Success(questView(q))
	})
}

func newQuestEditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QuestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "edit <quest-id>",
		Short: "Edit a quest",
		Long: `Edit a quest. Only the flags given are changed.

Changing the deadline clears the quest's warning flag.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuestEdit(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "quest name")
	cmd.Flags().StringVar(&opts.Description, "description", "", "quest description")
	cmd.Flags().StringVarP(&opts.Difficulty, "difficulty", "d", "", "difficulty (easy|medium|hard)")
	cmd.Flags().BoolVar(&opts.Repeatable, "repeatable", false, "reset the quest every day")
	cmd.Flags().StringVar(&opts.Deadline, "deadline", "", "new deadline")
	cmd.Flags().BoolVar(&opts.ClearDeadline, "clear-deadline", false, "remove the deadline")
	cmd.Flags().IntVar(&opts.RequiredLevel, "level", 1, "required player level")
	cmd.Flags().IntVar(&opts.Priority, "priority", 0, "listing priority")
	cmd.Flags().StringSliceVar(&opts.Dependencies, "depends", nil, "quest ids that must be completed first")
	cmd.MarkFlagsMutuallyExclusive("deadline", "clear-deadline")

	return cmd
}

func runQuestEdit(opts *QuestOptions, id string, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd)
	flags := cmd.Flags()

	return withSession(opts.RootOptions, cmd, func(ctx context.Context, s *session) error {
		var p quest.Patch
		if flags.Changed("name") {
			p.Name = &opts.Name
		}
		if flags.Changed("description") {
			p.Description = &opts.Description
		}
		if flags.Changed("difficulty") {
			d := ledger.Difficulty(opts.Difficulty)
			p.Difficulty = &d
		}
		if flags.Changed("repeatable") {
			p.Repeatable = &opts.Repeatable
		}
		if flags.Changed("level") {
			p.RequiredLevel = &opts.RequiredLevel
		}
		if flags.Changed("priority") {
			p.Priority = &opts.Priority
		}
		if flags.Changed("depends") {
			p.Dependencies = &opts.Dependencies
		}
		p.ClearDeadline = opts.ClearDeadline
		if opts.Deadline != "" {
			loc, _ := s.cfg.Location()
			dl, err := parseDeadline(opts.Deadline, s.clock.Now(), loc)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid deadline", err)
			}
			p.Deadline = &dl
		}

		q, err := s.engine.Edit(ctx, id, p)
		if err != nil {
			return out.EngineError("edit", err)
		}
		return out.Success(questView(q))
	})
}

func newQuestTransitionCommand(rootOpts *RootOptions, name, short string, fn func(ctx context.Context, e *engine.Engine, id string) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <quest-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(rootOpts, cmd)
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				v, err := fn(ctx, s.engine, args[0])
				if err != nil {
					return out.EngineError(name, err)
				}
				return out.Success(v)
			})
		},
	}
}

func newSubquestCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "step <quest-id> <step-id>",
		Short: "Check off one step of a quest",
		Long: fmt.Sprintf(`Check off one step of a quest for a fixed reward of %d coins at a
cost of %d mana. The quest itself keeps its status.`, quest.SubquestCoins, quest.SubquestMana),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(rootOpts, cmd)
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				q, err := s.engine.CompleteSubquest(ctx, args[0], args[1])
				if err != nil {
					return out.EngineError("step", err)
				}
				return out.Success(questView(q))
			})
		},
	}
}

func newQuestListCommand(rootOpts *RootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List quests",
		Long: `List active quests, highest priority first. With --all, list every
quest including completed ones by ascending priority.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(rootOpts, cmd)
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				snap, err := s.engine.Snapshot(ctx)
				if err != nil {
					return out.EngineError("list", err)
				}
				quests := snap.Quests
				if !all {
					quests = activeQuests(quests)
				}
				return out.Success(questListView{quests: quests, countdowns: snap.Countdowns})
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include completed quests")
	return cmd
}

// parseDeadline accepts "+<duration>", "midnight", RFC 3339, or
// "YYYY-MM-DD HH:MM" in loc.
func parseDeadline(s string, now time.Time, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "+"); ok {
		d, err := time.ParseDuration(rest)
		if err != nil {
			return time.Time{}, fmt.Errorf("deadline %q: %w", s, err)
		}
		if d <= 0 {
			return time.Time{}, fmt.Errorf("deadline %q: offset must be positive", s)
		}
		return now.Add(d), nil
	}
	if s == "midnight" {
		return deadline.NextMidnight(now, loc), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("deadline %q: want +duration, midnight, RFC 3339 or YYYY-MM-DD HH:MM", s)
	}
	return t, nil
}

type questView quest.Quest

func (v questView) MarshalJSON() ([]byte, error) {
	return json.Marshal(quest.Quest(v))
}

func (v questView) String() string {
	var b strings.Builder
	b.WriteString(formatQuest(quest.Quest(v), deadline.Countdown{}, false))
	for _, s := range v.Subquests {
		mark := " "
		if s.Done {
			mark = "x"
		}
		fmt.Fprintf(&b, "\n  [%s] %s  %s", mark, s.ID, s.Name)
	}
	return b.String()
}

type completionView engine.Completion

func (v completionView) MarshalJSON() ([]byte, error) {
	return json.Marshal(engine.Completion(v))
}

func (v completionView) String() string {
	o := v.Outcome
	line := fmt.Sprintf("Completed %s: +%g xp, +%d coins, -%g hp, -%g mana",
		v.Quest.Name, o.XPGained, o.CoinsGained, o.HPSpent, o.ManaSpent)
	if o.LevelsGained > 0 {
		line += fmt.Sprintf("\nLevel up! Now level %d", o.Level)
	}
	return line
}

type questListView struct {
	quests     []quest.Quest
	countdowns map[string]deadline.Countdown
}

func (v questListView) MarshalJSON() ([]byte, error) {
	if v.quests == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v.quests)
}

func (v questListView) String() string {
	if len(v.quests) == 0 {
		return "No quests."
	}
	lines := make([]string, len(v.quests))
	for i, q := range v.quests {
		c, ok := v.countdowns[q.ID]
		lines[i] = formatQuest(q, c, ok)
	}
	return strings.Join(lines, "\n")
}
