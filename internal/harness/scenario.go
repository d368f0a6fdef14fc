package harness

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/lifequest/internal/ledger"
	"github.com/roach88/lifequest/internal/quest"
)

// Scenario defines an engine scenario: initial state, a flow of steps and
// assertions over the trace and the final state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Start is the RFC 3339 wall clock time the scenario begins at.
	Start string `yaml:"start"`

	// TimeZone of the daily reset. Defaults to UTC.
	TimeZone string `yaml:"timezone,omitempty"`

	// Resources overrides fields of the default resource state.
	Resources map[string]any `yaml:"resources,omitempty"`

	// DailyCap overrides the active daily quest cap.
	DailyCap int `yaml:"daily_cap,omitempty"`

	// Setup steps must all succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow steps may fail; an expect clause checks the outcome.
	Flow []Step `yaml:"flow"`

	Assertions []Assertion `yaml:"assertions"`

	startAt  time.Time
	location *time.Location
}

// StartAt returns the parsed start time.
func (s *Scenario) StartAt() time.Time { return s.startAt }

// Location returns the parsed time zone.
func (s *Scenario) Location() *time.Location {
	if s.location == nil {
		return time.UTC
	}
	return s.location
}

// Step is one engine interaction.
type Step struct {
	// Do names the step: create, edit, start, complete, subquest, delete,
	// buy, use, advance or tick.
	Do string `yaml:"do"`

	Quest string        `yaml:"quest,omitempty"`
	Sub   string        `yaml:"sub,omitempty"`
	Item  string        `yaml:"item,omitempty"`
	By    time.Duration `yaml:"by,omitempty"`

	Args *QuestArgs `yaml:"args,omitempty"`

	// Expect checks the outcome. If nil, any outcome is accepted.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// QuestArgs are the fields of create and edit steps.
type QuestArgs struct {
	Name          string   `yaml:"name,omitempty"`
	Description   string   `yaml:"description,omitempty"`
	Kind          string   `yaml:"kind,omitempty"`
	Difficulty    string   `yaml:"difficulty,omitempty"`
	Repeatable    bool     `yaml:"repeatable,omitempty"`
	Deadline      string   `yaml:"deadline,omitempty"`
	ClearDeadline bool     `yaml:"clear_deadline,omitempty"`
	RequiredLevel int      `yaml:"required_level,omitempty"`
	Priority      *int     `yaml:"priority,omitempty"`
	Dependencies  []string `yaml:"dependencies,omitempty"`
	Subquests     []string `yaml:"subquests,omitempty"`
}

// ExpectClause specifies the expected step outcome.
type ExpectClause struct {
	// Outcome is "ok" or an engine error code such as NOT_ELIGIBLE.
	Outcome string `yaml:"outcome"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	Type string `yaml:"type"`

	// Action is the step name (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`
	// Target and Outcome narrow trace_contains.
	Target  string `yaml:"target,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`
	// Count is the expected number of occurrences (trace_count,
	// notifications).
	Count int `yaml:"count,omitempty"`
	// Actions is the expected step order (trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Category selects notifications.
	Category string `yaml:"category,omitempty"`

	// Collection and ID select a persisted document (final_state). ID also
	// selects a quest (quest).
	Collection string `yaml:"collection,omitempty"`
	ID         string `yaml:"id,omitempty"`

	// Expect contains expected field values. Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertResources     = "resources"
	AssertQuest         = "quest"
	AssertNotifications = "notifications"
	AssertFinalState    = "final_state"
)

var knownSteps = map[string]bool{
	"create": true, "edit": true, "start": true, "complete": true,
	"subquest": true, "delete": true, "buy": true, "use": true,
	"advance": true, "tick": true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Start == "" {
		return fmt.Errorf("start is required")
	}
	start, err := time.Parse(time.RFC3339, s.Start)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	s.startAt = start

	if s.TimeZone != "" {
		loc, err := time.LoadLocation(s.TimeZone)
		if err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
		s.location = loc
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(st Step) error {
	if st.Do == "" {
		return fmt.Errorf("do is required")
	}
	if !knownSteps[st.Do] {
		return fmt.Errorf("unknown step %q", st.Do)
	}

	switch st.Do {
	case "create":
		if st.Args == nil || st.Args.Name == "" || st.Args.Kind == "" {
			return fmt.Errorf("create: args.name and args.kind are required")
		}
	case "edit":
		if st.Quest == "" || st.Args == nil {
			return fmt.Errorf("edit: quest and args are required")
		}
	case "start", "complete", "delete":
		if st.Quest == "" {
			return fmt.Errorf("%s: quest is required", st.Do)
		}
	case "subquest":
		if st.Quest == "" || st.Sub == "" {
			return fmt.Errorf("subquest: quest and sub are required")
		}
	case "buy", "use":
		if st.Item == "" {
			return fmt.Errorf("%s: item is required", st.Do)
		}
	case "advance":
		if st.By <= 0 {
			return fmt.Errorf("advance: by must be positive")
		}
	}

	if st.Args != nil && st.Args.Deadline != "" {
		if _, err := resolveDeadline(st.Args.Deadline, time.Time{}); err != nil {
			return err
		}
	}
	if st.Expect != nil && st.Expect.Outcome == "" {
		return fmt.Errorf("expect: outcome is required")
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertResources:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for resources", index)
		}
	case AssertQuest:
		if a.ID == "" || len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: id and expect are required for quest", index)
		}
	case AssertNotifications:
		if a.Category == "" {
			return fmt.Errorf("assertions[%d]: category is required for notifications", index)
		}
	case AssertFinalState:
		if a.Collection == "" || a.ID == "" {
			return fmt.Errorf("assertions[%d]: collection and id are required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// resolveDeadline parses an RFC 3339 time or a "+duration" offset from now.
func resolveDeadline(s string, now time.Time) (time.Time, error) {
	if rest, ok := strings.CutPrefix(s, "+"); ok {
		d, err := time.ParseDuration(rest)
		if err != nil {
			return time.Time{}, fmt.Errorf("deadline %q: %w", s, err)
		}
		return now.Add(d), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("deadline %q: %w", s, err)
	}
	return t, nil
}

func (a *QuestArgs) draft(now time.Time) (quest.Draft, error) {
	d := quest.Draft{
		Name:          a.Name,
		Description:   a.Description,
		Kind:          quest.Kind(a.Kind),
		Difficulty:    ledger.Difficulty(a.Difficulty),
		Repeatable:    a.Repeatable,
		RequiredLevel: a.RequiredLevel,
		Dependencies:  a.Dependencies,
	}
	if a.Deadline != "" {
		dl, err := resolveDeadline(a.Deadline, now)
		if err != nil {
			return quest.Draft{}, err
		}
		d.Deadline = &dl
	}
	for _, name := range a.Subquests {
		d.Subquests = append(d.Subquests, quest.Subquest{Name: name})
	}
	return d, nil
}

func (a *QuestArgs) patch(now time.Time) (quest.Patch, error) {
	var p quest.Patch
	if a.Name != "" {
		p.Name = &a.Name
	}
	if a.Description != "" {
		p.Description = &a.Description
	}
	if a.Difficulty != "" {
		d := ledger.Difficulty(a.Difficulty)
		p.Difficulty = &d
	}
	if a.Repeatable {
		p.Repeatable = &a.Repeatable
	}
	if a.RequiredLevel > 0 {
		p.RequiredLevel = &a.RequiredLevel
	}
	p.Priority = a.Priority
	if a.Dependencies != nil {
		p.Dependencies = &a.Dependencies
	}
	if a.Deadline != "" {
		dl, err := resolveDeadline(a.Deadline, now)
		if err != nil {
			return quest.Patch{}, err
		}
		p.Deadline = &dl
	}
	p.ClearDeadline = a.ClearDeadline
	return p, nil
}
