package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/roach88/lifequest/internal/notify"
	"github.com/roach88/lifequest/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s -> %s\n", event.Seq, event.Step, event.Target, event.Outcome)
		}
	}

	return buf.String()
}

// assertTraceContains checks that a step ran, optionally on a given target
// and with a given outcome.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if event.Step != a.Action {
			continue
		}
		if a.Target != "" && event.Target != a.Target {
			continue
		}
		if a.Outcome != "" && event.Outcome != a.Outcome {
			continue
		}
		return nil
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("step %s target=%q outcome=%q", a.Action, a.Target, a.Outcome),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if steps appear in the specified order.
// Steps don't need to be consecutive (intervening steps are allowed).
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	// Each expected step must match after the previous match.
	pos := 0
	for _, want := range a.Actions {
		found := false
		for pos < len(trace) {
			event := trace[pos]
			pos++
			if event.Step == want {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("steps in order: %v", a.Actions),
				Actual:   fmt.Sprintf("%s not found in order", want),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks if the step appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Step == a.Action {
			count++
		}
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertNotifications(ns []notify.Notification, a Assertion) error {
	count := 0
	var messages []string
	for _, n := range ns {
		if string(n.Category) == a.Category {
			count++
			messages = append(messages, n.Message)
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertNotifications,
			Expected: fmt.Sprintf("%d %s notifications", a.Count, a.Category),
			Actual:   fmt.Sprintf("%d: %q", count, messages),
		}
	}
	return nil
}

func assertResources(result *Result, a Assertion) error {
	fields, err := toFields(result.Final.Resources)
	if err != nil {
		return err
	}
	return matchFields(AssertResources, "resources", fields, a.Expect)
}

func assertQuest(result *Result, a Assertion) error {
	q, ok := result.Final.Quest(a.ID)
	if !ok {
		return &AssertionError{
			Type:     AssertQuest,
			Expected: fmt.Sprintf("quest %s", a.ID),
			Actual:   "quest not found",
		}
	}
	fields, err := toFields(q)
	if err != nil {
		return err
	}
	return matchFields(AssertQuest, "quest "+a.ID, fields, a.Expect)
}

// assertFinalState reads a persisted document and checks expected fields
// using subset semantics.
func assertFinalState(ctx context.Context, st *store.Store, a Assertion) error {
	doc, err := st.Get(ctx, a.Collection, a.ID)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("document %s/%s", a.Collection, a.ID),
			Actual:   err.Error(),
		}
	}
	fields := map[string]any{}
	if err := store.UnmarshalBody(doc.Body, &fields); err != nil {
		return fmt.Errorf("decode %s/%s: %w", a.Collection, a.ID, err)
	}
	return matchFields(AssertFinalState, a.Collection+"/"+a.ID, fields, a.Expect)
}

func toFields(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// matchFields checks every expected key in sorted order so the first
// reported mismatch is stable.
func matchFields(kind, what string, actual, expected map[string]any) error {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		actualValue, exists := actual[key]
		if !exists {
			return &AssertionError{
				Type:     kind,
				Expected: fmt.Sprintf("field %q to exist in %s", key, what),
				Actual:   "field not present",
			}
		}
		if !valuesEqual(expected[key], actualValue) {
			return &AssertionError{
				Type:     kind,
				Expected: fmt.Sprintf("%s field %q = %v (type %T)", what, key, expected[key], expected[key]),
				Actual:   fmt.Sprintf("%s field %q = %v (type %T)", what, key, actualValue, actualValue),
			}
		}
	}
	return nil
}

// valuesEqual compares a YAML-decoded expected value with a JSON-decoded
// actual one. Numbers compare by value and times by their RFC 3339 form.
func valuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}
	if t, ok := expected.(time.Time); ok {
		expected = t.Format(time.RFC3339Nano)
	}

	if e, ok := toFloat(expected); ok {
		a, ok := toFloat(actual)
		return ok && e == a
	}

	switch exp := expected.(type) {
	case []any:
		act, ok := actual.([]any)
		if !ok || len(exp) != len(act) {
			return false
		}
		for i := range exp {
			if !valuesEqual(exp[i], act[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for k, v := range exp {
			if !valuesEqual(v, act[k]) {
				return false
			}
		}
		return true
	}

	return reflect.DeepEqual(expected, actual)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for final_state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertNotifications:
			err = assertNotifications(result.Notifications, assertion)
		case AssertResources:
			err = assertResources(result, assertion)
		case AssertQuest:
			err = assertQuest(result, assertion)
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
