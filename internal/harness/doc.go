// Package harness runs lifequest scenarios against a real engine.
//
// A scenario drives the engine with a fake wall clock, so deadlines, warnings,
// expiries and the midnight reset are all reproducible. Writes go through the
// sync gateway into an in-memory SQLite store, and assertions can read both
// the engine snapshot and the persisted documents.
//
// # Scenario Format
//
//	name: missed_deadline
//	description: "An expired quest costs hp and mana once"
//	start: 2026-10-14T09:00:00Z
//	timezone: UTC
//	resources: { coins: 100 }
//	setup:
//	  - do: create
//	    args: { name: Gym, kind: main, deadline: +1h }
//	flow:
//	  - do: start
//	    quest: q-1
//	  - do: advance
//	    by: 1h
//	  - do: complete
//	    quest: q-1
//	    expect: { outcome: INVALID_TRANSITION }
//	assertions:
//	  - type: resources
//	    expect: { hp: 15 }
//	  - type: final_state
//	    collection: quests
//	    id: q-1
//	    expect: { status: not_started }
//
// Quest ids are q-1, q-2 and so on in creation order; sub-entries take ids
// from the same sequence.
//
// # Steps
//
//   - create, edit: take args (name, kind, difficulty, deadline, ...)
//   - start, complete, delete: take quest
//   - subquest: takes quest and sub
//   - buy, use: take item
//   - advance: moves the clock by the given duration and ticks
//   - tick: ticks at the current time
//
// Deadlines are either RFC 3339 times or offsets from the clock such as +5h.
//
// # Assertion Types
//
//   - trace_contains: a step with the given outcome (and target) ran
//   - trace_order: steps ran in the given order
//   - trace_count: a step ran exactly N times
//   - resources: subset match against the final resource state
//   - quest: subset match against a quest in the final snapshot
//   - notifications: exactly N notifications of a category were sent
//   - final_state: subset match against a persisted document
package harness
