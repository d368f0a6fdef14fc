// Package store provides SQLite-backed durable storage for player data.
//
// The store is a small document store: every record is a JSON body addressed
// by a collection name and a string id. The engine uses three collections:
//   - resources: the single player resource state
//   - quests: one document per quest
//   - inventory: one document per owned item
//
// Writes are upserts and last-write-wins. Deletes are idempotent. Lists are
// ordered by id COLLATE BINARY so results are stable across runs.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Busy, locked and full database errors are reported as *TransientError so
// callers can retry them.
package store
