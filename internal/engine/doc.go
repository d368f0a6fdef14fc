// Package engine owns all lifequest state and serializes every change to it.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// The resource ledger, quest book, inventory, deadline monitor and reset
// scheduler are touched only by the goroutine running Engine.Run. This
// ensures:
// - A deadline expiry and a user completion can never race on one quest
// - Penalties apply at most once per expiry
// - Persistence sees changes in the order they happened
//
// Event Processing Flow:
// 1. Commands (Create, Start, Complete, Buy, ...) and ticks are enqueued
// 2. Engine.Run() dequeues events one at a time, in FIFO order
// 3. Commands re-validate quest status before acting and reply to the caller
// 4. Ticks run the daily reset, then deadline warnings and expiries
// 5. Every change is handed to the Persister (normally the sync gateway)
//
// Timers never mutate state directly. deadline.RunTicker only enqueues
// ticks; the loop applies them.
package engine
