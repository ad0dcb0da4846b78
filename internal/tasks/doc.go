// Package tasks holds the scheduling primitives shared by the synchronization engine.
//
// # Worker Pool
//
// [Pool] runs every outbound network call as a fire-and-forget task. Callers never block; the pool caps how many
// tasks run at once with a weighted semaphore, how fast they start with a token-bucket limiter and how many may
// wait. A rejected task is reported to the caller so it can degrade (log, or keep the item for a later retry round).
//
// # Debouncing
//
// [Debouncer] is a single one-shot timer with Reset/Cancel semantics. It backs the sync flush delay, the listen
// start delay and the retry backoff timer.
//
// # Updates
//
// [Update] values describe what the engine did (flushes, listens, retries, merges, remote mutations). They are
// delivered through [Notify], which uses select with default to prevent blocking.
package tasks
