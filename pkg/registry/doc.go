// Package registry owns the hot session cache.
//
// A Registry materializes each session's lobby on first reference, either
// from a persisted snapshot or empty, and keeps exactly one authoritative copy
// per session id in memory. Every operation on a session runs under that
// session's lock: the lobby mutation, the fanout of the resulting event to
// the session's subscribers and the enqueue of a snapshot write happen as one
// step, so every subscriber observes mutations in the same order. Sessions do
// not share a lock, so a busy session never stalls another.
//
// Persistence is write-behind. The registry hands snapshots to a Persister and
// never waits for them to reach storage.
//
// Sessions without subscribers can be evicted by idle time or by a cap on the
// number of hot sessions. An evicted session is reloaded on its next
// reference, preferring a snapshot still waiting in the persistence queue
// over the stored row.
package registry
