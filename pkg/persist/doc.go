// Package persist implements the write-behind persistence queue.
//
// Producers call Enqueue after every in-memory mutation; it never blocks and
// never reports storage failures. A single worker started with Run drains the
// queue in arrival order and writes each snapshot to a store.Store. Failed
// writes are logged and dropped. Superseded snapshots of the same session are
// not coalesced.
//
// Pending exposes the newest snapshot of a session that is still queued or
// in flight, so a session evicted from memory can be reloaded without reading
// an older row from the store.
package persist
