// Package store persists serialized session snapshots.
//
// A Store is a keyed upsert target: one row (or object) per session id holding
// the latest full snapshot, a hot flag and the last-activity time. Three
// backends are provided:
//
//   - MemoryStore: process-local map, the default for development and tests
//   - SQLStore: SQLite or PostgreSQL table "processes"
//   - S3Store: one JSON object per session in an S3 bucket
//
// Load distinguishes a missing session (nil, nil) from a backend failure
// (nil, err). Callers treat the former as "start empty".
package store
