// Package lobby implements the in-memory authoritative state of one
// collaborative session.
//
// A Lobby holds named collections of documents. Each document carries a typed
// payload (Cube, Vertex or Splash) selected by its "type" discriminant:
//
//	{"_id": 1, "_creator": "user1", "request_id": null, "type": "cubes",
//	 "x": "1", "y": "2", "z": "3", "color": "red", "rotX": "0", "rotY": "0", "rotZ": "0"}
//
// # Identifiers
//
// Document ids are assigned by the Lobby, never by clients. The next id in a
// collection is one more than the largest numeric key currently present, so n
// creates into an empty collection yield "1".."n". The highest id ever
// assigned is also remembered per collection, so deleted ids are never handed
// out again.
//
// # Patches
//
// UpdateDocument applies a DocumentChanges patch: every field present in the
// patch overwrites the matching field of the document's payload, absent fields
// are left alone, and fields that do not exist on the payload's variant are
// ignored. There is no version check; the last write wins.
//
// # Concurrency
//
// A Lobby is not safe for concurrent use. The registry serializes all access
// to a given Lobby.
package lobby
