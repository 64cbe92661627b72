// Package protocol defines the JSON messages exchanged over a session
// WebSocket.
//
// Every message is a JSON object with exactly one key naming the message
// type. The value holds the message body:
//
//	{"UpdateDocument": {"collection_name": "cubes", "doc_id": "3", "changes": {"x": "4"}}}
//
// # Client Messages
//
//   - JoinProcess: switch process (rejected on an established connection)
//   - CreateDocument: insert a document, the server assigns the id
//   - UpdateDocument: apply a partial patch
//   - DeleteDocument: remove a document
//
// # Server Events
//
//   - FullSync: complete process state, always the first message
//   - DocumentCreated, DocumentUpdated, DocumentDeleted: broadcast to
//     every subscriber of the process
//   - Error: sent only to the client whose request failed
//
// Decoding never panics on arbitrary input. Malformed JSON and objects with
// zero or several keys return ErrMalformedMessage; a single unknown key
// returns ErrUnknownMessage.
package protocol
