package protocol

import "github.com/olta-dev/olta/pkg/lobby"

// Message tags. Each message is encoded as a JSON object with exactly one key,
// the tag, whose value is the message body:
//
//	{"CreateDocument": {"collection_name": "cubes", "document": {...}}}
const (
	TagJoinProcess    = "JoinProcess"
	TagCreateDocument = "CreateDocument"
	TagUpdateDocument = "UpdateDocument"
	TagDeleteDocument = "DeleteDocument"

	TagFullSync        = "FullSync"
	TagDocumentCreated = "DocumentCreated"
	TagDocumentUpdated = "DocumentUpdated"
	TagDocumentDeleted = "DocumentDeleted"
	TagError           = "Error"
)

// Input is a client to server message.
type Input interface {
	InputTag() string
}

// JoinProcess asks to switch the connection to another process.
type JoinProcess struct {
	ProcessID string `json:"process_id"`
}

// CreateDocument inserts a document; the server assigns its id.
type CreateDocument struct {
	CollectionName string         `json:"collection_name"`
	Document       lobby.Document `json:"document"`
}

// UpdateDocument applies a partial patch to a document.
type UpdateDocument struct {
	CollectionName string                `json:"collection_name"`
	DocID          string                `json:"doc_id"`
	Changes        lobby.DocumentChanges `json:"changes"`
}

// DeleteDocument removes a document.
type DeleteDocument struct {
	CollectionName string `json:"collection_name"`
	DocID          string `json:"doc_id"`
}

func (JoinProcess) InputTag() string    { return TagJoinProcess }
func (CreateDocument) InputTag() string { return TagCreateDocument }
func (UpdateDocument) InputTag() string { return TagUpdateDocument }
func (DeleteDocument) InputTag() string { return TagDeleteDocument }

// Output is a server to client event.
type Output interface {
	OutputTag() string
}

// FullSync carries the complete state of a process. It is the first message
// on every connection.
type FullSync struct {
	ProcessID   string            `json:"process_id"`
	Collections lobby.Collections `json:"collections"`
}

// DocumentCreated carries the stored document, including its assigned id.
type DocumentCreated struct {
	ProcessID      string          `json:"process_id"`
	CollectionName string          `json:"collection_name"`
	DocID          string          `json:"doc_id"`
	Document       *lobby.Document `json:"document"`
}

// DocumentUpdated carries only the applied changes, not the full document.
type DocumentUpdated struct {
	ProcessID      string                `json:"process_id"`
	CollectionName string                `json:"collection_name"`
	DocID          string                `json:"doc_id"`
	Changes        lobby.DocumentChanges `json:"changes"`
}

// DocumentDeleted announces a removed document.
type DocumentDeleted struct {
	ProcessID      string `json:"process_id"`
	CollectionName string `json:"collection_name"`
	DocID          string `json:"doc_id"`
}

// Error reports a failed request to the client that sent it.
type Error struct {
	Message string `json:"message"`
}

func (FullSync) OutputTag() string        { return TagFullSync }
func (DocumentCreated) OutputTag() string { return TagDocumentCreated }
func (DocumentUpdated) OutputTag() string { return TagDocumentUpdated }
func (DocumentDeleted) OutputTag() string { return TagDocumentDeleted }
func (Error) OutputTag() string           { return TagError }
