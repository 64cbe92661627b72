package registry

import (
	"context"
	"fmt"

	"github.com/olta-dev/olta/pkg/lobby"
	"github.com/olta-dev/olta/pkg/protocol"
	"go.opentelemetry.io/otel/attribute"
)

// CreateDocument inserts doc into collection, broadcasts DocumentCreated with
// the stored document and schedules a snapshot write. It returns the assigned
// id.
func (r *Registry) CreateDocument(ctx context.Context, sessionID, collection string, doc lobby.Document) (id string, err error) {
	ctx, span, start := r.startOp(ctx, "create_document", sessionID,
		attribute.String("olta.collection", collection))
	defer func() { r.endOp(span, "create_document", start, err) }()

	s, err := r.acquire(ctx, sessionID)
	if err != nil {
		return "", err
	}
	defer s.mu.Unlock()

	id, err = s.lobby.CreateDocument(collection, doc)
	if err != nil {
		return "", newSessionError(sessionID, "create_document", err)
	}
	stored, err := s.lobby.Document(collection, id)
	if err != nil {
		return "", newSessionError(sessionID, "create_document", err)
	}
	span.SetAttributes(attribute.String("olta.doc_id", id))

	r.broadcastLocked(s, protocol.DocumentCreated{
		ProcessID:      sessionID,
		CollectionName: collection,
		DocID:          id,
		Document:       stored,
	})
	r.persist(s)
	return id, nil
}

// UpdateDocument patches a document and broadcasts DocumentUpdated carrying
// only the applied changes. Nothing is broadcast or persisted on failure or
// when no field applies to the document's variant.
func (r *Registry) UpdateDocument(ctx context.Context, sessionID, collection, docID string, changes lobby.DocumentChanges) (applied lobby.DocumentChanges, err error) {
	ctx, span, start := r.startOp(ctx, "update_document", sessionID,
		attribute.String("olta.collection", collection),
		attribute.String("olta.doc_id", docID))
	defer func() { r.endOp(span, "update_document", start, err) }()

	s, err := r.acquire(ctx, sessionID)
	if err != nil {
		return lobby.DocumentChanges{}, err
	}
	defer s.mu.Unlock()

	applied, err = s.lobby.UpdateDocument(collection, docID, changes)
	if err != nil {
		return lobby.DocumentChanges{}, newSessionError(sessionID, "update_document", err)
	}
	if applied.IsEmpty() {
		return applied, nil
	}

	r.broadcastLocked(s, protocol.DocumentUpdated{
		ProcessID:      sessionID,
		CollectionName: collection,
		DocID:          docID,
		Changes:        applied,
	})
	r.persist(s)
	return applied, nil
}

// DeleteDocument removes a document and broadcasts DocumentDeleted.
//
// Deleting a document that is not there reports false together with an error
// wrapping lobby.ErrDocumentNotFound; nothing is broadcast or persisted. A
// missing collection is reported as lobby.ErrCollectionNotFound.
func (r *Registry) DeleteDocument(ctx context.Context, sessionID, collection, docID string) (removed bool, err error) {
	ctx, span, start := r.startOp(ctx, "delete_document", sessionID,
		attribute.String("olta.collection", collection),
		attribute.String("olta.doc_id", docID))
	defer func() { r.endOp(span, "delete_document", start, err) }()

	s, err := r.acquire(ctx, sessionID)
	if err != nil {
		return false, err
	}
	defer s.mu.Unlock()

	removed, err = s.lobby.DeleteDocument(collection, docID)
	if err != nil {
		return false, newSessionError(sessionID, "delete_document", err)
	}
	if !removed {
		return false, newSessionError(sessionID, "delete_document",
			fmt.Errorf("%w: %s/%s", lobby.ErrDocumentNotFound, collection, docID))
	}

	r.broadcastLocked(s, protocol.DocumentDeleted{
		ProcessID:      sessionID,
		CollectionName: collection,
		DocID:          docID,
	})
	r.persist(s)
	return true, nil
}

// Broadcast sends out to every subscriber of sessionID, loading the session
// if it is cold.
func (r *Registry) Broadcast(ctx context.Context, sessionID string, out protocol.Output) (err error) {
	ctx, span, start := r.startOp(ctx, "broadcast", sessionID,
		attribute.String("olta.event", out.OutputTag()))
	defer func() { r.endOp(span, "broadcast", start, err) }()

	s, err := r.acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if err := r.fanoutLocked(s, out); err != nil {
		return newSessionError(sessionID, "broadcast", err)
	}
	return nil
}

// broadcastLocked fans out the event of an applied mutation. Encoding
// failures are logged.
func (r *Registry) broadcastLocked(s *session, out protocol.Output) {
	if err := r.fanoutLocked(s, out); err != nil {
		r.logger.Error("event encode failed",
			"session_id", s.id,
			"event", out.OutputTag(),
			"error", err)
	}
}
