package lobby

import "errors"

var (
	// ErrCollectionNotFound is returned when a named collection does not exist.
	ErrCollectionNotFound = errors.New("lobby: collection not found")

	// ErrDocumentNotFound is returned when a document id does not exist in a collection.
	ErrDocumentNotFound = errors.New("lobby: document not found")

	// ErrUnknownDocumentType is returned when decoding a document whose "type"
	// discriminant is not one of the known variants.
	ErrUnknownDocumentType = errors.New("lobby: unknown document type")

	// ErrMissingPayload is returned when a document has no payload.
	ErrMissingPayload = errors.New("lobby: document has no payload")
)
