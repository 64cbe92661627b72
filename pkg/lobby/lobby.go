package lobby

import (
	"fmt"
	"strconv"
)

// Lobby is the in-memory state of one session.
type Lobby struct {
	// ProcessID is the session id.
	ProcessID string

	// Collections holds every named collection.
	Collections Collections

	// ProcessedRequests records the request ids of created documents. It is
	// kept for idempotent-retry detection but no operation consults it yet.
	ProcessedRequests map[string]struct{}

	// Hot is set by every mutation and cleared once a snapshot taken at or
	// after the latest mutation has been persisted.
	Hot bool

	// Version is incremented by every mutation.
	Version uint64

	// Sequences holds the highest id ever assigned per collection, so ids of
	// deleted documents are not handed out again.
	Sequences map[string]uint64
}

// New returns an empty lobby for processID.
func New(processID string) *Lobby {
	return &Lobby{
		ProcessID:         processID,
		Collections:       make(Collections),
		ProcessedRequests: make(map[string]struct{}),
		Sequences:         make(map[string]uint64),
	}
}

// CreateDocument inserts a copy of doc into collection, creating the
// collection on first use, and returns the assigned id.
//
// The id is one more than the largest numeric id currently in the collection,
// or than the largest id ever assigned in it if that is higher. Any ID already
// set on doc is overwritten.
func (l *Lobby) CreateDocument(collection string, doc Document) (string, error) {
	if doc.Payload == nil {
		return "", ErrMissingPayload
	}
	if l.Collections == nil {
		l.Collections = make(Collections)
	}
	if l.Sequences == nil {
		l.Sequences = make(map[string]uint64)
	}
	if l.ProcessedRequests == nil {
		l.ProcessedRequests = make(map[string]struct{})
	}
	c, ok := l.Collections[collection]
	if !ok {
		c = make(Collection)
		l.Collections[collection] = c
	}

	next := c.nextID()
	if seq := l.Sequences[collection]; seq >= next {
		next = seq + 1
	}
	l.Sequences[collection] = next

	stored := doc.Clone()
	stored.ID = next
	id := strconv.FormatUint(stored.ID, 10)
	c[id] = stored

	if stored.RequestID != nil && *stored.RequestID != "" {
		l.ProcessedRequests[*stored.RequestID] = struct{}{}
	}
	l.touch()
	return id, nil
}

// UpdateDocument applies changes to the document and returns the changes that
// were applied. Fields that do not belong to the document's variant are
// dropped from the result. If nothing applies the lobby is left untouched.
func (l *Lobby) UpdateDocument(collection, id string, changes DocumentChanges) (DocumentChanges, error) {
	doc, err := l.lookup(collection, id)
	if err != nil {
		return DocumentChanges{}, err
	}
	applied := doc.Payload.Apply(changes)
	if applied.IsEmpty() {
		return applied, nil
	}
	l.touch()
	return applied, nil
}

// DeleteDocument removes the document and reports whether it was present.
// Deleting an absent document is not an error; a missing collection is.
func (l *Lobby) DeleteDocument(collection, id string) (bool, error) {
	c, ok := l.Collections[collection]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	if _, ok := c[id]; !ok {
		return false, nil
	}
	delete(c, id)
	l.touch()
	return true, nil
}

// Document returns a copy of the document.
func (l *Lobby) Document(collection, id string) (*Document, error) {
	doc, err := l.lookup(collection, id)
	if err != nil {
		return nil, err
	}
	return doc.Clone(), nil
}

// Collection returns a copy of the named collection.
func (l *Lobby) Collection(name string) (Collection, error) {
	c, ok := l.Collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return c.clone(), nil
}

// FullState returns a deep copy of all collections.
func (l *Lobby) FullState() Collections {
	return l.Collections.Clone()
}

// Clone returns a deep copy of the lobby.
func (l *Lobby) Clone() *Lobby {
	out := New(l.ProcessID)
	out.Collections = l.Collections.Clone()
	for id := range l.ProcessedRequests {
		out.ProcessedRequests[id] = struct{}{}
	}
	for name, seq := range l.Sequences {
		out.Sequences[name] = seq
	}
	out.Hot = l.Hot
	out.Version = l.Version
	return out
}

// MarkPersisted clears Hot if no mutation happened after version.
func (l *Lobby) MarkPersisted(version uint64) {
	if version >= l.Version {
		l.Hot = false
	}
}

// DocumentCount returns the number of documents across all collections.
func (l *Lobby) DocumentCount() int {
	n := 0
	for _, c := range l.Collections {
		n += len(c)
	}
	return n
}

func (l *Lobby) lookup(collection, id string) (*Document, error) {
	c, ok := l.Collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	doc, ok := c[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrDocumentNotFound, collection, id)
	}
	return doc, nil
}

func (l *Lobby) touch() {
	l.Hot = true
	l.Version++
}
