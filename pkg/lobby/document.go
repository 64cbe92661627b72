package lobby

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Document is a single addressable record in a collection.
type Document struct {
	// ID is assigned by the Lobby on insert; any client-supplied value is overwritten.
	ID uint64

	// Creator identifies the client that created the document.
	Creator string

	// RequestID is the optional client-side id of the create request.
	RequestID *string

	// Payload holds the variant fields.
	Payload Payload
}

// Kind returns the payload kind, or "" if the document has no payload.
func (d *Document) Kind() Kind {
	if d.Payload == nil {
		return ""
	}
	return d.Payload.Kind()
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	cp := *d
	if d.RequestID != nil {
		cp.RequestID = String(*d.RequestID)
	}
	if d.Payload != nil {
		cp.Payload = d.Payload.clone()
	}
	return &cp
}

// documentHeader is the variant-independent part of the JSON form.
type documentHeader struct {
	ID        uint64  `json:"_id"`
	Creator   string  `json:"_creator"`
	RequestID *string `json:"request_id"`
	Type      Kind    `json:"type"`
}

// MarshalJSON encodes the document as a flat object: header fields, the "type"
// discriminant and the payload fields side by side.
func (d Document) MarshalJSON() ([]byte, error) {
	if d.Payload == nil {
		return nil, ErrMissingPayload
	}
	head, err := json.Marshal(documentHeader{
		ID:        d.ID,
		Creator:   d.Creator,
		RequestID: d.RequestID,
		Type:      d.Payload.Kind(),
	})
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(d.Payload)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(body, []byte("{}")) {
		return head, nil
	}

	var buf bytes.Buffer
	buf.Grow(len(head) + len(body))
	buf.Write(head[:len(head)-1])
	buf.WriteByte(',')
	buf.Write(body[1:])
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes the flat object form produced by MarshalJSON.
// Missing payload fields decode as empty strings.
func (d *Document) UnmarshalJSON(data []byte) error {
	var head documentHeader
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	p := newPayload(head.Type)
	if p == nil {
		return fmt.Errorf("%w: %q", ErrUnknownDocumentType, head.Type)
	}
	if err := json.Unmarshal(data, p); err != nil {
		return err
	}
	*d = Document{
		ID:        head.ID,
		Creator:   head.Creator,
		RequestID: head.RequestID,
		Payload:   p,
	}
	return nil
}

// Collection maps document ids (decimal strings) to documents.
type Collection map[string]*Document

// IDs returns the document ids in ascending numeric order. Keys that are not
// numeric sort after numeric ones, lexicographically.
func (c Collection) IDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, aErr := strconv.ParseUint(ids[i], 10, 64)
		b, bErr := strconv.ParseUint(ids[j], 10, 64)
		switch {
		case aErr == nil && bErr == nil:
			return a < b
		case aErr == nil:
			return true
		case bErr == nil:
			return false
		}
		return ids[i] < ids[j]
	})
	return ids
}

// nextID returns one more than the largest numeric key, or 1 if there is none.
// It is recomputed from the live key set on every call.
func (c Collection) nextID() uint64 {
	var max uint64
	for id := range c {
		n, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max + 1
}

func (c Collection) clone() Collection {
	cp := make(Collection, len(c))
	for id, doc := range c {
		cp[id] = doc.Clone()
	}
	return cp
}

// Collections maps collection names to collections.
type Collections map[string]Collection

// Clone returns a deep copy of every collection and document.
func (cs Collections) Clone() Collections {
	cp := make(Collections, len(cs))
	for name, c := range cs {
		cp[name] = c.clone()
	}
	return cp
}

// Names returns the collection names in sorted order.
func (cs Collections) Names() []string {
	names := make([]string, 0, len(cs))
	for name := range cs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
