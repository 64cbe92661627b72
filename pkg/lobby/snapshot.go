package lobby

import (
	"encoding/json"
	"fmt"
	"sort"
)

// snapshot is the persisted JSON form of a Lobby.
type snapshot struct {
	ProcessID         string            `json:"process_id"`
	Collections       Collections       `json:"collections"`
	ProcessedRequests []string          `json:"processed_txs"`
	Hot               bool              `json:"hot"`
	Version           uint64            `json:"version,omitempty"`
	Sequences         map[string]uint64 `json:"sequences,omitempty"`
}

// Marshal serializes the full lobby state.
func Marshal(l *Lobby) ([]byte, error) {
	reqs := make([]string, 0, len(l.ProcessedRequests))
	for id := range l.ProcessedRequests {
		reqs = append(reqs, id)
	}
	sort.Strings(reqs)

	collections := l.Collections
	if collections == nil {
		collections = Collections{}
	}
	return json.Marshal(snapshot{
		ProcessID:         l.ProcessID,
		Collections:       collections,
		ProcessedRequests: reqs,
		Hot:               l.Hot,
		Version:           l.Version,
		Sequences:         l.Sequences,
	})
}

// Unmarshal restores a lobby from the output of Marshal.
func Unmarshal(data []byte) (*Lobby, error) {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("lobby: decode snapshot: %w", err)
	}
	l := New(s.ProcessID)
	for name, c := range s.Collections {
		if c == nil {
			c = make(Collection)
		}
		for id, doc := range c {
			if doc == nil {
				delete(c, id)
			}
		}
		l.Collections[name] = c
	}
	for _, id := range s.ProcessedRequests {
		l.ProcessedRequests[id] = struct{}{}
	}
	for name, seq := range s.Sequences {
		l.Sequences[name] = seq
	}
	l.Hot = s.Hot
	l.Version = s.Version
	return l, nil
}
