package registry

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/olta-dev/olta/pkg/lobby"
	"github.com/olta-dev/olta/pkg/protocol"
	"go.opentelemetry.io/otel/attribute"
)

// Sink receives serialized events for one subscriber.
type Sink interface {
	// ID identifies the subscriber within its session.
	ID() string

	// Send delivers one serialized event. It must not block; it returns an
	// error if the sink is closed.
	Send(msg []byte) error
}

// session is one hot lobby and its subscribers.
type session struct {
	id string

	// mu serializes every operation on the lobby and its fanout.
	mu          sync.Mutex
	lobby       *lobby.Lobby
	subscribers []Sink
	evicted     bool

	// Guarded by Registry.mu.
	elem       *list.Element
	lastActive time.Time
}

func newSession(id string, l *lobby.Lobby) *session {
	return &session{id: id, lobby: l}
}

// Join subscribes sink to sessionID and sends it a FullSync of the current
// state before any later event can reach it.
func (r *Registry) Join(ctx context.Context, sessionID string, sink Sink) (err error) {
	ctx, span, start := r.startOp(ctx, "join", sessionID, attribute.String("olta.subscriber_id", sink.ID()))
	defer func() { r.endOp(span, "join", start, err) }()

	s, err := r.acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	msg, err := protocol.Encode(protocol.FullSync{
		ProcessID:   sessionID,
		Collections: s.lobby.FullState(),
	})
	if err != nil {
		return newSessionError(sessionID, "join", err)
	}
	if err := sink.Send(msg); err != nil {
		return newSessionError(sessionID, "join", err)
	}
	r.subscribeLocked(s, sink)
	return nil
}

// AddSubscriber registers sink for the session's events without a FullSync.
// The list is unbounded; callers deregister with RemoveSubscriber.
func (r *Registry) AddSubscriber(ctx context.Context, sessionID string, sink Sink) error {
	s, err := r.acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	r.subscribeLocked(s, sink)
	return nil
}

// RemoveSubscriber deregisters the subscriber with the given id and reports
// whether it was registered. It never loads a cold session.
func (r *Registry) RemoveSubscriber(sessionID, subscriberID string) bool {
	r.mu.Lock()
	s := r.sessions[sessionID]
	if s != nil {
		s.lastActive = r.now()
		r.lru.MoveToFront(s.elem)
	}
	r.mu.Unlock()
	if s == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subscribers {
		if sub.ID() == subscriberID {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			r.subscribers.Add(-1)
			r.metrics.SubscriberRemoved()
			r.logger.Debug("subscriber removed",
				"session_id", sessionID,
				"subscriber_id", subscriberID,
				"remaining", len(s.subscribers))
			return true
		}
	}
	return false
}

// Subscribers returns the number of subscribers of a hot session.
func (r *Registry) Subscribers(sessionID string) int {
	r.mu.Lock()
	s := r.sessions[sessionID]
	r.mu.Unlock()
	if s == nil {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

func (r *Registry) subscribeLocked(s *session, sink Sink) {
	s.subscribers = append(s.subscribers, sink)
	r.subscribers.Add(1)
	r.metrics.SubscriberAdded()
	r.logger.Debug("subscriber added",
		"session_id", s.id,
		"subscriber_id", sink.ID(),
		"subscribers", len(s.subscribers))
}

// fanoutLocked serializes out once and sends it to every subscriber of s.
// A failed send is logged and skipped; the subscriber stays registered.
func (r *Registry) fanoutLocked(s *session, out protocol.Output) error {
	msg, err := protocol.Encode(out)
	if err != nil {
		return err
	}

	failures := 0
	for _, sub := range s.subscribers {
		if err := sub.Send(msg); err != nil {
			failures++
			r.logger.Warn("broadcast send failed",
				"session_id", s.id,
				"subscriber_id", sub.ID(),
				"event", out.OutputTag(),
				"error", err)
		}
	}
	r.metrics.Broadcast(failures)
	return nil
}
