package registry

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/olta-dev/olta/pkg/lobby"
	"github.com/olta-dev/olta/pkg/metrics"
	"github.com/olta-dev/olta/pkg/persist"
	"github.com/olta-dev/olta/pkg/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const tracerName = "olta/registry"

// Persister accepts snapshot writes. *persist.Queue implements it.
type Persister interface {
	// Enqueue schedules a write and must not block.
	Enqueue(req persist.Request) error

	// Pending returns the newest snapshot not yet written for sessionID.
	Pending(sessionID string) ([]byte, bool)
}

// Registry is the hot cache of sessions.
type Registry struct {
	mu sync.Mutex

	// Hot sessions by id
	sessions map[string]*session

	// Sessions in LRU order (front = most recently used)
	lru *list.List

	loads     singleflight.Group
	store     store.Store
	persister Persister

	config  Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	subscribers atomic.Int64
	now         func() time.Time

	// Lifecycle
	done   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// New creates a registry reading cold sessions from st and writing snapshots
// through p. If config enables eviction a background sweeper is started; stop
// it with Close.
func New(st store.Store, p Persister, config Config) *Registry {
	defaults := DefaultConfig()
	if config.SweepInterval <= 0 {
		config.SweepInterval = defaults.SweepInterval
	}
	if config.LoadTimeout <= 0 {
		config.LoadTimeout = defaults.LoadTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := config.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	r := &Registry{
		sessions:  make(map[string]*session),
		lru:       list.New(),
		store:     st,
		persister: p,
		config:    config,
		logger:    logger.With("component", "registry"),
		metrics:   config.Metrics,
		tracer:    tracer,
		now:       time.Now,
		done:      make(chan struct{}),
	}

	if config.IdleTTL > 0 || config.MaxHotSessions > 0 {
		r.wg.Add(1)
		go r.sweepLoop()
	}
	return r
}

// GetOrLoad makes sure sessionID is hot and returns a copy of its lobby.
//
// A cold session is read from the store. If it has never been saved an empty
// lobby is created and its snapshot is scheduled for persistence. A store
// failure is reported as ErrStoreUnavailable and leaves the cache unchanged.
func (r *Registry) GetOrLoad(ctx context.Context, sessionID string) (*lobby.Lobby, error) {
	s, err := r.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	return s.lobby.Clone(), nil
}

// FullState returns a deep copy of the session's collections.
func (r *Registry) FullState(ctx context.Context, sessionID string) (lobby.Collections, error) {
	s, err := r.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	return s.lobby.FullState(), nil
}

// MarkPersisted records that a snapshot of sessionID at version has been
// written. The session stops being hot unless it changed since.
func (r *Registry) MarkPersisted(sessionID string, version uint64) {
	r.mu.Lock()
	s := r.sessions[sessionID]
	r.mu.Unlock()
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.evicted {
		s.lobby.MarkPersisted(version)
	}
}

// Stats returns current cache statistics.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	sessions := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	stats := Stats{
		HotSessions: len(sessions),
		Subscribers: int(r.subscribers.Load()),
	}
	for _, s := range sessions {
		s.mu.Lock()
		if s.lobby.Hot {
			stats.DirtySessions++
		}
		s.mu.Unlock()
	}
	return stats
}

// Close stops the sweeper and rejects further operations. Sessions are not
// flushed: every mutation has already been handed to the Persister.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.done)
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Debug("registry closed")
	return nil
}

// acquire returns the hot session for sessionID with its lock held.
func (r *Registry) acquire(ctx context.Context, sessionID string) (*session, error) {
	for {
		s, err := r.getOrLoad(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if !s.evicted {
			return s, nil
		}
		// Evicted between lookup and lock; load it again.
		s.mu.Unlock()
	}
}

func (r *Registry) getOrLoad(ctx context.Context, sessionID string) (*session, error) {
	if s, err := r.lookup(sessionID); s != nil || err != nil {
		return s, err
	}

	v, err, _ := r.loads.Do(sessionID, func() (any, error) {
		if s, err := r.lookup(sessionID); s != nil || err != nil {
			return s, err
		}
		return r.load(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*session), nil
}

// lookup returns the hot session and marks it used.
func (r *Registry) lookup(sessionID string) (*session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	s.lastActive = r.now()
	r.lru.MoveToFront(s.elem)
	return s, nil
}

func (r *Registry) load(ctx context.Context, sessionID string) (*session, error) {
	ctx, span := r.tracer.Start(ctx, "registry.load",
		trace.WithAttributes(attribute.String("olta.session_id", sessionID)))
	defer span.End()

	l, source, err := r.fetch(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error("session load failed", "session_id", sessionID, "error", err)
		return nil, err
	}
	span.SetAttributes(attribute.String("olta.load_source", source))

	s := newSession(sessionID, l)
	if source == "new" {
		// A new process is unsaved state until its first write lands.
		l.Hot = true
		r.persist(s)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	s.lastActive = r.now()
	s.elem = r.lru.PushFront(s)
	r.sessions[sessionID] = s
	overCap := r.config.MaxHotSessions > 0 && len(r.sessions) > r.config.MaxHotSessions
	r.mu.Unlock()

	r.metrics.SessionLoaded(source)
	r.logger.Debug("session loaded",
		"session_id", sessionID,
		"source", source,
		"documents", l.DocumentCount())

	if overCap {
		r.sweep(s)
	}
	return s, nil
}

// fetch reads a cold session: from the persistence queue if a write is still
// pending, else from the store, else a new empty lobby.
func (r *Registry) fetch(ctx context.Context, sessionID string) (*lobby.Lobby, string, error) {
	source := "pending"
	data, ok := r.persister.Pending(sessionID)
	if !ok {
		source = "store"
		// A load shared by several callers must not fail because the first
		// caller went away.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.config.LoadTimeout)
		defer cancel()

		var err error
		data, err = r.store.Load(loadCtx, sessionID)
		if err != nil {
			return nil, "", newSessionError(sessionID, "load", fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
		}
	}
	if data == nil {
		return lobby.New(sessionID), "new", nil
	}

	l, err := lobby.Unmarshal(data)
	if err != nil {
		return nil, "", newSessionError(sessionID, "load", fmt.Errorf("%w: %w", ErrSerialization, err))
	}
	l.ProcessID = sessionID
	return l, source, nil
}

// persist enqueues a snapshot of s. The caller holds s.mu or owns s.
func (r *Registry) persist(s *session) {
	data, err := lobby.Marshal(s.lobby)
	if err != nil {
		r.logger.Error("snapshot encode failed", "session_id", s.id, "error", err)
		return
	}
	err = r.persister.Enqueue(persist.Request{
		SessionID: s.id,
		State:     data,
		Hot:       s.lobby.Hot,
		Version:   s.lobby.Version,
	})
	if err != nil {
		r.logger.Warn("snapshot not enqueued", "session_id", s.id, "error", err)
	}
}

// startOp opens a span for a session operation.
func (r *Registry) startOp(ctx context.Context, op, sessionID string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	attrs = append(attrs, attribute.String("olta.session_id", sessionID))
	ctx, span := r.tracer.Start(ctx, "registry."+op, trace.WithAttributes(attrs...))
	return ctx, span, time.Now()
}

// endOp closes the span and records the outcome.
func (r *Registry) endOp(span trace.Span, op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = string(KindOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
	r.metrics.Operation(op, status, time.Since(start))
}
