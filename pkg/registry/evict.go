package registry

import (
	"time"

	"github.com/olta-dev/olta/pkg/lobby"
	"github.com/olta-dev/olta/pkg/persist"
)

// Sweep evicts sessions without subscribers that are idle longer than
// IdleTTL, then least recently used ones while the cache holds more than
// MaxHotSessions. It returns the number of sessions evicted.
func (r *Registry) Sweep() int {
	return r.sweep(nil)
}

// sweep is Sweep sparing keep, the session a caller is about to use.
func (r *Registry) sweep(keep *session) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0
	}

	now := r.now()
	evicted := 0
	for e := r.lru.Back(); e != nil; {
		prev := e.Prev()
		s := e.Value.(*session)

		idle := r.config.IdleTTL > 0 && now.Sub(s.lastActive) >= r.config.IdleTTL
		over := r.config.MaxHotSessions > 0 && len(r.sessions) > r.config.MaxHotSessions
		if !idle && !over {
			// Everything in front was used more recently.
			break
		}

		reason := "idle"
		if !idle {
			reason = "capacity"
		}
		if s != keep && r.evictLocked(s, reason) {
			evicted++
		}
		e = prev
	}

	if evicted > 0 {
		r.logger.Debug("sweep evicted sessions",
			"count", evicted,
			"remaining", len(r.sessions))
	}
	return evicted
}

// evictLocked removes s from the cache if it has no subscribers and is not
// busy, after enqueueing a final snapshot marked not hot. Must be called with
// r.mu held.
func (r *Registry) evictLocked(s *session, reason string) bool {
	if !s.mu.TryLock() {
		return false
	}
	defer s.mu.Unlock()

	if len(s.subscribers) > 0 || s.evicted {
		return false
	}

	final := s.lobby.Clone()
	final.Hot = false
	data, err := lobby.Marshal(final)
	if err != nil {
		r.logger.Error("snapshot encode failed", "session_id", s.id, "error", err)
		return false
	}
	if err := r.persister.Enqueue(persist.Request{
		SessionID: s.id,
		State:     data,
		Hot:       false,
		Version:   s.lobby.Version,
	}); err != nil {
		// Keep the only copy in memory.
		r.logger.Warn("eviction skipped, snapshot not enqueued", "session_id", s.id, "error", err)
		return false
	}

	s.evicted = true
	r.lru.Remove(s.elem)
	delete(r.sessions, s.id)
	r.metrics.SessionEvicted()

	r.logger.Info("session evicted",
		"session_id", s.id,
		"reason", reason,
		"idle", r.now().Sub(s.lastActive).Round(time.Millisecond))
	return true
}

func (r *Registry) sweepLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-r.done:
			return
		}
	}
}
