package persist

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/olta-dev/olta/internal/fifo"
	"github.com/olta-dev/olta/pkg/metrics"
	"github.com/olta-dev/olta/pkg/store"
)

var (
	// ErrQueueClosed is returned by Enqueue after Shutdown has begun.
	ErrQueueClosed = errors.New("persist: queue closed")

	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("persist: worker already running")
)

// Request is one snapshot write.
type Request struct {
	SessionID  string
	State      []byte
	Hot        bool
	Version    uint64
	EnqueuedAt time.Time
}

// Config configures a Queue.
type Config struct {
	// SaveTimeout bounds each store write. Default: 10s.
	SaveTimeout time.Duration

	// Logger receives write failures. Default: slog.Default().
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *metrics.Metrics

	// OnSaved is called by the worker after each successful write.
	OnSaved func(Request)
}

// DefaultConfig returns the default queue configuration.
func DefaultConfig() Config {
	return Config{
		SaveTimeout: 10 * time.Second,
	}
}

type pendingEntry struct {
	state       []byte
	outstanding int
}

// Queue is an unbounded FIFO of snapshot writes with one consumer.
type Queue struct {
	store   store.Store
	items   *fifo.Queue[Request]
	config  Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	pending map[string]*pendingEntry

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a queue writing to st. Call Run to start the worker.
func New(st store.Store, config Config) *Queue {
	if config.SaveTimeout <= 0 {
		config.SaveTimeout = DefaultConfig().SaveTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Queue{
		store:   st,
		items:   fifo.New[Request](),
		config:  config,
		logger:  logger.With("component", "persist_worker"),
		metrics: config.Metrics,
		pending: make(map[string]*pendingEntry),
		done:    make(chan struct{}),
	}
}

// Enqueue schedules req for writing. It never blocks.
func (q *Queue) Enqueue(req Request) error {
	if req.EnqueuedAt.IsZero() {
		req.EnqueuedAt = time.Now()
	}

	q.mu.Lock()
	if !q.items.Push(req) {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	e := q.pending[req.SessionID]
	if e == nil {
		e = &pendingEntry{}
		q.pending[req.SessionID] = e
	}
	e.state = req.State
	e.outstanding++
	q.mu.Unlock()

	q.metrics.QueueDepth(q.items.Len())
	return nil
}

// Pending returns the newest snapshot of sessionID that has been enqueued but
// not yet written, or false if there is none.
func (q *Queue) Pending(sessionID string) ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.pending[sessionID]
	if !ok {
		return nil, false
	}
	return e.state, true
}

// Len returns the number of queued writes, excluding one in flight.
func (q *Queue) Len() int {
	return q.items.Len()
}

// Run consumes the queue until it is shut down and drained, or ctx is done.
// It returns nil after a complete drain.
func (q *Queue) Run(ctx context.Context) error {
	if !q.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	q.mu.Lock()
	q.cancel = cancel
	q.mu.Unlock()
	defer cancel()
	defer close(q.done)

	for {
		req, ok := q.items.Pop(ctx)
		if err := ctx.Err(); err != nil {
			dropped := q.items.Len()
			if ok {
				dropped++
			}
			if dropped > 0 {
				q.logger.Warn("persistence worker stopped with writes queued", "dropped", dropped)
			}
			return err
		}
		if !ok {
			return nil
		}
		q.metrics.QueueDepth(q.items.Len())
		q.write(ctx, req)
	}
}

func (q *Queue) write(ctx context.Context, req Request) {
	ctx, cancel := context.WithTimeout(ctx, q.config.SaveTimeout)
	defer cancel()

	start := time.Now()
	err := q.store.Save(ctx, store.Record{
		SessionID:    req.SessionID,
		State:        req.State,
		Hot:          req.Hot,
		LastActivity: req.EnqueuedAt,
	})
	took := time.Since(start)
	q.metrics.Write(err, len(req.State), took, time.Since(req.EnqueuedAt))

	q.mu.Lock()
	if e := q.pending[req.SessionID]; e != nil {
		e.outstanding--
		if e.outstanding <= 0 {
			delete(q.pending, req.SessionID)
		}
	}
	q.mu.Unlock()

	if err != nil {
		q.logger.Error("snapshot write failed",
			"session_id", req.SessionID,
			"version", req.Version,
			"error", err)
		return
	}

	q.logger.Debug("snapshot written",
		"session_id", req.SessionID,
		"version", req.Version,
		"bytes", len(req.State),
		"took", took)
	if q.config.OnSaved != nil {
		q.config.OnSaved(req)
	}
}

// Shutdown stops intake and waits for the worker to drain the queue. If ctx
// expires first the worker is stopped, remaining writes are dropped and
// ctx.Err() is returned.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.items.Close()
	if !q.running.Load() {
		return nil
	}

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		q.mu.Lock()
		cancel := q.cancel
		q.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		<-q.done
		return ctx.Err()
	}
}
