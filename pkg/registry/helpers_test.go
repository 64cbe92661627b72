package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/olta-dev/olta/pkg/lobby"
	"github.com/olta-dev/olta/pkg/persist"
	"github.com/olta-dev/olta/pkg/protocol"
	"github.com/olta-dev/olta/pkg/store"
)

type fakeSink struct {
	id string

	mu   sync.Mutex
	msgs [][]byte
	err  error
}

func newFakeSink(id string) *fakeSink { return &fakeSink{id: id} }

func (s *fakeSink) ID() string { return s.id }

func (s *fakeSink) Send(msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, append([]byte(nil), msg...))
	return nil
}

func (s *fakeSink) messages() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.msgs...)
}

func (s *fakeSink) events(t *testing.T) []protocol.Output {
	t.Helper()
	var out []protocol.Output
	for _, msg := range s.messages() {
		ev, err := protocol.DecodeOutput(msg)
		if err != nil {
			t.Fatalf("DecodeOutput(%s) error: %v", msg, err)
		}
		out = append(out, ev)
	}
	return out
}

type fakePersister struct {
	mu      sync.Mutex
	reqs    []persist.Request
	pending map[string][]byte
	err     error
}

func newFakePersister() *fakePersister {
	return &fakePersister{pending: make(map[string][]byte)}
}

func (p *fakePersister) Enqueue(req persist.Request) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.reqs = append(p.reqs, req)
	p.pending[req.SessionID] = req.State
	return nil
}

func (p *fakePersister) Pending(id string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.pending[id]
	return data, ok
}

// flush drops pending state, as if the worker had written everything.
func (p *fakePersister) flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = make(map[string][]byte)
}

func (p *fakePersister) requests() []persist.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]persist.Request(nil), p.reqs...)
}

type countingStore struct {
	store.Store
	loads atomic.Int32
	delay time.Duration
	err   error
}

func (s *countingStore) Load(ctx context.Context, id string) ([]byte, error) {
	s.loads.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.Store.Load(ctx, id)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errSinkClosed = errors.New("sink closed")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T, st store.Store, p Persister, cfg Config) *Registry {
	t.Helper()
	if st == nil {
		st = store.NewMemoryStore()
	}
	if p == nil {
		p = newFakePersister()
	}
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	r := New(st, p, cfg)
	t.Cleanup(func() { r.Close() })
	return r
}

func cube(x, y, z string) lobby.Document {
	return lobby.Document{
		Creator: "tester",
		Payload: &lobby.Cube{X: x, Y: y, Z: z, Color: "blue", RotX: "0", RotY: "0", RotZ: "0"},
	}
}
