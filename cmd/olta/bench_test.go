package main

import (
	"bytes"
	"context"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/olta-dev/olta/pkg/lobby"
	"github.com/olta-dev/olta/pkg/persist"
	"github.com/olta-dev/olta/pkg/registry"
	"github.com/olta-dev/olta/pkg/server"
	"github.com/olta-dev/olta/pkg/store"
)

func TestSummarize(t *testing.T) {
	s := summarize([]float64{100, 200, 300})
	if s.Samples != 3 || s.Mean != 200 || s.Min != 100 || s.Max != 300 {
		t.Fatalf("summarize() = %+v", s)
	}
	want := math.Sqrt((100.0*100 + 0 + 100*100) / 3)
	if math.Abs(s.Jitter-want) > 1e-9 {
		t.Fatalf("Jitter = %v, want %v", s.Jitter, want)
	}

	if one := summarize([]float64{42}); one.Jitter != 0 || one.Mean != 42 {
		t.Fatalf("summarize(one) = %+v", one)
	}
	if empty := summarize(nil); empty.Samples != 0 {
		t.Fatalf("summarize(nil) = %+v", empty)
	}
}

func TestBenchEndpoint(t *testing.T) {
	tests := []struct {
		url, process, token, want string
	}{
		{"ws://localhost:8080", "p1", "", "ws://localhost:8080/ws/p1"},
		{"ws://localhost:8080/", "p1", "s", "ws://localhost:8080/ws/p1?token=s"},
		{"https://olta.example", "a b", "", "wss://olta.example/ws/a%20b"},
		{"http://127.0.0.1:1", "p", "x&y", "ws://127.0.0.1:1/ws/p?token=x%26y"},
	}
	for _, tt := range tests {
		got, err := benchConfig{URL: tt.url, ProcessID: tt.process, Token: tt.token}.endpoint()
		if err != nil {
			t.Fatalf("endpoint(%q) error: %v", tt.url, err)
		}
		if got != tt.want {
			t.Errorf("endpoint(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestBenchDocument(t *testing.T) {
	tests := map[string]lobby.Kind{
		"cubes":    lobby.KindCube,
		"vertices": lobby.KindVertex,
		"splashes": lobby.KindSplash,
		"other":    lobby.KindVertex,
	}
	for collection, want := range tests {
		doc := benchDocument(collection)
		if got := doc.Kind(); got != want {
			t.Errorf("benchDocument(%q).Kind() = %q, want %q", collection, got, want)
		}
	}
}

func TestRunBench(t *testing.T) {
	st := store.NewMemoryStore()
	q := persist.New(st, persist.Config{Logger: quietLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = q.Run(ctx) }()
	reg := registry.New(st, q, registry.Config{Logger: quietLogger()})
	defer reg.Close()

	cfg := server.DefaultServerConfig().WithToken("tok")
	cfg.Logger = quietLogger()
	srv := server.New(reg, cfg)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer srv.Shutdown(context.Background())

	var out bytes.Buffer
	err := runBench(context.Background(), &out, benchConfig{
		URL:        ts.URL,
		ProcessID:  "bench",
		Token:      "tok",
		Runs:       3,
		Collection: "vertices",
		Interval:   time.Millisecond,
		Timeout:    2 * time.Second,
	})
	if err != nil {
		t.Fatalf("runBench() error: %v", err)
	}
	if !strings.Contains(out.String(), "Samples: 3") {
		t.Fatalf("output missing sample count:\n%s", out.String())
	}

	state, err := reg.FullState(context.Background(), "bench")
	if err != nil {
		t.Fatalf("FullState() error: %v", err)
	}
	// The warm-up request is sent too.
	if n := len(state["vertices"]); n != 4 {
		t.Fatalf("vertices = %d, want 4", n)
	}
}

func TestRunBenchBadToken(t *testing.T) {
	st := store.NewMemoryStore()
	reg := registry.New(st, persist.New(st, persist.Config{Logger: quietLogger()}), registry.Config{Logger: quietLogger()})
	defer reg.Close()

	cfg := server.DefaultServerConfig().WithToken("tok")
	cfg.Logger = quietLogger()
	ts := httptest.NewServer(server.New(reg, cfg).Handler())
	defer ts.Close()

	err := runBench(context.Background(), &bytes.Buffer{}, benchConfig{
		URL: ts.URL, ProcessID: "p", Token: "wrong", Runs: 1, Timeout: time.Second,
	})
	if err == nil || !strings.Contains(err.Error(), "E180") {
		t.Fatalf("runBench() error = %v, want E180", err)
	}
}
