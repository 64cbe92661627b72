package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/olta-dev/olta/pkg/lobby"
	"github.com/olta-dev/olta/pkg/persist"
	"github.com/olta-dev/olta/pkg/protocol"
	"github.com/olta-dev/olta/pkg/registry"
	"github.com/olta-dev/olta/pkg/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type gateway struct {
	srv   *Server
	reg   *registry.Registry
	store *store.MemoryStore
	http  *httptest.Server
}

func newGateway(t *testing.T, config *ServerConfig) *gateway {
	t.Helper()

	st := store.NewMemoryStore()
	q := persist.New(st, persist.Config{Logger: quietLogger()})
	runCtx, cancel := context.WithCancel(context.Background())
	go func() { _ = q.Run(runCtx) }()

	reg := registry.New(st, q, registry.Config{Logger: quietLogger()})

	if config == nil {
		config = DefaultServerConfig()
	}
	config.Logger = quietLogger()
	srv := New(reg, config)
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = srv.Shutdown(ctx)
		ts.Close()
		_ = reg.Close()
		_ = q.Shutdown(ctx)
		cancel()
	})

	return &gateway{srv: srv, reg: reg, store: st, http: ts}
}

func (g *gateway) wsURL(processID, token string) string {
	u := "ws" + strings.TrimPrefix(g.http.URL, "http") + "/ws/" + processID
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func (g *gateway) dial(t *testing.T, processID, token string) *websocket.Conn {
	t.Helper()
	ws, resp, err := websocket.DefaultDialer.Dial(g.wsURL(processID, token), nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial %s: %v (status %d)", processID, err, status)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readEvent(t *testing.T, ws *websocket.Conn) protocol.Output {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	mt, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error: %v", err)
	}
	if mt != websocket.TextMessage {
		t.Fatalf("message type = %d, want text", mt)
	}
	out, err := protocol.DecodeOutput(data)
	if err != nil {
		t.Fatalf("DecodeOutput(%s) error: %v", data, err)
	}
	return out
}

func readRaw(t *testing.T, ws *websocket.Conn) []byte {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error: %v", err)
	}
	return data
}

// expectSilence fails if ws receives a message within d.
func expectSilence(t *testing.T, ws *websocket.Conn, d time.Duration) {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(d))
	_, data, err := ws.ReadMessage()
	if err == nil {
		t.Fatalf("unexpected message: %s", data)
	}
}

func send(t *testing.T, ws *websocket.Conn, in protocol.Input) {
	t.Helper()
	data, err := protocol.EncodeInput(in)
	if err != nil {
		t.Fatalf("EncodeInput() error: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("WriteMessage() error: %v", err)
	}
}

func createCube(x string) protocol.CreateDocument {
	return protocol.CreateDocument{
		CollectionName: "cubes",
		Document: lobby.Document{
			Creator: "tester",
			Payload: &lobby.Cube{X: x, Y: "0", Z: "0", Color: "red", RotX: "0", RotY: "0", RotZ: "0"},
		},
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}
