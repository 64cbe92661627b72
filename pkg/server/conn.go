package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/olta-dev/olta/internal/fifo"
	"github.com/olta-dev/olta/pkg/metrics"
	"github.com/olta-dev/olta/pkg/protocol"
)

// Conn is one websocket client bound to a process. It implements
// registry.Sink.
type Conn struct {
	id        string
	processID string
	ws        *websocket.Conn
	registry  Registry
	config    *ConnConfig
	logger    *slog.Logger
	metrics   *metrics.Metrics

	// outbox holds serialized events until the writer sends them.
	outbox *fifo.Queue[[]byte]

	closeOnce sync.Once
	abortOnce sync.Once
}

func newConn(ws *websocket.Conn, processID string, s *Server) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:        id,
		processID: processID,
		ws:        ws,
		registry:  s.registry,
		config:    s.connConfig,
		logger:    s.logger.With("component", "conn", "conn_id", id, "process_id", processID),
		metrics:   s.metrics,
		outbox:    fifo.New[[]byte](),
	}
}

// ID returns the connection's subscriber id.
func (c *Conn) ID() string { return c.id }

// ProcessID returns the process the connection is bound to.
func (c *Conn) ProcessID() string { return c.processID }

// Send queues msg for the writer. It never blocks.
func (c *Conn) Send(msg []byte) error {
	if !c.outbox.Push(msg) {
		return ErrConnectionClosed
	}
	return nil
}

// Close stops intake. The writer flushes queued events, sends a close frame
// and closes the socket.
func (c *Conn) Close() {
	c.closeOnce.Do(c.outbox.Close)
}

// abort closes the socket without flushing.
func (c *Conn) abort() {
	c.Close()
	c.abortOnce.Do(func() { _ = c.ws.Close() })
}

func (c *Conn) serve(ctx context.Context) {
	c.metrics.ConnectionOpened()
	defer c.metrics.ConnectionClosed()
	c.logger.Info("connection opened", "remote_addr", c.ws.RemoteAddr().String())

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop()
	}()

	if err := c.registry.Join(ctx, c.processID, c); err != nil {
		c.logger.Warn("join failed", "error", err)
		c.sendError(err)
		c.Close()
		<-writerDone
		return
	}

	c.readLoop(ctx)

	c.registry.RemoveSubscriber(c.processID, c.id)
	c.Close()
	<-writerDone
	c.logger.Info("connection closed")
}

func (c *Conn) readLoop(ctx context.Context) {
	c.ws.SetReadLimit(c.config.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure,
			) && !c.outbox.Closed() {
				c.metrics.WebSocketError("read")
				c.logger.Debug("read error", "error", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		c.handle(ctx, data)
	}
}

// handle applies one inbound message. Failures are reported to this client
// only; the connection stays open.
func (c *Conn) handle(ctx context.Context, data []byte) {
	in, err := protocol.DecodeInput(data)
	if err != nil {
		c.metrics.MessageReceived("invalid")
		c.logger.Debug("invalid message", "error", err)
		c.sendError(err)
		return
	}
	c.metrics.MessageReceived(in.InputTag())

	switch m := in.(type) {
	case protocol.CreateDocument:
		_, err = c.registry.CreateDocument(ctx, c.processID, m.CollectionName, m.Document)
	case protocol.UpdateDocument:
		_, err = c.registry.UpdateDocument(ctx, c.processID, m.CollectionName, m.DocID, m.Changes)
	case protocol.DeleteDocument:
		_, err = c.registry.DeleteDocument(ctx, c.processID, m.CollectionName, m.DocID)
	case protocol.JoinProcess:
		err = ErrJoinUnsupported
	default:
		err = errors.New("server: unhandled message " + in.InputTag())
	}
	if err != nil {
		c.logger.Debug("request failed", "tag", in.InputTag(), "error", err)
		c.sendError(err)
	}
}

func (c *Conn) sendError(err error) {
	msg, encErr := protocol.Encode(protocol.Error{Message: err.Error()})
	if encErr != nil {
		c.logger.Error("encode error event", "error", encErr)
		return
	}
	_ = c.Send(msg)
}

// writeLoop drains the outbox to the socket and pings on a fixed schedule.
// It returns once the outbox is closed and drained, or on a write error.
func (c *Conn) writeLoop() {
	defer c.abort()

	nextPing := time.Now().Add(c.config.HeartbeatInterval)
	for {
		wait := time.Until(nextPing)
		if wait <= 0 {
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteTimeout)); err != nil {
				c.writeFailed("ping", err)
				return
			}
			nextPing = time.Now().Add(c.config.HeartbeatInterval)
			continue
		}

		popCtx, cancel := context.WithTimeout(context.Background(), wait)
		msg, ok := c.outbox.Pop(popCtx)
		cancel()
		if !ok {
			if c.outbox.Closed() && c.outbox.Len() == 0 {
				_ = c.ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				return
			}
			continue
		}

		_ = c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
		if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.writeFailed("write", err)
			return
		}
	}
}

func (c *Conn) writeFailed(op string, err error) {
	// Further broadcasts to this subscriber fail fast.
	c.Close()
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	c.metrics.WebSocketError(op)
	c.logger.Debug("write error", "op", op, "error", err)
}
