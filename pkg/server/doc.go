// Package server is the websocket gateway in front of the session registry.
//
// Clients connect to /ws/{processID}, optionally passing ?token=. Each
// connection is bound to one process for its lifetime: the first message it
// receives is a FullSync of that process, followed by every event broadcast
// to the process in order.
//
// Every connection runs two goroutines. The reader decodes inbound messages
// and applies them through the registry; the writer drains an unbounded
// outbox to the socket and sends heartbeat pings. Broadcasts never block on
// a slow socket.
//
// Basic usage:
//
//	srv := server.New(reg, server.DefaultServerConfig().WithToken("secret"))
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
