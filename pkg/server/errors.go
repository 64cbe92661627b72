package server

import "errors"

var (
	// ErrConnectionClosed is returned when sending on a closed connection.
	ErrConnectionClosed = errors.New("server: connection closed")

	// ErrInvalidToken is returned when the handshake token does not match.
	ErrInvalidToken = errors.New("server: invalid token")

	// ErrJoinUnsupported answers a JoinProcess request. A connection stays
	// bound to the process named in its URL.
	ErrJoinUnsupported = errors.New("server: join_process is not supported on an established connection")
)
