// Package transport adapts a WebSocket connection to session.Transport.
// The real multiplexed stream (reliable substream, handshake,
// authentication, key exchange) is an external collaborator excluded
// from this datapath by §8's Non-goals; this package only provides the
// minimal concrete wiring needed to exercise one unreliable datagram
// channel per connection, matching the WSConn shape the rest of this
// codebase already standardizes on.
package transport

import (
	"context"
	"fmt"
	"net/http"

	"nhooyr.io/websocket"
)

// Session adapts one accepted WebSocket connection to session.Transport.
// Every binary message received is treated as one unreliable datagram;
// this mirrors the multiplexed stream's unreliable substream closely
// enough to drive SessionPump without reimplementing the mux.
type Session struct {
	conn *websocket.Conn
}

// Accept upgrades an incoming HTTP request to a WebSocket connection and
// wraps it as a Session.
func Accept(w http.ResponseWriter, r *http.Request) (*Session, error) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: accept: %w", err)
	}
	return &Session{conn: conn}, nil
}

// RecvUnreliable implements session.Transport.
func (s *Session) RecvUnreliable(ctx context.Context) ([]byte, error) {
	typ, data, err := s.conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: read: %w", err)
	}
	if typ != websocket.MessageBinary {
		return nil, fmt.Errorf("transport: unexpected message type %v", typ)
	}
	return data, nil
}

// SendUnreliable implements session.Transport.
func (s *Session) SendUnreliable(ctx context.Context, b []byte) error {
	return s.conn.Write(ctx, websocket.MessageBinary, b)
}

// Close closes the underlying WebSocket connection with a normal-closure
// status.
func (s *Session) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "session ended")
}
