package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/tslatency/internal/latency"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsBuffer       = 64
)

// WebSocket upgrader with reasonable defaults.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketMessage represents a message sent over WebSocket.
type WebSocketMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// WebSocketHello is the first message on every connection.
type WebSocketHello struct {
	ClientID string `json:"client_id"`
	Version  string `json:"version,omitempty"`
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// measurementsWebSocketHandler streams every reported measurement to the
// client as a JSON text message.
func (s *Server) measurementsWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	clientID := uuid.NewString()
	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr, "client_id", clientID)

	events, cancel := s.broadcaster.Subscribe(wsBuffer)
	defer cancel()

	if err := s.sendWebSocketMessage(conn, WebSocketMessage{
		Type:    "hello",
		Payload: WebSocketHello{ClientID: clientID, Version: s.version},
	}); err != nil {
		return
	}
	s.streamMeasurements(conn, events)
	slog.Info("WebSocket connection closed", "client_id", clientID)
}

// streamMeasurements forwards events until the client goes away. Reads only
// serve to process control frames and detect the close.
func (s *Server) streamMeasurements(conn *websocket.Conn, events <-chan latency.Event) {
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("WebSocket read error", "error", err)
				}
				return
			}
			websocketMessagesTotal.WithLabelValues("received").Inc()
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := s.sendWebSocketMessage(conn, WebSocketMessage{Type: "measurement", Payload: e}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}

// sendWebSocketMessage sends a message over WebSocket.
func (s *Server) sendWebSocketMessage(conn WebSocketConnWriter, msg WebSocketMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal WebSocket message", "error", err)
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("Failed to send WebSocket message", "error", err)
		return err
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
	return nil
}
