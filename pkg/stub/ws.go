package stub

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mahaj/counseling-smoke/pkg/auth"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512
)

// Event is the frame pushed to websocket clients.
type Event struct {
	Type   string `json:"type"`
	UserID int64  `json:"userId"`
	Count  int64  `json:"count"`
}

const EventUnread = "unread_count"

// handleWebSocket upgrades an authenticated connection, pushes the caller's
// unread count and then every change to it until the peer closes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		// Browsers cannot set headers on the handshake.
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	claims, err := s.issuer.ValidateToken(token)
	if err != nil {
		s.logger.Info("websocket rejected", zap.Error(err))
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	// The current count goes out first so a fresh connection never has to
	// wait for the next change.
	first, _ := json.Marshal(Event{Type: EventUnread, UserID: claims.UserID, Count: s.store.UnreadCount(claims.UserID)})
	client := &wsClient{userID: claims.UserID, send: make(chan []byte, sendBuffer)}
	client.send <- first
	s.hub.register(client)

	go writePump(conn, client.send)
	s.readPump(conn, client)
}

// readPump discards inbound frames and unregisters the client once the peer
// goes away.
func (s *Server) readPump(conn *websocket.Conn, client *wsClient) {
	defer func() {
		s.hub.unregister(client)
		conn.Close()
	}()
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("websocket read failed", zap.Int64("user_id", client.userID), zap.Error(err))
			}
			return
		}
	}
}

// writePump sends queued events and pings until send is closed.
func writePump(conn *websocket.Conn, send <-chan []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case payload, ok := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
