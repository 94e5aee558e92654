package hub

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/capstonehub/projectchat/internal/metrics"
	"github.com/capstonehub/projectchat/internal/models"
	"github.com/capstonehub/projectchat/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS layer; the handshake accepts all.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Session is one live WebSocket connection of a user to a project channel.
type Session struct {
	hub       *Hub
	conn      *websocket.Conn
	projectID string
	user      models.User
	send      chan []byte
}

// ServeWS upgrades the request and runs the session until the connection
// drops. The caller has already authenticated the user.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, projectID string, user models.User) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	s := &Session{
		hub:       h,
		conn:      conn,
		projectID: projectID,
		user:      user,
		send:      make(chan []byte, sendBufferSize),
	}
	h.register(s)

	s.enqueue(&protocol.Envelope{
		Type:      protocol.KindConnected,
		ProjectID: projectID,
		UserID:    user.ID,
		UserName:  user.FullName,
		Timestamp: time.Now().UTC(),
	})

	go s.writePump()
	s.readPump()
}

// enqueue queues an envelope for this session only.
func (s *Session) enqueue(env *protocol.Envelope) {
	frame, err := protocol.Encode(env)
	if err != nil {
		s.hub.logger.Error().Err(err).Str("type", env.Type).Msg("encode session frame")
		return
	}
	select {
	case s.send <- frame:
	default:
	}
}

// readPump reads frames from the connection until it drops. A frame that
// fails to decode is dropped and logged; the session stays up.
func (s *Session) readPump() {
	defer func() {
		s.hub.unregister(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.logger.Warn().Err(err).
					Str("project_id", s.projectID).
					Str("user_id", s.user.ID).
					Msg("websocket closed unexpectedly")
			}
			return
		}

		env, err := protocol.Decode(raw)
		if err != nil {
			var de *protocol.DecodeError
			if errors.As(err, &de) {
				metrics.FramesDropped.WithLabelValues("decode").Inc()
				s.hub.logger.Warn().Err(err).
					Str("project_id", s.projectID).
					Msg("dropping malformed frame")
				continue
			}
			return
		}

		s.hub.handleEnvelope(s, env)
	}
}

// writePump drains the send channel to the connection and keeps the
// transport alive with protocol-level pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
