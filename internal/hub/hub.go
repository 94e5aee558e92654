// Package hub maintains the live WebSocket sessions of project chat
// channels: registration, message persistence and fan-out to every session
// of a project, across service instances when Redis is configured.
package hub

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/capstonehub/projectchat/internal/metrics"
	"github.com/capstonehub/projectchat/internal/models"
	"github.com/capstonehub/projectchat/internal/protocol"
	"github.com/capstonehub/projectchat/internal/store"
)

const storeTimeout = 5 * time.Second

// Hub tracks the open sessions of every project channel on this instance.
type Hub struct {
	logger zerolog.Logger
	store  store.MessageStore
	redis  *store.RedisStore // optional; nil means single-instance fan-out

	mu       sync.RWMutex
	sessions map[string]map[*Session]struct{} // keyed by project ID
}

// New creates a hub. redis may be nil.
func New(logger zerolog.Logger, messages store.MessageStore, redis *store.RedisStore) *Hub {
	return &Hub{
		logger:   logger.With().Str("component", "hub").Logger(),
		store:    messages,
		redis:    redis,
		sessions: make(map[string]map[*Session]struct{}),
	}
}

// Run consumes cross-instance frames from Redis until ctx is cancelled.
// Without Redis it returns immediately; local broadcast covers everything.
func (h *Hub) Run(ctx context.Context) {
	if h.redis == nil {
		return
	}

	sub := h.redis.SubscribeFrames(ctx)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Channel name is "chat:project:{id}"
			projectID := msg.Channel[strings.LastIndex(msg.Channel, ":")+1:]
			h.broadcastLocal(projectID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) register(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s.projectID]; !ok {
		h.sessions[s.projectID] = make(map[*Session]struct{})
	}
	h.sessions[s.projectID][s] = struct{}{}
	total := len(h.sessions[s.projectID])
	h.mu.Unlock()

	metrics.ConnectionsOpened.Inc()
	metrics.ConnectionsActive.Inc()
	h.touchPresence(s)
	h.logger.Info().
		Str("project_id", s.projectID).
		Str("user_id", s.user.ID).
		Int("sessions", total).
		Msg("session registered")
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	if clients, ok := h.sessions[s.projectID]; ok {
		if _, ok := clients[s]; ok {
			delete(clients, s)
			close(s.send)
			if len(clients) == 0 {
				delete(h.sessions, s.projectID)
			}
			metrics.ConnectionsActive.Dec()
		}
	}
	h.mu.Unlock()

	if h.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		_ = h.redis.ClearPresence(ctx, s.projectID, s.user.ID)
		cancel()
	}
	h.logger.Info().
		Str("project_id", s.projectID).
		Str("user_id", s.user.ID).
		Msg("session unregistered")
}

// Broadcast encodes the envelope and delivers it to every session of the
// project, on every instance when Redis is configured.
func (h *Hub) Broadcast(projectID string, env *protocol.Envelope) {
	frame, err := protocol.Encode(env)
	if err != nil {
		h.logger.Error().Err(err).Str("type", env.Type).Msg("encode broadcast")
		return
	}

	if h.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		err := h.redis.PublishFrame(ctx, projectID, frame)
		cancel()
		if err == nil {
			return // delivered locally through the subscription
		}
		h.logger.Error().Err(err).Msg("redis publish failed, falling back to local fan-out")
	}

	h.broadcastLocal(projectID, frame)
}

func (h *Hub) broadcastLocal(projectID string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.sessions[projectID] {
		select {
		case s.send <- frame:
		default:
			// Slow consumer; drop the frame rather than stall the channel.
			h.logger.Warn().
				Str("project_id", projectID).
				Str("user_id", s.user.ID).
				Msg("send buffer full, dropping frame")
		}
	}
}

// handleEnvelope processes one decoded inbound frame from a session.
func (h *Hub) handleEnvelope(s *Session, env *protocol.Envelope) {
	switch env.Type {
	case protocol.KindMessage:
		h.handleMessage(s, env.Message)

	case protocol.KindTyping:
		// Best-effort relay; identity comes from the session, never the frame.
		metrics.TypingSignals.Inc()
		h.Broadcast(s.projectID, &protocol.Envelope{
			Type:      protocol.KindTyping,
			ProjectID: s.projectID,
			UserID:    s.user.ID,
			UserName:  s.user.FullName,
			Timestamp: time.Now().UTC(),
		})

	case protocol.KindPing:
		h.touchPresence(s)
		s.enqueue(protocol.Pong())

	case protocol.KindRead:
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		n, err := h.store.MarkRead(ctx, s.projectID, s.user.ID)
		cancel()
		if err != nil {
			h.logger.Error().Err(err).Msg("mark read failed")
			return
		}
		if n > 0 {
			h.Broadcast(s.projectID, &protocol.Envelope{
				Type:      protocol.KindRead,
				ProjectID: s.projectID,
				UserID:    s.user.ID,
				Timestamp: time.Now().UTC(),
			})
		}

	default:
		// connected/pong from a client carry no meaning here.
		h.logger.Debug().Str("type", env.Type).Msg("ignoring inbound envelope")
	}
}

// handleMessage persists an inbound chat message and broadcasts the
// confirmed copy. The server assigns the canonical id and timestamp and
// echoes the sender's client_ref so the sender can reconcile its
// optimistic entry.
func (h *Hub) handleMessage(s *Session, in *models.ChatMessage) {
	body := strings.TrimSpace(in.Body)
	if body == "" {
		metrics.FramesDropped.WithLabelValues("invalid").Inc()
		return
	}

	if h.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		allowed := h.redis.AllowMessage(ctx, s.user.ID)
		cancel()
		if !allowed {
			metrics.FramesDropped.WithLabelValues("throttled").Inc()
			h.logger.Warn().Str("user_id", s.user.ID).Msg("sender throttled")
			return
		}
	}

	msg := &models.ChatMessage{
		ID:         uuid.New().String(),
		ProjectID:  s.projectID,
		SenderID:   s.user.ID,
		SenderName: s.user.FullName,
		SenderRole: s.user.Role,
		Body:       body,
		ClientRef:  in.ClientRef,
		CreatedAt:  time.Now().UTC(),
		IsRead:     false,
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	err := h.store.AppendMessage(ctx, msg)
	cancel()
	if err != nil {
		h.logger.Error().Err(err).Str("project_id", s.projectID).Msg("persist message failed")
		return
	}

	metrics.MessagesDelivered.WithLabelValues(msg.SenderRole).Inc()
	h.Broadcast(s.projectID, &protocol.Envelope{
		Type:      protocol.KindMessage,
		ProjectID: s.projectID,
		Message:   msg,
		UserID:    s.user.ID,
		UserName:  s.user.FullName,
		Timestamp: msg.CreatedAt,
	})
}

func (h *Hub) touchPresence(s *Session) {
	if h.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.redis.TouchPresence(ctx, s.projectID, s.user.ID); err != nil {
		h.logger.Debug().Err(err).Msg("touch presence failed")
	}
}

// OnlineUsers reports which users have a live session for the project. With
// Redis it covers all instances; without it, this instance only.
func (h *Hub) OnlineUsers(ctx context.Context, projectID string) ([]string, error) {
	if h.redis != nil {
		return h.redis.OnlineUsers(ctx, projectID)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[string]struct{})
	var users []string
	for s := range h.sessions[projectID] {
		if _, ok := seen[s.user.ID]; !ok {
			seen[s.user.ID] = struct{}{}
			users = append(users, s.user.ID)
		}
	}
	return users, nil
}
