package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"swipe-match-backend/internal/middleware"
	"swipe-match-backend/internal/models"
	"swipe-match-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Devices authenticate with a token
	},
}

// WSMessage represents a WebSocket message in either direction
type WSMessage struct {
	Type        string           `json:"type"`
	CandidateID string           `json:"candidate_id,omitempty"`
	Direction   models.Direction `json:"direction,omitempty"`
	Status      int              `json:"status,omitempty"`
	Message     string           `json:"message,omitempty"`
	Data        interface{}      `json:"data,omitempty"`
}

// WebSocketHandler streams session changes to a member device and accepts its swipes
type WebSocketHandler struct {
	sessionService *services.SessionService
	validator      middleware.TokenValidator
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(sessionService *services.SessionService, validator middleware.TokenValidator) *WebSocketHandler {
	return &WebSocketHandler{
		sessionService: sessionService,
		validator:      validator,
	}
}

// HandleWebSocket handles GET /ws?token=...&session_id=...
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	deviceID, err := middleware.ValidateWebSocketToken(r.URL.Query().Get("token"), h.validator)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	sessionID := normalizeSessionID(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, "session_id required", http.StatusBadRequest)
		return
	}

	session, err := h.sessionService.GetSession(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if _, ok := services.RoleOf(session, deviceID); !ok {
		respondError(w, "Not a member of this session", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	send := make(chan WSMessage, sendBuffer)
	writerDone := make(chan struct{})
	go h.writeLoop(ctx, cancel, conn, send, writerDone)

	c := &wsClient{ctx: ctx, send: send, deviceID: deviceID, sessionID: sessionID}

	unsubSession, err := h.sessionService.SubscribeToSession(ctx, sessionID, func(s *models.Session) {
		c.push(WSMessage{Type: "session", Data: s})
		h.pushState(c)
	})
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to subscribe to session")
		return
	}
	defer unsubSession()

	unsubSwipes, err := h.sessionService.SubscribeToSwipes(ctx, sessionID, func(m map[string]*models.SwipeEntry) {
		c.push(WSMessage{Type: "swipes", Data: m})
		h.pushState(c)
	})
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to subscribe to swipes")
		return
	}
	defer unsubSwipes()

	log.Info().Str("device_id", deviceID).Str("session_id", sessionID).Msg("WebSocket connection established")

	for {
		_, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("device_id", deviceID).Msg("WebSocket error")
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			c.push(WSMessage{Type: "error", Status: http.StatusBadRequest, Message: "Invalid message format"})
			continue
		}

		h.handleMessage(c, msg)
	}

	cancel()
	<-writerDone
	log.Info().Str("device_id", deviceID).Str("session_id", sessionID).Msg("WebSocket connection closed")
}

// handleMessage processes incoming WebSocket messages
func (h *WebSocketHandler) handleMessage(c *wsClient, msg WSMessage) {
	switch msg.Type {
	case "swipe":
		result, err := h.sessionService.RecordSwipe(c.ctx, c.sessionID, msg.CandidateID, c.deviceID, msg.Direction)
		if err != nil {
			c.pushError(err)
			return
		}
		c.push(WSMessage{Type: "swipe_result", CandidateID: msg.CandidateID, Data: result})
	case "end":
		if err := h.sessionService.EndSession(c.ctx, c.sessionID); err != nil {
			c.pushError(err)
		}
	default:
		c.push(WSMessage{Type: "error", Status: http.StatusBadRequest, Message: "Unknown message type"})
	}
}

func (h *WebSocketHandler) pushState(c *wsClient) {
	_, state, err := h.sessionService.State(c.ctx, c.sessionID, c.deviceID)
	if err != nil {
		if c.ctx.Err() == nil {
			log.Error().Err(err).Str("session_id", c.sessionID).Msg("Failed to build session state")
		}
		return
	}
	c.push(WSMessage{Type: "state", Data: state})
}

// writeLoop is the only writer on conn. It cancels ctx when it stops so that
// pending pushes and subscriptions are released.
func (h *WebSocketHandler) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, send <-chan WSMessage, done chan<- struct{}) {
	defer close(done)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-send:
			data, err := json.Marshal(msg)
			if err != nil {
				log.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal message")
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Msg("Failed to send message")
				conn.Close()
				return
			}
		}
	}
}

type wsClient struct {
	ctx       context.Context
	send      chan<- WSMessage
	deviceID  string
	sessionID string
}

// push queues a message, giving up once the connection is closing
func (c *wsClient) push(msg WSMessage) {
	select {
	case c.send <- msg:
	case <-c.ctx.Done():
	}
}

func (c *wsClient) pushError(err error) {
	status := statusFor(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	c.push(WSMessage{Type: "error", Status: status, Message: message})
}
