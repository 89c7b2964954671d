package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Baaaki/postboard/internal/broker"
	"github.com/Baaaki/postboard/internal/middleware"
	"github.com/Baaaki/postboard/internal/models"
	"github.com/Baaaki/postboard/internal/service"
	"github.com/Baaaki/postboard/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	maxSessionLifetime = 15 * time.Minute
	writeWait          = 10 * time.Second // Time allowed to write a message to the peer
	pongWait           = 60 * time.Second
	pingPeriod         = (pongWait * 9) / 10
	maxMessageSize     = 512
)

// Event types the stream emits on its own when it ends a session.
const (
	EventSessionExpired = "session_expired"
	EventServerShutdown = "server_shutdown"
)

// WSEvent is what subscribers receive. Type is a post event type, EventSessionExpired or
// EventServerShutdown.
type WSEvent struct {
	Type      string `json:"type"`
	PostID    uint   `json:"post_id,omitempty"`
	ActorID   uint   `json:"actor_id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}

// EventsHandler streams post events to valid users over a WebSocket.
type EventsHandler struct {
	auth     middleware.Authenticator
	broker   broker.Broker
	upgrader websocket.Upgrader

	// lifetime ends every open stream when cancelled; hijacked connections are not
	// closed by http.Server.Shutdown.
	lifetime context.Context

	mu      sync.Mutex
	clients int
}

func NewEventsHandler(lifetime context.Context, auth middleware.Authenticator, b broker.Broker, allowedOrigins []string) *EventsHandler {
	if lifetime == nil {
		lifetime = context.Background()
	}
	return &EventsHandler{
		lifetime: lifetime,
		auth:     auth,
		broker:   b,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// Stream upgrades the connection and forwards events until the client leaves or the
// session lifetime runs out. Browsers cannot set headers on a WebSocket handshake, so
// the access token may also come as ?token=.
// GET /ws/events
func (h *EventsHandler) Stream(c *gin.Context) {
	user, err := h.authenticate(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if !user.IsValid {
		respondError(c, service.NewForbiddenError("You do not have permission to perform this action."))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Warn("WebSocket upgrade failed", zap.Uint("user_id", user.ID), zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	stop := context.AfterFunc(h.lifetime, cancel)
	defer stop()

	events, err := h.broker.Subscribe(ctx)
	if err != nil {
		logger.Log.Error("Failed to subscribe to post events", zap.Error(err))
		return
	}

	h.track(1)
	defer h.track(-1)
	connectedAt := time.Now()
	logger.Log.Info("Event stream opened", zap.Uint("user_id", user.ID))

	go h.readPump(conn, cancel)
	h.writePump(ctx, conn, user, events)

	logger.Log.Info("Event stream closed",
		zap.Uint("user_id", user.ID),
		zap.Duration("session_duration", time.Since(connectedAt).Round(time.Second)),
	)
}

func (h *EventsHandler) authenticate(c *gin.Context) (*models.User, error) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if token == "" {
		token = c.Query("token")
	}
	if token == "" {
		return nil, service.NewAuthenticationError("Authentication credentials were not provided.", nil)
	}
	return h.auth.Authenticate(c.Request.Context(), token)
}

// readPump only watches for pongs and the close frame; clients have nothing to send.
func (h *EventsHandler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *EventsHandler) writePump(ctx context.Context, conn *websocket.Conn, user *models.User, events <-chan broker.Event) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	sessionTimer := time.NewTimer(maxSessionLifetime)
	defer sessionTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeOnShutdown(conn)
			return

		case <-sessionTimer.C:
			h.closeGracefully(conn, EventSessionExpired, "session expired")
			return

		case event, ok := <-events:
			if !ok {
				h.closeOnShutdown(conn)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(WSEvent{
				Type:      event.Type,
				PostID:    event.PostID,
				ActorID:   event.ActorID,
				Timestamp: event.Timestamp.Format(time.RFC3339),
			}); err != nil {
				logger.Log.Debug("Failed to write event", zap.Uint("user_id", user.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *EventsHandler) closeOnShutdown(conn *websocket.Conn) {
	if h.lifetime.Err() != nil {
		h.closeGracefully(conn, EventServerShutdown, "server shutting down")
	}
}

func (h *EventsHandler) closeGracefully(conn *websocket.Conn, eventType, reason string) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(WSEvent{Type: eventType, Error: reason})
	_ = conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
	)
}

func (h *EventsHandler) track(delta int) {
	h.mu.Lock()
	h.clients += delta
	count := h.clients
	h.mu.Unlock()
	logger.Log.Debug("Event stream clients", zap.Int("connected", count))
}
