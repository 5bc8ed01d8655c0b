package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"dispatchhub/internal/apperr"
	"dispatchhub/internal/config"
	"dispatchhub/internal/events"
	"dispatchhub/internal/models"
	"dispatchhub/internal/security"
	"dispatchhub/internal/service"
)

const (
	maxMessageSize = 8 << 10
	messageTimeout = 10 * time.Second
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (service.Identity, error)
}

type LocationRegistry interface {
	UpdateLocation(ctx context.Context, caller service.Identity, courierID string, point models.GeoPoint) (models.User, error)
	ActiveCouriers(ctx context.Context, caller service.Identity) ([]models.User, error)
}

// Handler authenticates websocket handshakes and serves the connection.
type Handler struct {
	hub       *Hub
	auth      Authenticator
	locations LocationRegistry
	cfg       config.RealtimeConfig
	upgrader  websocket.Upgrader
	log       zerolog.Logger
}

func NewHandler(hub *Hub, auth Authenticator, locations LocationRegistry, cfg config.RealtimeConfig, allowedOrigins []string, log zerolog.Logger) *Handler {
	return &Handler{
		hub:       hub,
		auth:      auth,
		locations: locations,
		cfg:       withDefaults(cfg),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: log,
	}
}

func withDefaults(cfg config.RealtimeConfig) config.RealtimeConfig {
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = 5 * time.Second
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = cfg.PongWait * 9 / 10
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	return cfg
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Serve is mounted on GET /ws. The token comes from the Authorization header
// or the token query parameter. Rejections happen before the upgrade.
func (h *Handler) Serve(c *gin.Context) {
	token := security.BearerToken(c.GetHeader("Authorization"))
	if token == "" {
		token = c.Query("token")
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.AuthTimeout)
	identity, err := h.auth.Authenticate(ctx, token)
	cancel()
	if err != nil {
		status, reason := handshakeRejection(err)
		h.log.Info().Str("reason", reason).Str("ip", c.ClientIP()).Msg("websocket handshake rejected")
		c.AbortWithStatusJSON(status, gin.H{"success": false, "message": apperr.PublicMessage(err), "error": reason})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(identity, conn, h.cfg.SendBuffer)
	h.hub.Register(client)
	h.log.Info().Str("conn_id", client.ID()).Str("user_id", identity.ID).Str("role", string(identity.Role)).Msg("websocket connected")

	go h.writePump(client)
	h.readPump(c.Request.Context(), client)
}

func handshakeRejection(err error) (int, string) {
	switch apperr.KindOf(err) {
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized, "no_credential"
	case apperr.KindAccountDisabled:
		return http.StatusUnauthorized, "account_disabled"
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized, "invalid_credential"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusUnauthorized, "invalid_credential"
	}
	return http.StatusInternalServerError, "internal_error"
}

func (h *Handler) readPump(ctx context.Context, client *Client) {
	conn := client.conn
	defer func() {
		h.hub.Unregister(client)
		client.Close()
		h.log.Info().Str("conn_id", client.ID()).Str("user_id", client.Identity().ID).Msg("websocket disconnected")
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("conn_id", client.ID()).Msg("websocket read error")
			}
			return
		}
		h.dispatch(ctx, client, data)
	}
}

func (h *Handler) writePump(client *Client) {
	conn := client.conn
	ticker := time.NewTicker(h.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	for {
		select {
		case frame := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-client.done:
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

type locationUpdateMessage struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type statusChangeMessage struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

// StatusChangeEcho is relayed to admins and dispatchers when a client
// announces a status change over the socket. It does not touch the task.
type StatusChangeEcho struct {
	TaskID        string    `json:"taskId"`
	Status        string    `json:"status"`
	ChangedBy     string    `json:"changedBy"`
	Timestamp     time.Time `json:"timestamp"`
	Informational bool      `json:"informational"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type couriersPayload struct {
	Couriers []service.UserView `json:"couriers"`
}

// dispatch handles one client frame. Failures are reported to the sender
// only.
func (h *Handler) dispatch(parent context.Context, client *Client, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
		h.sendError(client, "malformed message")
		return
	}

	ctx, cancel := context.WithTimeout(parent, messageTimeout)
	defer cancel()
	identity := client.Identity()

	switch env.Event {
	case events.LocationUpdate:
		var msg locationUpdateMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil || msg.Latitude == nil || msg.Longitude == nil {
			h.sendError(client, "latitude and longitude are required")
			return
		}
		point := models.GeoPoint{Latitude: *msg.Latitude, Longitude: *msg.Longitude}
		if _, err := h.locations.UpdateLocation(ctx, identity, identity.ID, point); err != nil {
			h.fail(client, env.Event, err)
		}

	case events.LocationRequestAll:
		couriers, err := h.locations.ActiveCouriers(ctx, identity)
		if err != nil {
			h.fail(client, env.Event, err)
			return
		}
		h.hub.Send(client, events.LocationAll, couriersPayload{Couriers: service.NewUserViews(couriers)})

	case events.TaskStatusChange:
		var msg statusChangeMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil || msg.TaskID == "" || msg.Status == "" {
			h.sendError(client, "taskId and status are required")
			return
		}
		h.hub.Publish(events.Event{
			Name:     events.TaskStatusChanged,
			Audience: events.ToRoles(models.RoleAdmin, models.RoleDispatcher),
			Payload: StatusChangeEcho{
				TaskID:        msg.TaskID,
				Status:        msg.Status,
				ChangedBy:     identity.Name,
				Timestamp:     time.Now().UTC(),
				Informational: true,
			},
		})

	default:
		h.sendError(client, "unknown event "+env.Event)
	}
}

func (h *Handler) fail(client *Client, event string, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		h.log.Error().Err(err).Str("event", event).Str("user_id", client.Identity().ID).Msg("websocket message failed")
	}
	h.sendError(client, apperr.PublicMessage(err))
}

func (h *Handler) sendError(client *Client, message string) {
	h.hub.Send(client, events.Error, errorPayload{Message: message})
}
