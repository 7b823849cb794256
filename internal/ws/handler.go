package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"group-chat-service/internal/apperr"
	"group-chat-service/internal/auth"
	"group-chat-service/internal/models"
	"group-chat-service/internal/observability"
	"group-chat-service/internal/presence"
)

const (
	routingKey   = "ws_events.sessions"
	frameTimeout = 15 * time.Second
)

var tracer = otel.Tracer("group-chat-service/ws")

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(token string) (string, *auth.Claims, error)
}

// SessionRegistry tracks the current session of each user.
type SessionRegistry interface {
	Register(userID string, session presence.Session) presence.Session
	Unregister(userID string, session presence.Session) bool
}

// Messenger handles message and read-receipt frames.
type Messenger interface {
	SendMessage(ctx context.Context, groupID int64, senderID string, payload models.Payload) (models.Message, error)
	AckRead(ctx context.Context, messageID int64, userID string) (models.Message, error)
}

// Moderator handles moderation frames.
type Moderator interface {
	ApplyAction(ctx context.Context, groupID int64, actorID, targetID string, action models.ModerationAction) (models.Membership, error)
}

type Options struct {
	SendBuffer     int
	AllowedOrigins []string
}

// Handler upgrades authenticated requests to websocket sessions and serves their frames.
type Handler struct {
	registry  SessionRegistry
	messenger Messenger
	moderator Moderator
	verifier  TokenVerifier
	upgrader  websocket.Upgrader
	buffer    int
	logger    *slog.Logger
}

func NewHandler(registry SessionRegistry, messenger Messenger, moderator Moderator, verifier TokenVerifier, opts Options, logger *slog.Logger) *Handler {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 128
	}
	return &Handler{
		registry:  registry,
		messenger: messenger,
		moderator: moderator,
		verifier:  verifier,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(opts.AllowedOrigins),
		},
		buffer: opts.SendBuffer,
		logger: logger,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || lo.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || lo.Contains(allowed, origin)
	}
}

// Handle authenticates, upgrades and registers the session. The newest session of a user
// replaces any older one, which is closed with CloseSessionReplaced.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	userID, _, err := h.verifier.Verify(observability.BearerToken(c.Request))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("user_id", userID), slog.Any("error", err))
		return
	}

	info := ConnInfo{
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := newClient(conn, info, h.buffer)
	span.SetAttributes(attribute.String("ws.conn_id", client.ID()))

	if previous := h.registry.Register(userID, client); previous != nil {
		previous.Close(CloseSessionReplaced, "session replaced")
		h.logger.Info("websocket session replaced", slog.String("user_id", userID), slog.String("previous_conn_id", previous.ID()))
	}

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.publish(ctx, "ws_connect", client.info, "")
	h.logger.Info("websocket connected", slog.String("user_id", userID), slog.String("conn_id", client.ID()))

	go client.writeLoop()
	go h.readLoop(client)
}

func (h *Handler) readLoop(client *Client) {
	base := observability.WithRequestID(context.Background(), client.info.RequestID)
	closeReason := ""
	defer func() {
		h.registry.Unregister(client.UserID(), client)
		client.Close(websocket.CloseNormalClosure, "")
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		h.publish(base, "ws_disconnect", client.info, closeReason)
		h.logger.Info("websocket disconnected",
			slog.String("user_id", client.UserID()),
			slog.String("conn_id", client.ID()),
			slog.String("reason", closeReason))
	}()

	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			select {
			case <-client.Done():
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent("ws_error")
					h.publish(base, "ws_error", client.info, closeReason)
				}
			}
			return
		}

		reply := h.dispatch(base, client, data)
		h.reply(base, client, reply)
	}
}

// dispatch runs one inbound frame to completion and builds the reply for it.
func (h *Handler) dispatch(base context.Context, client *Client, data []byte) replyFrame {
	frame, err := decodeFrame(data)
	if err != nil {
		return errorReply("", fmt.Errorf("malformed frame: %v: %w", err, apperr.ErrInvalidArgument))
	}

	ctx, cancel := context.WithTimeout(base, frameTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "ws.frame")
	defer span.End()
	span.SetAttributes(attribute.String("ws.frame_type", frame.Type))

	switch frame.Type {
	case frameSendMessage:
		observability.IncWSEvent(frameSendMessage)
		msg, err := h.messenger.SendMessage(ctx, frame.GroupID, client.UserID(), frame.Payload)
		if err != nil {
			return errorReply(frame.Ref, err)
		}
		return okReply(frame.Ref, msg)
	case frameAckRead:
		observability.IncWSEvent(frameAckRead)
		msg, err := h.messenger.AckRead(ctx, frame.MessageID, client.UserID())
		if err != nil {
			return errorReply(frame.Ref, err)
		}
		return okReply(frame.Ref, msg)
	case frameModerationAction:
		observability.IncWSEvent(frameModerationAction)
		membership, err := h.moderator.ApplyAction(ctx, frame.GroupID, client.UserID(), frame.TargetUserID, frame.Action)
		if err != nil {
			return errorReply(frame.Ref, err)
		}
		return okReply(frame.Ref, membership)
	default:
		return errorReply(frame.Ref, fmt.Errorf("unknown frame type %q: %w", frame.Type, apperr.ErrInvalidArgument))
	}
}

func (h *Handler) reply(ctx context.Context, client *Client, reply replyFrame) {
	payload, err := json.Marshal(reply)
	if err != nil {
		h.logger.Error("encode reply failed", slog.String("conn_id", client.ID()), slog.Any("error", err))
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	if err := client.enqueue(sendCtx, payload); err != nil {
		h.logger.Warn("reply dropped", slog.String("conn_id", client.ID()), slog.String("ref", reply.Ref), slog.Any("error", err))
	}
}

func (h *Handler) publish(ctx context.Context, event string, info ConnInfo, reason string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
	_ = observability.PublishEvent(ctx, routingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
