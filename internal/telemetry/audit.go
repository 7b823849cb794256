package telemetry

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"group-chat-service/internal/observability"
)

type AuditEmitter struct {
	publisher   observability.Publisher
	routingKey  string
	service     string
	environment string
	logger      *slog.Logger
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level   string `json:"level"`
	Text    string `json:"text"`
	GroupID int64  `json:"group_id,omitempty"`
	Action  string `json:"action,omitempty"`
	Target  string `json:"target,omitempty"`
}

// AuditRecord describes one auditable change made by a user.
type AuditRecord struct {
	Level   string
	Text    string
	UserID  string
	GroupID int64
	Action  string
	Target  string
}

func NewAuditEmitter(publisher observability.Publisher, routingKey, service, environment string, logger *slog.Logger) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		logger:      logger,
	}
}

// Emit publishes the record. Publish failures are logged and never surface to the caller.
func (e *AuditEmitter) Emit(ctx context.Context, rec AuditRecord) {
	if e == nil || e.publisher == nil {
		return
	}

	requestID := observability.RequestIDFromContext(ctx)
	var userID *string
	if rec.UserID != "" {
		userID = &rec.UserID
	}
	if rec.Level == "" {
		rec.Level = "info"
	}

	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		UserID:        userID,
		Payload: AuditPayload{
			Level:   rec.Level,
			Text:    rec.Text,
			GroupID: rec.GroupID,
			Action:  rec.Action,
			Target:  rec.Target,
		},
	}

	traceID := ""
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope, observability.BuildHeaders(requestID, traceID)); err != nil {
		observability.IncAMQPPublishError()
		if e.logger != nil {
			e.logger.Warn("audit publish failed", slog.String("request_id", requestID), slog.Any("error", err))
		}
	}
}
