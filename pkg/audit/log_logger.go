package audit

import (
	"context"

	"github.com/platinummonkey/tenantd/pkg/observability"
)

// LogLogger writes audit events as structured application log lines.
// It is the default sink when no database is configured.
type LogLogger struct {
	logger *observability.Logger
}

// NewLogLogger creates an audit logger backed by logger
func NewLogLogger(logger *observability.Logger) *LogLogger {
	return &LogLogger{logger: logger.WithField("component", "audit")}
}

// Log implements Logger
func (l *LogLogger) Log(ctx context.Context, event *AuditEvent) error {
	fields := map[string]interface{}{
		"event_type": string(event.EventType),
		"status":     string(event.Status),
		"timestamp":  event.Timestamp,
	}
	if event.ActorID != "" {
		fields["actor_id"] = event.ActorID
	}
	if event.TenantID != "" {
		fields["tenant_id"] = event.TenantID
	}
	if event.TargetUserID != "" {
		fields["target_user_id"] = event.TargetUserID
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields["meta."+k] = v
	}
	if event.Changes != nil {
		fields["changes"] = event.Changes
	}

	msg := event.Message
	if msg == "" {
		msg = string(event.EventType)
	}

	entry := l.logger.WithFields(fields)
	if event.Status == EventStatusSuccess {
		entry.Info(msg)
	} else {
		entry.Warn(msg)
	}
	return nil
}

// Close implements Logger
func (l *LogLogger) Close() error { return nil }
