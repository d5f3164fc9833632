package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"schoolhub/internal/db"
)

const (
	ActionMigrationsApplied = "migrations_applied"
	ActionMigrationFailed   = "migration_failed"
	ActionTenantCreated     = "tenant_created"
	ActionServerStarted     = "server_started"
)

type Logger interface {
	Error(msg string, args ...any)
}

type Event struct {
	Actor      string
	Action     string
	EntityType string
	EntityID   string
	Payload    map[string]any
}

// LogEvent inserts event into public.audit_events using q, so it joins the
// caller's transaction when q is a pgx.Tx.
func LogEvent(ctx context.Context, q db.DBTX, logger Logger, event Event) error {
	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	actor := event.Actor
	if actor == "" {
		actor = "system"
	}

	if _, err := q.Exec(ctx, `
INSERT INTO public.audit_events (id, actor, action, entity_type, entity_id, payload)
VALUES ($1, $2, $3, $4, $5, $6)
`, uuid.New(), actor, event.Action, event.EntityType, nullable(event.EntityID), body); err != nil {
		if logger != nil {
			logger.Error("audit log failed", "action", event.Action, "error", err)
		}
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
