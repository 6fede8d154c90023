package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog is one entry in the tamper-evident trail of who changed what.
// Entity/EntityID name the affected record ("transaction"/"42"); Meta holds
// action-specific detail such as amounts or role assignments.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

func (l AuditLog) validate() error {
	if l.Action == "" {
		return errors.New("audit: action required")
	}
	if l.Entity == "" || l.EntityID == "" {
		return errors.New("audit: entity and entity_id required")
	}
	return nil
}

// AuditLogger persists entries into the audit_logs table. Callers treat
// recording as fire-and-forget; a lost audit row never fails the mutation
// that triggered it.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry. A zero At falls back to the database clock.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("audit: logger not initialised")
	}
	if err := log.validate(); err != nil {
		return err
	}
	meta, err := json.Marshal(log.Meta)
	if err != nil {
		return fmt.Errorf("audit: encode meta: %w", err)
	}
	var at any
	if !log.At.IsZero() {
		at = log.At
	}
	_, err = l.pool.Exec(ctx, `
INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`,
		log.ActorID, log.Action, log.Entity, log.EntityID, meta, at)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}
