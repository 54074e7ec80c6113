package models

import (
	"time"

	"github.com/google/uuid"
)

type DispatchRound struct {
	ID        uuid.UUID  `db:"id"`
	RequestID uuid.UUID  `db:"request_id"`
	Number    int        `db:"number"`
	Level     int        `db:"level"`
	StartedAt time.Time  `db:"started_at"`
	ExpiresAt time.Time  `db:"expires_at"`
	ClosedAt  *time.Time `db:"closed_at"`
	Outcome   string     `db:"outcome"`
	Delivered int        `db:"delivered"`
	Failed    int        `db:"failed"`
}

type DispatchOffer struct {
	RoundID      uuid.UUID `db:"round_id"`
	RequestID    uuid.UUID `db:"request_id"`
	TechnicianID uuid.UUID `db:"technician_id"`
	Position     int       `db:"position"`
}

// AuditEntry — строка таблицы audit_log.
type AuditEntry struct {
	ID         uuid.UUID  `db:"id"`
	Action     string     `db:"action"`
	EntityType string     `db:"entity_type"`
	EntityID   uuid.UUID  `db:"entity_id"`
	ActorID    *uuid.UUID `db:"actor_id"`
	OldValue   JSON       `db:"old_value"`
	NewValue   JSON       `db:"new_value"`
	CreatedAt  time.Time  `db:"created_at"`
}
