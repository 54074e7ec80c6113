package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
)

type AuditEntryResponse struct {
	ID         uuid.UUID       `json:"id"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id"`
	ActorID    *uuid.UUID      `json:"actor_id"`
	OldValue   json.RawMessage `json:"old_value,omitempty"`
	NewValue   json.RawMessage `json:"new_value,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type RoundResponse struct {
	ID            uuid.UUID   `json:"id"`
	Number        int         `json:"number"`
	Level         int         `json:"level"`
	TechnicianIDs []uuid.UUID `json:"technician_ids"`
	StartedAt     time.Time   `json:"started_at"`
	ExpiresAt     time.Time   `json:"expires_at"`
	ClosedAt      *time.Time  `json:"closed_at"`
	Outcome       string      `json:"outcome"`
	Delivered     int         `json:"delivered"`
	Failed        int         `json:"failed"`
}

func ToAuditEntryResponses(list []*entity.AuditEntry) []AuditEntryResponse {
	out := make([]AuditEntryResponse, 0, len(list))
	for _, e := range list {
		out = append(out, AuditEntryResponse{
			ID:         e.ID,
			Action:     string(e.Action),
			EntityType: string(e.EntityType),
			EntityID:   e.EntityID,
			ActorID:    e.ActorID,
			OldValue:   e.OldValue,
			NewValue:   e.NewValue,
			CreatedAt:  e.CreatedAt,
		})
	}
	return out
}

func ToRoundResponse(r *entity.DispatchRound) *RoundResponse {
	if r == nil {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(r.Offers))
	for _, o := range r.Offers {
		ids = append(ids, o.TechnicianID)
	}
	return &RoundResponse{
		ID:            r.ID,
		Number:        r.Number,
		Level:         r.Level,
		TechnicianIDs: ids,
		StartedAt:     r.StartedAt,
		ExpiresAt:     r.ExpiresAt,
		ClosedAt:      r.ClosedAt,
		Outcome:       string(r.Outcome),
		Delivered:     r.Delivered,
		Failed:        r.Failed,
	}
}

func ToRoundResponses(list []*entity.DispatchRound) []*RoundResponse {
	out := make([]*RoundResponse, 0, len(list))
	for _, r := range list {
		out = append(out, ToRoundResponse(r))
	}
	return out
}
