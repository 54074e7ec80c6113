package ws

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
)

const EventRequestOffered = "request.offered"

// OfferPayload — данные события request.offered. Адрес не раскрывается до принятия.
type OfferPayload struct {
	RequestID     uuid.UUID `json:"request_id"`
	ReferenceCode string    `json:"reference_code"`
	Category      string    `json:"category"`
	Title         string    `json:"title"`
	Severity      *string   `json:"severity,omitempty"`
	IsUrgent      bool      `json:"is_urgent"`
	Level         int       `json:"level"`
}

// Notifier доставляет предложения мастерам через хаб.
// Мастер без открытого соединения увидит заявку в списке ожидающих.
type Notifier struct {
	hub *Hub
}

func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{hub: hub}
}

func (n *Notifier) NotifyTechnician(ctx context.Context, tech *entity.Technician, req *entity.Request, level int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload := OfferPayload{
		RequestID:     req.ID,
		ReferenceCode: req.ReferenceCode,
		Category:      string(req.Category),
		Title:         req.Title,
		IsUrgent:      req.IsUrgent || level > 0,
		Level:         level,
	}
	if req.Severity != nil {
		s := string(*req.Severity)
		payload.Severity = &s
	}
	return n.hub.BroadcastToUser(tech.UserID, EventRequestOffered, payload)
}
