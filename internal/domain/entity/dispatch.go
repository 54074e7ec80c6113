package entity

import (
	"time"

	"github.com/google/uuid"
)

type RoundOutcome string

const (
	RoundOutcomeOpen      RoundOutcome = "open"
	RoundOutcomeAccepted  RoundOutcome = "accepted"
	RoundOutcomeEscalated RoundOutcome = "escalated"
	RoundOutcomeExhausted RoundOutcome = "exhausted"
	RoundOutcomeCancelled RoundOutcome = "cancelled"
)

// Offer — мастер, которому предложена заявка, с позицией в ранжировании.
type Offer struct {
	TechnicianID uuid.UUID
	Position     int
}

// DispatchRound — один прогон подбора мастеров для заявки.
type DispatchRound struct {
	ID        uuid.UUID
	RequestID uuid.UUID
	Number    int
	Level     int
	Offers    []Offer
	StartedAt time.Time
	ExpiresAt time.Time
	ClosedAt  *time.Time
	Outcome   RoundOutcome
	Delivered int
	Failed    int
}

func NewDispatchRound(requestID uuid.UUID, number, level int, technicianIDs []uuid.UUID, window time.Duration, now time.Time) *DispatchRound {
	offers := make([]Offer, 0, len(technicianIDs))
	for i, id := range technicianIDs {
		offers = append(offers, Offer{TechnicianID: id, Position: i + 1})
	}
	expires := now.Add(window)
	if len(offers) == 0 {
		expires = now
	}
	return &DispatchRound{
		ID:        uuid.New(),
		RequestID: requestID,
		Number:    number,
		Level:     level,
		Offers:    offers,
		StartedAt: now,
		ExpiresAt: expires,
		Outcome:   RoundOutcomeOpen,
	}
}

func (d *DispatchRound) IsOpen() bool {
	return d.Outcome == RoundOutcomeOpen
}

func (d *DispatchRound) IsExpired(now time.Time) bool {
	return d.IsOpen() && !now.Before(d.ExpiresAt)
}

func (d *DispatchRound) Offered(technicianID uuid.UUID) bool {
	for _, o := range d.Offers {
		if o.TechnicianID == technicianID {
			return true
		}
	}
	return false
}

func (d *DispatchRound) Close(outcome RoundOutcome, now time.Time) {
	if !d.IsOpen() {
		return
	}
	d.Outcome = outcome
	d.ClosedAt = &now
}
