package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/valueobject"
	"github.com/ignatzorin/prontocasa-backend/internal/pkg/apperror"
)

type Evidence struct {
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

type Quote struct {
	ID                         uuid.UUID
	RequestID                  uuid.UUID
	Initial                    valueobject.PriceRange
	Current                    valueobject.PriceRange
	FinalPrice                 *valueobject.Cents
	LaborCost                  *valueobject.Cents
	MaterialsCost              *valueobject.Cents
	EstimateNotes              *string
	RevisionCount              int
	LastRevisionReason         *string
	RevisionEvidence           []Evidence
	RequiresPhoneConfirmation  bool
	PhoneConfirmationCompleted bool
	ConfirmationOperatorID     *uuid.UUID
	PhoneConfirmedAt           *time.Time
	ClientApproved             bool
	ClientApprovedAt           *time.Time
	ClientRejected             bool
	RejectionReason            *string
	PenaltyApplied             bool
	PenaltyAmount              *valueobject.Cents
	CreatedAt                  time.Time
	UpdatedAt                  time.Time
}

// NewQuote создаёт начальную смету из диапазона оценщика.
func NewQuote(requestID uuid.UUID, initial valueobject.PriceRange, now time.Time) (*Quote, error) {
	if _, err := valueobject.NewPriceRange(initial.Min, initial.Max); err != nil {
		return nil, err
	}
	return &Quote{
		ID:        uuid.New(),
		RequestID: requestID,
		Initial:   initial,
		Current:   initial,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// RevisionBasisPoints возвращает превышение итоговой цены над начальным максимумом в сотых процента.
func (q *Quote) RevisionBasisPoints() (valueobject.BasisPoints, bool) {
	if q.FinalPrice == nil || *q.FinalPrice <= q.Initial.Max || q.Initial.Max <= 0 {
		return 0, false
	}
	over := int64(*q.FinalPrice - q.Initial.Max)
	return valueobject.BasisPoints(over * 10000 / int64(q.Initial.Max)), true
}

// exceedsThreshold сравнивает точно, без округления процента.
func (q *Quote) exceedsThreshold(threshold valueobject.BasisPoints) bool {
	if q.FinalPrice == nil || *q.FinalPrice <= q.Initial.Max {
		return false
	}
	over := int64(*q.FinalPrice - q.Initial.Max)
	return over*10000 > int64(threshold)*int64(q.Initial.Max)
}

type Revision struct {
	MinPrice      valueobject.Cents
	MaxPrice      valueobject.Cents
	FinalPrice    *valueobject.Cents
	LaborCost     *valueobject.Cents
	MaterialsCost *valueobject.Cents
	Reason        string
	Evidence      []Evidence
}

type RevisionLimits struct {
	MinReasonLength int
	MaxReasonLength int
	MaxEvidence     int
	Threshold       valueobject.BasisPoints
}

func (rv Revision) Validate(limits RevisionLimits) error {
	if rv.MinPrice <= 0 || rv.MaxPrice <= 0 {
		return apperror.Validation("price", "цены должны быть положительными")
	}
	if rv.MaxPrice < rv.MinPrice {
		return apperror.Validation("max_price", "максимальная цена не может быть меньше минимальной")
	}
	if rv.FinalPrice != nil && *rv.FinalPrice <= 0 {
		return apperror.Validation("final_price", "итоговая цена должна быть положительной")
	}
	if err := lengthBetween("reason", rv.Reason, limits.MinReasonLength, limits.MaxReasonLength); err != nil {
		return err
	}
	if len(rv.Evidence) > limits.MaxEvidence {
		return apperror.Validation("evidence", "слишком много фото-подтверждений").
			WithDetails(map[string]any{"max": limits.MaxEvidence})
	}
	links := make([]string, 0, len(rv.Evidence))
	for _, e := range rv.Evidence {
		links = append(links, e.URL)
	}
	return validateLinks("evidence", links)
}

// Revise применяет пересмотр сметы. Одобрение клиента сбрасывается.
func (q *Quote) Revise(rv Revision, limits RevisionLimits, now time.Time) error {
	if err := rv.Validate(limits); err != nil {
		return err
	}
	if q.ClientRejected {
		return apperror.InvalidTransition("quote", "rejected", "revised")
	}

	q.Current = valueobject.PriceRange{Min: rv.MinPrice, Max: rv.MaxPrice}
	q.FinalPrice = rv.FinalPrice
	if rv.LaborCost != nil {
		q.LaborCost = rv.LaborCost
	}
	if rv.MaterialsCost != nil {
		q.MaterialsCost = rv.MaterialsCost
	}
	reason := rv.Reason
	q.LastRevisionReason = &reason
	q.RevisionEvidence = append(q.RevisionEvidence, rv.Evidence...)
	q.RevisionCount++

	q.ClientApproved = false
	q.ClientApprovedAt = nil
	q.RequiresPhoneConfirmation = q.exceedsThreshold(limits.Threshold)
	q.PhoneConfirmationCompleted = false
	q.ConfirmationOperatorID = nil
	q.PhoneConfirmedAt = nil
	q.UpdatedAt = now
	return nil
}

// IsAwaitingPhoneConfirmation возвращает true, пока оператор не подтвердил крупный пересмотр.
func (q *Quote) IsAwaitingPhoneConfirmation() bool {
	return q.RequiresPhoneConfirmation && !q.PhoneConfirmationCompleted
}

func (q *Quote) ConfirmPhone(operatorID uuid.UUID, now time.Time) (bool, error) {
	if !q.RequiresPhoneConfirmation {
		return false, apperror.InvalidTransition("quote", "no_confirmation_required", "phone_confirmed")
	}
	if q.PhoneConfirmationCompleted {
		return false, nil
	}
	op := operatorID
	q.PhoneConfirmationCompleted = true
	q.ConfirmationOperatorID = &op
	q.PhoneConfirmedAt = &now
	q.UpdatedAt = now
	return true, nil
}

// Approve фиксирует одобрение клиента. Повторное одобрение ничего не меняет.
func (q *Quote) Approve(now time.Time) (bool, error) {
	if q.ClientRejected {
		return false, apperror.InvalidTransition("quote", "rejected", "approved")
	}
	if q.IsAwaitingPhoneConfirmation() {
		return false, apperror.ErrPhoneConfirmationPending
	}
	if q.ClientApproved {
		return false, nil
	}
	q.ClientApproved = true
	q.ClientApprovedAt = &now
	q.UpdatedAt = now
	return true, nil
}

func (q *Quote) Reject(reason string, now time.Time) error {
	if q.ClientRejected {
		return apperror.InvalidTransition("quote", "rejected", "rejected")
	}
	if reason == "" {
		return apperror.Validation("reason", "укажите причину отказа")
	}
	q.ClientRejected = true
	q.ClientApproved = false
	q.ClientApprovedAt = nil
	q.RejectionReason = &reason
	q.UpdatedAt = now
	return nil
}

// PayableAmount — сумма к оплате: итоговая цена, если задана, иначе максимум текущего диапазона.
func (q *Quote) PayableAmount() valueobject.Cents {
	if q.FinalPrice != nil {
		return *q.FinalPrice
	}
	return q.Current.Max
}

func (q *Quote) ApplyPenalty(amount valueobject.Cents, now time.Time) {
	q.PenaltyApplied = true
	q.PenaltyAmount = &amount
	q.UpdatedAt = now
}
