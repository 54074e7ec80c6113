package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/valueobject"
)

type CreateRequestRequest struct {
	Category       string               `json:"category" binding:"required"`
	Title          string               `json:"title" binding:"required"`
	Description    string               `json:"description" binding:"required"`
	GuidedAnswers  entity.GuidedAnswers `json:"guided_answers"`
	MediaURLs      []string             `json:"media_urls"`
	Latitude       *float64             `json:"latitude" binding:"required"`
	Longitude      *float64             `json:"longitude" binding:"required"`
	Address        string               `json:"address" binding:"required"`
	AddressDetails *string              `json:"address_details"`
	IsUrgent       bool                 `json:"is_urgent"`
	PreferredTime  *string              `json:"preferred_time"`
}

type CancelRequestRequest struct {
	Reason string `json:"reason"`
}

type AcceptRequestRequest struct {
	ETAMinutes int `json:"eta_minutes" binding:"required,gt=0"`
}

type CompleteWorkRequest struct {
	Photos []string `json:"photos" binding:"required"`
}

type SignOffRequest struct {
	Signature string `json:"signature" binding:"required"`
}

type ComplaintRequest struct {
	Notes string `json:"notes" binding:"required"`
}

type DiagnosisDTO struct {
	ProbableIssue          string   `json:"probable_issue"`
	SafetyInstructions     []string `json:"safety_instructions"`
	EstimatedDurationHours float64  `json:"estimated_duration_hours"`
}

type RequestResponse struct {
	ID                   uuid.UUID            `json:"id"`
	ReferenceCode        string               `json:"reference_code"`
	ClientID             uuid.UUID            `json:"client_id"`
	TechnicianID         *uuid.UUID           `json:"technician_id"`
	Status               string               `json:"status"`
	Category             string               `json:"category"`
	Title                string               `json:"title"`
	Description          string               `json:"description"`
	GuidedAnswers        entity.GuidedAnswers `json:"guided_answers"`
	MediaURLs            []string             `json:"media_urls"`
	Location             valueobject.GeoPoint `json:"location"`
	Address              string               `json:"address"`
	AddressDetails       *string              `json:"address_details"`
	Severity             *string              `json:"severity"`
	AIConfidence         *int                 `json:"ai_confidence"`
	Diagnosis            *DiagnosisDTO        `json:"diagnosis"`
	IsUrgent             bool                 `json:"is_urgent"`
	PreferredTime        *time.Time           `json:"preferred_time"`
	EstimatedArrival     *time.Time           `json:"estimated_arrival"`
	CompletionPhotos     []string             `json:"completion_photos"`
	SignatureChecksum    *string              `json:"signature_checksum"`
	ComplaintDeadline    *time.Time           `json:"complaint_deadline"`
	HasComplaint         bool                 `json:"has_complaint"`
	CancellationReason   *string              `json:"cancellation_reason"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
	AcceptedAt           *time.Time           `json:"accepted_at"`
	StartedAt            *time.Time           `json:"started_at"`
	CompletedAt          *time.Time           `json:"completed_at"`
	CancelledAt          *time.Time           `json:"cancelled_at"`
	ReleasedTechnicianID *uuid.UUID           `json:"released_technician_id,omitempty"`
}

// RequestDetailsResponse — заявка вместе со сметой.
type RequestDetailsResponse struct {
	Request RequestResponse `json:"request"`
	Quote   *QuoteResponse  `json:"quote"`
}

// CreateRequestResponse возвращается при создании. analysis_error заполнен, если оценщик недоступен.
type CreateRequestResponse struct {
	Request       RequestResponse `json:"request"`
	Quote         *QuoteResponse  `json:"quote"`
	Round         *RoundResponse  `json:"dispatch_round"`
	AnalysisError *string         `json:"analysis_error,omitempty"`
}

// DispatchResponse возвращается при ручном запуске рассылки.
type DispatchResponse struct {
	Request RequestResponse `json:"request"`
	Round   *RoundResponse  `json:"dispatch_round"`
}

type CancelResponse struct {
	Request         RequestResponse  `json:"request"`
	Quote           *QuoteResponse   `json:"quote"`
	Payment         *PaymentResponse `json:"payment"`
	Penalty         *PenaltyDTO      `json:"penalty"`
	SettlementError *string          `json:"settlement_error,omitempty"`
}

type PenaltyDTO struct {
	Total        int64 `json:"total_cents"`
	ToPlatform   int64 `json:"to_platform_cents"`
	ToTechnician int64 `json:"to_technician_cents"`
	Refund       int64 `json:"refund_cents"`
}

type SignOffResponse struct {
	Request RequestResponse  `json:"request"`
	Payment *PaymentResponse `json:"payment"`
}

func ToRequestResponse(r *entity.Request) RequestResponse {
	resp := RequestResponse{
		ID:                   r.ID,
		ReferenceCode:        r.ReferenceCode,
		ClientID:             r.ClientID,
		TechnicianID:         r.TechnicianID,
		Status:               string(r.Status),
		Category:             string(r.Category),
		Title:                r.Title,
		Description:          r.Description,
		GuidedAnswers:        r.GuidedAnswers,
		MediaURLs:            nonNilStrings(r.MediaURLs),
		Location:             r.Location,
		Address:              r.Address,
		AddressDetails:       r.AddressDetails,
		AIConfidence:         r.AIConfidence,
		IsUrgent:             r.IsUrgent,
		PreferredTime:        r.PreferredTime,
		EstimatedArrival:     r.EstimatedArrival,
		CompletionPhotos:     nonNilStrings(r.CompletionPhotos),
		SignatureChecksum:    r.SignatureChecksum,
		ComplaintDeadline:    r.ComplaintDeadline,
		HasComplaint:         r.HasComplaint,
		CancellationReason:   r.CancellationReason,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
		AcceptedAt:           r.AcceptedAt,
		StartedAt:            r.StartedAt,
		CompletedAt:          r.CompletedAt,
		CancelledAt:          r.CancelledAt,
		ReleasedTechnicianID: r.ReleasedTechnicianID,
	}
	if r.Severity != nil {
		s := string(*r.Severity)
		resp.Severity = &s
	}
	if r.Diagnosis != nil {
		resp.Diagnosis = &DiagnosisDTO{
			ProbableIssue:          r.Diagnosis.ProbableIssue,
			SafetyInstructions:     nonNilStrings(r.Diagnosis.SafetyInstructions),
			EstimatedDurationHours: r.Diagnosis.EstimatedDurationHours,
		}
	}
	return resp
}

func ToRequestResponses(list []*entity.Request) []RequestResponse {
	out := make([]RequestResponse, 0, len(list))
	for _, r := range list {
		out = append(out, ToRequestResponse(r))
	}
	return out
}

func ToPenaltyDTO(p *entity.PenaltySplit) *PenaltyDTO {
	if p == nil {
		return nil
	}
	return &PenaltyDTO{
		Total:        int64(p.Total),
		ToPlatform:   int64(p.ToPlatform),
		ToTechnician: int64(p.ToTechnician),
		Refund:       int64(p.Refund),
	}
}

// ParseTime разбирает необязательное время в RFC3339.
func ParseTime(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ErrorString возвращает текст ошибки или nil.
func ErrorString(err error) *string {
	if err == nil {
		return nil
	}
	s := err.Error()
	return &s
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
