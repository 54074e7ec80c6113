package entity

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/valueobject"
	"github.com/ignatzorin/prontocasa-backend/internal/pkg/apperror"
	"github.com/ignatzorin/prontocasa-backend/internal/validation"
)

const (
	minETAMinutes = 5
	maxETAMinutes = 180
)

// GuidedAnswers — ответы клиента на наводящие вопросы при создании заявки.
type GuidedAnswers struct {
	HowLong      string   `json:"how_long,omitempty"`
	RunningWater *bool    `json:"running_water,omitempty"`
	Sparks       *bool    `json:"sparks,omitempty"`
	BurningSmell *bool    `json:"burning_smell,omitempty"`
	GasSmell     *bool    `json:"gas_smell,omitempty"`
	Availability []string `json:"availability,omitempty"`
}

type Diagnosis struct {
	ProbableIssue          string   `json:"probable_issue"`
	SafetyInstructions     []string `json:"safety_instructions"`
	EstimatedDurationHours float64  `json:"estimated_duration_hours"`
}

type Request struct {
	ID                   uuid.UUID
	ReferenceCode        string
	ClientID             uuid.UUID
	TechnicianID         *uuid.UUID
	ReleasedTechnicianID *uuid.UUID
	Status               valueobject.RequestStatus
	Category             valueobject.Category
	Title                string
	Description          string
	GuidedAnswers        GuidedAnswers
	MediaURLs            []string
	Location             valueobject.GeoPoint
	Address              string
	AddressDetails       *string
	Severity             *valueobject.Severity
	AIConfidence         *int
	Diagnosis            *Diagnosis
	IsUrgent             bool
	PreferredTime        *time.Time
	EstimatedArrival     *time.Time
	CompletionPhotos     []string
	SignaturePath        *string
	SignatureChecksum    *string
	ComplaintDeadline    *time.Time
	HasComplaint         bool
	ComplaintNotes       *string
	CancellationReason   *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	AcceptedAt           *time.Time
	StartedAt            *time.Time
	CompletedAt          *time.Time
	CancelledAt          *time.Time
}

type NewRequestParams struct {
	ClientID       uuid.UUID
	ReferenceCode  string
	Category       string
	Title          string
	Description    string
	GuidedAnswers  GuidedAnswers
	MediaURLs      []string
	Latitude       float64
	Longitude      float64
	Address        string
	AddressDetails *string
	IsUrgent       bool
	PreferredTime  *time.Time
}

const maxRequestMedia = 10

func NewRequest(p NewRequestParams, now time.Time) (*Request, error) {
	if p.ClientID == uuid.Nil {
		return nil, apperror.Validation("client_id", "клиент обязателен")
	}
	category, err := valueobject.NewCategory(p.Category)
	if err != nil {
		return nil, err
	}
	if err := lengthBetween("title", p.Title, 5, 255); err != nil {
		return nil, err
	}
	if err := lengthBetween("description", p.Description, 10, 2000); err != nil {
		return nil, err
	}
	if err := lengthBetween("address", p.Address, 5, 500); err != nil {
		return nil, err
	}
	location, err := valueobject.NewGeoPoint(p.Latitude, p.Longitude)
	if err != nil {
		return nil, err
	}
	if len(p.MediaURLs) > maxRequestMedia {
		return nil, apperror.Validation("media_urls", "слишком много вложений")
	}
	if err := validateLinks("media_urls", p.MediaURLs); err != nil {
		return nil, err
	}

	return &Request{
		ID:             uuid.New(),
		ReferenceCode:  p.ReferenceCode,
		ClientID:       p.ClientID,
		Status:         valueobject.RequestStatusPending,
		Category:       category,
		Title:          p.Title,
		Description:    p.Description,
		GuidedAnswers:  p.GuidedAnswers,
		MediaURLs:      append([]string(nil), p.MediaURLs...),
		Location:       location,
		Address:        p.Address,
		AddressDetails: p.AddressDetails,
		IsUrgent:       p.IsUrgent,
		PreferredTime:  p.PreferredTime,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (r *Request) IsOwnedBy(clientID uuid.UUID) bool {
	return r.ClientID == clientID
}

func (r *Request) IsAssignedTo(technicianID uuid.UUID) bool {
	return r.TechnicianID != nil && *r.TechnicianID == technicianID
}

func (r *Request) transition(to valueobject.RequestStatus, now time.Time) error {
	if !r.Status.CanTransitionTo(to) {
		return apperror.InvalidTransition("request", string(r.Status), string(to))
	}
	r.Status = to
	r.UpdatedAt = now
	return nil
}

// ApplyAssessment переводит заявку из PENDING в ANALYZED с результатом оценщика.
func (r *Request) ApplyAssessment(a valueobject.Assessment, now time.Time) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if err := r.transition(valueobject.RequestStatusAnalyzed, now); err != nil {
		return err
	}
	severity := a.Severity
	confidence := a.Confidence
	r.Severity = &severity
	r.AIConfidence = &confidence
	r.Diagnosis = &Diagnosis{
		ProbableIssue:          a.ProbableIssue,
		SafetyInstructions:     append([]string(nil), a.SafetyInstructions...),
		EstimatedDurationHours: a.EstimatedDurationHours,
	}
	if a.Severity == valueobject.SeverityHigh {
		r.IsUrgent = true
	}
	return nil
}

func (r *Request) StartDispatch(now time.Time) error {
	return r.transition(valueobject.RequestStatusDispatching, now)
}

func ValidateETA(etaMinutes int) error {
	if etaMinutes < minETAMinutes || etaMinutes > maxETAMinutes {
		return apperror.Validation("eta_minutes", "время прибытия должно быть от 5 до 180 минут").
			WithDetails(map[string]any{"min": minETAMinutes, "max": maxETAMinutes, "value": etaMinutes})
	}
	return nil
}

// Accept назначает мастера. Хранилище выполняет ту же проверку атомарно, этот метод описывает её семантику.
func (r *Request) Accept(technicianID uuid.UUID, etaMinutes int, now time.Time) error {
	if err := ValidateETA(etaMinutes); err != nil {
		return err
	}
	if r.Status != valueobject.RequestStatusDispatching || r.TechnicianID != nil {
		return apperror.ErrRequestNoLongerAvailable.WithDetails(map[string]any{"current_status": string(r.Status)})
	}
	if err := r.transition(valueobject.RequestStatusAccepted, now); err != nil {
		return err
	}
	tid := technicianID
	arrival := now.Add(time.Duration(etaMinutes) * time.Minute)
	r.TechnicianID = &tid
	r.AcceptedAt = &now
	r.EstimatedArrival = &arrival
	return nil
}

func (r *Request) requireTechnician(technicianID uuid.UUID) error {
	if !r.IsAssignedTo(technicianID) {
		return apperror.Forbidden("мастер не назначен на эту заявку")
	}
	return nil
}

func (r *Request) DepartEnRoute(technicianID uuid.UUID, now time.Time) error {
	if err := r.requireTechnician(technicianID); err != nil {
		return err
	}
	return r.transition(valueobject.RequestStatusEnRoute, now)
}

func (r *Request) StartWork(technicianID uuid.UUID, now time.Time) error {
	if err := r.requireTechnician(technicianID); err != nil {
		return err
	}
	if err := r.transition(valueobject.RequestStatusInProgress, now); err != nil {
		return err
	}
	if r.StartedAt == nil {
		r.StartedAt = &now
	}
	return nil
}

func (r *Request) EnterQuoteRevision(technicianID uuid.UUID, now time.Time) error {
	if err := r.requireTechnician(technicianID); err != nil {
		return err
	}
	return r.transition(valueobject.RequestStatusQuoteRevision, now)
}

// ResumeAfterRevision возвращает заявку в работу после одобрения пересмотра клиентом.
func (r *Request) ResumeAfterRevision(clientID uuid.UUID, now time.Time) error {
	if !r.IsOwnedBy(clientID) {
		return apperror.Forbidden("заявка принадлежит другому клиенту")
	}
	if r.Status != valueobject.RequestStatusQuoteRevision {
		return apperror.InvalidTransition("request", string(r.Status), string(valueobject.RequestStatusInProgress))
	}
	return r.transition(valueobject.RequestStatusInProgress, now)
}

func (r *Request) Complete(technicianID uuid.UUID, photos []string, maxPhotos int, complaintWindow time.Duration, now time.Time) error {
	if err := r.requireTechnician(technicianID); err != nil {
		return err
	}
	if r.Status != valueobject.RequestStatusInProgress {
		return apperror.InvalidTransition("request", string(r.Status), string(valueobject.RequestStatusCompleted))
	}
	if len(photos) == 0 {
		return apperror.Validation("photos", "нужно приложить хотя бы одно фото результата")
	}
	if len(photos) > maxPhotos {
		return apperror.Validation("photos", "слишком много фото").
			WithDetails(map[string]any{"max": maxPhotos, "value": len(photos)})
	}
	if err := validateLinks("photos", photos); err != nil {
		return err
	}
	if err := r.transition(valueobject.RequestStatusCompleted, now); err != nil {
		return err
	}
	deadline := now.Add(complaintWindow)
	r.CompletionPhotos = append([]string(nil), photos...)
	r.CompletedAt = &now
	r.ComplaintDeadline = &deadline
	return nil
}

// CheckSignable проверяет, что клиент может подписать акт, не меняя заявку.
func (r *Request) CheckSignable(clientID uuid.UUID) error {
	if !r.IsOwnedBy(clientID) {
		return apperror.Forbidden("подписать акт может только клиент заявки")
	}
	if r.Status != valueobject.RequestStatusCompleted {
		return apperror.InvalidTransition("request", string(r.Status), string(valueobject.RequestStatusPaid))
	}
	return nil
}

func (r *Request) Sign(clientID uuid.UUID, signaturePath, checksum string, now time.Time) error {
	if err := r.CheckSignable(clientID); err != nil {
		return err
	}
	if signaturePath == "" {
		return apperror.Validation("signature", "подпись обязательна")
	}
	if err := r.transition(valueobject.RequestStatusPaid, now); err != nil {
		return err
	}
	r.SignaturePath = &signaturePath
	r.SignatureChecksum = &checksum
	return nil
}

// CheckCancellable возвращает true, если отмена влечёт штраф.
func (r *Request) CheckCancellable(clientID uuid.UUID) (bool, error) {
	if !r.IsOwnedBy(clientID) {
		return false, apperror.Forbidden("отменить заявку может только её клиент")
	}
	if !r.Status.CanTransitionTo(valueobject.RequestStatusCancelled) {
		return false, apperror.InvalidTransition("request", string(r.Status), string(valueobject.RequestStatusCancelled))
	}
	return r.Status.IsEngaged(), nil
}

// Cancel отменяет заявку и возвращает true, если мастер уже был задействован.
func (r *Request) Cancel(clientID uuid.UUID, reason string, now time.Time) (bool, error) {
	engaged, err := r.CheckCancellable(clientID)
	if err != nil {
		return false, err
	}
	if err := r.transition(valueobject.RequestStatusCancelled, now); err != nil {
		return false, err
	}
	if reason != "" {
		r.CancellationReason = &reason
	}
	r.CancelledAt = &now
	r.releaseTechnician()
	return engaged, nil
}

func (r *Request) FileComplaint(clientID uuid.UUID, notes string, now time.Time) error {
	if !r.IsOwnedBy(clientID) {
		return apperror.Forbidden("жалобу может подать только клиент заявки")
	}
	if err := lengthBetween("notes", notes, 10, 2000); err != nil {
		return err
	}
	if r.Status != valueobject.RequestStatusCompleted {
		return apperror.InvalidTransition("request", string(r.Status), string(valueobject.RequestStatusDisputed))
	}
	if r.ComplaintDeadline == nil || now.After(*r.ComplaintDeadline) {
		return apperror.InvalidTransition("request", string(r.Status), string(valueobject.RequestStatusDisputed)).
			WithDetails(map[string]any{"reason": "complaint window closed"})
	}
	if err := r.transition(valueobject.RequestStatusDisputed, now); err != nil {
		return err
	}
	r.HasComplaint = true
	r.ComplaintNotes = &notes
	r.releaseTechnician()
	return nil
}

func (r *Request) releaseTechnician() {
	if r.TechnicianID != nil {
		released := *r.TechnicianID
		r.ReleasedTechnicianID = &released
	}
	r.TechnicianID = nil
}

// EngagedTechnicianID возвращает текущего или освобождённого мастера.
func (r *Request) EngagedTechnicianID() *uuid.UUID {
	if r.TechnicianID != nil {
		return r.TechnicianID
	}
	return r.ReleasedTechnicianID
}

// CheckInvariants проверяет согласованность мастера и статуса.
func (r *Request) CheckInvariants() error {
	if r.Status.HasTechnician() != (r.TechnicianID != nil) {
		return apperror.New(apperror.ErrCodeInternal, "нарушена согласованность мастера и статуса заявки").
			WithDetails(map[string]any{"status": string(r.Status)})
	}
	return nil
}

// validateLinks проверяет ссылки на фото и возвращает ошибку с номером некорректной.
func validateLinks(field string, links []string) error {
	if idx, err := validation.ValidateMediaURLs(links); err != nil {
		return apperror.Validation(field, err.Error()).WithDetails(map[string]any{"index": idx})
	}
	return nil
}

func lengthBetween(field, value string, min, max int) error {
	n := utf8.RuneCountInString(value)
	if n < min || n > max {
		return apperror.Validation(field, "недопустимая длина поля").
			WithDetails(map[string]any{"min": min, "max": max, "length": n})
	}
	return nil
}
