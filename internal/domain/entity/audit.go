package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditAction string

const (
	AuditRequestCreated        AuditAction = "request_created"
	AuditRequestAnalyzed       AuditAction = "request_analyzed"
	AuditRequestDispatched     AuditAction = "request_dispatched"
	AuditRequestRedispatched   AuditAction = "request_redispatched"
	AuditRequestAccepted       AuditAction = "request_accepted"
	AuditRequestEnRoute        AuditAction = "request_en_route"
	AuditRequestStarted        AuditAction = "request_started"
	AuditRequestCompleted      AuditAction = "request_completed"
	AuditRequestSigned         AuditAction = "request_signed"
	AuditRequestCancelled      AuditAction = "request_cancelled"
	AuditRequestDisputed       AuditAction = "request_disputed"
	AuditDispatchExhausted     AuditAction = "dispatch_exhausted"
	AuditQuoteCreated          AuditAction = "quote_created"
	AuditQuoteRevised          AuditAction = "quote_revised"
	AuditQuotePhoneConfirmed   AuditAction = "quote_phone_confirmed"
	AuditQuoteApproved         AuditAction = "quote_approved"
	AuditQuoteRejected         AuditAction = "quote_rejected"
	AuditQuotePenaltyApplied   AuditAction = "quote_penalty_applied"
	AuditPaymentInitiated      AuditAction = "payment_initiated"
	AuditPaymentHoldRequested  AuditAction = "payment_hold_requested"
	AuditPaymentHeld           AuditAction = "payment_held"
	AuditPaymentCaptured       AuditAction = "payment_captured"
	AuditPaymentTransferred    AuditAction = "payment_transferred"
	AuditPaymentRefunded       AuditAction = "payment_refunded"
	AuditPaymentPartialRefund  AuditAction = "payment_partial_refund"
	AuditPaymentFailed         AuditAction = "payment_failed"
	AuditTechnicianOnboarded   AuditAction = "technician_onboarded"
	AuditTechnicianVerified    AuditAction = "technician_verified"
	AuditTechnicianAvailable   AuditAction = "technician_availability_changed"
	AuditTechnicianLocation    AuditAction = "technician_location_changed"
)

type AuditEntityType string

const (
	AuditEntityRequest    AuditEntityType = "request"
	AuditEntityQuote      AuditEntityType = "quote"
	AuditEntityPayment    AuditEntityType = "payment"
	AuditEntityTechnician AuditEntityType = "technician"
)

// AuditEntry — неизменяемая запись журнала аудита.
type AuditEntry struct {
	ID         uuid.UUID
	Action     AuditAction
	EntityType AuditEntityType
	EntityID   uuid.UUID
	ActorID    *uuid.UUID
	OldValue   json.RawMessage
	NewValue   json.RawMessage
	CreatedAt  time.Time
}
