package valueobject

import "github.com/ignatzorin/prontocasa-backend/internal/pkg/apperror"

type RequestStatus string

const (
	RequestStatusPending       RequestStatus = "pending"
	RequestStatusAnalyzed      RequestStatus = "analyzed"
	RequestStatusDispatching   RequestStatus = "dispatching"
	RequestStatusAccepted      RequestStatus = "accepted"
	RequestStatusEnRoute       RequestStatus = "en_route"
	RequestStatusInProgress    RequestStatus = "in_progress"
	RequestStatusQuoteRevision RequestStatus = "quote_revision"
	RequestStatusCompleted     RequestStatus = "completed"
	RequestStatusPaid          RequestStatus = "paid"
	RequestStatusCancelled     RequestStatus = "cancelled"
	RequestStatusDisputed      RequestStatus = "disputed"
)

var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusPending:       {RequestStatusAnalyzed, RequestStatusCancelled},
	RequestStatusAnalyzed:      {RequestStatusDispatching, RequestStatusCancelled},
	RequestStatusDispatching:   {RequestStatusAccepted, RequestStatusCancelled},
	RequestStatusAccepted:      {RequestStatusEnRoute, RequestStatusInProgress, RequestStatusCancelled},
	RequestStatusEnRoute:       {RequestStatusInProgress, RequestStatusCancelled},
	RequestStatusInProgress:    {RequestStatusQuoteRevision, RequestStatusCompleted, RequestStatusCancelled},
	RequestStatusQuoteRevision: {RequestStatusInProgress, RequestStatusCancelled},
	RequestStatusCompleted:     {RequestStatusPaid, RequestStatusDisputed},
	RequestStatusPaid:          {},
	RequestStatusCancelled:     {},
	RequestStatusDisputed:      {},
}

func (s RequestStatus) IsValid() bool {
	_, ok := requestTransitions[s]
	return ok
}

func (s RequestStatus) CanTransitionTo(newStatus RequestStatus) bool {
	for _, status := range requestTransitions[s] {
		if status == newStatus {
			return true
		}
	}
	return false
}

func (s RequestStatus) IsTerminal() bool {
	return s.IsValid() && len(requestTransitions[s]) == 0
}

// HasTechnician возвращает true для статусов, в которых у заявки обязан быть назначенный мастер.
func (s RequestStatus) HasTechnician() bool {
	switch s {
	case RequestStatusAccepted, RequestStatusEnRoute, RequestStatusInProgress,
		RequestStatusQuoteRevision, RequestStatusCompleted, RequestStatusPaid:
		return true
	}
	return false
}

// IsEngaged возвращает true, если мастер уже взял заказ и отмена влечёт штраф.
func (s RequestStatus) IsEngaged() bool {
	switch s {
	case RequestStatusAccepted, RequestStatusEnRoute, RequestStatusInProgress, RequestStatusQuoteRevision:
		return true
	}
	return false
}

func NewRequestStatus(status string) (RequestStatus, error) {
	s := RequestStatus(status)
	if !s.IsValid() {
		return "", apperror.Validation("status", "некорректный статус заявки")
	}
	return s, nil
}

type PaymentStatus string

const (
	PaymentStatusPending       PaymentStatus = "pending"
	PaymentStatusHeld          PaymentStatus = "held"
	PaymentStatusCaptured      PaymentStatus = "captured"
	PaymentStatusTransferred   PaymentStatus = "transferred"
	PaymentStatusRefunded      PaymentStatus = "refunded"
	PaymentStatusPartialRefund PaymentStatus = "partial_refund"
	PaymentStatusFailed        PaymentStatus = "failed"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:       {PaymentStatusHeld, PaymentStatusRefunded, PaymentStatusPartialRefund, PaymentStatusFailed},
	PaymentStatusHeld:          {PaymentStatusCaptured, PaymentStatusRefunded, PaymentStatusPartialRefund, PaymentStatusFailed},
	PaymentStatusCaptured:      {PaymentStatusTransferred, PaymentStatusRefunded, PaymentStatusPartialRefund, PaymentStatusFailed},
	PaymentStatusTransferred:   {},
	PaymentStatusRefunded:      {},
	PaymentStatusPartialRefund: {},
	PaymentStatusFailed:        {},
}

func (s PaymentStatus) IsValid() bool {
	_, ok := paymentTransitions[s]
	return ok
}

func (s PaymentStatus) CanTransitionTo(newStatus PaymentStatus) bool {
	for _, status := range paymentTransitions[s] {
		if status == newStatus {
			return true
		}
	}
	return false
}

func (s PaymentStatus) IsTerminal() bool {
	return s.IsValid() && len(paymentTransitions[s]) == 0
}

type PaymentMethod string

const (
	PaymentMethodCard      PaymentMethod = "card"
	PaymentMethodApplePay  PaymentMethod = "apple_pay"
	PaymentMethodGooglePay PaymentMethod = "google_pay"
	PaymentMethodPaypal    PaymentMethod = "paypal"
)

func NewPaymentMethod(method string) (PaymentMethod, error) {
	m := PaymentMethod(method)
	switch m {
	case PaymentMethodCard, PaymentMethodApplePay, PaymentMethodGooglePay, PaymentMethodPaypal:
		return m, nil
	case "":
		return PaymentMethodCard, nil
	}
	return "", apperror.Validation("payment_method", "неподдерживаемый способ оплаты")
}
