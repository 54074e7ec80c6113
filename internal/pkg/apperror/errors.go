package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden         ErrorCode = "FORBIDDEN"
	ErrCodeBadRequest        ErrorCode = "BAD_REQUEST"
	ErrCodeConflict          ErrorCode = "CONFLICT"
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation        ErrorCode = "VALIDATION_ERROR"
	ErrCodeDatabaseError     ErrorCode = "DATABASE_ERROR"
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrCodeExternalFailure   ErrorCode = "EXTERNAL_FAILURE"
)

type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	// Details содержит контекст для исправления запроса: текущий статус, поле и т.п.
	Details map[string]any
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is сравнивает ошибки по коду и сообщению, чтобы копии с деталями совпадали с эталоном.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == e.Message
}

// WithDetails возвращает копию ошибки с добавленными деталями.
func (e *AppError) WithDetails(kv map[string]any) *AppError {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+len(kv))
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	for k, v := range kv {
		cp.Details[k] = v
	}
	return &cp
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

// Validation сообщает о некорректном поле входных данных.
func Validation(field, message string) *AppError {
	return New(ErrCodeValidation, message).WithDetails(map[string]any{"field": field})
}

// InvalidTransition сообщает о запрещённом переходе статуса.
func InvalidTransition(entity, current, requested string) *AppError {
	return New(ErrCodeInvalidTransition, fmt.Sprintf("недопустимый переход %s: %s -> %s", entity, current, requested)).
		WithDetails(map[string]any{
			"entity":           entity,
			"current_status":   current,
			"requested_status": requested,
		})
}

func NotFound(message string) *AppError {
	return New(ErrCodeNotFound, message)
}

func Forbidden(message string) *AppError {
	return New(ErrCodeForbidden, message)
}

func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message)
}

// External оборачивает отказ внешней системы (оценщик, платёжный шлюз, доставка уведомлений).
func External(err error, system string) *AppError {
	return Wrap(err, ErrCodeExternalFailure, fmt.Sprintf("внешний сервис недоступен: %s", system)).
		WithDetails(map[string]any{"system": system})
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeBadRequest, ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeInvalidTransition:
		return http.StatusUnprocessableEntity
	case ErrCodeExternalFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func hasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

func IsForbidden(err error) bool {
	return hasCode(err, ErrCodeForbidden)
}

func IsValidation(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

func IsConflict(err error) bool {
	return hasCode(err, ErrCodeConflict)
}

func IsInvalidTransition(err error) bool {
	return hasCode(err, ErrCodeInvalidTransition)
}

func IsExternal(err error) bool {
	return hasCode(err, ErrCodeExternalFailure)
}

var (
	ErrRequestNotFound          = New(ErrCodeNotFound, "заявка не найдена")
	ErrQuoteNotFound            = New(ErrCodeNotFound, "смета не найдена")
	ErrPaymentNotFound          = New(ErrCodeNotFound, "платёж не найден")
	ErrTechnicianNotFound       = New(ErrCodeNotFound, "профиль мастера не найден")
	ErrRequestNoLongerAvailable = New(ErrCodeConflict, "заявка больше недоступна")
	ErrPhoneConfirmationPending = New(ErrCodeForbidden, "требуется телефонное подтверждение оператором")
	ErrUnauthorized             = New(ErrCodeUnauthorized, "требуется авторизация")
	ErrForbidden                = New(ErrCodeForbidden, "недостаточно прав")
)
