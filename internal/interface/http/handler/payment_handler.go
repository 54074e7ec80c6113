package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/prontocasa-backend/internal/http/middleware"
	"github.com/ignatzorin/prontocasa-backend/internal/interface/http/dto"
	"github.com/ignatzorin/prontocasa-backend/internal/interface/http/response"
	"github.com/ignatzorin/prontocasa-backend/internal/service"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/payment"
)

type PaymentHandler struct {
	escrow *payment.Escrow
}

func NewPaymentHandler(escrow *payment.Escrow) *PaymentHandler {
	return &PaymentHandler{escrow: escrow}
}

// CreatePayment удерживает сумму одобренной сметы.
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	requestID, ok := parseIDParam(c, "id", "некорректный ID заявки")
	if !ok {
		return
	}
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req dto.CreatePaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "некорректные данные запроса")
			return
		}
	}

	p, err := h.escrow.Create(c.Request.Context(), payment.CreateInput{
		ClientID:  userID,
		RequestID: requestID,
		Method:    req.Method,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ToPaymentResponse(p))
}

func (h *PaymentHandler) GetPayment(c *gin.Context) {
	paymentID, ok := parseIDParam(c, "id", "некорректный ID платежа")
	if !ok {
		return
	}
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	p, err := h.escrow.Get(c.Request.Context(), userID, paymentID, service.IsStaff(middleware.Role(c)))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToPaymentResponse(p))
}

// ConfirmPayment подтверждает удержание. Повторный вызов возвращает тот же платёж.
func (h *PaymentHandler) ConfirmPayment(c *gin.Context) {
	paymentID, ok := parseIDParam(c, "id", "некорректный ID платежа")
	if !ok {
		return
	}
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	p, err := h.escrow.Confirm(c.Request.Context(), userID, paymentID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToPaymentResponse(p))
}
