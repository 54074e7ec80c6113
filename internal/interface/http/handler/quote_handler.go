package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/prontocasa-backend/internal/domain/valueobject"
	"github.com/ignatzorin/prontocasa-backend/internal/interface/http/dto"
	"github.com/ignatzorin/prontocasa-backend/internal/interface/http/response"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/quote"
)

type QuoteHandler struct {
	quotes *quote.UseCases
}

func NewQuoteHandler(quotes *quote.UseCases) *QuoteHandler {
	return &QuoteHandler{quotes: quotes}
}

func (h *QuoteHandler) GetQuote(c *gin.Context) {
	requestID, ok := parseIDParam(c, "id", "некорректный ID заявки")
	if !ok {
		return
	}
	viewer, ok := getViewer(c)
	if !ok {
		return
	}

	q, err := h.quotes.Get(c.Request.Context(), viewer, requestID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToQuoteResponse(q))
}

// ReviseQuote — пересмотр сметы мастером на месте.
func (h *QuoteHandler) ReviseQuote(c *gin.Context) {
	requestID, ok := parseIDParam(c, "id", "некорректный ID заявки")
	if !ok {
		return
	}
	userID, technicianID, ok := getTechnician(c)
	if !ok {
		return
	}

	var req dto.ReviseQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "некорректные данные сметы")
		return
	}

	out, err := h.quotes.Revise(c.Request.Context(), quote.ReviseInput{
		TechnicianID:  technicianID,
		UserID:        userID,
		RequestID:     requestID,
		MinPrice:      valueobject.Cents(req.MinPrice),
		MaxPrice:      valueobject.Cents(req.MaxPrice),
		FinalPrice:    dto.ToCents(req.FinalPrice),
		LaborCost:     dto.ToCents(req.LaborCost),
		MaterialsCost: dto.ToCents(req.MaterialsCost),
		Reason:        req.Reason,
		Evidence:      req.Evidence,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	reqResp := dto.ToRequestResponse(out.Request)
	response.Success(c, dto.QuoteDecisionResponse{
		Quote:   dto.ToQuoteResponse(out.Quote),
		Request: &reqResp,
	})
}

// ConfirmPhone отмечает, что оператор подтвердил крупный пересмотр по телефону.
func (h *QuoteHandler) ConfirmPhone(c *gin.Context) {
	requestID, ok := parseIDParam(c, "id", "некорректный ID заявки")
	if !ok {
		return
	}
	operatorID, ok := getUserID(c)
	if !ok {
		return
	}

	q, err := h.quotes.ConfirmPhone(c.Request.Context(), operatorID, requestID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToQuoteResponse(q))
}

// Decide — одобрение или отклонение сметы клиентом. Отклонение отменяет заявку.
func (h *QuoteHandler) Decide(c *gin.Context) {
	requestID, ok := parseIDParam(c, "id", "некорректный ID заявки")
	if !ok {
		return
	}
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req dto.QuoteDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "укажите approve")
		return
	}

	out, err := h.quotes.Decide(c.Request.Context(), quote.DecisionInput{
		ClientID:  userID,
		RequestID: requestID,
		Approve:   *req.Approve,
		Reason:    req.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := dto.QuoteDecisionResponse{
		Quote:  dto.ToQuoteResponse(out.Quote),
		Cancel: toCancelResponse(out.Cancel),
	}
	if out.Request != nil {
		reqResp := dto.ToRequestResponse(out.Request)
		resp.Request = &reqResp
	}
	response.Success(c, resp)
}
