package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/prontocasa-backend/internal/http/middleware"
	"github.com/ignatzorin/prontocasa-backend/internal/interface/http/dto"
	"github.com/ignatzorin/prontocasa-backend/internal/interface/http/response"
	"github.com/ignatzorin/prontocasa-backend/internal/service"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/request"
)

func getUserID(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "требуется авторизация")
		return uuid.Nil, false
	}
	return userID, true
}

// getTechnician возвращает пользователя и его профиль мастера.
func getTechnician(c *gin.Context) (userID, technicianID uuid.UUID, ok bool) {
	userID, ok = getUserID(c)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	technicianID, ok = middleware.TechnicianID(c)
	if !ok {
		response.Forbidden(c, "сначала зарегистрируйтесь как мастер")
		return uuid.Nil, uuid.Nil, false
	}
	return userID, technicianID, true
}

func getViewer(c *gin.Context) (request.Viewer, bool) {
	userID, ok := getUserID(c)
	if !ok {
		return request.Viewer{}, false
	}
	viewer := request.Viewer{UserID: userID, Staff: service.IsStaff(middleware.Role(c))}
	if techID, ok := middleware.TechnicianID(c); ok {
		viewer.TechnicianID = &techID
	}
	return viewer, true
}

func parseIDParam(c *gin.Context, name, message string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.BadRequest(c, message)
		return uuid.Nil, false
	}
	return id, true
}

func parseIntQuery(c *gin.Context, key string, defaultValue int) int {
	valueStr := c.Query(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func toCancelResponse(out *request.CancelOutput) *dto.CancelResponse {
	if out == nil {
		return nil
	}
	return &dto.CancelResponse{
		Request:         dto.ToRequestResponse(out.Request),
		Quote:           dto.ToQuoteResponse(out.Quote),
		Payment:         dto.ToPaymentResponse(out.Payment),
		Penalty:         dto.ToPenaltyDTO(out.Penalty),
		SettlementError: dto.ErrorString(out.SettlementError),
	}
}
