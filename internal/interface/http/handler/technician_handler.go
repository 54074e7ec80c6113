package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/valueobject"
	"github.com/ignatzorin/prontocasa-backend/internal/interface/http/dto"
	"github.com/ignatzorin/prontocasa-backend/internal/interface/http/response"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/dispatch"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/request"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/technician"
)

type TechnicianHandler struct {
	technicians *technician.UseCases
	dispatcher  *dispatch.Dispatcher
	jobs        *request.ListTechnicianJobsUseCase
}

func NewTechnicianHandler(technicians *technician.UseCases, dispatcher *dispatch.Dispatcher, jobs *request.ListTechnicianJobsUseCase) *TechnicianHandler {
	return &TechnicianHandler{technicians: technicians, dispatcher: dispatcher, jobs: jobs}
}

func (h *TechnicianHandler) Onboard(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req dto.OnboardTechnicianRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "некорректные данные профиля")
		return
	}

	tech, err := h.technicians.Onboard(c.Request.Context(), technician.OnboardInput{
		UserID:          userID,
		DisplayName:     req.DisplayName,
		Specializations: req.Specializations,
		HourlyRate:      valueobject.Cents(req.HourlyRate),
		Latitude:        req.Latitude,
		Longitude:       req.Longitude,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ToTechnicianResponse(tech))
}

func (h *TechnicianHandler) GetMe(c *gin.Context) {
	_, technicianID, ok := getTechnician(c)
	if !ok {
		return
	}

	tech, err := h.technicians.GetByID(c.Request.Context(), technicianID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToTechnicianResponse(tech))
}

func (h *TechnicianHandler) GetPublic(c *gin.Context) {
	technicianID, ok := parseIDParam(c, "id", "некорректный ID мастера")
	if !ok {
		return
	}

	tech, err := h.technicians.GetByID(c.Request.Context(), technicianID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToPublicTechnicianResponse(tech))
}

func (h *TechnicianHandler) UpdateAvailability(c *gin.Context) {
	userID, technicianID, ok := getTechnician(c)
	if !ok {
		return
	}

	var req dto.AvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "некорректные данные доступности")
		return
	}

	tech, err := h.technicians.UpdateAvailability(c.Request.Context(), technicianID, userID, entity.AvailabilityUpdate{
		IsAvailableNow:  req.IsAvailableNow,
		IsAcceptingJobs: req.IsAcceptingJobs,
		Schedule:        req.Schedule,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToTechnicianResponse(tech))
}

func (h *TechnicianHandler) UpdateLocation(c *gin.Context) {
	userID, technicianID, ok := getTechnician(c)
	if !ok {
		return
	}

	var req dto.LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "укажите latitude и longitude")
		return
	}

	tech, err := h.technicians.UpdateLocation(c.Request.Context(), technicianID, userID, *req.Latitude, *req.Longitude)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToTechnicianResponse(tech))
}

// Verify подтверждает профиль мастера. Только для администраторов.
func (h *TechnicianHandler) Verify(c *gin.Context) {
	technicianID, ok := parseIDParam(c, "id", "некорректный ID мастера")
	if !ok {
		return
	}
	adminID, ok := getUserID(c)
	if !ok {
		return
	}

	tech, err := h.technicians.Verify(c.Request.Context(), adminID, technicianID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToTechnicianResponse(tech))
}

// ListOffers возвращает заявки, предложенные мастеру и ещё не принятые.
func (h *TechnicianHandler) ListOffers(c *gin.Context) {
	_, technicianID, ok := getTechnician(c)
	if !ok {
		return
	}

	list, err := h.dispatcher.Pending(c.Request.Context(), technicianID, parseIntQuery(c, "limit", 50))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToRequestResponses(list))
}

func (h *TechnicianHandler) ListJobs(c *gin.Context) {
	_, technicianID, ok := getTechnician(c)
	if !ok {
		return
	}

	list, err := h.jobs.Execute(c.Request.Context(), technicianID, c.Query("include_closed") == "true")
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToRequestResponses(list))
}
