package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/interface/http/dto"
	"github.com/ignatzorin/prontocasa-backend/internal/interface/http/response"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/dispatch"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/request"
)

// RequestUseCases — сценарии жизненного цикла заявки.
type RequestUseCases struct {
	Create      *request.CreateRequestUseCase
	Get         *request.GetRequestUseCase
	ListClient  *request.ListClientRequestsUseCase
	Cancel      *request.CancelRequestUseCase
	Reanalyze   *request.ReanalyzeUseCase
	MarkEnRoute *request.MarkEnRouteUseCase
	StartWork   *request.StartWorkUseCase
	Complete    *request.CompleteWorkUseCase
	SignOff     *request.SignOffUseCase
	Complaint   *request.FileComplaintUseCase
}

type RequestHandler struct {
	uc         RequestUseCases
	dispatcher *dispatch.Dispatcher
}

func NewRequestHandler(uc RequestUseCases, dispatcher *dispatch.Dispatcher) *RequestHandler {
	return &RequestHandler{uc: uc, dispatcher: dispatcher}
}

func (h *RequestHandler) CreateRequest(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req dto.CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "некорректные данные запроса")
		return
	}

	preferred, err := dto.ParseTime(req.PreferredTime)
	if err != nil {
		response.BadRequest(c, "некорректный формат preferred_time")
		return
	}

	out, err := h.uc.Create.Execute(c.Request.Context(), request.CreateRequestInput{
		ClientID:       userID,
		Category:       req.Category,
		Title:          req.Title,
		Description:    req.Description,
		GuidedAnswers:  req.GuidedAnswers,
		MediaURLs:      req.MediaURLs,
		Latitude:       *req.Latitude,
		Longitude:      *req.Longitude,
		Address:        req.Address,
		AddressDetails: req.AddressDetails,
		IsUrgent:       req.IsUrgent,
		PreferredTime:  preferred,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.CreateRequestResponse{
		Request:       dto.ToRequestResponse(out.Request),
		Quote:         dto.ToQuoteResponse(out.Quote),
		Round:         dto.ToRoundResponse(out.Round),
		AnalysisError: dto.ErrorString(out.AnalysisError),
	})
}

func (h *RequestHandler) GetRequest(c *gin.Context) {
	requestID, ok := parseIDParam(c, "id", "некорректный ID заявки")
	if !ok {
		return
	}
	viewer, ok := getViewer(c)
	if !ok {
		return
	}

	out, err := h.uc.Get.Execute(c.Request.Context(), viewer, requestID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.RequestDetailsResponse{
		Request: dto.ToRequestResponse(out.Request),
		Quote:   dto.ToQuoteResponse(out.Quote),
	})
}

// ListMyRequests возвращает заявки текущего клиента.
func (h *RequestHandler) ListMyRequests(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	limit := parseIntQuery(c, "limit", 20)
	offset := parseIntQuery(c, "offset", 0)

	out, err := h.uc.ListClient.Execute(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, dto.ToRequestResponses(out.Requests), out.Total, out.Limit, out.Offset)
}

func (h *RequestHandler) CancelRequest(c *gin.Context) {
	requestID, ok := parseIDParam(c, "id", "некорректный ID заявки")
	if !ok {
		return
	}
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req dto.CancelRequestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "некорректные данные запроса")
			return
		}
	}

	out, err := h.uc.Cancel.Execute(c.Request.Context(), request.CancelInput{
		ClientID:  userID,
		RequestID: requestID,
		Reason:    req.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, toCancelResponse(out))
}

// Reanalyze повторяет оценку заявки. Доступно владельцу и сотрудникам.
func (h *RequestHandler) Reanalyze(c *gin.Context) {
	requestID, ok := parseIDParam(c, "id", "некорректный ID заявки")
	if !ok {
		return
	}
	viewer, ok := getViewer(c)
	if !ok {
		return
	}

	current, err := h.uc.Get.Execute(c.Request.Context(), viewer, requestID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !viewer.Staff && !current.Request.IsOwnedBy(viewer.UserID) {
		response.Forbidden(c, "повторная оценка доступна только автору заявки")
		return
	}

	updated, err := h.uc.Reanalyze.Execute(c.Request.Context(), requestID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToRequestResponse(updated))
}

// StartDispatch запускает рассылку по заявке, оставшейся в ANALYZED.
func (h *RequestHandler) StartDispatch(c *gin.Context) {
	requestID, ok := parseIDParam(c, "id", "некорректный ID заявки")
	if !ok {
		return
	}
	viewer, ok := getViewer(c)
	if !ok {
		return
	}

	current, err := h.uc.Get.Execute(c.Request.Context(), viewer, requestID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !viewer.Staff && !current.Request.IsOwnedBy(viewer.UserID) {
		response.Forbidden(c, "запустить рассылку может только автор заявки")
		return
	}

	round, err := h.dispatcher.Start(c.Request.Context(), requestID)
	if err != nil {
		response.Error(c, err)
		return
	}

	updated, err := h.uc.Get.Execute(c.Request.Context(), viewer, requestID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.DispatchResponse{
		Request: dto.ToRequestResponse(updated.Request),
		Round:   dto.ToRoundResponse(round),
	})
}

func (h *RequestHandler) AcceptRequest(c *gin.Context) {
	requestID, ok := parseIDParam(c, "id", "некорректный ID заявки")
	if !ok {
		return
	}
	_, technicianID, ok := getTechnician(c)
	if !ok {
		return
	}

	var req dto.AcceptRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "укажите eta_minutes")
		return
	}

	accepted, err := h.dispatcher.Accept(c.Request.Context(), dispatch.AcceptInput{
		TechnicianID: technicianID,
		RequestID:    requestID,
		ETAMinutes:   req.ETAMinutes,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToRequestResponse(accepted))
}

func (h *RequestHandler) MarkEnRoute(c *gin.Context) {
	h.technicianAction(c, h.uc.MarkEnRoute.Execute)
}

func (h *RequestHandler) StartWork(c *gin.Context) {
	h.technicianAction(c, h.uc.StartWork.Execute)
}

func (h *RequestHandler) technicianAction(c *gin.Context, run func(ctx context.Context, in request.TechnicianActionInput) (*entity.Request, error)) {
	requestID, ok := parseIDParam(c, "id", "некорректный ID заявки")
	if !ok {
		return
	}
	userID, technicianID, ok := getTechnician(c)
	if !ok {
		return
	}

	updated, err := run(c.Request.Context(), request.TechnicianActionInput{
		RequestID:    requestID,
		TechnicianID: technicianID,
		UserID:       userID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToRequestResponse(updated))
}

func (h *RequestHandler) CompleteWork(c *gin.Context) {
	requestID, ok := parseIDParam(c, "id", "некорректный ID заявки")
	if !ok {
		return
	}
	userID, technicianID, ok := getTechnician(c)
	if !ok {
		return
	}

	var req dto.CompleteWorkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "приложите фото выполненной работы")
		return
	}

	updated, err := h.uc.Complete.Execute(c.Request.Context(), request.CompleteWorkInput{
		TechnicianActionInput: request.TechnicianActionInput{
			RequestID:    requestID,
			TechnicianID: technicianID,
			UserID:       userID,
		},
		Photos: req.Photos,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToRequestResponse(updated))
}

// SignOff принимает подпись клиента и выпускает платёж мастеру.
func (h *RequestHandler) SignOff(c *gin.Context) {
	requestID, ok := parseIDParam(c, "id", "некорректный ID заявки")
	if !ok {
		return
	}
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req dto.SignOffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "требуется подпись")
		return
	}

	out, err := h.uc.SignOff.Execute(c.Request.Context(), request.SignOffInput{
		ClientID:  userID,
		RequestID: requestID,
		Signature: req.Signature,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.SignOffResponse{
		Request: dto.ToRequestResponse(out.Request),
		Payment: dto.ToPaymentResponse(out.Payment),
	})
}

func (h *RequestHandler) FileComplaint(c *gin.Context) {
	requestID, ok := parseIDParam(c, "id", "некорректный ID заявки")
	if !ok {
		return
	}
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req dto.ComplaintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "опишите претензию")
		return
	}

	updated, err := h.uc.Complaint.Execute(c.Request.Context(), request.FileComplaintInput{
		RequestID: requestID,
		ClientID:  userID,
		Notes:     req.Notes,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToRequestResponse(updated))
}

// ListRounds возвращает историю рассылки по заявке.
func (h *RequestHandler) ListRounds(c *gin.Context) {
	requestID, ok := parseIDParam(c, "id", "некорректный ID заявки")
	if !ok {
		return
	}

	rounds, err := h.dispatcher.Rounds(c.Request.Context(), requestID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToRoundResponses(rounds))
}
