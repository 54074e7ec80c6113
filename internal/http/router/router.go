package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/prontocasa-backend/internal/config"
	"github.com/ignatzorin/prontocasa-backend/internal/http/middleware"
	"github.com/ignatzorin/prontocasa-backend/internal/interface/http/handler"
	"github.com/ignatzorin/prontocasa-backend/internal/service"
)

// Handlers — все HTTP-обработчики сервиса.
type Handlers struct {
	Health     *handler.HealthHandler
	WS         *handler.WSHandler
	Request    *handler.RequestHandler
	Quote      *handler.QuoteHandler
	Payment    *handler.PaymentHandler
	Technician *handler.TechnicianHandler
	Audit      *handler.AuditHandler
}

func SetupRouter(
	cfg *config.Config,
	h Handlers,
	tokenManager *service.TokenManager,
	technicians middleware.TechnicianLookup,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", h.Health.Health)
	r.GET("/ws", h.WS.Handle)

	api := r.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(tokenManager))

	clientOnly := middleware.RequireRole(service.RoleClient)
	technicianOnly := middleware.RequireRole(service.RoleTechnician)
	staffOnly := middleware.RequireRole(service.RoleOperator, service.RoleAdmin)
	adminOnly := middleware.RequireRole(service.RoleAdmin)
	resolveTechnician := middleware.TechnicianResolver(technicians)

	requests := api.Group("/requests")
	{
		createLimit := middleware.RateLimitMiddleware("create_request", cfg.RateLimitLimit, cfg.RateLimitPeriod)
		requests.POST("", clientOnly, createLimit, h.Request.CreateRequest)
		requests.GET("", clientOnly, h.Request.ListMyRequests)
	}

	byID := requests.Group("/:id")
	byID.Use(middleware.UUIDValidator("id"))
	{
		viewer := middleware.OptionalTechnician(technicians)
		byID.GET("", viewer, h.Request.GetRequest)
		byID.GET("/quote", viewer, h.Quote.GetQuote)
		byID.POST("/reanalyze", h.Request.Reanalyze)
		byID.POST("/dispatch", h.Request.StartDispatch)

		byID.POST("/cancel", clientOnly, h.Request.CancelRequest)
		byID.POST("/sign", clientOnly, h.Request.SignOff)
		byID.POST("/complaint", clientOnly, h.Request.FileComplaint)
		byID.POST("/quote/decision", clientOnly, h.Quote.Decide)
		byID.POST("/payment", clientOnly, h.Payment.CreatePayment)

		acceptLimit := middleware.RateLimitMiddleware("accept_request", cfg.RateLimitLimit, cfg.RateLimitPeriod)
		byID.POST("/accept", technicianOnly, resolveTechnician, acceptLimit, h.Request.AcceptRequest)
		byID.POST("/en-route", technicianOnly, resolveTechnician, h.Request.MarkEnRoute)
		byID.POST("/start", technicianOnly, resolveTechnician, h.Request.StartWork)
		byID.POST("/complete", technicianOnly, resolveTechnician, h.Request.CompleteWork)
		byID.POST("/quote/revise", technicianOnly, resolveTechnician, h.Quote.ReviseQuote)

		byID.POST("/quote/confirm-phone", staffOnly, h.Quote.ConfirmPhone)
		byID.GET("/rounds", staffOnly, h.Request.ListRounds)
	}

	payments := api.Group("/payments/:id")
	payments.Use(middleware.UUIDValidator("id"))
	{
		payments.GET("", h.Payment.GetPayment)
		payments.POST("/confirm", clientOnly, h.Payment.ConfirmPayment)
	}

	technicianGroup := api.Group("/technicians")
	{
		technicianGroup.POST("", technicianOnly, h.Technician.Onboard)

		me := technicianGroup.Group("/me")
		me.Use(technicianOnly, resolveTechnician)
		{
			me.GET("", h.Technician.GetMe)
			me.GET("/offers", h.Technician.ListOffers)
			me.GET("/jobs", h.Technician.ListJobs)
			me.PATCH("/availability", h.Technician.UpdateAvailability)
			me.PUT("/location", h.Technician.UpdateLocation)
		}

		technicianGroup.GET("/:id", middleware.UUIDValidator("id"), h.Technician.GetPublic)
		technicianGroup.POST("/:id/verify", middleware.UUIDValidator("id"), adminOnly, h.Technician.Verify)
	}

	api.GET("/audit", adminOnly, h.Audit.ListEntries)

	return r
}
