// Package app собирает сценарии маркетплейса из хранилища и внешних адаптеров.
package app

import (
	"github.com/ignatzorin/prontocasa-backend/internal/config"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/repository"
	"github.com/ignatzorin/prontocasa-backend/internal/interface/http/handler"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/audit"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/dispatch"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/payment"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/quote"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/request"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/technician"
)

// Deps — внешние зависимости сценариев.
type Deps struct {
	Store      repository.Store
	Estimator  repository.Estimator
	Notifier   repository.Notifier
	Processor  repository.EscrowProcessor
	Signatures request.SignatureStore
}

// Services — готовые сценарии.
type Services struct {
	Store       repository.Store
	Escrow      *payment.Escrow
	Dispatcher  *dispatch.Dispatcher
	Technicians *technician.UseCases
	Quotes      *quote.UseCases
	Requests    handler.RequestUseCases
	Jobs        *request.ListTechnicianJobsUseCase
	Audit       *audit.ListEntriesUseCase
}

func NewServices(deps Deps, rules config.Marketplace) *Services {
	store := deps.Store
	escrow := payment.NewEscrow(store, deps.Processor, rules)
	dispatcher := dispatch.NewDispatcher(store, deps.Notifier, rules)
	analyzer := request.NewAnalyzer(store, deps.Estimator)
	cancel := request.NewCancelRequestUseCase(store, escrow, rules)

	return &Services{
		Store:       store,
		Escrow:      escrow,
		Dispatcher:  dispatcher,
		Technicians: technician.NewUseCases(store),
		Quotes:      quote.NewUseCases(store, cancel, rules),
		Requests: handler.RequestUseCases{
			Create:      request.NewCreateRequestUseCase(store, analyzer, dispatcher, rules),
			Get:         request.NewGetRequestUseCase(store),
			ListClient:  request.NewListClientRequestsUseCase(store),
			Cancel:      cancel,
			Reanalyze:   request.NewReanalyzeUseCase(analyzer, dispatcher, rules),
			MarkEnRoute: request.NewMarkEnRouteUseCase(store),
			StartWork:   request.NewStartWorkUseCase(store),
			Complete:    request.NewCompleteWorkUseCase(store, rules),
			SignOff:     request.NewSignOffUseCase(store, deps.Signatures, escrow),
			Complaint:   request.NewFileComplaintUseCase(store),
		},
		Jobs:  request.NewListTechnicianJobsUseCase(store),
		Audit: audit.NewListEntriesUseCase(store.Audit()),
	}
}
