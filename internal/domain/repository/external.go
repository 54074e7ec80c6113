package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/valueobject"
)

type EstimateInput struct {
	Category      valueobject.Category
	Description   string
	GuidedAnswers entity.GuidedAnswers
	MediaURLs     []string
}

// Estimator оценивает серьёзность поломки и начальный диапазон цены. Не имеет побочных эффектов.
type Estimator interface {
	Estimate(ctx context.Context, in EstimateInput) (*valueobject.Assessment, error)
}

// Notifier доставляет мастеру предложение о заявке. level > 0 означает повторную срочную рассылку.
type Notifier interface {
	NotifyTechnician(ctx context.Context, tech *entity.Technician, req *entity.Request, level int) error
}

// EscrowProcessor — внешний платёжный процессор. Каждый вызов возвращает ссылку на операцию.
type EscrowProcessor interface {
	Hold(ctx context.Context, paymentID uuid.UUID, amount valueobject.Cents) (string, error)
	Capture(ctx context.Context, holdRef string) (string, error)
	Transfer(ctx context.Context, holdRef string, payout valueobject.Cents) (string, error)
	Refund(ctx context.Context, holdRef string, amount valueobject.Cents) (string, error)
}
