package ai

import (
	"context"

	"github.com/ignatzorin/prontocasa-backend/internal/ai"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/repository"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/valueobject"
	"github.com/ignatzorin/prontocasa-backend/internal/logger"
)

// EstimatorAdapter реализует repository.Estimator поверх клиента модели.
// Без клиента работает только эвристика.
type EstimatorAdapter struct {
	client   *ai.Client
	fallback bool
}

// NewEstimatorAdapter создаёт оценщик. При fallback=true ошибка модели заменяется эвристикой.
func NewEstimatorAdapter(client *ai.Client, fallback bool) *EstimatorAdapter {
	return &EstimatorAdapter{client: client, fallback: fallback}
}

func (a *EstimatorAdapter) Estimate(ctx context.Context, in repository.EstimateInput) (*valueobject.Assessment, error) {
	input := toDiagnoseInput(in)
	if a.client == nil {
		return toAssessment(ai.HeuristicDiagnosis(input)), nil
	}

	d, err := a.client.Diagnose(ctx, input)
	if err == nil {
		assessment := toAssessment(d)
		if err = assessment.Validate(); err == nil {
			return assessment, nil
		}
	}
	if !a.fallback {
		return nil, err
	}
	logger.Log.WithError(err).WithField("category", string(in.Category)).
		Warn("ai: модель недоступна, используем эвристическую оценку")
	return toAssessment(ai.HeuristicDiagnosis(input)), nil
}

func toDiagnoseInput(in repository.EstimateInput) ai.DiagnoseInput {
	return ai.DiagnoseInput{
		Category:     string(in.Category),
		Description:  in.Description,
		HowLong:      in.GuidedAnswers.HowLong,
		RunningWater: isSet(in.GuidedAnswers.RunningWater),
		Sparks:       isSet(in.GuidedAnswers.Sparks),
		BurningSmell: isSet(in.GuidedAnswers.BurningSmell),
		GasSmell:     isSet(in.GuidedAnswers.GasSmell),
		MediaCount:   len(in.MediaURLs),
	}
}

func toAssessment(d *ai.Diagnosis) *valueobject.Assessment {
	return &valueobject.Assessment{
		Severity:               valueobject.Severity(d.Severity),
		Confidence:             d.Confidence,
		ProbableIssue:          d.ProbableIssue,
		SafetyInstructions:     d.SafetyInstructions,
		EstimatedDurationHours: d.EstimatedDurationHours,
		PriceRange: valueobject.PriceRange{
			Min: valueobject.Cents(d.PriceMin),
			Max: valueobject.Cents(d.PriceMax),
		},
	}
}

func isSet(v *bool) bool {
	return v != nil && *v
}
