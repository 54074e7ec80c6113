package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/prontocasa-backend/internal/ai"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/repository"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/valueobject"
	"github.com/ignatzorin/prontocasa-backend/internal/logger"
)

func init() {
	logger.Discard()
}

func modelServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func leak() repository.EstimateInput {
	yes := true
	return repository.EstimateInput{
		Category:      valueobject.CategoryPlumbing,
		Description:   "Течёт труба под раковиной",
		GuidedAnswers: entity.GuidedAnswers{RunningWater: &yes},
		MediaURLs:     []string{"https://cdn.example.com/leak.jpg"},
	}
}

func TestEstimatorAdapter_HeuristicWithoutClient(t *testing.T) {
	a, err := NewEstimatorAdapter(nil, true).Estimate(context.Background(), leak())
	require.NoError(t, err)

	assert.Equal(t, valueobject.SeverityHigh, a.Severity)
	assert.Equal(t, 85, a.Confidence)
	assert.Equal(t, valueobject.Cents(10400), a.PriceRange.Min)
	assert.Equal(t, valueobject.Cents(37500), a.PriceRange.Max)
	assert.NoError(t, a.Validate())
}

func TestEstimatorAdapter_UsesModel(t *testing.T) {
	srv := modelServer(t, http.StatusOK, `{"severity":"medium","confidence":70,"probable_issue":"Протечка сифона",`+
		`"safety_instructions":["Перекройте воду"],"estimated_duration_hours":1,"price_min_cents":9000,"price_max_cents":18000}`)

	a, err := NewEstimatorAdapter(ai.NewClient(srv.URL+"/v1", "", "key"), true).Estimate(context.Background(), leak())
	require.NoError(t, err)
	assert.Equal(t, valueobject.SeverityMedium, a.Severity)
	assert.Equal(t, valueobject.PriceRange{Min: 9000, Max: 18000}, a.PriceRange)
}

func TestEstimatorAdapter_ModelFailure(t *testing.T) {
	srv := modelServer(t, http.StatusBadGateway, "")

	t.Run("эвристика", func(t *testing.T) {
		a, err := NewEstimatorAdapter(ai.NewClient(srv.URL+"/v1", "", "key"), true).Estimate(context.Background(), leak())
		require.NoError(t, err)
		assert.Equal(t, valueobject.SeverityHigh, a.Severity)
	})

	t.Run("без эвристики", func(t *testing.T) {
		_, err := NewEstimatorAdapter(ai.NewClient(srv.URL+"/v1", "", "key"), false).Estimate(context.Background(), leak())
		assert.Error(t, err)
	})
}

func TestEstimatorAdapter_RejectsInvalidModelRange(t *testing.T) {
	srv := modelServer(t, http.StatusOK, `{"severity":"low","confidence":50,"probable_issue":"?",`+
		`"safety_instructions":[],"estimated_duration_hours":1,"price_min_cents":20000,"price_max_cents":5000}`)

	_, err := NewEstimatorAdapter(ai.NewClient(srv.URL+"/v1", "", "key"), false).Estimate(context.Background(), leak())
	assert.Error(t, err)
}
