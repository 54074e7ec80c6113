package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, content string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if status != http.StatusOK {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "boom"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": content}}},
		})
	}))
}

func TestDiagnose_ParsesMarkdownWrappedJSON(t *testing.T) {
	srv := chatServer(t, "Вот оценка:\n```json\n{\"severity\":\"HIGH\",\"confidence\":90,\"probable_issue\":\"Прорыв трубы\","+
		"\"safety_instructions\":[\"Перекройте воду\"],\"estimated_duration_hours\":2,\"price_min_cents\":12000,\"price_max_cents\":30000}\n```", http.StatusOK)
	defer srv.Close()

	client := NewClient(srv.URL+"/v1", "", "test-key")
	d, err := client.Diagnose(context.Background(), DiagnoseInput{Category: "plumbing", Description: "Течёт под раковиной", RunningWater: true})
	require.NoError(t, err)

	assert.Equal(t, SeverityHigh, d.Severity)
	assert.Equal(t, 90, d.Confidence)
	assert.Equal(t, int64(12000), d.PriceMin)
	assert.Equal(t, int64(30000), d.PriceMax)
	assert.Equal(t, []string{"Перекройте воду"}, d.SafetyInstructions)
}

func TestDiagnose_ErrorStatus(t *testing.T) {
	srv := chatServer(t, "", http.StatusBadGateway)
	defer srv.Close()

	_, err := NewClient(srv.URL+"/v1/", "m", "test-key").Diagnose(context.Background(), DiagnoseInput{Category: "general"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestDiagnose_NoJSON(t *testing.T) {
	srv := chatServer(t, "не знаю", http.StatusOK)
	defer srv.Close()

	_, err := NewClient(srv.URL+"/v1", "m", "test-key").Diagnose(context.Background(), DiagnoseInput{Category: "general"})
	assert.Error(t, err)
}

func TestDiagnose_EmptyBaseURL(t *testing.T) {
	_, err := NewClient("", "", "").Diagnose(context.Background(), DiagnoseInput{Category: "general"})
	assert.Error(t, err)
}

func TestHeuristicDiagnosis(t *testing.T) {
	tests := []struct {
		name       string
		in         DiagnoseInput
		severity   string
		min, max   int64
		confidence int
		duration   float64
	}{
		{
			name:     "искры в электрике",
			in:       DiagnoseInput{Category: "electrical", Sparks: true},
			severity: SeverityHigh, min: 13000, max: 45000, confidence: 75, duration: 2.0,
		},
		{
			name:     "течёт вода в сантехнике",
			in:       DiagnoseInput{Category: "plumbing", RunningWater: true, MediaCount: 2},
			severity: SeverityHigh, min: 10400, max: 37500, confidence: 85, duration: 2.0,
		},
		{
			name:     "вода вне сантехники не срочно",
			in:       DiagnoseInput{Category: "carpentry", RunningWater: true},
			severity: SeverityLow, min: 10000, max: 25000, confidence: 75, duration: 1.5,
		},
		{
			name:     "недавняя поломка",
			in:       DiagnoseInput{Category: "locksmith", HowLong: "Oggi"},
			severity: SeverityMedium, min: 6000, max: 15000, confidence: 75, duration: 1.5,
		},
		{
			name:     "запах газа",
			in:       DiagnoseInput{Category: "hvac", GasSmell: true},
			severity: SeverityHigh, min: 19500, max: 75000, confidence: 75, duration: 2.0,
		},
		{
			name:     "неизвестная категория",
			in:       DiagnoseInput{Category: "garden"},
			severity: SeverityLow, min: 5000, max: 20000, confidence: 75, duration: 1.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := HeuristicDiagnosis(tt.in)
			assert.Equal(t, tt.severity, d.Severity)
			assert.Equal(t, tt.min, d.PriceMin)
			assert.Equal(t, tt.max, d.PriceMax)
			assert.Equal(t, tt.confidence, d.Confidence)
			assert.Equal(t, tt.duration, d.EstimatedDurationHours)
			assert.NotEmpty(t, d.SafetyInstructions)
			assert.NotEmpty(t, d.ProbableIssue)
		})
	}
}
