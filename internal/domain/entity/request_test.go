package entity

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/prontocasa-backend/internal/domain/valueobject"
	"github.com/ignatzorin/prontocasa-backend/internal/pkg/apperror"
)

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func validParams(clientID uuid.UUID) NewRequestParams {
	return NewRequestParams{
		ClientID:      clientID,
		ReferenceCode: "PC-TEST01",
		Category:      "Plumbing",
		Title:         "Течёт кран",
		Description:   "Под раковиной на кухне постоянно капает вода",
		MediaURLs:     []string{"https://cdn.example.com/leak.jpg"},
		Latitude:      45.07,
		Longitude:     7.68,
		Address:       "Via Roma 1, Torino",
	}
}

func assessment(severity valueobject.Severity) valueobject.Assessment {
	return valueobject.Assessment{
		Severity:      severity,
		Confidence:    80,
		ProbableIssue: "износ прокладки",
		PriceRange:    valueobject.PriceRange{Min: 8000, Max: 15000},
	}
}

// acceptedRequest возвращает заявку, принятую мастером techID.
func acceptedRequest(t *testing.T, clientID, techID uuid.UUID) *Request {
	t.Helper()
	r, err := NewRequest(validParams(clientID), testNow)
	require.NoError(t, err)
	require.NoError(t, r.ApplyAssessment(assessment(valueobject.SeverityMedium), testNow))
	require.NoError(t, r.StartDispatch(testNow))
	require.NoError(t, r.Accept(techID, 30, testNow))
	return r
}

func TestNewRequest(t *testing.T) {
	clientID := uuid.New()

	r, err := NewRequest(validParams(clientID), testNow)
	require.NoError(t, err)
	assert.Equal(t, valueobject.RequestStatusPending, r.Status)
	assert.Equal(t, valueobject.CategoryPlumbing, r.Category)
	assert.Nil(t, r.TechnicianID)
	assert.NoError(t, r.CheckInvariants())

	tests := []struct {
		name  string
		field string
		edit  func(p *NewRequestParams)
	}{
		{"short title", "title", func(p *NewRequestParams) { p.Title = "кран" }},
		{"short description", "description", func(p *NewRequestParams) { p.Description = "течёт" }},
		{"long address", "address", func(p *NewRequestParams) { p.Address = strings.Repeat("a", 501) }},
		{"unknown category", "category", func(p *NewRequestParams) { p.Category = "gardening" }},
		{"bad latitude", "latitude", func(p *NewRequestParams) { p.Latitude = 91 }},
		{"bad media link", "media_urls", func(p *NewRequestParams) { p.MediaURLs = []string{"ftp://x/y.jpg"} }},
		{"no client", "client_id", func(p *NewRequestParams) { p.ClientID = uuid.Nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams(clientID)
			tt.edit(&p)
			_, err := NewRequest(p, testNow)
			require.Error(t, err)
			assert.True(t, apperror.IsValidation(err))

			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.field, appErr.Details["field"])
		})
	}
}

func TestRequest_HighSeverityMarksUrgent(t *testing.T) {
	r, err := NewRequest(validParams(uuid.New()), testNow)
	require.NoError(t, err)

	require.NoError(t, r.ApplyAssessment(assessment(valueobject.SeverityHigh), testNow))
	assert.Equal(t, valueobject.RequestStatusAnalyzed, r.Status)
	assert.True(t, r.IsUrgent)
	require.NotNil(t, r.Severity)
	assert.Equal(t, valueobject.SeverityHigh, *r.Severity)
	require.NotNil(t, r.Diagnosis)
	assert.Equal(t, "износ прокладки", r.Diagnosis.ProbableIssue)
}

func TestRequest_AcceptRequiresDispatching(t *testing.T) {
	r, err := NewRequest(validParams(uuid.New()), testNow)
	require.NoError(t, err)

	err = r.Accept(uuid.New(), 30, testNow)
	assert.True(t, apperror.IsConflict(err))
	assert.ErrorIs(t, err, apperror.ErrRequestNoLongerAvailable)
}

func TestRequest_AcceptValidatesETA(t *testing.T) {
	r, err := NewRequest(validParams(uuid.New()), testNow)
	require.NoError(t, err)
	require.NoError(t, r.ApplyAssessment(assessment(valueobject.SeverityLow), testNow))
	require.NoError(t, r.StartDispatch(testNow))

	assert.True(t, apperror.IsValidation(r.Accept(uuid.New(), 4, testNow)))
	assert.True(t, apperror.IsValidation(r.Accept(uuid.New(), 181, testNow)))
	assert.Equal(t, valueobject.RequestStatusDispatching, r.Status)
}

func TestRequest_SecondAcceptConflicts(t *testing.T) {
	first := uuid.New()
	r := acceptedRequest(t, uuid.New(), first)

	err := r.Accept(uuid.New(), 10, testNow)
	assert.True(t, apperror.IsConflict(err))
	assert.True(t, r.IsAssignedTo(first))
	require.NotNil(t, r.EstimatedArrival)
	assert.Equal(t, testNow.Add(30*time.Minute), *r.EstimatedArrival)
}

func TestRequest_WorkFlow(t *testing.T) {
	clientID, techID := uuid.New(), uuid.New()
	r := acceptedRequest(t, clientID, techID)

	assert.True(t, apperror.IsForbidden(r.DepartEnRoute(uuid.New(), testNow)))

	require.NoError(t, r.DepartEnRoute(techID, testNow))
	require.NoError(t, r.StartWork(techID, testNow))
	assert.Equal(t, valueobject.RequestStatusInProgress, r.Status)
	require.NotNil(t, r.StartedAt)

	photos := []string{"https://cdn.example.com/done.jpg"}
	err := r.Complete(techID, nil, 5, 48*time.Hour, testNow)
	assert.True(t, apperror.IsValidation(err))
	err = r.Complete(techID, []string{"не ссылка"}, 5, 48*time.Hour, testNow)
	assert.True(t, apperror.IsValidation(err))

	done := testNow.Add(2 * time.Hour)
	require.NoError(t, r.Complete(techID, photos, 5, 48*time.Hour, done))
	assert.Equal(t, valueobject.RequestStatusCompleted, r.Status)
	require.NotNil(t, r.ComplaintDeadline)
	assert.Equal(t, done.Add(48*time.Hour), *r.ComplaintDeadline)

	assert.True(t, apperror.IsForbidden(r.CheckSignable(uuid.New())))
	assert.True(t, apperror.IsValidation(r.Sign(clientID, "", "", done)))
	require.NoError(t, r.Sign(clientID, "/media/signatures/a.png", "abc", done))
	assert.Equal(t, valueobject.RequestStatusPaid, r.Status)
	assert.NoError(t, r.CheckInvariants())
}

func TestRequest_QuoteRevisionRoundTrip(t *testing.T) {
	clientID, techID := uuid.New(), uuid.New()
	r := acceptedRequest(t, clientID, techID)
	require.NoError(t, r.StartWork(techID, testNow))

	require.NoError(t, r.EnterQuoteRevision(techID, testNow))
	assert.Equal(t, valueobject.RequestStatusQuoteRevision, r.Status)

	assert.True(t, apperror.IsForbidden(r.ResumeAfterRevision(uuid.New(), testNow)))
	require.NoError(t, r.ResumeAfterRevision(clientID, testNow))
	assert.Equal(t, valueobject.RequestStatusInProgress, r.Status)

	assert.True(t, apperror.IsInvalidTransition(r.ResumeAfterRevision(clientID, testNow)))
}

func TestRequest_Cancel(t *testing.T) {
	t.Run("before acceptance", func(t *testing.T) {
		clientID := uuid.New()
		r, err := NewRequest(validParams(clientID), testNow)
		require.NoError(t, err)

		engaged, err := r.Cancel(clientID, "передумал", testNow)
		require.NoError(t, err)
		assert.False(t, engaged)
		assert.Equal(t, valueobject.RequestStatusCancelled, r.Status)
		assert.Nil(t, r.ReleasedTechnicianID)
	})

	t.Run("after acceptance releases technician", func(t *testing.T) {
		clientID, techID := uuid.New(), uuid.New()
		r := acceptedRequest(t, clientID, techID)

		engaged, err := r.Cancel(clientID, "", testNow)
		require.NoError(t, err)
		assert.True(t, engaged)
		assert.Nil(t, r.TechnicianID)
		require.NotNil(t, r.ReleasedTechnicianID)
		assert.Equal(t, techID, *r.ReleasedTechnicianID)
		assert.Equal(t, techID, *r.EngagedTechnicianID())
		assert.Nil(t, r.CancellationReason)
		assert.NoError(t, r.CheckInvariants())
	})

	t.Run("foreign client", func(t *testing.T) {
		r := acceptedRequest(t, uuid.New(), uuid.New())
		_, err := r.Cancel(uuid.New(), "", testNow)
		assert.True(t, apperror.IsForbidden(err))
	})

	t.Run("terminal", func(t *testing.T) {
		clientID := uuid.New()
		r, err := NewRequest(validParams(clientID), testNow)
		require.NoError(t, err)
		_, err = r.Cancel(clientID, "", testNow)
		require.NoError(t, err)

		_, err = r.Cancel(clientID, "", testNow)
		assert.True(t, apperror.IsInvalidTransition(err))
	})
}

func TestRequest_FileComplaint(t *testing.T) {
	complete := func(t *testing.T) (*Request, uuid.UUID) {
		clientID, techID := uuid.New(), uuid.New()
		r := acceptedRequest(t, clientID, techID)
		require.NoError(t, r.StartWork(techID, testNow))
		require.NoError(t, r.Complete(techID, []string{"/media/done.jpg"}, 5, 24*time.Hour, testNow))
		return r, clientID
	}

	t.Run("inside window", func(t *testing.T) {
		r, clientID := complete(t)
		require.NoError(t, r.FileComplaint(clientID, "кран снова протекает", testNow.Add(time.Hour)))
		assert.Equal(t, valueobject.RequestStatusDisputed, r.Status)
		assert.True(t, r.HasComplaint)
		assert.Nil(t, r.TechnicianID)
		assert.NoError(t, r.CheckInvariants())
	})

	t.Run("window closed", func(t *testing.T) {
		r, clientID := complete(t)
		err := r.FileComplaint(clientID, "кран снова протекает", testNow.Add(25*time.Hour))
		assert.True(t, apperror.IsInvalidTransition(err))
		assert.Equal(t, valueobject.RequestStatusCompleted, r.Status)
	})

	t.Run("short notes", func(t *testing.T) {
		r, clientID := complete(t)
		assert.True(t, apperror.IsValidation(r.FileComplaint(clientID, "плохо", testNow)))
	})
}

func TestRequest_CheckInvariants(t *testing.T) {
	r, err := NewRequest(validParams(uuid.New()), testNow)
	require.NoError(t, err)

	r.Status = valueobject.RequestStatusInProgress
	assert.Error(t, r.CheckInvariants())
}
