package entity

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/prontocasa-backend/internal/domain/valueobject"
	"github.com/ignatzorin/prontocasa-backend/internal/pkg/apperror"
)

var testLimits = RevisionLimits{
	MinReasonLength: 10,
	MaxReasonLength: 1000,
	MaxEvidence:     5,
	Threshold:       4000,
}

func cents(v valueobject.Cents) *valueobject.Cents { return &v }

func newTestQuote(t *testing.T) *Quote {
	t.Helper()
	q, err := NewQuote(uuid.New(), valueobject.PriceRange{Min: 8000, Max: 10000}, testNow)
	require.NoError(t, err)
	return q
}

func revision(final valueobject.Cents) Revision {
	return Revision{
		MinPrice:   8000,
		MaxPrice:   final,
		FinalPrice: cents(final),
		Reason:     "нужно заменить весь сифон",
		Evidence:   []Evidence{{URL: "https://cdn.example.com/siphon.jpg", Caption: "трещина"}},
	}
}

func TestQuote_SmallRevisionNeedsNoPhoneCall(t *testing.T) {
	q := newTestQuote(t)

	require.NoError(t, q.Revise(revision(14000), testLimits, testNow))
	assert.False(t, q.RequiresPhoneConfirmation)
	assert.Equal(t, 1, q.RevisionCount)

	bp, ok := q.RevisionBasisPoints()
	require.True(t, ok)
	assert.Equal(t, valueobject.BasisPoints(4000), bp)

	approved, err := q.Approve(testNow)
	require.NoError(t, err)
	assert.True(t, approved)

	_, err = q.ConfirmPhone(uuid.New(), testNow)
	assert.True(t, apperror.IsInvalidTransition(err))
}

func TestQuote_LargeRevisionBlocksApprovalUntilConfirmed(t *testing.T) {
	q := newTestQuote(t)

	require.NoError(t, q.Revise(revision(15000), testLimits, testNow))
	assert.True(t, q.RequiresPhoneConfirmation)
	assert.True(t, q.IsAwaitingPhoneConfirmation())

	_, err := q.Approve(testNow)
	assert.True(t, apperror.IsForbidden(err))
	assert.ErrorIs(t, err, apperror.ErrPhoneConfirmationPending)
	assert.False(t, q.ClientApproved)

	operator := uuid.New()
	changed, err := q.ConfirmPhone(operator, testNow)
	require.NoError(t, err)
	assert.True(t, changed)
	require.NotNil(t, q.ConfirmationOperatorID)
	assert.Equal(t, operator, *q.ConfirmationOperatorID)

	changed, err = q.ConfirmPhone(operator, testNow)
	require.NoError(t, err)
	assert.False(t, changed)

	approved, err := q.Approve(testNow)
	require.NoError(t, err)
	assert.True(t, approved)

	approved, err = q.Approve(testNow)
	require.NoError(t, err)
	assert.False(t, approved)
}

func TestQuote_ReviseResetsApproval(t *testing.T) {
	q := newTestQuote(t)
	require.NoError(t, q.Revise(revision(15000), testLimits, testNow))
	_, err := q.ConfirmPhone(uuid.New(), testNow)
	require.NoError(t, err)
	_, err = q.Approve(testNow)
	require.NoError(t, err)

	require.NoError(t, q.Revise(revision(16000), testLimits, testNow))
	assert.False(t, q.ClientApproved)
	assert.False(t, q.PhoneConfirmationCompleted)
	assert.Nil(t, q.ConfirmationOperatorID)
	assert.True(t, q.IsAwaitingPhoneConfirmation())
	assert.Equal(t, 2, q.RevisionCount)
	assert.Len(t, q.RevisionEvidence, 2)
	assert.Equal(t, valueobject.Cents(16000), q.PayableAmount())
}

func TestRevision_Validate(t *testing.T) {
	tests := []struct {
		name  string
		field string
		edit  func(rv *Revision)
	}{
		{"short reason", "reason", func(rv *Revision) { rv.Reason = "дороже" }},
		{"inverted range", "max_price", func(rv *Revision) { rv.MaxPrice = 100 }},
		{"non positive final", "final_price", func(rv *Revision) { rv.FinalPrice = cents(0) }},
		{"bad evidence link", "evidence", func(rv *Revision) { rv.Evidence = []Evidence{{URL: "/media/../etc/passwd"}} }},
		{"too much evidence", "evidence", func(rv *Revision) {
			rv.Evidence = make([]Evidence, 6)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rv := revision(15000)
			tt.edit(&rv)
			err := rv.Validate(testLimits)
			require.Error(t, err)

			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, apperror.ErrCodeValidation, appErr.Code)
			assert.Equal(t, tt.field, appErr.Details["field"])
		})
	}
}

func TestQuote_Reject(t *testing.T) {
	q := newTestQuote(t)

	assert.True(t, apperror.IsValidation(q.Reject("", testNow)))
	require.NoError(t, q.Reject("слишком дорого", testNow))
	assert.True(t, q.ClientRejected)

	_, err := q.Approve(testNow)
	assert.True(t, apperror.IsInvalidTransition(err))
	assert.True(t, apperror.IsInvalidTransition(q.Revise(revision(12000), testLimits, testNow)))
	assert.Equal(t, valueobject.Cents(10000), q.PayableAmount())
}

func TestPayment_Lifecycle(t *testing.T) {
	techID := uuid.New()
	p, err := NewPayment(uuid.New(), uuid.New(), &techID, 15005, 1000, valueobject.PaymentMethodCard, testNow)
	require.NoError(t, err)
	assert.Equal(t, valueobject.Cents(1500), p.PlatformFee)
	assert.Equal(t, valueobject.Cents(13505), p.TechnicianPayout)
	require.NoError(t, p.CheckSplit())

	_, err = p.MarkHeld(testNow)
	assert.True(t, apperror.IsInvalidTransition(err))

	p.SetHoldRef("hold-1", testNow)
	changed, err := p.MarkHeld(testNow)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = p.MarkHeld(testNow)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = p.MarkCaptured(testNow)
	require.NoError(t, err)
	_, err = p.MarkTransferred("tr-1", testNow)
	require.NoError(t, err)
	require.NotNil(t, p.InvoiceNumber)
	assert.Equal(t, InvoiceNumber(p.ID, testNow), *p.InvoiceNumber)
	assert.Regexp(t, `^INV-20260314-[0-9A-F]{8}$`, *p.InvoiceNumber)

	_, err = p.MarkRefunded("rf-1", testNow)
	assert.True(t, apperror.IsInvalidTransition(err))

	_, err = NewPayment(uuid.New(), uuid.New(), nil, 0, 1000, valueobject.PaymentMethodCard, testNow)
	assert.True(t, apperror.IsValidation(err))
}

func TestComputePenalty(t *testing.T) {
	split := ComputePenalty(10000, 1500, 500)
	assert.Equal(t, valueobject.Cents(1500), split.Total)
	assert.Equal(t, valueobject.Cents(500), split.ToPlatform)
	assert.Equal(t, valueobject.Cents(1000), split.ToTechnician)
	assert.Equal(t, valueobject.Cents(8500), split.Refund)

	odd := ComputePenalty(9999, 1500, 500)
	assert.Equal(t, odd.Total, odd.ToPlatform+odd.ToTechnician)
	assert.Equal(t, valueobject.Cents(9999), odd.Total+odd.Refund)

	capped := ComputePenalty(10000, 300, 500)
	assert.Equal(t, capped.Total, capped.ToPlatform)
	assert.Zero(t, capped.ToTechnician)
}

func TestDispatchRound(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	round := NewDispatchRound(uuid.New(), 1, 0, []uuid.UUID{a, b}, 5*time.Minute, testNow)

	assert.True(t, round.IsOpen())
	assert.True(t, round.Offered(b))
	assert.False(t, round.Offered(uuid.New()))
	assert.Equal(t, 2, round.Offers[1].Position)
	assert.False(t, round.IsExpired(testNow.Add(4*time.Minute)))
	assert.True(t, round.IsExpired(testNow.Add(5*time.Minute)))

	round.Close(RoundOutcomeEscalated, testNow)
	round.Close(RoundOutcomeAccepted, testNow)
	assert.Equal(t, RoundOutcomeEscalated, round.Outcome)
	assert.False(t, round.IsExpired(testNow.Add(time.Hour)))

	empty := NewDispatchRound(uuid.New(), 2, 1, nil, 5*time.Minute, testNow)
	assert.True(t, empty.IsExpired(testNow))
}

func TestTechnician_Eligibility(t *testing.T) {
	tech, err := NewTechnician(uuid.New(), "T-1", "Марио", []string{"plumbing", "Plumbing", "hvac"}, 3000, testNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"plumbing", "hvac"}, tech.Specializations)
	assert.False(t, tech.IsEligible())

	assert.True(t, tech.Verify(uuid.New(), testNow))
	assert.False(t, tech.Verify(uuid.New(), testNow))

	on := true
	tech.UpdateAvailability(AvailabilityUpdate{IsAvailableNow: &on}, testNow)
	assert.True(t, tech.IsEligible())
	assert.True(t, tech.HasSpecialization(valueobject.CategoryHVAC))
	assert.False(t, tech.HasSpecialization(valueobject.CategoryLocksmith))

	assert.True(t, apperror.IsValidation(tech.UpdateLocation(0, 200, testNow)))

	_, err = NewTechnician(uuid.New(), "T-2", "Луиджи", nil, 3000, testNow)
	assert.True(t, apperror.IsValidation(err))
}
