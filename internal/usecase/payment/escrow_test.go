package payment_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/repository"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/valueobject"
	"github.com/ignatzorin/prontocasa-backend/internal/infrastructure/memory"
	"github.com/ignatzorin/prontocasa-backend/internal/pkg/apperror"
	"github.com/ignatzorin/prontocasa-backend/internal/testutil"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/payment"
)

type fixture struct {
	store     *memory.Store
	processor *testutil.Processor
	escrow    *payment.Escrow
	clientID  uuid.UUID
	techID    uuid.UUID
	request   *entity.Request
}

// newFixture сохраняет принятую мастером заявку. approved задаёт, одобрена ли смета.
func newFixture(t *testing.T, approved bool) *fixture {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	store := memory.NewStore()
	processor := testutil.NewProcessor()
	f := &fixture{
		store:     store,
		processor: processor,
		escrow:    payment.NewEscrow(store, processor, testutil.Rules()),
		clientID:  uuid.New(),
		techID:    uuid.New(),
	}

	params := testutil.RequestParams(f.clientID, "plumbing")
	params.ReferenceCode = "REQ-" + uuid.NewString()[:8]
	req, err := entity.NewRequest(params, now)
	require.NoError(t, err)
	require.NoError(t, req.ApplyAssessment(valueobject.Assessment{
		Severity:   valueobject.SeverityLow,
		Confidence: 60,
		PriceRange: valueobject.PriceRange{Min: 8000, Max: 25000},
	}, now))
	require.NoError(t, req.StartDispatch(now))
	require.NoError(t, req.Accept(f.techID, 30, now))
	require.NoError(t, store.Requests().Create(ctx, req))

	q, err := entity.NewQuote(req.ID, valueobject.PriceRange{Min: 8000, Max: 25000}, now)
	require.NoError(t, err)
	if approved {
		_, err = q.Approve(now)
		require.NoError(t, err)
	}
	require.NoError(t, store.Quotes().Create(ctx, q))
	f.request = req
	return f
}

func (f *fixture) create(t *testing.T) *entity.Payment {
	t.Helper()
	p, err := f.escrow.Create(context.Background(), payment.CreateInput{ClientID: f.clientID, RequestID: f.request.ID})
	require.NoError(t, err)
	return p
}

func (f *fixture) auditCount(t *testing.T, id uuid.UUID, action entity.AuditAction) int {
	t.Helper()
	entries, _, err := f.store.Audit().List(context.Background(), repository.AuditFilter{EntityID: &id})
	require.NoError(t, err)
	n := 0
	for _, e := range entries {
		if e.Action == action {
			n++
		}
	}
	return n
}

func TestEscrow_CreateRequestsHold(t *testing.T) {
	f := newFixture(t, true)

	p := f.create(t)
	assert.Equal(t, valueobject.PaymentStatusPending, p.Status)
	assert.Equal(t, valueobject.PaymentMethodCard, p.Method)
	assert.Equal(t, valueobject.Cents(25000), p.Amount)
	assert.Equal(t, valueobject.Cents(2500), p.PlatformFee)
	assert.Equal(t, valueobject.Cents(22500), p.TechnicianPayout)
	require.NotNil(t, p.HoldRef)
	require.NotNil(t, p.TechnicianID)
	assert.Equal(t, f.techID, *p.TechnicianID)

	again := f.create(t)
	assert.Equal(t, p.ID, again.ID)
	assert.Equal(t, 1, f.processor.CallCount("hold"))
	assert.Equal(t, 1, f.auditCount(t, p.ID, entity.AuditPaymentInitiated))
	assert.Equal(t, 1, f.auditCount(t, p.ID, entity.AuditPaymentHoldRequested))
}

func TestEscrow_CreateGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("quote not approved", func(t *testing.T) {
		f := newFixture(t, false)
		_, err := f.escrow.Create(ctx, payment.CreateInput{ClientID: f.clientID, RequestID: f.request.ID})
		assert.True(t, apperror.IsInvalidTransition(err))
		assert.Zero(t, f.processor.CallCount("hold"))
	})

	t.Run("foreign client", func(t *testing.T) {
		f := newFixture(t, true)
		_, err := f.escrow.Create(ctx, payment.CreateInput{ClientID: uuid.New(), RequestID: f.request.ID})
		assert.True(t, apperror.IsForbidden(err))
	})

	t.Run("unknown method", func(t *testing.T) {
		f := newFixture(t, true)
		_, err := f.escrow.Create(ctx, payment.CreateInput{ClientID: f.clientID, RequestID: f.request.ID, Method: "cash"})
		assert.True(t, apperror.IsValidation(err))
	})

	t.Run("missing request", func(t *testing.T) {
		f := newFixture(t, true)
		_, err := f.escrow.Create(ctx, payment.CreateInput{ClientID: f.clientID, RequestID: uuid.New()})
		assert.ErrorIs(t, err, apperror.ErrRequestNotFound)
	})
}

func TestEscrow_ConfirmIsIdempotent(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	p := f.create(t)

	_, err := f.escrow.Confirm(ctx, uuid.New(), p.ID)
	assert.True(t, apperror.IsForbidden(err))

	held, err := f.escrow.Confirm(ctx, f.clientID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.PaymentStatusHeld, held.Status)
	require.NotNil(t, held.HeldAt)
	heldAt := *held.HeldAt

	again, err := f.escrow.Confirm(ctx, f.clientID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.PaymentStatusHeld, again.Status)
	assert.Equal(t, heldAt, *again.HeldAt)

	_, err = f.escrow.Confirm(ctx, uuid.Nil, p.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, f.auditCount(t, p.ID, entity.AuditPaymentHeld))

	_, err = f.escrow.Confirm(ctx, f.clientID, uuid.New())
	assert.ErrorIs(t, err, apperror.ErrPaymentNotFound)
}

func TestEscrow_HoldRetriesThenFails(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.processor.FailNext("hold", 10)

	_, err := f.escrow.Create(ctx, payment.CreateInput{ClientID: f.clientID, RequestID: f.request.ID})
	require.Error(t, err)
	assert.True(t, apperror.IsExternal(err))
	assert.Equal(t, testutil.Rules().ProcessorMaxAttempts, f.processor.CallCount("hold"))

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, string(valueobject.PaymentStatusFailed), appErr.Details["payment_status"])

	stored, err := f.escrow.FindByRequest(ctx, f.request.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, valueobject.PaymentStatusFailed, stored.Status)
	require.NotNil(t, stored.FailureReason)
	assert.Equal(t, 1, f.auditCount(t, stored.ID, entity.AuditPaymentFailed))

	_, err = f.escrow.Create(ctx, payment.CreateInput{ClientID: f.clientID, RequestID: f.request.ID})
	assert.True(t, apperror.IsConflict(err))
}

func TestEscrow_HoldRecoversAfterTransientFailure(t *testing.T) {
	f := newFixture(t, true)
	f.processor.FailNext("hold", 1)

	p := f.create(t)
	assert.Equal(t, valueobject.PaymentStatusPending, p.Status)
	require.NotNil(t, p.HoldRef)
	assert.Equal(t, 2, f.processor.CallCount("hold"))
}

func TestEscrow_Release(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	p := f.create(t)

	_, err := f.escrow.Release(ctx, f.request.ID, f.clientID, f.techID, nil)
	assert.True(t, apperror.IsInvalidTransition(err))

	_, err = f.escrow.Confirm(ctx, f.clientID, p.ID)
	require.NoError(t, err)

	finalized := 0
	released, err := f.escrow.Release(ctx, f.request.ID, f.clientID, f.techID,
		func(tx repository.Repositories, p *entity.Payment, now time.Time) error {
			finalized++
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, valueobject.PaymentStatusTransferred, released.Status)
	require.NotNil(t, released.InvoiceNumber)
	assert.NotEmpty(t, *released.InvoiceNumber)
	require.NotNil(t, released.CapturedAt)
	assert.Equal(t, 1, finalized)
	assert.Equal(t, valueobject.Cents(22500), f.processor.Payouts[*released.HoldRef])

	again, err := f.escrow.Release(ctx, f.request.ID, f.clientID, f.techID, nil)
	require.NoError(t, err)
	assert.Equal(t, released.ID, again.ID)
	assert.Equal(t, 1, f.processor.CallCount("capture"))
	assert.Equal(t, 1, f.processor.CallCount("transfer"))

	missing := newFixture(t, true)
	_, err = missing.escrow.Release(ctx, missing.request.ID, missing.clientID, missing.techID, nil)
	assert.True(t, apperror.IsInvalidTransition(err))
}

func TestEscrow_ReleaseCaptureFailure(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	p := f.create(t)
	_, err := f.escrow.Confirm(ctx, f.clientID, p.ID)
	require.NoError(t, err)

	f.processor.FailNext("capture", 10)
	_, err = f.escrow.Release(ctx, f.request.ID, f.clientID, f.techID, nil)
	assert.True(t, apperror.IsExternal(err))

	stored, err := f.escrow.FindByRequest(ctx, f.request.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.PaymentStatusFailed, stored.Status)
	assert.Nil(t, stored.PendingOperation)
	assert.Zero(t, f.processor.CallCount("transfer"))
}

type releaseResult struct {
	p   *entity.Payment
	err error
}

func TestEscrow_ConcurrentReleasePaysOnce(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	p := f.create(t)
	_, err := f.escrow.Confirm(ctx, f.clientID, p.ID)
	require.NoError(t, err)

	captureEntered, resumeCapture := f.processor.Pause("capture")
	transferEntered, resumeTransfer := f.processor.Pause("transfer")

	done := make(chan releaseResult, 1)
	go func() {
		released, err := f.escrow.Release(ctx, f.request.ID, f.clientID, f.techID, nil)
		done <- releaseResult{p: released, err: err}
	}()

	<-captureEntered
	_, err = f.escrow.Release(ctx, f.request.ID, f.clientID, f.techID, nil)
	assert.True(t, apperror.IsConflict(err))

	resumeCapture()
	<-transferEntered
	_, err = f.escrow.Release(ctx, f.request.ID, f.clientID, f.techID, nil)
	assert.True(t, apperror.IsConflict(err))

	resumeTransfer()
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, valueobject.PaymentStatusTransferred, res.p.Status)
	assert.Nil(t, res.p.PendingOperation)

	again, err := f.escrow.Release(ctx, f.request.ID, f.clientID, f.techID, nil)
	require.NoError(t, err)
	assert.Equal(t, valueobject.PaymentStatusTransferred, again.Status)

	assert.Equal(t, 1, f.processor.CallCount("capture"))
	assert.Equal(t, 1, f.processor.CallCount("transfer"))
	assert.Equal(t, 1, f.auditCount(t, p.ID, entity.AuditPaymentTransferred))
}

func TestEscrow_ConcurrentCancellationRefundsOnce(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	p := f.create(t)
	_, err := f.escrow.Confirm(ctx, f.clientID, p.ID)
	require.NoError(t, err)

	entered, resume := f.processor.Pause("refund")
	done := make(chan releaseResult, 1)
	go func() {
		settled, err := f.escrow.SettleCancellation(ctx, f.request.ID, f.clientID, true)
		done <- releaseResult{p: settled, err: err}
	}()

	<-entered
	_, err = f.escrow.SettleCancellation(ctx, f.request.ID, f.clientID, true)
	assert.True(t, apperror.IsConflict(err))
	_, err = f.escrow.Release(ctx, f.request.ID, f.clientID, f.techID, nil)
	assert.True(t, apperror.IsConflict(err))

	resume()
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, valueobject.PaymentStatusPartialRefund, res.p.Status)

	again, err := f.escrow.SettleCancellation(ctx, f.request.ID, f.clientID, true)
	require.NoError(t, err)
	assert.Equal(t, valueobject.PaymentStatusPartialRefund, again.Status)
	assert.Equal(t, 1, f.processor.CallCount("refund"))
	assert.Zero(t, f.processor.CallCount("capture"))
}

func TestEscrow_SettleCancellation(t *testing.T) {
	ctx := context.Background()

	t.Run("engaged keeps penalty", func(t *testing.T) {
		f := newFixture(t, true)
		p := f.create(t)
		_, err := f.escrow.Confirm(ctx, f.clientID, p.ID)
		require.NoError(t, err)

		settled, err := f.escrow.SettleCancellation(ctx, f.request.ID, f.clientID, true)
		require.NoError(t, err)
		assert.Equal(t, valueobject.PaymentStatusPartialRefund, settled.Status)
		assert.Equal(t, valueobject.Cents(5000), settled.PenaltyAmount)
		assert.Equal(t, valueobject.Cents(1250), settled.PenaltyToPlatform)
		assert.Equal(t, valueobject.Cents(3750), settled.PenaltyToTechnician)
		assert.Equal(t, valueobject.Cents(20000), settled.RefundedAmount)
		assert.Equal(t, valueobject.Cents(20000), f.processor.Refunds[*settled.HoldRef])

		again, err := f.escrow.SettleCancellation(ctx, f.request.ID, f.clientID, true)
		require.NoError(t, err)
		assert.Equal(t, valueobject.PaymentStatusPartialRefund, again.Status)
		assert.Equal(t, 1, f.processor.CallCount("refund"))
	})

	t.Run("not engaged refunds everything", func(t *testing.T) {
		f := newFixture(t, true)
		f.create(t)

		settled, err := f.escrow.SettleCancellation(ctx, f.request.ID, f.clientID, false)
		require.NoError(t, err)
		assert.Equal(t, valueobject.PaymentStatusRefunded, settled.Status)
		assert.Equal(t, settled.Amount, settled.RefundedAmount)
		assert.Zero(t, settled.PenaltyAmount)
	})

	t.Run("no payment", func(t *testing.T) {
		f := newFixture(t, true)
		settled, err := f.escrow.SettleCancellation(ctx, f.request.ID, f.clientID, true)
		require.NoError(t, err)
		assert.Nil(t, settled)
	})
}

func TestEscrow_Get(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	p := f.create(t)

	got, err := f.escrow.Get(ctx, f.clientID, p.ID, false)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = f.escrow.Get(ctx, uuid.New(), p.ID, false)
	assert.ErrorIs(t, err, apperror.ErrPaymentNotFound)

	_, err = f.escrow.Get(ctx, uuid.New(), p.ID, true)
	assert.NoError(t, err)
}
