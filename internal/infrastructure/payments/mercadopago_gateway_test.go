package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/refund"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/prontocasa-backend/internal/logger"
)

type fakePayments struct {
	byID      map[int]*payment.Response
	created   []payment.Request
	captured  []int
	partial   map[int]float64
	cancelled []int
	createErr error
}

func newFakePayments() *fakePayments {
	return &fakePayments{byID: map[int]*payment.Response{}, partial: map[int]float64{}}
}

func (f *fakePayments) Create(_ context.Context, req payment.Request) (*payment.Response, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, req)
	resp := &payment.Response{ID: 1000 + len(f.created), Status: providerAuthorized, TransactionAmount: req.TransactionAmount}
	f.byID[resp.ID] = resp
	return resp, nil
}

func (f *fakePayments) Get(_ context.Context, id int) (*payment.Response, error) {
	resp, ok := f.byID[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return resp, nil
}

func (f *fakePayments) Capture(_ context.Context, id int) (*payment.Response, error) {
	f.captured = append(f.captured, id)
	f.byID[id].Status = providerApproved
	return f.byID[id], nil
}

func (f *fakePayments) CaptureAmount(_ context.Context, id int, amount float64) (*payment.Response, error) {
	f.partial[id] = amount
	f.byID[id].Status = providerApproved
	return f.byID[id], nil
}

func (f *fakePayments) Cancel(_ context.Context, id int) (*payment.Response, error) {
	f.cancelled = append(f.cancelled, id)
	f.byID[id].Status = providerCancelled
	return f.byID[id], nil
}

type fakeRefunds struct {
	full    []int
	partial map[int]float64
}

func (f *fakeRefunds) Create(_ context.Context, paymentID int) (*refund.Response, error) {
	f.full = append(f.full, paymentID)
	return &refund.Response{ID: 5000 + paymentID}, nil
}

func (f *fakeRefunds) CreatePartialRefund(_ context.Context, paymentID int, amount float64) (*refund.Response, error) {
	f.partial[paymentID] = amount
	return &refund.Response{ID: 6000 + paymentID}, nil
}

func newTestGateway() (*MercadoPagoGateway, *fakePayments, *fakeRefunds) {
	logger.Discard()
	p := newFakePayments()
	r := &fakeRefunds{partial: map[int]float64{}}
	return &MercadoPagoGateway{payments: p, refunds: r}, p, r
}

func TestGateway_HoldCaptureTransfer(t *testing.T) {
	g, p, _ := newTestGateway()
	ctx := context.Background()

	ref, err := g.Hold(ctx, uuid.New(), 15050)
	require.NoError(t, err)
	assert.Equal(t, "1001", ref)
	require.Len(t, p.created, 1)
	assert.False(t, p.created[0].Capture)
	assert.InDelta(t, 150.50, p.created[0].TransactionAmount, 0.0001)

	_, err = g.Transfer(ctx, ref, 13545)
	assert.ErrorIs(t, err, ErrUnexpectedProviderStatus)

	_, err = g.Capture(ctx, ref)
	require.NoError(t, err)
	_, err = g.Capture(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []int{1001}, p.captured)

	payoutRef, err := g.Transfer(ctx, ref, 13545)
	require.NoError(t, err)
	assert.Equal(t, "1001-payout-13545", payoutRef)
}

func TestGateway_RefundAuthorized(t *testing.T) {
	g, p, _ := newTestGateway()
	ctx := context.Background()

	full, _ := g.Hold(ctx, uuid.New(), 10000)
	_, err := g.Refund(ctx, full, 10000)
	require.NoError(t, err)
	assert.Equal(t, []int{1001}, p.cancelled)

	partial, _ := g.Hold(ctx, uuid.New(), 10000)
	_, err = g.Refund(ctx, partial, 8000)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, p.partial[1002], 0.0001)
}

func TestGateway_RefundCaptured(t *testing.T) {
	g, _, r := newTestGateway()
	ctx := context.Background()

	ref, _ := g.Hold(ctx, uuid.New(), 10000)
	_, _ = g.Capture(ctx, ref)

	_, err := g.Refund(ctx, ref, 8000)
	require.NoError(t, err)
	assert.InDelta(t, 80.0, r.partial[1001], 0.0001)

	ref2, _ := g.Hold(ctx, uuid.New(), 10000)
	_, _ = g.Capture(ctx, ref2)
	_, err = g.Refund(ctx, ref2, 10000)
	require.NoError(t, err)
	assert.Equal(t, []int{1002}, r.full)
}

func TestGateway_Errors(t *testing.T) {
	g, p, _ := newTestGateway()
	ctx := context.Background()

	_, err := g.Capture(ctx, "not-a-number")
	assert.ErrorIs(t, err, ErrInvalidHoldRef)

	p.createErr = errors.New("timeout")
	_, err = g.Hold(ctx, uuid.New(), 100)
	assert.EqualError(t, err, "timeout")

	_, err = NewMercadoPagoGateway("", false)
	assert.ErrorIs(t, err, ErrMissingMercadoPagoAccessToken)
}

func TestGateway_MockMode(t *testing.T) {
	logger.Discard()
	g, err := NewMercadoPagoGateway("", true)
	require.NoError(t, err)

	hold, err := g.Hold(context.Background(), uuid.New(), 100)
	require.NoError(t, err)
	capture, err := g.Capture(context.Background(), hold)
	require.NoError(t, err)
	assert.NotEqual(t, hold, capture)
}
