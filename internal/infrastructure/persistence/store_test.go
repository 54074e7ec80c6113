package persistence_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/prontocasa-backend/internal/db"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/valueobject"
	"github.com/ignatzorin/prontocasa-backend/internal/infrastructure/persistence"
	"github.com/ignatzorin/prontocasa-backend/internal/testutil"
)

const racers = 8

// newStore подключается к DATABASE_URL и применяет миграции. Без базы тест пропускается.
func newStore(t *testing.T) *persistence.Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL не задан")
	}
	ctx := context.Background()
	conn, err := db.NewPostgres(ctx, dsn, db.DefaultPool())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_, err = db.RunMigrations(ctx, conn, "../../../migrations")
	require.NoError(t, err)
	return persistence.NewStore(conn)
}

func dispatchingRequest(t *testing.T, store *persistence.Store) *entity.Request {
	t.Helper()
	now := time.Now().UTC()
	params := testutil.RequestParams(uuid.New(), "plumbing")
	params.ReferenceCode = "REQ-" + uuid.NewString()[:8]
	req, err := entity.NewRequest(params, now)
	require.NoError(t, err)
	require.NoError(t, req.ApplyAssessment(valueobject.Assessment{
		Severity:   valueobject.SeverityMedium,
		Confidence: 70,
		PriceRange: valueobject.PriceRange{Min: 8000, Max: 25000},
	}, now))
	require.NoError(t, req.StartDispatch(now))
	require.NoError(t, store.Requests().Create(context.Background(), req))
	return req
}

func TestRequestRepository_AssignTechnicianOnce(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	req := dispatchingRequest(t, store)

	techs := make([]*entity.Technician, racers)
	for i := range techs {
		techs[i] = testutil.SeedTechnician(t, store, "plumbing")
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  []uuid.UUID
		failures []error
	)
	start := make(chan struct{})
	for _, tech := range techs {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			<-start
			now := time.Now().UTC()
			ok, err := store.Requests().AssignTechnician(ctx, req.ID, id, now, now.Add(30*time.Minute))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			if ok {
				winners = append(winners, id)
			}
		}(tech.ID)
	}
	close(start)
	wg.Wait()

	require.Empty(t, failures)
	require.Len(t, winners, 1)

	stored, err := store.Requests().FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.RequestStatusAccepted, stored.Status)
	require.NotNil(t, stored.TechnicianID)
	assert.Equal(t, winners[0], *stored.TechnicianID)
}

func TestPaymentRepository_ClaimOperationOnce(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	req := dispatchingRequest(t, store)

	p, err := entity.NewPayment(req.ID, req.ClientID, nil, 25000, 2000, valueobject.PaymentMethodCard, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, store.Payments().Create(ctx, p))
	_, err = p.MarkHeld(time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, store.Payments().Update(ctx, p))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed int
	)
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := store.Payments().ClaimOperation(ctx, p.ID, valueobject.PaymentStatusHeld, "capture", time.Now().UTC())
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				claimed++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, claimed)
	stored, err := store.Payments().FindByID(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PendingOperation)
	assert.Equal(t, "capture", *stored.PendingOperation)
}

func TestRequestRepository_FindStale(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	params := testutil.RequestParams(uuid.New(), "electrical")
	params.ReferenceCode = "REQ-" + uuid.NewString()[:8]
	req, err := entity.NewRequest(params, now)
	require.NoError(t, err)
	require.NoError(t, req.ApplyAssessment(valueobject.Assessment{
		Severity:   valueobject.SeverityLow,
		Confidence: 60,
		PriceRange: valueobject.PriceRange{Min: 5000, Max: 9000},
	}, now))
	require.NoError(t, store.Requests().Create(ctx, req))

	fresh, err := store.Requests().FindStale(ctx, valueobject.RequestStatusAnalyzed, now.Add(-time.Minute), 1000)
	require.NoError(t, err)
	for _, r := range fresh {
		assert.NotEqual(t, req.ID, r.ID)
	}

	stale, err := store.Requests().FindStale(ctx, valueobject.RequestStatusAnalyzed, now.Add(time.Minute), 1000)
	require.NoError(t, err)
	var ids []uuid.UUID
	for _, r := range stale {
		assert.Equal(t, valueobject.RequestStatusAnalyzed, r.Status)
		ids = append(ids, r.ID)
	}
	assert.Contains(t, ids, req.ID)
}
