package dispatch_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/prontocasa-backend/internal/config"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/repository"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/valueobject"
	"github.com/ignatzorin/prontocasa-backend/internal/infrastructure/memory"
	"github.com/ignatzorin/prontocasa-backend/internal/pkg/apperror"
	"github.com/ignatzorin/prontocasa-backend/internal/testutil"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/dispatch"
)

type fixture struct {
	store      *memory.Store
	notifier   *testutil.Notifier
	dispatcher *dispatch.Dispatcher
}

func newFixture(t *testing.T, mutate func(m *config.Marketplace)) *fixture {
	t.Helper()
	rules := testutil.Rules()
	if mutate != nil {
		mutate(&rules)
	}
	store := memory.NewStore()
	notifier := testutil.NewNotifier()
	return &fixture{store: store, notifier: notifier, dispatcher: dispatch.NewDispatcher(store, notifier, rules)}
}

// analyzedRequest сохраняет заявку в статусе ANALYZED.
func (f *fixture) analyzedRequest(t *testing.T, category string) *entity.Request {
	t.Helper()
	now := time.Now().UTC()
	params := testutil.RequestParams(uuid.New(), category)
	params.ReferenceCode = "REQ-" + uuid.NewString()[:8]
	req, err := entity.NewRequest(params, now)
	require.NoError(t, err)
	require.NoError(t, req.ApplyAssessment(valueobject.Assessment{
		Severity:   valueobject.SeverityMedium,
		Confidence: 70,
		PriceRange: valueobject.PriceRange{Min: 8000, Max: 25000},
	}, now))
	require.NoError(t, f.store.Requests().Create(context.Background(), req))
	return req
}

func offeredIDs(round *entity.DispatchRound) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(round.Offers))
	for _, o := range round.Offers {
		ids = append(ids, o.TechnicianID)
	}
	return ids
}

func TestMatcher_Select(t *testing.T) {
	mk := func(code string, rating float64, jobs int, spec string, eligible bool) *entity.Technician {
		return &entity.Technician{
			ID:              uuid.New(),
			Code:            code,
			Specializations: []string{spec},
			Rating:          rating,
			CompletedJobs:   jobs,
			IsActive:        true,
			IsAvailableNow:  eligible,
			IsAcceptingJobs: true,
			IsVerified:      true,
		}
	}
	best := mk("T-1", 4.9, 10, "plumbing", true)
	second := mk("T-2", 4.2, 30, "plumbing", true)
	tied := mk("T-3", 4.2, 5, "plumbing", true)
	offline := mk("T-4", 5.0, 99, "plumbing", false)
	other := mk("T-5", 5.0, 99, "electrical", true)

	pool := []*entity.Technician{other, tied, offline, second, best}

	got := dispatch.NewMatcher(3).Select(pool, valueobject.CategoryPlumbing)
	assert.Equal(t, []*entity.Technician{best, second, tied}, got)

	got = dispatch.NewMatcher(5).Select(pool, valueobject.CategoryPlumbing)
	assert.Equal(t, []*entity.Technician{best, second, tied, other}, got)

	assert.Len(t, dispatch.NewMatcher(0).Select(pool, valueobject.CategoryPlumbing), 1)
	assert.Empty(t, dispatch.NewMatcher(3).Select(nil, valueobject.CategoryPlumbing))
}

func TestDispatcher_StartOffersTopRated(t *testing.T) {
	f := newFixture(t, func(m *config.Marketplace) { m.TechniciansPerRound = 2 })
	ctx := context.Background()

	low := testutil.SeedTechnician(t, f.store, "plumbing", testutil.WithRating(3.9, 1))
	top := testutil.SeedTechnician(t, f.store, "plumbing", testutil.WithRating(4.9, 40))
	mid := testutil.SeedTechnician(t, f.store, "plumbing", testutil.WithRating(4.4, 12))
	testutil.SeedTechnician(t, f.store, "plumbing", testutil.WithRating(5.0, 100), testutil.Unverified())
	req := f.analyzedRequest(t, "plumbing")

	round, err := f.dispatcher.Start(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, round.Number)
	assert.Equal(t, []uuid.UUID{top.ID, mid.ID}, offeredIDs(round))
	assert.NotContains(t, offeredIDs(round), low.ID)

	stored, err := f.store.Requests().FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.RequestStatusDispatching, stored.Status)

	sent := f.notifier.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, top.ID, sent[0].TechnicianID)

	latest, err := f.store.Dispatch().LatestRound(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Delivered)

	_, err = f.dispatcher.Start(ctx, req.ID)
	assert.True(t, apperror.IsInvalidTransition(err))
}

func TestDispatcher_SpecialistsBeforeHigherRatedOthers(t *testing.T) {
	f := newFixture(t, func(m *config.Marketplace) { m.TechniciansPerRound = 2 })
	ctx := context.Background()

	star := testutil.SeedTechnician(t, f.store, "electrical", testutil.WithRating(5.0, 200))
	runnerUp := testutil.SeedTechnician(t, f.store, "electrical", testutil.WithRating(4.9, 150))
	plumber := testutil.SeedTechnician(t, f.store, "plumbing", testutil.WithRating(4.0, 3))
	req := f.analyzedRequest(t, "plumbing")

	round, err := f.dispatcher.Start(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{plumber.ID, star.ID}, offeredIDs(round))
	assert.NotContains(t, offeredIDs(round), runnerUp.ID)
}

func TestDispatcher_ConcurrentAcceptSingleWinner(t *testing.T) {
	const n = 8
	f := newFixture(t, func(m *config.Marketplace) { m.TechniciansPerRound = n })
	ctx := context.Background()

	techs := make([]*entity.Technician, 0, n)
	for i := 0; i < n; i++ {
		techs = append(techs, testutil.SeedTechnician(t, f.store, "plumbing"))
	}
	req := f.analyzedRequest(t, "plumbing")
	round, err := f.dispatcher.Start(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, round.Offers, n)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   []uuid.UUID
		conflicts int
		others    []error
	)
	start := make(chan struct{})
	for _, tech := range techs {
		wg.Add(1)
		go func(techID uuid.UUID) {
			defer wg.Done()
			<-start
			_, err := f.dispatcher.Accept(ctx, dispatch.AcceptInput{TechnicianID: techID, RequestID: req.ID, ETAMinutes: 30})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, techID)
			case apperror.IsConflict(err):
				conflicts++
			default:
				others = append(others, err)
			}
		}(tech.ID)
	}
	close(start)
	wg.Wait()

	require.Empty(t, others)
	require.Len(t, winners, 1)
	assert.Equal(t, n-1, conflicts)

	stored, err := f.store.Requests().FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.RequestStatusAccepted, stored.Status)
	require.NotNil(t, stored.TechnicianID)
	assert.Equal(t, winners[0], *stored.TechnicianID)
	require.NotNil(t, stored.AcceptedAt)
	require.NotNil(t, stored.EstimatedArrival)
	assert.Equal(t, stored.AcceptedAt.Add(30*time.Minute), *stored.EstimatedArrival)

	latest, err := f.store.Dispatch().LatestRound(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.RoundOutcomeAccepted, latest.Outcome)

	accepted := entity.AuditRequestAccepted
	entries, _, err := f.store.Audit().List(ctx, repository.AuditFilter{EntityID: &req.ID})
	require.NoError(t, err)
	count := 0
	for _, e := range entries {
		if e.Action == accepted {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestDispatcher_AcceptGuards(t *testing.T) {
	f := newFixture(t, func(m *config.Marketplace) { m.TechniciansPerRound = 1 })
	ctx := context.Background()

	offered := testutil.SeedTechnician(t, f.store, "plumbing", testutil.WithRating(4.9, 10))
	notOffered := testutil.SeedTechnician(t, f.store, "plumbing", testutil.WithRating(3.0, 1))
	unverified := testutil.SeedTechnician(t, f.store, "plumbing", testutil.Unverified())
	req := f.analyzedRequest(t, "plumbing")
	_, err := f.dispatcher.Start(ctx, req.ID)
	require.NoError(t, err)

	_, err = f.dispatcher.Accept(ctx, dispatch.AcceptInput{TechnicianID: offered.ID, RequestID: req.ID, ETAMinutes: 200})
	assert.True(t, apperror.IsValidation(err))

	_, err = f.dispatcher.Accept(ctx, dispatch.AcceptInput{TechnicianID: notOffered.ID, RequestID: req.ID, ETAMinutes: 30})
	assert.True(t, apperror.IsForbidden(err))

	_, err = f.dispatcher.Accept(ctx, dispatch.AcceptInput{TechnicianID: unverified.ID, RequestID: req.ID, ETAMinutes: 30})
	assert.True(t, apperror.IsForbidden(err))

	_, err = f.dispatcher.Accept(ctx, dispatch.AcceptInput{TechnicianID: notOffered.ID, RequestID: uuid.New(), ETAMinutes: 30})
	assert.True(t, apperror.IsNotFound(err))

	_, err = f.dispatcher.Accept(ctx, dispatch.AcceptInput{TechnicianID: uuid.New(), RequestID: req.ID, ETAMinutes: 30})
	assert.ErrorIs(t, err, apperror.ErrTechnicianNotFound)

	got, err := f.dispatcher.Accept(ctx, dispatch.AcceptInput{TechnicianID: offered.ID, RequestID: req.ID, ETAMinutes: 45})
	require.NoError(t, err)
	assert.True(t, got.IsAssignedTo(offered.ID))

	pending, err := f.dispatcher.Pending(ctx, offered.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDispatcher_SweepEscalatesThenExhausts(t *testing.T) {
	f := newFixture(t, func(m *config.Marketplace) {
		m.TechniciansPerRound = 1
		m.MaxDispatchRounds = 3
		m.DispatchWindow = time.Minute
	})
	ctx := context.Background()

	first := testutil.SeedTechnician(t, f.store, "hvac", testutil.WithRating(4.8, 10))
	second := testutil.SeedTechnician(t, f.store, "hvac", testutil.WithRating(4.1, 10))
	req := f.analyzedRequest(t, "hvac")

	round, err := f.dispatcher.Start(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{first.ID}, offeredIDs(round))

	handled, err := f.dispatcher.Sweep(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, handled)

	later := time.Now().UTC().Add(2 * time.Minute)
	handled, err = f.dispatcher.Sweep(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, 1, handled)

	rounds, err := f.dispatcher.Rounds(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.Equal(t, entity.RoundOutcomeEscalated, rounds[0].Outcome)
	assert.Equal(t, []uuid.UUID{second.ID}, offeredIDs(rounds[1]))
	assert.Equal(t, 0, rounds[1].Level)

	later = later.Add(2 * time.Minute)
	_, err = f.dispatcher.Sweep(ctx, later)
	require.NoError(t, err)
	rounds, err = f.dispatcher.Rounds(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, rounds, 3)
	assert.Equal(t, 1, rounds[2].Level)
	assert.Equal(t, []uuid.UUID{first.ID}, offeredIDs(rounds[2]))

	sent := f.notifier.Sent()
	require.Len(t, sent, 3)
	assert.Equal(t, 1, sent[2].Level)

	later = later.Add(2 * time.Minute)
	_, err = f.dispatcher.Sweep(ctx, later)
	require.NoError(t, err)
	rounds, err = f.dispatcher.Rounds(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, rounds, 3)
	assert.Equal(t, entity.RoundOutcomeExhausted, rounds[2].Outcome)

	stored, err := f.store.Requests().FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.RequestStatusDispatching, stored.Status)

	handled, err = f.dispatcher.Sweep(ctx, later.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, handled)
}

func TestDispatcher_UndeliveredRoundExpiresImmediately(t *testing.T) {
	f := newFixture(t, func(m *config.Marketplace) { m.DispatchWindow = time.Hour })
	ctx := context.Background()

	tech := testutil.SeedTechnician(t, f.store, "locksmith")
	f.notifier.Offline[tech.ID] = true
	req := f.analyzedRequest(t, "locksmith")

	_, err := f.dispatcher.Start(ctx, req.ID)
	require.NoError(t, err)

	latest, err := f.store.Dispatch().LatestRound(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, latest.Delivered)
	assert.Equal(t, 1, latest.Failed)
	assert.True(t, latest.IsExpired(time.Now().UTC()))

	expired, err := f.store.Dispatch().ExpiredRounds(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	assert.Len(t, expired, 1)
}

func TestDispatcher_NoCandidates(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	req := f.analyzedRequest(t, "carpentry")

	round, err := f.dispatcher.Start(ctx, req.ID)
	require.NoError(t, err)
	assert.Empty(t, round.Offers)
	assert.True(t, round.IsExpired(time.Now().UTC()))
	assert.Empty(t, f.notifier.Sent())
}

func TestDispatcher_SweepStartsStrandedAnalyzedRequests(t *testing.T) {
	f := newFixture(t, func(m *config.Marketplace) { m.DispatchSweepInterval = time.Minute })
	ctx := context.Background()

	tech := testutil.SeedTechnician(t, f.store, "plumbing")
	req := f.analyzedRequest(t, "plumbing")

	handled, err := f.dispatcher.Sweep(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, handled)

	later := time.Now().UTC().Add(2 * time.Minute)
	handled, err = f.dispatcher.Sweep(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, 1, handled)

	stored, err := f.store.Requests().FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.RequestStatusDispatching, stored.Status)

	rounds, err := f.dispatcher.Rounds(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	assert.Equal(t, []uuid.UUID{tech.ID}, offeredIDs(rounds[0]))

	handled, err = f.dispatcher.Sweep(ctx, later)
	require.NoError(t, err)
	assert.Zero(t, handled)
}

func TestDispatcher_SweepLeavesAnalyzedWithoutAutoDispatch(t *testing.T) {
	f := newFixture(t, func(m *config.Marketplace) { m.AutoDispatch = false })
	ctx := context.Background()

	testutil.SeedTechnician(t, f.store, "plumbing")
	req := f.analyzedRequest(t, "plumbing")

	handled, err := f.dispatcher.Sweep(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, handled)

	stored, err := f.store.Requests().FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.RequestStatusAnalyzed, stored.Status)
}
