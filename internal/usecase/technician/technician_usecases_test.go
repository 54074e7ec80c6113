package technician_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/repository"
	"github.com/ignatzorin/prontocasa-backend/internal/infrastructure/memory"
	"github.com/ignatzorin/prontocasa-backend/internal/pkg/apperror"
	_ "github.com/ignatzorin/prontocasa-backend/internal/testutil"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/technician"
)

func onboard(t *testing.T, uc *technician.UseCases, userID uuid.UUID) *entity.Technician {
	t.Helper()
	tech, err := uc.Onboard(context.Background(), technician.OnboardInput{
		UserID:          userID,
		DisplayName:     "Иван Петров",
		Specializations: []string{"Plumbing", "plumbing", "electrical"},
		HourlyRate:      3500,
	})
	require.NoError(t, err)
	return tech
}

func TestOnboard(t *testing.T) {
	store := memory.NewStore()
	uc := technician.NewUseCases(store)
	ctx := context.Background()
	userID := uuid.New()

	tech := onboard(t, uc, userID)
	assert.Equal(t, "TECH-000001", tech.Code)
	assert.Equal(t, []string{"plumbing", "electrical"}, tech.Specializations)
	assert.False(t, tech.IsEligible())

	_, err := uc.Onboard(ctx, technician.OnboardInput{
		UserID:          userID,
		DisplayName:     "Иван Петров",
		Specializations: []string{"plumbing"},
	})
	assert.True(t, apperror.IsConflict(err))

	lat := 45.46
	_, err = uc.Onboard(ctx, technician.OnboardInput{
		UserID:          uuid.New(),
		DisplayName:     "Мария",
		Specializations: []string{"plumbing"},
		Latitude:        &lat,
	})
	assert.True(t, apperror.IsValidation(err))

	second := onboard(t, uc, uuid.New())
	assert.Equal(t, "TECH-000002", second.Code)

	found, err := uc.GetByUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, tech.ID, found.ID)
}

func TestVerify_IsIdempotent(t *testing.T) {
	store := memory.NewStore()
	uc := technician.NewUseCases(store)
	ctx := context.Background()
	tech := onboard(t, uc, uuid.New())
	adminID := uuid.New()

	first, err := uc.Verify(ctx, adminID, tech.ID)
	require.NoError(t, err)
	require.NotNil(t, first.VerifiedAt)

	again, err := uc.Verify(ctx, uuid.New(), tech.ID)
	require.NoError(t, err)
	assert.Equal(t, *first.VerifiedAt, *again.VerifiedAt)
	assert.Equal(t, adminID, *again.VerifiedBy)

	entries, total, err := store.Audit().List(ctx, repository.AuditFilter{EntityID: &tech.ID, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	var actions []entity.AuditAction
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	assert.ElementsMatch(t, []entity.AuditAction{entity.AuditTechnicianOnboarded, entity.AuditTechnicianVerified}, actions)

	_, err = uc.Verify(ctx, adminID, uuid.New())
	assert.ErrorIs(t, err, apperror.ErrTechnicianNotFound)
}

func TestUpdateAvailabilityAndLocation(t *testing.T) {
	store := memory.NewStore()
	uc := technician.NewUseCases(store)
	ctx := context.Background()
	userID := uuid.New()
	tech := onboard(t, uc, userID)
	_, err := uc.Verify(ctx, uuid.New(), tech.ID)
	require.NoError(t, err)

	on := true
	_, err = uc.UpdateAvailability(ctx, tech.ID, uuid.New(), entity.AvailabilityUpdate{IsAvailableNow: &on})
	assert.True(t, apperror.IsForbidden(err))

	_, err = uc.UpdateAvailability(ctx, tech.ID, userID, entity.AvailabilityUpdate{
		Schedule: map[string][]string{"mon": {}},
	})
	assert.True(t, apperror.IsValidation(err))

	updated, err := uc.UpdateAvailability(ctx, tech.ID, userID, entity.AvailabilityUpdate{
		IsAvailableNow: &on,
		Schedule:       map[string][]string{"mon": {"09:00-18:00"}},
	})
	require.NoError(t, err)
	assert.True(t, updated.IsEligible())

	_, err = uc.UpdateLocation(ctx, tech.ID, userID, 95, 9.19)
	assert.True(t, apperror.IsValidation(err))
	_, err = uc.UpdateLocation(ctx, tech.ID, uuid.New(), 45.46, 9.19)
	assert.True(t, apperror.IsForbidden(err))

	moved, err := uc.UpdateLocation(ctx, tech.ID, userID, 45.46, 9.19)
	require.NoError(t, err)
	require.NotNil(t, moved.Location)
	assert.InDelta(t, 45.46, moved.Location.Lat, 1e-9)

	stored, err := uc.GetByID(ctx, tech.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsEligible())
	assert.Equal(t, []string{"09:00-18:00"}, stored.AvailabilitySchedule["mon"])
}
