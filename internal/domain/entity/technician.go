package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/valueobject"
	"github.com/ignatzorin/prontocasa-backend/internal/pkg/apperror"
)

type Technician struct {
	ID                   uuid.UUID
	UserID               uuid.UUID
	Code                 string
	DisplayName          string
	Specializations      []string
	Rating               float64
	CompletedJobs        int
	HourlyRate           valueobject.Cents
	Location             *valueobject.GeoPoint
	AvailabilitySchedule map[string][]string
	IsAvailableNow       bool
	IsAcceptingJobs      bool
	IsVerified           bool
	IsActive             bool
	VerifiedAt           *time.Time
	VerifiedBy           *uuid.UUID
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func NewTechnician(userID uuid.UUID, code, displayName string, specializations []string, hourlyRate valueobject.Cents, now time.Time) (*Technician, error) {
	if userID == uuid.Nil {
		return nil, apperror.Validation("user_id", "пользователь обязателен")
	}
	if err := lengthBetween("display_name", displayName, 2, 255); err != nil {
		return nil, err
	}
	specs, err := normalizeSpecializations(specializations)
	if err != nil {
		return nil, err
	}
	if hourlyRate < 0 {
		return nil, apperror.Validation("hourly_rate", "ставка не может быть отрицательной")
	}
	return &Technician{
		ID:              uuid.New(),
		UserID:          userID,
		Code:            code,
		DisplayName:     displayName,
		Specializations: specs,
		HourlyRate:      hourlyRate,
		IsAcceptingJobs: true,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func normalizeSpecializations(specs []string) ([]string, error) {
	if len(specs) == 0 {
		return nil, apperror.Validation("specializations", "укажите хотя бы одну специализацию")
	}
	seen := make(map[string]struct{}, len(specs))
	out := make([]string, 0, len(specs))
	for _, s := range specs {
		c, err := valueobject.NewCategory(s)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[string(c)]; ok {
			continue
		}
		seen[string(c)] = struct{}{}
		out = append(out, string(c))
	}
	return out, nil
}

// IsEligible — мастер может получать предложения о заявках.
func (t *Technician) IsEligible() bool {
	return t.IsActive && t.IsAvailableNow && t.IsAcceptingJobs && t.IsVerified
}

func (t *Technician) HasSpecialization(category valueobject.Category) bool {
	for _, s := range t.Specializations {
		if strings.EqualFold(strings.TrimSpace(s), string(category)) {
			return true
		}
	}
	return false
}

func (t *Technician) Verify(adminID uuid.UUID, now time.Time) bool {
	if t.IsVerified {
		return false
	}
	t.IsVerified = true
	t.VerifiedAt = &now
	t.VerifiedBy = &adminID
	t.UpdatedAt = now
	return true
}

type AvailabilityUpdate struct {
	IsAvailableNow  *bool
	IsAcceptingJobs *bool
	Schedule        map[string][]string
}

func (t *Technician) UpdateAvailability(u AvailabilityUpdate, now time.Time) {
	if u.IsAvailableNow != nil {
		t.IsAvailableNow = *u.IsAvailableNow
	}
	if u.IsAcceptingJobs != nil {
		t.IsAcceptingJobs = *u.IsAcceptingJobs
	}
	if u.Schedule != nil {
		t.AvailabilitySchedule = u.Schedule
	}
	t.UpdatedAt = now
}

func (t *Technician) UpdateLocation(lat, lng float64, now time.Time) error {
	p, err := valueobject.NewGeoPoint(lat, lng)
	if err != nil {
		return err
	}
	t.Location = &p
	t.UpdatedAt = now
	return nil
}
