package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/valueobject"
)

type OnboardTechnicianRequest struct {
	DisplayName     string   `json:"display_name" binding:"required"`
	Specializations []string `json:"specializations" binding:"required,min=1"`
	HourlyRate      int64    `json:"hourly_rate_cents" binding:"gte=0"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
}

type AvailabilityRequest struct {
	IsAvailableNow  *bool               `json:"is_available_now"`
	IsAcceptingJobs *bool               `json:"is_accepting_jobs"`
	Schedule        map[string][]string `json:"availability_schedule"`
}

type LocationRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

type TechnicianResponse struct {
	ID                   uuid.UUID             `json:"id"`
	UserID               uuid.UUID             `json:"user_id"`
	Code                 string                `json:"code"`
	DisplayName          string                `json:"display_name"`
	Specializations      []string              `json:"specializations"`
	Rating               float64               `json:"rating"`
	CompletedJobs        int                   `json:"completed_jobs"`
	HourlyRate           int64                 `json:"hourly_rate_cents"`
	Location             *valueobject.GeoPoint `json:"location"`
	AvailabilitySchedule map[string][]string   `json:"availability_schedule"`
	IsAvailableNow       bool                  `json:"is_available_now"`
	IsAcceptingJobs      bool                  `json:"is_accepting_jobs"`
	IsVerified           bool                  `json:"is_verified"`
	IsActive             bool                  `json:"is_active"`
	VerifiedAt           *time.Time            `json:"verified_at"`
	CreatedAt            time.Time             `json:"created_at"`
}

// PublicTechnicianResponse — профиль мастера для клиента, без служебных полей.
type PublicTechnicianResponse struct {
	ID              uuid.UUID `json:"id"`
	Code            string    `json:"code"`
	DisplayName     string    `json:"display_name"`
	Specializations []string  `json:"specializations"`
	Rating          float64   `json:"rating"`
	CompletedJobs   int       `json:"completed_jobs"`
	IsVerified      bool      `json:"is_verified"`
}

func ToTechnicianResponse(t *entity.Technician) TechnicianResponse {
	return TechnicianResponse{
		ID:                   t.ID,
		UserID:               t.UserID,
		Code:                 t.Code,
		DisplayName:          t.DisplayName,
		Specializations:      nonNilStrings(t.Specializations),
		Rating:               t.Rating,
		CompletedJobs:        t.CompletedJobs,
		HourlyRate:           int64(t.HourlyRate),
		Location:             t.Location,
		AvailabilitySchedule: t.AvailabilitySchedule,
		IsAvailableNow:       t.IsAvailableNow,
		IsAcceptingJobs:      t.IsAcceptingJobs,
		IsVerified:           t.IsVerified,
		IsActive:             t.IsActive,
		VerifiedAt:           t.VerifiedAt,
		CreatedAt:            t.CreatedAt,
	}
}

func ToPublicTechnicianResponse(t *entity.Technician) PublicTechnicianResponse {
	return PublicTechnicianResponse{
		ID:              t.ID,
		Code:            t.Code,
		DisplayName:     t.DisplayName,
		Specializations: nonNilStrings(t.Specializations),
		Rating:          t.Rating,
		CompletedJobs:   t.CompletedJobs,
		IsVerified:      t.IsVerified,
	}
}
