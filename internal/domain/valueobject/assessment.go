package valueobject

import (
	"strings"

	"github.com/ignatzorin/prontocasa-backend/internal/pkg/apperror"
)

type Category string

const (
	CategoryPlumbing   Category = "plumbing"
	CategoryElectrical Category = "electrical"
	CategoryLocksmith  Category = "locksmith"
	CategoryHVAC       Category = "hvac"
	CategoryAppliances Category = "appliances"
	CategoryCarpentry  Category = "carpentry"
	CategoryGeneral    Category = "general"
)

func (c Category) IsValid() bool {
	switch c {
	case CategoryPlumbing, CategoryElectrical, CategoryLocksmith, CategoryHVAC,
		CategoryAppliances, CategoryCarpentry, CategoryGeneral:
		return true
	}
	return false
}

func NewCategory(category string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(category)))
	if !c.IsValid() {
		return "", apperror.Validation("category", "неизвестная категория работ")
	}
	return c, nil
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (s Severity) IsValid() bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh
}

// Assessment — результат оценщика: серьёзность, уверенность и начальный диапазон цены.
type Assessment struct {
	Severity               Severity
	Confidence             int
	ProbableIssue          string
	SafetyInstructions     []string
	EstimatedDurationHours float64
	PriceRange             PriceRange
}

func (a Assessment) Validate() error {
	if !a.Severity.IsValid() {
		return apperror.Validation("severity", "оценщик вернул некорректную серьёзность")
	}
	if a.Confidence < 0 || a.Confidence > 100 {
		return apperror.Validation("confidence", "уверенность должна быть в диапазоне 0-100")
	}
	if _, err := NewPriceRange(a.PriceRange.Min, a.PriceRange.Max); err != nil {
		return err
	}
	return nil
}

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func NewGeoPoint(lat, lng float64) (GeoPoint, error) {
	if lat < -90 || lat > 90 {
		return GeoPoint{}, apperror.Validation("latitude", "широта вне диапазона")
	}
	if lng < -180 || lng > 180 {
		return GeoPoint{}, apperror.Validation("longitude", "долгота вне диапазона")
	}
	return GeoPoint{Lat: lat, Lng: lng}, nil
}
