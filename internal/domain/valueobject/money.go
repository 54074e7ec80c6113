package valueobject

import (
	"fmt"

	"github.com/ignatzorin/prontocasa-backend/internal/pkg/apperror"
)

// Cents — денежная сумма в минимальных единицах валюты.
type Cents int64

// BasisPoints — доля в сотых процента (1000 = 10%).
type BasisPoints int64

func PercentToBasisPoints(pct float64) BasisPoints {
	if pct < 0 {
		return 0
	}
	return BasisPoints(pct*100 + 0.5)
}

// Share возвращает долю суммы с округлением вниз.
func (c Cents) Share(bp BasisPoints) Cents {
	if c <= 0 || bp <= 0 {
		return 0
	}
	return Cents(int64(c) * int64(bp) / 10000)
}

func (c Cents) String() string {
	return fmt.Sprintf("%d.%02d", int64(c)/100, int64(c)%100)
}

type PriceRange struct {
	Min Cents
	Max Cents
}

func NewPriceRange(min, max Cents) (PriceRange, error) {
	if min <= 0 {
		return PriceRange{}, apperror.Validation("min_price", "минимальная цена должна быть положительной")
	}
	if max < min {
		return PriceRange{}, apperror.Validation("max_price", "максимальная цена не может быть меньше минимальной")
	}
	return PriceRange{Min: min, Max: max}, nil
}

func (r PriceRange) Contains(amount Cents) bool {
	return amount >= r.Min && amount <= r.Max
}

func (r PriceRange) String() string {
	return fmt.Sprintf("%s - %s", r.Min, r.Max)
}
