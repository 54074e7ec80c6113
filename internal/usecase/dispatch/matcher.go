package dispatch

import (
	"sort"

	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/valueobject"
)

// Matcher выбирает мастеров для одного раунда рассылки.
type Matcher struct {
	perRound int
}

func NewMatcher(perRound int) *Matcher {
	if perRound <= 0 {
		perRound = 1
	}
	return &Matcher{perRound: perRound}
}

func (m *Matcher) PerRound() int {
	return m.perRound
}

// Select отбирает до K подходящих мастеров: сначала по специализации,
// затем добирает остальных в том же порядке ранжирования.
func (m *Matcher) Select(pool []*entity.Technician, category valueobject.Category) []*entity.Technician {
	var matching, others []*entity.Technician
	for _, t := range pool {
		if !t.IsEligible() {
			continue
		}
		if t.HasSpecialization(category) {
			matching = append(matching, t)
		} else {
			others = append(others, t)
		}
	}
	rank(matching)
	rank(others)

	selected := make([]*entity.Technician, 0, m.perRound)
	for _, group := range [][]*entity.Technician{matching, others} {
		for _, t := range group {
			if len(selected) == m.perRound {
				return selected
			}
			selected = append(selected, t)
		}
	}
	return selected
}

func rank(list []*entity.Technician) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Rating != list[j].Rating {
			return list[i].Rating > list[j].Rating
		}
		if list[i].CompletedJobs != list[j].CompletedJobs {
			return list[i].CompletedJobs > list[j].CompletedJobs
		}
		return list[i].Code < list[j].Code
	})
}
