package memory

import (
	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
)

func cloneRequest(r *entity.Request) *entity.Request {
	cp := *r
	cp.MediaURLs = append([]string(nil), r.MediaURLs...)
	cp.CompletionPhotos = append([]string(nil), r.CompletionPhotos...)
	cp.GuidedAnswers.Availability = append([]string(nil), r.GuidedAnswers.Availability...)
	if r.Diagnosis != nil {
		d := *r.Diagnosis
		d.SafetyInstructions = append([]string(nil), r.Diagnosis.SafetyInstructions...)
		cp.Diagnosis = &d
	}
	return &cp
}

func cloneQuote(q *entity.Quote) *entity.Quote {
	cp := *q
	cp.RevisionEvidence = append([]entity.Evidence(nil), q.RevisionEvidence...)
	return &cp
}

func clonePayment(p *entity.Payment) *entity.Payment {
	cp := *p
	return &cp
}

func cloneTechnician(t *entity.Technician) *entity.Technician {
	cp := *t
	cp.Specializations = append([]string(nil), t.Specializations...)
	if t.Location != nil {
		loc := *t.Location
		cp.Location = &loc
	}
	if t.AvailabilitySchedule != nil {
		cp.AvailabilitySchedule = make(map[string][]string, len(t.AvailabilitySchedule))
		for k, v := range t.AvailabilitySchedule {
			cp.AvailabilitySchedule[k] = append([]string(nil), v...)
		}
	}
	return &cp
}

func cloneRound(d *entity.DispatchRound) *entity.DispatchRound {
	cp := *d
	cp.Offers = append([]entity.Offer(nil), d.Offers...)
	return &cp
}

func cloneAudit(e *entity.AuditEntry) *entity.AuditEntry {
	cp := *e
	cp.OldValue = append([]byte(nil), e.OldValue...)
	cp.NewValue = append([]byte(nil), e.NewValue...)
	return &cp
}
