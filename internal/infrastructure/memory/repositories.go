package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/repository"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/valueobject"
)

type requestRepo struct{ v view }

func (r requestRepo) Create(ctx context.Context, req *entity.Request) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.requests[req.ID]; ok {
			return repository.ErrAlreadyExists
		}
		if _, ok := st.referenceCodes[req.ReferenceCode]; ok {
			return fmt.Errorf("request repository: reference code %s: %w", req.ReferenceCode, repository.ErrAlreadyExists)
		}
		st.requests[req.ID] = cloneRequest(req)
		st.referenceCodes[req.ReferenceCode] = req.ID
		return nil
	})
}

func (r requestRepo) Update(ctx context.Context, req *entity.Request) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.requests[req.ID]; !ok {
			return repository.ErrNotFound
		}
		st.requests[req.ID] = cloneRequest(req)
		return nil
	})
}

func (r requestRepo) FindByID(ctx context.Context, id uuid.UUID) (*entity.Request, error) {
	var out *entity.Request
	err := r.v.read(func(st *state) error {
		req, ok := st.requests[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = cloneRequest(req)
		return nil
	})
	return out, err
}

func (r requestRepo) FindForUpdate(ctx context.Context, id uuid.UUID) (*entity.Request, error) {
	return r.FindByID(ctx, id)
}

func (r requestRepo) FindByClientID(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]*entity.Request, int, error) {
	var out []*entity.Request
	var total int
	err := r.v.read(func(st *state) error {
		var all []*entity.Request
		for _, req := range st.requests {
			if req.ClientID == clientID {
				all = append(all, req)
			}
		}
		sortRequestsNewestFirst(all)
		total = len(all)
		out = paginate(all, limit, offset, cloneRequest)
		return nil
	})
	return out, total, err
}

func (r requestRepo) FindByTechnicianID(ctx context.Context, technicianID uuid.UUID, statuses []valueobject.RequestStatus) ([]*entity.Request, error) {
	var out []*entity.Request
	err := r.v.read(func(st *state) error {
		for _, req := range st.requests {
			if req.TechnicianID == nil || *req.TechnicianID != technicianID {
				continue
			}
			if len(statuses) > 0 && !containsStatus(statuses, req.Status) {
				continue
			}
			out = append(out, cloneRequest(req))
		}
		sortRequestsNewestFirst(out)
		return nil
	})
	return out, err
}

func (r requestRepo) FindStale(ctx context.Context, status valueobject.RequestStatus, updatedBefore time.Time, limit int) ([]*entity.Request, error) {
	var out []*entity.Request
	err := r.v.read(func(st *state) error {
		for _, req := range st.requests {
			if req.Status == status && !req.UpdatedAt.After(updatedBefore) {
				out = append(out, cloneRequest(req))
			}
		}
		sort.SliceStable(out, func(i, j int) bool {
			if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
				return out[i].UpdatedAt.Before(out[j].UpdatedAt)
			}
			return out[i].ReferenceCode < out[j].ReferenceCode
		})
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return nil
	})
	return out, err
}

func (r requestRepo) AssignTechnician(ctx context.Context, id, technicianID uuid.UUID, acceptedAt, estimatedArrival time.Time) (bool, error) {
	assigned := false
	err := r.v.write(func(st *state) error {
		req, ok := st.requests[id]
		if !ok || req.Status != valueobject.RequestStatusDispatching || req.TechnicianID != nil {
			return nil
		}
		cp := cloneRequest(req)
		tid := technicianID
		cp.TechnicianID = &tid
		cp.Status = valueobject.RequestStatusAccepted
		cp.AcceptedAt = &acceptedAt
		cp.EstimatedArrival = &estimatedArrival
		cp.UpdatedAt = acceptedAt
		st.requests[id] = cp
		assigned = true
		return nil
	})
	return assigned, err
}

func sortRequestsNewestFirst(list []*entity.Request) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ReferenceCode < list[j].ReferenceCode
	})
}

func containsStatus(list []valueobject.RequestStatus, s valueobject.RequestStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func paginate[T any](list []T, limit, offset int, clone func(T) T) []T {
	if offset >= len(list) {
		return []T{}
	}
	end := len(list)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]T, 0, end-offset)
	for _, item := range list[offset:end] {
		out = append(out, clone(item))
	}
	return out
}

type quoteRepo struct{ v view }

func (r quoteRepo) Create(ctx context.Context, q *entity.Quote) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.quotes[q.RequestID]; ok {
			return repository.ErrAlreadyExists
		}
		st.quotes[q.RequestID] = cloneQuote(q)
		return nil
	})
}

func (r quoteRepo) Update(ctx context.Context, q *entity.Quote) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.quotes[q.RequestID]; !ok {
			return repository.ErrNotFound
		}
		st.quotes[q.RequestID] = cloneQuote(q)
		return nil
	})
}

func (r quoteRepo) FindByRequestID(ctx context.Context, requestID uuid.UUID) (*entity.Quote, error) {
	var out *entity.Quote
	err := r.v.read(func(st *state) error {
		q, ok := st.quotes[requestID]
		if !ok {
			return repository.ErrNotFound
		}
		out = cloneQuote(q)
		return nil
	})
	return out, err
}

type paymentRepo struct{ v view }

func (r paymentRepo) Create(ctx context.Context, p *entity.Payment) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.paymentByRequest[p.RequestID]; ok {
			return repository.ErrAlreadyExists
		}
		st.payments[p.ID] = clonePayment(p)
		st.paymentByRequest[p.RequestID] = p.ID
		return nil
	})
}

func (r paymentRepo) Update(ctx context.Context, p *entity.Payment) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.payments[p.ID]; !ok {
			return repository.ErrNotFound
		}
		st.payments[p.ID] = clonePayment(p)
		return nil
	})
}

func (r paymentRepo) FindByID(ctx context.Context, id uuid.UUID) (*entity.Payment, error) {
	var out *entity.Payment
	err := r.v.read(func(st *state) error {
		p, ok := st.payments[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = clonePayment(p)
		return nil
	})
	return out, err
}

func (r paymentRepo) FindByRequestID(ctx context.Context, requestID uuid.UUID) (*entity.Payment, error) {
	var out *entity.Payment
	err := r.v.read(func(st *state) error {
		id, ok := st.paymentByRequest[requestID]
		if !ok {
			return repository.ErrNotFound
		}
		out = clonePayment(st.payments[id])
		return nil
	})
	return out, err
}

func (r paymentRepo) ClaimOperation(ctx context.Context, id uuid.UUID, status valueobject.PaymentStatus, op string, at time.Time) (bool, error) {
	var claimed bool
	err := r.v.write(func(st *state) error {
		p, ok := st.payments[id]
		if !ok {
			return repository.ErrNotFound
		}
		if p.Status != status || p.PendingOperation != nil {
			return nil
		}
		cp := clonePayment(p)
		cp.PendingOperation = &op
		cp.OperationStartedAt = &at
		cp.UpdatedAt = at
		st.payments[id] = cp
		claimed = true
		return nil
	})
	return claimed, err
}

type technicianRepo struct{ v view }

func (r technicianRepo) Create(ctx context.Context, t *entity.Technician) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.technicianByUser[t.UserID]; ok {
			return repository.ErrAlreadyExists
		}
		st.technicians[t.ID] = cloneTechnician(t)
		st.technicianByUser[t.UserID] = t.ID
		return nil
	})
}

func (r technicianRepo) Update(ctx context.Context, t *entity.Technician) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.technicians[t.ID]; !ok {
			return repository.ErrNotFound
		}
		st.technicians[t.ID] = cloneTechnician(t)
		return nil
	})
}

func (r technicianRepo) FindByID(ctx context.Context, id uuid.UUID) (*entity.Technician, error) {
	var out *entity.Technician
	err := r.v.read(func(st *state) error {
		t, ok := st.technicians[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = cloneTechnician(t)
		return nil
	})
	return out, err
}

func (r technicianRepo) FindByUserID(ctx context.Context, userID uuid.UUID) (*entity.Technician, error) {
	var out *entity.Technician
	err := r.v.read(func(st *state) error {
		id, ok := st.technicianByUser[userID]
		if !ok {
			return repository.ErrNotFound
		}
		out = cloneTechnician(st.technicians[id])
		return nil
	})
	return out, err
}

func (r technicianRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*entity.Technician, error) {
	var out []*entity.Technician
	err := r.v.read(func(st *state) error {
		for _, id := range ids {
			if t, ok := st.technicians[id]; ok {
				out = append(out, cloneTechnician(t))
			}
		}
		return nil
	})
	return out, err
}

func (r technicianRepo) ListEligible(ctx context.Context, filter repository.TechnicianFilter) ([]*entity.Technician, error) {
	exclude := make(map[uuid.UUID]struct{}, len(filter.Exclude))
	for _, id := range filter.Exclude {
		exclude[id] = struct{}{}
	}
	var out []*entity.Technician
	err := r.v.read(func(st *state) error {
		for _, t := range st.technicians {
			if _, skip := exclude[t.ID]; skip {
				continue
			}
			if filter.OnlyEligible && !t.IsEligible() {
				continue
			}
			switch filter.Match {
			case repository.WithSpecialization:
				if !t.HasSpecialization(filter.Category) {
					continue
				}
			case repository.WithoutSpecialization:
				if t.HasSpecialization(filter.Category) {
					continue
				}
			}
			out = append(out, cloneTechnician(t))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		if out[i].CompletedJobs != out[j].CompletedJobs {
			return out[i].CompletedJobs > out[j].CompletedJobs
		}
		return out[i].Code < out[j].Code
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r technicianRepo) NextCode(ctx context.Context) (string, error) {
	var code string
	err := r.v.write(func(st *state) error {
		st.technicianSeq++
		code = fmt.Sprintf("TECH-%06d", st.technicianSeq)
		return nil
	})
	return code, err
}

type dispatchRepo struct{ v view }

func (r dispatchRepo) CreateRound(ctx context.Context, round *entity.DispatchRound) error {
	return r.v.write(func(st *state) error {
		st.rounds[round.RequestID] = append(st.rounds[round.RequestID], cloneRound(round))
		return nil
	})
}

func (r dispatchRepo) UpdateRound(ctx context.Context, round *entity.DispatchRound) error {
	return r.v.write(func(st *state) error {
		list := st.rounds[round.RequestID]
		for i, existing := range list {
			if existing.ID == round.ID {
				updated := append([]*entity.DispatchRound(nil), list...)
				updated[i] = cloneRound(round)
				st.rounds[round.RequestID] = updated
				return nil
			}
		}
		return repository.ErrNotFound
	})
}

func (r dispatchRepo) LatestRound(ctx context.Context, requestID uuid.UUID) (*entity.DispatchRound, error) {
	var out *entity.DispatchRound
	err := r.v.read(func(st *state) error {
		list := st.rounds[requestID]
		if len(list) == 0 {
			return repository.ErrNotFound
		}
		out = cloneRound(list[len(list)-1])
		return nil
	})
	return out, err
}

func (r dispatchRepo) ListRounds(ctx context.Context, requestID uuid.UUID) ([]*entity.DispatchRound, error) {
	var out []*entity.DispatchRound
	err := r.v.read(func(st *state) error {
		for _, round := range st.rounds[requestID] {
			out = append(out, cloneRound(round))
		}
		return nil
	})
	return out, err
}

func (r dispatchRepo) HasOffer(ctx context.Context, requestID, technicianID uuid.UUID) (bool, error) {
	found := false
	err := r.v.read(func(st *state) error {
		for _, round := range st.rounds[requestID] {
			if round.Offered(technicianID) {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (r dispatchRepo) PendingForTechnician(ctx context.Context, technicianID uuid.UUID, limit int) ([]*entity.Request, error) {
	type pending struct {
		req       *entity.Request
		offeredAt time.Time
	}
	var found []pending
	err := r.v.read(func(st *state) error {
		for requestID, rounds := range st.rounds {
			req, ok := st.requests[requestID]
			if !ok || req.Status != valueobject.RequestStatusDispatching || req.TechnicianID != nil {
				continue
			}
			for _, round := range rounds {
				if round.Offered(technicianID) {
					found = append(found, pending{req: cloneRequest(req), offeredAt: round.StartedAt})
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(found, func(i, j int) bool {
		if !found[i].offeredAt.Equal(found[j].offeredAt) {
			return found[i].offeredAt.Before(found[j].offeredAt)
		}
		return found[i].req.ReferenceCode < found[j].req.ReferenceCode
	})
	out := make([]*entity.Request, 0, len(found))
	for _, p := range found {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, p.req)
	}
	return out, nil
}

func (r dispatchRepo) ExpiredRounds(ctx context.Context, now time.Time, limit int) ([]*entity.DispatchRound, error) {
	var out []*entity.DispatchRound
	err := r.v.read(func(st *state) error {
		for requestID, rounds := range st.rounds {
			req, ok := st.requests[requestID]
			if !ok || req.Status != valueobject.RequestStatusDispatching || len(rounds) == 0 {
				continue
			}
			latest := rounds[len(rounds)-1]
			if latest.IsExpired(now) {
				out = append(out, cloneRound(latest))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type auditRepo struct{ v view }

func (r auditRepo) Append(ctx context.Context, e *entity.AuditEntry) error {
	return r.v.write(func(st *state) error {
		st.audit = append(st.audit, cloneAudit(e))
		return nil
	})
}

func (r auditRepo) List(ctx context.Context, filter repository.AuditFilter) ([]*entity.AuditEntry, int, error) {
	var out []*entity.AuditEntry
	var total int
	err := r.v.read(func(st *state) error {
		var matched []*entity.AuditEntry
		for i := len(st.audit) - 1; i >= 0; i-- {
			e := st.audit[i]
			if filter.EntityType != nil && e.EntityType != *filter.EntityType {
				continue
			}
			if filter.EntityID != nil && e.EntityID != *filter.EntityID {
				continue
			}
			matched = append(matched, e)
		}
		total = len(matched)
		out = paginate(matched, filter.Limit, filter.Offset, cloneAudit)
		return nil
	})
	return out, total, err
}
