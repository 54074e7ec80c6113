package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/valueobject"
	"github.com/ignatzorin/prontocasa-backend/internal/models"
)

func toRequestRow(r *entity.Request) (*models.Request, error) {
	answers, err := json.Marshal(r.GuidedAnswers)
	if err != nil {
		return nil, fmt.Errorf("marshal guided answers: %w", err)
	}
	var diagnosis []byte
	if r.Diagnosis != nil {
		if diagnosis, err = json.Marshal(r.Diagnosis); err != nil {
			return nil, fmt.Errorf("marshal diagnosis: %w", err)
		}
	}
	var severity *string
	if r.Severity != nil {
		s := string(*r.Severity)
		severity = &s
	}
	return &models.Request{
		ID:                   r.ID,
		ReferenceCode:        r.ReferenceCode,
		ClientID:             r.ClientID,
		TechnicianID:         r.TechnicianID,
		ReleasedTechnicianID: r.ReleasedTechnicianID,
		Status:               string(r.Status),
		Category:             string(r.Category),
		Title:                r.Title,
		Description:          r.Description,
		GuidedAnswers:        answers,
		MediaURLs:            stringArray(r.MediaURLs),
		Latitude:             r.Location.Lat,
		Longitude:            r.Location.Lng,
		Address:              r.Address,
		AddressDetails:       r.AddressDetails,
		Severity:             severity,
		AIConfidence:         r.AIConfidence,
		Diagnosis:            diagnosis,
		IsUrgent:             r.IsUrgent,
		PreferredTime:        r.PreferredTime,
		EstimatedArrival:     r.EstimatedArrival,
		CompletionPhotos:     stringArray(r.CompletionPhotos),
		SignaturePath:        r.SignaturePath,
		SignatureChecksum:    r.SignatureChecksum,
		ComplaintDeadline:    r.ComplaintDeadline,
		HasComplaint:         r.HasComplaint,
		ComplaintNotes:       r.ComplaintNotes,
		CancellationReason:   r.CancellationReason,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
		AcceptedAt:           r.AcceptedAt,
		StartedAt:            r.StartedAt,
		CompletedAt:          r.CompletedAt,
		CancelledAt:          r.CancelledAt,
	}, nil
}

func requestFromRow(row *models.Request) (*entity.Request, error) {
	r := &entity.Request{
		ID:                   row.ID,
		ReferenceCode:        row.ReferenceCode,
		ClientID:             row.ClientID,
		TechnicianID:         row.TechnicianID,
		ReleasedTechnicianID: row.ReleasedTechnicianID,
		Status:               valueobject.RequestStatus(row.Status),
		Category:             valueobject.Category(row.Category),
		Title:                row.Title,
		Description:          row.Description,
		MediaURLs:            []string(row.MediaURLs),
		Location:             valueobject.GeoPoint{Lat: row.Latitude, Lng: row.Longitude},
		Address:              row.Address,
		AddressDetails:       row.AddressDetails,
		AIConfidence:         row.AIConfidence,
		IsUrgent:             row.IsUrgent,
		PreferredTime:        row.PreferredTime,
		EstimatedArrival:     row.EstimatedArrival,
		CompletionPhotos:     []string(row.CompletionPhotos),
		SignaturePath:        row.SignaturePath,
		SignatureChecksum:    row.SignatureChecksum,
		ComplaintDeadline:    row.ComplaintDeadline,
		HasComplaint:         row.HasComplaint,
		ComplaintNotes:       row.ComplaintNotes,
		CancellationReason:   row.CancellationReason,
		CreatedAt:            row.CreatedAt,
		UpdatedAt:            row.UpdatedAt,
		AcceptedAt:           row.AcceptedAt,
		StartedAt:            row.StartedAt,
		CompletedAt:          row.CompletedAt,
		CancelledAt:          row.CancelledAt,
	}
	if len(row.GuidedAnswers) > 0 {
		if err := json.Unmarshal(row.GuidedAnswers, &r.GuidedAnswers); err != nil {
			return nil, fmt.Errorf("unmarshal guided answers: %w", err)
		}
	}
	if len(row.Diagnosis) > 0 && string(row.Diagnosis) != "null" {
		var d entity.Diagnosis
		if err := json.Unmarshal(row.Diagnosis, &d); err != nil {
			return nil, fmt.Errorf("unmarshal diagnosis: %w", err)
		}
		r.Diagnosis = &d
	}
	if row.Severity != nil {
		s := valueobject.Severity(*row.Severity)
		r.Severity = &s
	}
	return r, nil
}

func toQuoteRow(q *entity.Quote) (*models.Quote, error) {
	evidence := q.RevisionEvidence
	if evidence == nil {
		evidence = []entity.Evidence{}
	}
	raw, err := json.Marshal(evidence)
	if err != nil {
		return nil, fmt.Errorf("marshal revision evidence: %w", err)
	}
	return &models.Quote{
		ID:                         q.ID,
		RequestID:                  q.RequestID,
		InitialMinPrice:            int64(q.Initial.Min),
		InitialMaxPrice:            int64(q.Initial.Max),
		MinPrice:                   int64(q.Current.Min),
		MaxPrice:                   int64(q.Current.Max),
		FinalPrice:                 centsPtr(q.FinalPrice),
		LaborCost:                  centsPtr(q.LaborCost),
		MaterialsCost:              centsPtr(q.MaterialsCost),
		EstimateNotes:              q.EstimateNotes,
		RevisionCount:              q.RevisionCount,
		LastRevisionReason:         q.LastRevisionReason,
		RevisionEvidence:           raw,
		RequiresPhoneConfirmation:  q.RequiresPhoneConfirmation,
		PhoneConfirmationCompleted: q.PhoneConfirmationCompleted,
		ConfirmationOperatorID:     q.ConfirmationOperatorID,
		PhoneConfirmedAt:           q.PhoneConfirmedAt,
		ClientApproved:             q.ClientApproved,
		ClientApprovedAt:           q.ClientApprovedAt,
		ClientRejected:             q.ClientRejected,
		RejectionReason:            q.RejectionReason,
		PenaltyApplied:             q.PenaltyApplied,
		PenaltyAmount:              centsPtr(q.PenaltyAmount),
		CreatedAt:                  q.CreatedAt,
		UpdatedAt:                  q.UpdatedAt,
	}, nil
}

func quoteFromRow(row *models.Quote) (*entity.Quote, error) {
	q := &entity.Quote{
		ID:                         row.ID,
		RequestID:                  row.RequestID,
		Initial:                    valueobject.PriceRange{Min: valueobject.Cents(row.InitialMinPrice), Max: valueobject.Cents(row.InitialMaxPrice)},
		Current:                    valueobject.PriceRange{Min: valueobject.Cents(row.MinPrice), Max: valueobject.Cents(row.MaxPrice)},
		FinalPrice:                 fromCentsPtr(row.FinalPrice),
		LaborCost:                  fromCentsPtr(row.LaborCost),
		MaterialsCost:              fromCentsPtr(row.MaterialsCost),
		EstimateNotes:              row.EstimateNotes,
		RevisionCount:              row.RevisionCount,
		LastRevisionReason:         row.LastRevisionReason,
		RequiresPhoneConfirmation:  row.RequiresPhoneConfirmation,
		PhoneConfirmationCompleted: row.PhoneConfirmationCompleted,
		ConfirmationOperatorID:     row.ConfirmationOperatorID,
		PhoneConfirmedAt:           row.PhoneConfirmedAt,
		ClientApproved:             row.ClientApproved,
		ClientApprovedAt:           row.ClientApprovedAt,
		ClientRejected:             row.ClientRejected,
		RejectionReason:            row.RejectionReason,
		PenaltyApplied:             row.PenaltyApplied,
		PenaltyAmount:              fromCentsPtr(row.PenaltyAmount),
		CreatedAt:                  row.CreatedAt,
		UpdatedAt:                  row.UpdatedAt,
	}
	if len(row.RevisionEvidence) > 0 {
		if err := json.Unmarshal(row.RevisionEvidence, &q.RevisionEvidence); err != nil {
			return nil, fmt.Errorf("unmarshal revision evidence: %w", err)
		}
	}
	return q, nil
}

func toPaymentRow(p *entity.Payment) *models.Payment {
	return &models.Payment{
		ID:                  p.ID,
		RequestID:           p.RequestID,
		ClientID:            p.ClientID,
		TechnicianID:        p.TechnicianID,
		Amount:              int64(p.Amount),
		PlatformFee:         int64(p.PlatformFee),
		TechnicianPayout:    int64(p.TechnicianPayout),
		Status:              string(p.Status),
		Method:              string(p.Method),
		HoldRef:             p.HoldRef,
		TransferRef:         p.TransferRef,
		RefundRef:           p.RefundRef,
		PenaltyAmount:       int64(p.PenaltyAmount),
		PenaltyToPlatform:   int64(p.PenaltyToPlatform),
		PenaltyToTechnician: int64(p.PenaltyToTechnician),
		RefundedAmount:      int64(p.RefundedAmount),
		FailureReason:       p.FailureReason,
		InvoiceNumber:       p.InvoiceNumber,
		PendingOperation:    p.PendingOperation,
		OperationStartedAt:  p.OperationStartedAt,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
		HeldAt:              p.HeldAt,
		CapturedAt:          p.CapturedAt,
		TransferredAt:       p.TransferredAt,
		RefundedAt:          p.RefundedAt,
		FailedAt:            p.FailedAt,
	}
}

func paymentFromRow(row *models.Payment) *entity.Payment {
	return &entity.Payment{
		ID:                  row.ID,
		RequestID:           row.RequestID,
		ClientID:            row.ClientID,
		TechnicianID:        row.TechnicianID,
		Amount:              valueobject.Cents(row.Amount),
		PlatformFee:         valueobject.Cents(row.PlatformFee),
		TechnicianPayout:    valueobject.Cents(row.TechnicianPayout),
		Status:              valueobject.PaymentStatus(row.Status),
		Method:              valueobject.PaymentMethod(row.Method),
		HoldRef:             row.HoldRef,
		TransferRef:         row.TransferRef,
		RefundRef:           row.RefundRef,
		PenaltyAmount:       valueobject.Cents(row.PenaltyAmount),
		PenaltyToPlatform:   valueobject.Cents(row.PenaltyToPlatform),
		PenaltyToTechnician: valueobject.Cents(row.PenaltyToTechnician),
		RefundedAmount:      valueobject.Cents(row.RefundedAmount),
		FailureReason:       row.FailureReason,
		InvoiceNumber:       row.InvoiceNumber,
		PendingOperation:    row.PendingOperation,
		OperationStartedAt:  row.OperationStartedAt,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
		HeldAt:              row.HeldAt,
		CapturedAt:          row.CapturedAt,
		TransferredAt:       row.TransferredAt,
		RefundedAt:          row.RefundedAt,
		FailedAt:            row.FailedAt,
	}
}

func toTechnicianRow(t *entity.Technician) (*models.Technician, error) {
	schedule := t.AvailabilitySchedule
	if schedule == nil {
		schedule = map[string][]string{}
	}
	raw, err := json.Marshal(schedule)
	if err != nil {
		return nil, fmt.Errorf("marshal availability schedule: %w", err)
	}
	row := &models.Technician{
		ID:                   t.ID,
		UserID:               t.UserID,
		Code:                 t.Code,
		DisplayName:          t.DisplayName,
		Specializations:      stringArray(t.Specializations),
		Rating:               t.Rating,
		CompletedJobs:        t.CompletedJobs,
		HourlyRate:           int64(t.HourlyRate),
		AvailabilitySchedule: raw,
		IsAvailableNow:       t.IsAvailableNow,
		IsAcceptingJobs:      t.IsAcceptingJobs,
		IsVerified:           t.IsVerified,
		IsActive:             t.IsActive,
		VerifiedAt:           t.VerifiedAt,
		VerifiedBy:           t.VerifiedBy,
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
	}
	if t.Location != nil {
		lat, lng := t.Location.Lat, t.Location.Lng
		row.Latitude, row.Longitude = &lat, &lng
	}
	return row, nil
}

func technicianFromRow(row *models.Technician) (*entity.Technician, error) {
	t := &entity.Technician{
		ID:              row.ID,
		UserID:          row.UserID,
		Code:            row.Code,
		DisplayName:     row.DisplayName,
		Specializations: []string(row.Specializations),
		Rating:          row.Rating,
		CompletedJobs:   row.CompletedJobs,
		HourlyRate:      valueobject.Cents(row.HourlyRate),
		IsAvailableNow:  row.IsAvailableNow,
		IsAcceptingJobs: row.IsAcceptingJobs,
		IsVerified:      row.IsVerified,
		IsActive:        row.IsActive,
		VerifiedAt:      row.VerifiedAt,
		VerifiedBy:      row.VerifiedBy,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
	if row.Latitude != nil && row.Longitude != nil {
		t.Location = &valueobject.GeoPoint{Lat: *row.Latitude, Lng: *row.Longitude}
	}
	if len(row.AvailabilitySchedule) > 0 {
		if err := json.Unmarshal(row.AvailabilitySchedule, &t.AvailabilitySchedule); err != nil {
			return nil, fmt.Errorf("unmarshal availability schedule: %w", err)
		}
	}
	return t, nil
}

func toRoundRow(d *entity.DispatchRound) *models.DispatchRound {
	return &models.DispatchRound{
		ID:        d.ID,
		RequestID: d.RequestID,
		Number:    d.Number,
		Level:     d.Level,
		StartedAt: d.StartedAt,
		ExpiresAt: d.ExpiresAt,
		ClosedAt:  d.ClosedAt,
		Outcome:   string(d.Outcome),
		Delivered: d.Delivered,
		Failed:    d.Failed,
	}
}

func roundFromRow(row *models.DispatchRound, offers []models.DispatchOffer) *entity.DispatchRound {
	d := &entity.DispatchRound{
		ID:        row.ID,
		RequestID: row.RequestID,
		Number:    row.Number,
		Level:     row.Level,
		StartedAt: row.StartedAt,
		ExpiresAt: row.ExpiresAt,
		ClosedAt:  row.ClosedAt,
		Outcome:   entity.RoundOutcome(row.Outcome),
		Delivered: row.Delivered,
		Failed:    row.Failed,
	}
	for _, o := range offers {
		d.Offers = append(d.Offers, entity.Offer{TechnicianID: o.TechnicianID, Position: o.Position})
	}
	return d
}

func auditFromRow(row *models.AuditEntry) *entity.AuditEntry {
	return &entity.AuditEntry{
		ID:         row.ID,
		Action:     entity.AuditAction(row.Action),
		EntityType: entity.AuditEntityType(row.EntityType),
		EntityID:   row.EntityID,
		ActorID:    row.ActorID,
		OldValue:   json.RawMessage(row.OldValue),
		NewValue:   json.RawMessage(row.NewValue),
		CreatedAt:  row.CreatedAt,
	}
}

func stringArray(v []string) pq.StringArray {
	if v == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(v)
}

func centsPtr(c *valueobject.Cents) *int64 {
	if c == nil {
		return nil
	}
	v := int64(*c)
	return &v
}

func fromCentsPtr(v *int64) *valueobject.Cents {
	if v == nil {
		return nil
	}
	c := valueobject.Cents(*v)
	return &c
}
