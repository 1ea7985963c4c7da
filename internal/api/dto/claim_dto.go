package dto

import (
	"time"

	"github.com/spec-kit/visit-verification/internal/domain"
)

// SubmitClaimRequest payload. Amounts are minor currency units.
type SubmitClaimRequest struct {
	VisitID   string           `json:"visit_id"`
	Amount    int64            `json:"amount"`
	ClaimType domain.ClaimType `json:"claim_type"`
}

// DecideClaimRequest payload.
type DecideClaimRequest struct {
	Outcome         domain.ClaimState `json:"outcome"`
	ApprovedAmount  *int64            `json:"approved_amount"`
	Notes           string            `json:"notes"`
	RejectionReason string            `json:"rejection_reason"`
}

// ClaimResponse body.
type ClaimResponse struct {
	ID              string            `json:"id"`
	ClaimNumber     string            `json:"claim_number"`
	VisitID         string            `json:"visit_id"`
	HospitalID      string            `json:"hospital_id"`
	ClaimType       domain.ClaimType  `json:"claim_type"`
	Amount          int64             `json:"amount"`
	ApprovedAmount  *int64            `json:"approved_amount,omitempty"`
	State           domain.ClaimState `json:"state"`
	SubmittedAt     *time.Time        `json:"submitted_at,omitempty"`
	DecidedAt       *time.Time        `json:"decided_at,omitempty"`
	ReviewerID      *string           `json:"reviewer_id,omitempty"`
	ReviewNotes     string            `json:"review_notes,omitempty"`
	RejectionReason string            `json:"rejection_reason,omitempty"`
}

func NewClaimResponse(c *domain.Claim) ClaimResponse {
	return ClaimResponse{
		ID:              c.ID,
		ClaimNumber:     c.ClaimNumber,
		VisitID:         c.VisitID,
		HospitalID:      c.HospitalID,
		ClaimType:       c.ClaimType,
		Amount:          c.Amount,
		ApprovedAmount:  c.ApprovedAmount,
		State:           c.State,
		SubmittedAt:     c.SubmittedAt,
		DecidedAt:       c.DecidedAt,
		ReviewerID:      c.ReviewerID,
		ReviewNotes:     c.ReviewNotes,
		RejectionReason: c.RejectionReason,
	}
}
