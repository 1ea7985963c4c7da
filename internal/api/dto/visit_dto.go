package dto

import (
	"time"

	"github.com/spec-kit/visit-verification/internal/domain"
)

// AuthorizeVisitRequest payload presented by hospital reception.
type AuthorizeVisitRequest struct {
	MemberID       string           `json:"member_id"`
	Code           string           `json:"code"`
	VisitType      domain.VisitType `json:"visit_type"`
	ChiefComplaint string           `json:"chief_complaint"`
}

// VoidVisitRequest payload.
type VoidVisitRequest struct {
	Reason string `json:"reason"`
}

// VisitResponse body.
type VisitResponse struct {
	ID             string            `json:"id"`
	VisitNumber    string            `json:"visit_number"`
	MemberID       string            `json:"member_id"`
	HospitalID     string            `json:"hospital_id"`
	CodeID         string            `json:"code_id"`
	VisitType      domain.VisitType  `json:"visit_type"`
	ChiefComplaint string            `json:"chief_complaint,omitempty"`
	State          domain.VisitState `json:"state"`
	OpenedAt       time.Time         `json:"opened_at"`
	ClosedAt       *time.Time        `json:"closed_at,omitempty"`
	VoidedAt       *time.Time        `json:"voided_at,omitempty"`
	VoidReason     string            `json:"void_reason,omitempty"`
}

func NewVisitResponse(v *domain.Visit) VisitResponse {
	return VisitResponse{
		ID:             v.ID,
		VisitNumber:    v.VisitNumber,
		MemberID:       v.MemberID,
		HospitalID:     v.HospitalID,
		CodeID:         v.CodeID,
		VisitType:      v.VisitType,
		ChiefComplaint: v.ChiefComplaint,
		State:          v.State,
		OpenedAt:       v.OpenedAt,
		ClosedAt:       v.ClosedAt,
		VoidedAt:       v.VoidedAt,
		VoidReason:     v.VoidReason,
	}
}
