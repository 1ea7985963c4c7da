package events

import (
	"time"

	"github.com/spec-kit/visit-verification/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventCodeIssued     EventType = "code_issued"
	EventCodeRevoked    EventType = "code_revoked"
	EventCodeConsumed   EventType = "code_consumed"
	EventCodeExpired    EventType = "code_expired"
	EventVisitOpened    EventType = "visit_opened"
	EventVisitClosed    EventType = "visit_closed"
	EventVisitVoided    EventType = "visit_voided"
	EventClaimSubmitted EventType = "claim_submitted"
	EventClaimDecided   EventType = "claim_decided"
)

// Event represents a domain event emitted by services after their
// transaction has committed.
type Event struct {
	ID          string      `json:"id"`
	Type        EventType   `json:"type"`
	AggregateID string      `json:"aggregate_id"`
	MemberID    string      `json:"member_id,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
	Payload     interface{} `json:"payload"`
}

// CodeIssuedPayload payload.
type CodeIssuedPayload struct {
	Purpose   domain.CodePurpose `json:"purpose"`
	ExpiresAt time.Time          `json:"expires_at"`
	Delivered bool               `json:"delivered"`
}

// CodeRevokedPayload payload.
type CodeRevokedPayload struct {
	Purpose    domain.CodePurpose `json:"purpose"`
	ReplacedBy string             `json:"replaced_by"`
}

// CodeConsumedPayload payload.
type CodeConsumedPayload struct {
	Purpose    domain.CodePurpose `json:"purpose"`
	HospitalID string             `json:"hospital_id"`
	VisitID    string             `json:"visit_id"`
}

// CodeExpiredPayload payload.
type CodeExpiredPayload struct {
	Purpose   domain.CodePurpose `json:"purpose"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// VisitOpenedPayload payload.
type VisitOpenedPayload struct {
	VisitNumber string           `json:"visit_number"`
	HospitalID  string           `json:"hospital_id"`
	CodeID      string           `json:"code_id"`
	VisitType   domain.VisitType `json:"visit_type"`
}

// VisitStatusChangedPayload payload.
type VisitStatusChangedPayload struct {
	OldState domain.VisitState `json:"old_state"`
	NewState domain.VisitState `json:"new_state"`
	Reason   string            `json:"reason,omitempty"`
}

// ClaimSubmittedPayload payload.
type ClaimSubmittedPayload struct {
	ClaimNumber string           `json:"claim_number"`
	VisitID     string           `json:"visit_id"`
	HospitalID  string           `json:"hospital_id"`
	ClaimType   domain.ClaimType `json:"claim_type"`
	Amount      int64            `json:"amount"`
}

// ClaimDecidedPayload payload.
type ClaimDecidedPayload struct {
	ClaimNumber     string            `json:"claim_number"`
	HospitalID      string            `json:"hospital_id"`
	Outcome         domain.ClaimState `json:"outcome"`
	ApprovedAmount  *int64            `json:"approved_amount,omitempty"`
	ReviewerID      *string           `json:"reviewer_id,omitempty"`
	RejectionReason string            `json:"rejection_reason,omitempty"`
}
