package domain

import "time"

// ClaimState enumerates lifecycle states for reimbursement claims.
type ClaimState string

const (
	ClaimStateDraft     ClaimState = "DRAFT"
	ClaimStateSubmitted ClaimState = "SUBMITTED"
	ClaimStateApproved  ClaimState = "APPROVED"
	ClaimStateRejected  ClaimState = "REJECTED"
)

var claimTransitions = map[ClaimState][]ClaimState{
	ClaimStateDraft:     {ClaimStateSubmitted},
	ClaimStateSubmitted: {ClaimStateApproved, ClaimStateRejected},
	ClaimStateApproved:  {},
	ClaimStateRejected:  {},
}

// CanTransitionTo reports whether a claim in state s may move to next.
func (s ClaimState) CanTransitionTo(next ClaimState) bool {
	return canTransition(claimTransitions, s, next)
}

// Terminal reports whether no transition leaves s.
func (s ClaimState) Terminal() bool {
	return len(claimTransitions[s]) == 0
}

// Active reports whether a claim in state s blocks another claim on the
// same visit.
func (s ClaimState) Active() bool {
	return s == ClaimStateSubmitted || s == ClaimStateApproved
}

// IsOutcome reports whether s is a valid review decision.
func (s ClaimState) IsOutcome() bool {
	return s == ClaimStateApproved || s == ClaimStateRejected
}

// ClaimType classifies what is being reimbursed.
type ClaimType string

const (
	ClaimTypeConsultation ClaimType = "CONSULTATION"
	ClaimTypeTreatment    ClaimType = "TREATMENT"
	ClaimTypeMedicine     ClaimType = "MEDICINE"
	ClaimTypeProcedure    ClaimType = "PROCEDURE"
	ClaimTypeAdmission    ClaimType = "ADMISSION"
	ClaimTypeEmergency    ClaimType = "EMERGENCY"
)

// Valid reports whether t is a known claim type.
func (t ClaimType) Valid() bool {
	switch t {
	case ClaimTypeConsultation, ClaimTypeTreatment, ClaimTypeMedicine, ClaimTypeProcedure, ClaimTypeAdmission, ClaimTypeEmergency:
		return true
	}
	return false
}

// Claim is a hospital's reimbursement request for one closed visit.
// Amounts are in minor currency units.
type Claim struct {
	ID              string
	ClaimNumber     string
	VisitID         string
	HospitalID      string
	ClaimType       ClaimType
	Amount          int64
	ApprovedAmount  *int64
	State           ClaimState
	SubmittedAt     *time.Time
	DecidedAt       *time.Time
	ReviewerID      *string
	ReviewNotes     string
	RejectionReason string
}
