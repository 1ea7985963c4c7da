package domain

import "time"

// CodePurpose scopes a verification code to one kind of action.
type CodePurpose string

const (
	PurposeHospitalVisit       CodePurpose = "HOSPITAL_VISIT"
	PurposeMedicineCollection  CodePurpose = "MEDICINE_COLLECTION"
	PurposeAccountVerification CodePurpose = "ACCOUNT_VERIFICATION"
	PurposePasswordReset       CodePurpose = "PASSWORD_RESET"
)

// Valid reports whether p is a recognized purpose.
func (p CodePurpose) Valid() bool {
	switch p {
	case PurposeHospitalVisit, PurposeMedicineCollection, PurposeAccountVerification, PurposePasswordReset:
		return true
	}
	return false
}

// CodeState enumerates lifecycle states for verification codes.
type CodeState string

const (
	CodeStateIssued   CodeState = "ISSUED"
	CodeStateConsumed CodeState = "CONSUMED"
	CodeStateExpired  CodeState = "EXPIRED"
	CodeStateRevoked  CodeState = "REVOKED"
)

var codeTransitions = map[CodeState][]CodeState{
	CodeStateIssued:   {CodeStateConsumed, CodeStateExpired, CodeStateRevoked},
	CodeStateConsumed: {},
	CodeStateExpired:  {},
	CodeStateRevoked:  {},
}

// CanTransitionTo reports whether a code in state s may move to next.
func (s CodeState) CanTransitionTo(next CodeState) bool {
	return canTransition(codeTransitions, s, next)
}

// Terminal reports whether no transition leaves s.
func (s CodeState) Terminal() bool {
	return len(codeTransitions[s]) == 0
}

// VerificationCode is one issued one-time code. Only the keyed hash of the
// value is kept; codes are never deleted.
type VerificationCode struct {
	ID         string
	MemberID   string
	Purpose    CodePurpose
	CodeHash   string
	State      CodeState
	IssuedAt   time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	RevokedAt  *time.Time
	ExpiredAt  *time.Time
}

// IsExpired reports whether the code's validity window has passed at now.
func (c *VerificationCode) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// MarkTransition records the timestamp that belongs to the new state.
func (c *VerificationCode) MarkTransition(next CodeState, at time.Time) {
	c.State = next
	switch next {
	case CodeStateConsumed:
		c.ConsumedAt = &at
	case CodeStateRevoked:
		c.RevokedAt = &at
	case CodeStateExpired:
		c.ExpiredAt = &at
	}
}
