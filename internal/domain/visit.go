package domain

import "time"

// VisitState enumerates lifecycle states for hospital visits.
type VisitState string

const (
	VisitStateOpen   VisitState = "OPEN"
	VisitStateClosed VisitState = "CLOSED"
	VisitStateVoided VisitState = "VOIDED"
)

var visitTransitions = map[VisitState][]VisitState{
	VisitStateOpen:   {VisitStateClosed, VisitStateVoided},
	VisitStateClosed: {},
	VisitStateVoided: {},
}

// CanTransitionTo reports whether a visit in state s may move to next.
func (s VisitState) CanTransitionTo(next VisitState) bool {
	return canTransition(visitTransitions, s, next)
}

// Terminal reports whether no transition leaves s.
func (s VisitState) Terminal() bool {
	return len(visitTransitions[s]) == 0
}

// VisitType classifies the encounter.
type VisitType string

const (
	VisitTypeConsultation VisitType = "CONSULTATION"
	VisitTypeEmergency    VisitType = "EMERGENCY"
	VisitTypeReferral     VisitType = "REFERRAL"
	VisitTypeFollowUp     VisitType = "FOLLOW_UP"
	VisitTypeAdmission    VisitType = "ADMISSION"
)

// Valid reports whether t is a known visit type.
func (t VisitType) Valid() bool {
	switch t {
	case VisitTypeConsultation, VisitTypeEmergency, VisitTypeReferral, VisitTypeFollowUp, VisitTypeAdmission:
		return true
	}
	return false
}

// Visit is a hospital encounter opened by consuming exactly one
// HOSPITAL_VISIT code. CodeID never changes after creation.
type Visit struct {
	ID             string
	VisitNumber    string
	MemberID       string
	HospitalID     string
	CodeID         string
	VisitType      VisitType
	ChiefComplaint string
	State          VisitState
	OpenedAt       time.Time
	ClosedAt       *time.Time
	VoidedAt       *time.Time
	VoidReason     string
}
