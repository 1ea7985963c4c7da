package domain

// MemberStatus represents the SHA membership lifecycle. It is owned by
// registration and contribution processing; this service only reads it.
type MemberStatus string

const (
	MemberStatusPending   MemberStatus = "PENDING"
	MemberStatusActive    MemberStatus = "ACTIVE"
	MemberStatusSuspended MemberStatus = "SUSPENDED"
	MemberStatusExpired   MemberStatus = "EXPIRED"
)

// Valid reports whether s is a known status.
func (s MemberStatus) Valid() bool {
	switch s {
	case MemberStatusPending, MemberStatusActive, MemberStatusSuspended, MemberStatusExpired:
		return true
	}
	return false
}

// Member is the read-only view of a registered member.
type Member struct {
	ID          string
	FullName    string
	PhoneNumber string
	Email       string
	Status      MemberStatus
}

// IsActive reports whether the member may receive services.
func (m *Member) IsActive() bool {
	return m != nil && m.Status == MemberStatusActive
}
