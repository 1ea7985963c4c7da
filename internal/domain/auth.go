package domain

// Role differentiates the callers of the verification API.
type Role string

const (
	RoleMember   Role = "MEMBER"
	RoleHospital Role = "HOSPITAL"
	RoleAdmin    Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleMember || r == RoleHospital || r == RoleAdmin
}
