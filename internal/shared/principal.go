package shared

// Role enumerates the access levels granted to a principal.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// ValidRole reports whether the value is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleViewer:
		return true
	}
	return false
}

// Principal is the resolved authenticated caller passed into every operation.
type Principal struct {
	ID       int64
	Username string
	Role     Role
}

// CanWrite reports whether the principal may invoke mutating ledger operations.
func (p Principal) CanWrite() bool {
	return p.Role == RoleAdmin || p.Role == RoleEditor
}

// IsAdmin reports whether the principal may manage users.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
