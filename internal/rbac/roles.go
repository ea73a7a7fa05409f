package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	// RoleAdmin manages the caller-ID pool and sees everything.
	RoleAdmin = "admin"

	// RoleDialer is the outbound dialer integration; it may allocate,
	// release and look up reservations.
	RoleDialer = "dialer"

	// RoleViewer is read-only access for dashboards.
	RoleViewer = "viewer"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

func Known(role string) bool {
	switch role {
	case RoleAdmin, RoleDialer, RoleViewer:
		return true
	default:
		return false
	}
}
