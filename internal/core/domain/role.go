package domain

// Role is the caller's permission tier. It is computed per request and never stored.
type Role string

const (
	RoleAdmin           Role = "admin"
	RoleOrganizer       Role = "organizer"
	RoleStaff           Role = "staff"
	RoleBuyer           Role = "buyer"
	RoleUnauthenticated Role = "unauthenticated"
)

// CanDeploy reports whether the role may create events.
func (r Role) CanDeploy() bool {
	return r == RoleAdmin || r == RoleOrganizer
}

// CanCheckIn reports whether the role may burn tickets at the venue.
func (r Role) CanCheckIn() bool {
	return r == RoleAdmin || r == RoleStaff
}
