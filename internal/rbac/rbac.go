package rbac

type Role string
type Action string

const (
	RoleNone   Role = ""
	RoleMember Role = "member"
	RoleOwner  Role = "owner"
)

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
	ActionAdmin Action = "admin"
)

// Can reports whether a board role may perform action. Public boards grant
// read to every resolved actor, members or not.
func Can(role Role, public bool, action Action) bool {
	switch role {
	case RoleOwner:
		return true
	case RoleMember:
		return action == ActionRead || action == ActionWrite
	default:
		return public && action == ActionRead
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleOwner, RoleMember:
		return Role(role)
	default:
		return RoleNone
	}
}
