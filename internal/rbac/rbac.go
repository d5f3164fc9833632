package rbac

type Role string

const (
	// RoleOperator may read migration and tenant state.
	RoleOperator Role = "operator"
	// RoleAdmin may additionally provision tenants.
	RoleAdmin Role = "admin"
)

func Allows(user Role, allowed ...Role) bool {
	for _, role := range allowed {
		if user == role {
			return true
		}
	}
	return false
}
