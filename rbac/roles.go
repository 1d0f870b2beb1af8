package rbac

// Role represents a capability grouping for callers of the HTTP surface.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
)

// Permission represents an actionable verb within the API surface.
type Permission string

const (
	PermissionViewMap        Permission = "map:view"
	PermissionViewHistory    Permission = "history:view"
	PermissionViewStatus     Permission = "status:view"
	PermissionTriggerRefresh Permission = "refresh:trigger"
)

// RoleMatrix enumerates which roles satisfy a permission.
var RoleMatrix = map[Permission][]Role{
	PermissionViewMap: {
		RoleViewer,
		RoleOperator,
	},
	PermissionViewHistory: {
		RoleViewer,
		RoleOperator,
	},
	PermissionViewStatus: {
		RoleViewer,
		RoleOperator,
	},
	PermissionTriggerRefresh: {
		RoleOperator,
	},
}

// Permissions lists every permission granted to at least one of roles, in a
// stable order.
func Permissions(roles []Role) []Permission {
	all := []Permission{
		PermissionViewMap,
		PermissionViewHistory,
		PermissionViewStatus,
		PermissionTriggerRefresh,
	}
	granted := make([]Permission, 0, len(all))
	for _, p := range all {
		if hasIntersection(roles, RoleMatrix[p]) {
			granted = append(granted, p)
		}
	}
	return granted
}
