// Package permissions is the single role/action lookup table gating every trip
// mutation. It is pure: no I/O, no state.
package permissions

import "trip-collab-service/internal/models"

// Action is an operation a member may attempt on a trip.
type Action string

const (
	ActionEditContent   Action = "edit_content"
	ActionDeleteTrip    Action = "delete_trip"
	ActionManageMembers Action = "manage_members"
	ActionChangeRole    Action = "change_role"
	ActionViewTrip      Action = "view_trip"
)

var table = map[models.Role]map[Action]bool{
	models.RoleOwner: {
		ActionEditContent:   true,
		ActionDeleteTrip:    true,
		ActionManageMembers: true,
		ActionChangeRole:    true,
		ActionViewTrip:      true,
	},
	models.RoleAdmin: {
		ActionEditContent:   true,
		ActionDeleteTrip:    true,
		ActionManageMembers: true,
		ActionChangeRole:    true,
		ActionViewTrip:      true,
	},
	models.RoleEditor: {
		ActionEditContent: true,
		ActionViewTrip:    true,
	},
	models.RoleViewer: {
		ActionViewTrip: true,
	},
}

// Allows reports whether the role may perform the action. Unknown roles and
// unknown actions are denied. The owner-protection rule (a role change or
// removal targeting the owner is always denied) is enforced by the mutation
// gateway, not here.
func Allows(role models.Role, action Action) bool {
	return table[role][action]
}

// Roles lists the known roles in privilege order.
func Roles() []models.Role {
	return []models.Role{models.RoleOwner, models.RoleAdmin, models.RoleEditor, models.RoleViewer}
}

// Actions lists every action in the table.
func Actions() []Action {
	return []Action{ActionEditContent, ActionDeleteTrip, ActionManageMembers, ActionChangeRole, ActionViewTrip}
}
