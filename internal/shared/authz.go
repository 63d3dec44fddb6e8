package shared

// Core platform permissions. The seed data registers each of these so a
// fresh installation can bind roles to them immediately.
const (
	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermRolesView = "roles.view"
	PermRolesEdit = "roles.edit"

	PermPermissionsView = "permissions.view"
	PermPermissionsEdit = "permissions.edit"

	PermProfilesView = "profiles.view"
	PermProfilesEdit = "profiles.edit"

	PermAccountsView = "accounts.view"
	PermAccountsEdit = "accounts.edit"

	PermCustomersView = "customers.view"
	PermCustomersEdit = "customers.edit"

	PermAuditView = "audit.view"
)

// RolePrefix marks coarse-grained role grants in a materialized grant set,
// distinguishing them from fine-grained permission grants.
const RolePrefix = "ROLE_"

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermUsersView,
		PermUsersEdit,
		PermRolesView,
		PermRolesEdit,
		PermPermissionsView,
		PermPermissionsEdit,
		PermProfilesView,
		PermProfilesEdit,
		PermAccountsView,
		PermAccountsEdit,
		PermCustomersView,
		PermCustomersEdit,
		PermAuditView,
	}
}
