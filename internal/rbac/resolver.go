package rbac

import (
	"fmt"

	"github.com/dsa-dev/backoffice/internal/shared"
)

// RolePermissions computes the transitive permission closure for a role:
// its own permissions plus everything inherited along the parent chain.
// The result is unfiltered; dropping inactive permissions is a
// materialization concern (see Authorities). The walk assumes the tree is
// acyclic, which the reparent guard enforces on every write path.
func (g *Graph) RolePermissions(roleID int64) (map[int64]Permission, error) {
	role, ok := g.Roles[roleID]
	if !ok {
		return nil, fmt.Errorf("rbac: role %d: %w", roleID, shared.ErrNotFound)
	}

	out := make(map[int64]Permission)
	for {
		for _, pid := range role.PermissionIDs {
			perm, ok := g.Permissions[pid]
			if !ok {
				return nil, &IntegrityError{Kind: "role", From: role.ID, RefID: pid}
			}
			out[perm.ID] = perm
		}
		if role.ParentID == nil {
			return out, nil
		}
		parent, ok := g.Roles[*role.ParentID]
		if !ok {
			return nil, &IntegrityError{Kind: "role", From: role.ID, RefID: *role.ParentID}
		}
		role = parent
	}
}

// ProfilePermissions unions the permission closures of every role in the
// profile. Overlap between roles (a profile often bundles a role together
// with one of its ancestors) deduplicates by permission id.
func (g *Graph) ProfilePermissions(profileID int64) (map[int64]Permission, error) {
	profile, ok := g.Profiles[profileID]
	if !ok {
		return nil, fmt.Errorf("rbac: profile %d: %w", profileID, shared.ErrNotFound)
	}

	out := make(map[int64]Permission)
	for _, rid := range profile.RoleIDs {
		perms, err := g.RolePermissions(rid)
		if err != nil {
			if _, ok := g.Roles[rid]; !ok {
				return nil, &IntegrityError{Kind: "profile", From: profile.ID, RefID: rid}
			}
			return nil, err
		}
		for id, p := range perms {
			out[id] = p
		}
	}
	return out, nil
}

// PrincipalPermissions computes a user's full permission closure: the
// union over direct roles and over profile roles, inheritance included.
func (g *Graph) PrincipalPermissions(roleIDs, profileIDs []int64) (map[int64]Permission, error) {
	out := make(map[int64]Permission)
	for _, rid := range roleIDs {
		perms, err := g.RolePermissions(rid)
		if err != nil {
			return nil, err
		}
		for id, p := range perms {
			out[id] = p
		}
	}
	for _, pid := range profileIDs {
		perms, err := g.ProfilePermissions(pid)
		if err != nil {
			return nil, err
		}
		for id, p := range perms {
			out[id] = p
		}
	}
	return out, nil
}

// EffectiveRoles returns a user's direct roles plus the roles listed by
// each assigned profile. This is a shallow union: unlike the permission
// closure, parent roles are NOT expanded here. Role-required checks only
// see roles that were explicitly assigned or bundled.
func (g *Graph) EffectiveRoles(roleIDs, profileIDs []int64) (map[int64]Role, error) {
	out := make(map[int64]Role)
	for _, rid := range roleIDs {
		role, ok := g.Roles[rid]
		if !ok {
			return nil, fmt.Errorf("rbac: role %d: %w", rid, shared.ErrNotFound)
		}
		out[role.ID] = role
	}
	for _, pid := range profileIDs {
		profile, ok := g.Profiles[pid]
		if !ok {
			return nil, fmt.Errorf("rbac: profile %d: %w", pid, shared.ErrNotFound)
		}
		for _, rid := range profile.RoleIDs {
			role, ok := g.Roles[rid]
			if !ok {
				return nil, &IntegrityError{Kind: "profile", From: profile.ID, RefID: rid}
			}
			out[role.ID] = role
		}
	}
	return out, nil
}
