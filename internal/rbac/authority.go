package rbac

import (
	"sort"

	"github.com/dsa-dev/backoffice/internal/shared"
)

// Authorities materializes the flattened grant set handed to the
// access-control layer for one authentication event:
//
//   - one coarse-grained "ROLE_<name>" grant per distinct effective role
//     name (shallow union, see EffectiveRoles),
//   - one fine-grained grant per effective permission whose Active flag
//     is set. Inactive permissions are silently dropped here even when
//     still attached to a role; the resolver's closure stays unfiltered.
//
// Grants are recomputed per login rather than cached long term, because
// role and permission state can change between sessions. The result is
// sorted so callers get stable output, but order carries no meaning.
func Authorities(g *Graph, roleIDs, profileIDs []int64) ([]string, error) {
	roles, err := g.EffectiveRoles(roleIDs, profileIDs)
	if err != nil {
		return nil, err
	}
	perms, err := g.PrincipalPermissions(roleIDs, profileIDs)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(roles)+len(perms))
	for _, role := range roles {
		seen[shared.RolePrefix+role.Name] = struct{}{}
	}
	for _, perm := range perms {
		if perm.Active {
			seen[perm.Name] = struct{}{}
		}
	}

	grants := make([]string, 0, len(seen))
	for g := range seen {
		grants = append(grants, g)
	}
	sort.Strings(grants)
	return grants, nil
}
