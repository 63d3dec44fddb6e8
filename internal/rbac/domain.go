package rbac

import (
	"fmt"
	"time"
)

// Permission represents an atomic capability. Permissions are never hard
// deleted; deactivating one removes it from materialized grants while
// leaving role assignments intact.
type Permission struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Role is a named node in the single-parent inheritance tree. A role
// implicitly holds every permission of its ancestors.
type Role struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Active        bool      `json:"active"`
	ParentID      *int64    `json:"parent_id,omitempty"`
	PermissionIDs []int64   `json:"permission_ids"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RoleProfile is a named, non-hierarchical bundle of roles assignable to a
// user as a unit. Profiles compose role subtrees horizontally instead of
// deepening the inheritance tree.
type RoleProfile struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	RoleIDs     []int64   `json:"role_ids"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CreatedBy   string    `json:"created_by,omitempty"`
	UpdatedBy   string    `json:"updated_by,omitempty"`
}

// Graph is an immutable snapshot of the role/permission structure keyed by
// id. Resolution walks the snapshot by map lookup only; it never touches
// storage and never follows live object references.
type Graph struct {
	Roles       map[int64]Role
	Permissions map[int64]Permission
	Profiles    map[int64]RoleProfile
}

// NewGraph builds a Graph from loaded records.
func NewGraph(roles []Role, perms []Permission, profiles []RoleProfile) *Graph {
	g := &Graph{
		Roles:       make(map[int64]Role, len(roles)),
		Permissions: make(map[int64]Permission, len(perms)),
		Profiles:    make(map[int64]RoleProfile, len(profiles)),
	}
	for _, r := range roles {
		g.Roles[r.ID] = r
	}
	for _, p := range perms {
		g.Permissions[p.ID] = p
	}
	for _, pr := range profiles {
		g.Profiles[pr.ID] = pr
	}
	return g
}

// IntegrityError reports a dangling reference discovered during
// resolution. It indicates corrupted state, not caller input: the write
// paths are expected to keep the graph referentially intact.
type IntegrityError struct {
	Kind  string
	From  int64
	RefID int64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("rbac: %s %d references missing record %d", e.Kind, e.From, e.RefID)
}
