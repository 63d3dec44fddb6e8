package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dsa-dev/backoffice/internal/audit"
	"github.com/dsa-dev/backoffice/internal/shared"
)

// Service orchestrates RBAC administration and resolution. Every mutation
// invalidates the graph snapshot cache and emits an audit record; audit
// failures are logged and swallowed so they never roll back the mutation.
type Service struct {
	repo   Repository
	audit  audit.Recorder
	cache  *SnapshotCache
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, recorder audit.Recorder, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		audit:  recorder,
		cache:  NewSnapshotCache(),
		logger: logger,
	}
}

// Snapshot returns the current role graph, loading it on cache miss.
func (s *Service) Snapshot(ctx context.Context) (*Graph, error) {
	return s.cache.Get(ctx, s.repo.LoadGraph)
}

// PermissionUpdate carries partial permission changes; nil fields are
// left untouched.
type PermissionUpdate struct {
	Name        *string
	Description *string
	Active      *bool
}

// RoleUpdate carries partial role changes. A non-nil ParentID triggers the
// guarded reparent path; ClearParent detaches the role from its parent.
type RoleUpdate struct {
	Name        *string
	Description *string
	Active      *bool
	ParentID    *int64
	ClearParent bool
}

// ProfileUpdate carries partial profile changes. A non-nil RoleIDs
// replaces the profile's role set wholesale.
type ProfileUpdate struct {
	Name        *string
	Description *string
	Active      *bool
	RoleIDs     []int64
}

// ListPermissions returns all permissions ordered by name.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// GetPermission fetches a permission by ID.
func (s *Service) GetPermission(ctx context.Context, id int64) (Permission, error) {
	return s.repo.GetPermission(ctx, id)
}

// CreatePermission registers a new active permission. Duplicate names
// surface as a conflict; the database unique constraint arbitrates
// concurrent creates so exactly one wins.
func (s *Service) CreatePermission(ctx context.Context, name, description string) (Permission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Permission{}, errors.New("rbac: permission name required")
	}
	perm, err := s.repo.CreatePermission(ctx, name, strings.TrimSpace(description))
	if err != nil {
		return Permission{}, err
	}
	s.cache.Invalidate()
	s.recordAudit(ctx, "CREATE", "Permission", perm.ID, "Created permission: "+perm.Name, "", permissionString(perm))
	return perm, nil
}

// UpdatePermission applies partial changes. Deactivating a permission
// leaves role assignments intact but removes it from materialized grants.
func (s *Service) UpdatePermission(ctx context.Context, id int64, upd PermissionUpdate) (Permission, error) {
	perm, err := s.repo.GetPermission(ctx, id)
	if err != nil {
		return Permission{}, err
	}
	before := permissionString(perm)

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Permission{}, errors.New("rbac: permission name required")
		}
		perm.Name = name
	}
	if upd.Description != nil {
		perm.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Active != nil {
		perm.Active = *upd.Active
	}

	perm, err = s.repo.UpdatePermission(ctx, perm)
	if err != nil {
		return Permission{}, err
	}
	s.cache.Invalidate()
	s.recordAudit(ctx, "UPDATE", "Permission", perm.ID, "Updated permission: "+perm.Name, before, permissionString(perm))
	return perm, nil
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole registers a new role, optionally under a parent. A fresh
// role cannot yet be anybody's ancestor, so creation needs no cycle
// check beyond verifying the parent exists.
func (s *Service) CreateRole(ctx context.Context, name, description string, parentID *int64) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	role, err := s.repo.CreateRole(ctx, name, strings.TrimSpace(description), parentID)
	if err != nil {
		return Role{}, err
	}
	s.cache.Invalidate()
	s.recordAudit(ctx, "CREATE", "Role", role.ID, "Created role: "+role.Name, "", roleString(role))
	return role, nil
}

// UpdateRole applies partial changes. Parent changes run the cycle guard
// against the current snapshot first, then again inside the repository
// transaction with the ancestor chain locked, so a stale snapshot cannot
// let a cycle through.
func (s *Service) UpdateRole(ctx context.Context, id int64, upd RoleUpdate) (Role, error) {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	before := roleString(role)

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Role{}, errors.New("rbac: role name required")
		}
		role.Name = name
	}
	if upd.Description != nil {
		role.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Active != nil {
		role.Active = *upd.Active
	}

	// Vet the reparent before any write so a rejected mutation leaves
	// nothing behind.
	if upd.ParentID != nil {
		graph, err := s.Snapshot(ctx)
		if err != nil {
			return Role{}, err
		}
		if _, ok := graph.Roles[*upd.ParentID]; !ok {
			return Role{}, fmt.Errorf("rbac: parent role %d: %w", *upd.ParentID, shared.ErrNotFound)
		}
		if !graph.CanReparent(id, *upd.ParentID) {
			return Role{}, fmt.Errorf("rbac: role %d cannot inherit from %d: %w", id, *upd.ParentID, shared.ErrCircularInheritance)
		}
	}

	role, err = s.repo.UpdateRole(ctx, role)
	if err != nil {
		return Role{}, err
	}

	if upd.ParentID != nil {
		if err := s.repo.ReparentRole(ctx, id, upd.ParentID); err != nil {
			return Role{}, err
		}
		role.ParentID = upd.ParentID
	} else if upd.ClearParent {
		if err := s.repo.ReparentRole(ctx, id, nil); err != nil {
			return Role{}, err
		}
		role.ParentID = nil
	}

	s.cache.Invalidate()
	s.recordAudit(ctx, "UPDATE", "Role", role.ID, "Updated role: "+role.Name, before, roleString(role))
	return role, nil
}

// AddPermissionToRole attaches a permission to a role.
func (s *Service) AddPermissionToRole(ctx context.Context, roleID, permissionID int64) error {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	perm, err := s.repo.GetPermission(ctx, permissionID)
	if err != nil {
		return err
	}
	if err := s.repo.AttachPermission(ctx, roleID, permissionID); err != nil {
		return err
	}
	s.cache.Invalidate()
	s.recordAudit(ctx, "UPDATE", "Role", roleID,
		fmt.Sprintf("Added permission %s to role %s", perm.Name, role.Name), "", "")
	return nil
}

// RemovePermissionFromRole detaches a permission from a role.
func (s *Service) RemovePermissionFromRole(ctx context.Context, roleID, permissionID int64) error {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if err := s.repo.DetachPermission(ctx, roleID, permissionID); err != nil {
		return err
	}
	s.cache.Invalidate()
	s.recordAudit(ctx, "UPDATE", "Role", roleID,
		fmt.Sprintf("Removed permission %d from role %s", permissionID, role.Name), "", "")
	return nil
}

// RoleEffectivePermissions returns the unfiltered permission closure for a
// role, inherited permissions included, sorted by name.
func (s *Service) RoleEffectivePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	graph, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	perms, err := graph.RolePermissions(roleID)
	if err != nil {
		return nil, err
	}
	return sortedPermissions(perms), nil
}

// ListProfiles returns all role profiles.
func (s *Service) ListProfiles(ctx context.Context) ([]RoleProfile, error) {
	return s.repo.ListProfiles(ctx)
}

// GetProfile fetches a profile by ID.
func (s *Service) GetProfile(ctx context.Context, id int64) (RoleProfile, error) {
	return s.repo.GetProfile(ctx, id)
}

// CreateProfile registers a role profile with an initial, possibly empty,
// role set.
func (s *Service) CreateProfile(ctx context.Context, name, description string, roleIDs []int64) (RoleProfile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return RoleProfile{}, errors.New("rbac: profile name required")
	}
	profile, err := s.repo.CreateProfile(ctx, RoleProfile{
		Name:        name,
		Description: strings.TrimSpace(description),
		Active:      true,
		RoleIDs:     roleIDs,
		CreatedBy:   shared.ActorFromContext(ctx),
	})
	if err != nil {
		return RoleProfile{}, err
	}
	s.cache.Invalidate()
	s.recordAudit(ctx, "CREATE", "RoleProfile", profile.ID, "Created role profile: "+profile.Name, "", profileString(profile))
	return profile, nil
}

// UpdateProfile applies partial profile changes.
func (s *Service) UpdateProfile(ctx context.Context, id int64, upd ProfileUpdate) (RoleProfile, error) {
	profile, err := s.repo.GetProfile(ctx, id)
	if err != nil {
		return RoleProfile{}, err
	}
	before := profileString(profile)

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return RoleProfile{}, errors.New("rbac: profile name required")
		}
		profile.Name = name
	}
	if upd.Description != nil {
		profile.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Active != nil {
		profile.Active = *upd.Active
	}
	if upd.RoleIDs != nil {
		profile.RoleIDs = upd.RoleIDs
	}
	profile.UpdatedBy = shared.ActorFromContext(ctx)

	profile, err = s.repo.UpdateProfile(ctx, profile)
	if err != nil {
		return RoleProfile{}, err
	}
	s.cache.Invalidate()
	s.recordAudit(ctx, "UPDATE", "RoleProfile", profile.ID, "Updated role profile: "+profile.Name, before, profileString(profile))
	return profile, nil
}

// DeleteProfile removes a profile. Roles and users referencing it keep
// their own records; only the composition is dropped.
func (s *Service) DeleteProfile(ctx context.Context, id int64) error {
	profile, err := s.repo.GetProfile(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteProfile(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate()
	s.recordAudit(ctx, "DELETE", "RoleProfile", id, "Deleted role profile: "+profile.Name, profileString(profile), "")
	return nil
}

// AddRoleToProfile links a role into a profile.
func (s *Service) AddRoleToProfile(ctx context.Context, profileID, roleID int64) error {
	profile, err := s.repo.GetProfile(ctx, profileID)
	if err != nil {
		return err
	}
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if err := s.repo.AddProfileRole(ctx, profileID, roleID); err != nil {
		return err
	}
	s.cache.Invalidate()
	s.recordAudit(ctx, "UPDATE", "RoleProfile", profileID,
		fmt.Sprintf("Added role %s to profile %s", role.Name, profile.Name), "", "")
	return nil
}

// RemoveRoleFromProfile unlinks a role from a profile.
func (s *Service) RemoveRoleFromProfile(ctx context.Context, profileID, roleID int64) error {
	profile, err := s.repo.GetProfile(ctx, profileID)
	if err != nil {
		return err
	}
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if err := s.repo.RemoveProfileRole(ctx, profileID, roleID); err != nil {
		return err
	}
	s.cache.Invalidate()
	s.recordAudit(ctx, "UPDATE", "RoleProfile", profileID,
		fmt.Sprintf("Removed role %s from profile %s", role.Name, profile.Name), "", "")
	return nil
}

// ProfileEffectivePermissions returns the deduplicated permission closure
// across every role in the profile, sorted by name.
func (s *Service) ProfileEffectivePermissions(ctx context.Context, profileID int64) ([]Permission, error) {
	graph, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	perms, err := graph.ProfilePermissions(profileID)
	if err != nil {
		return nil, err
	}
	return sortedPermissions(perms), nil
}

// AuthoritiesForUser materializes the grant set for one user. Called per
// authentication event and by the authorization middleware.
func (s *Service) AuthoritiesForUser(ctx context.Context, userID int64) ([]string, error) {
	roleIDs, profileIDs, err := s.repo.UserAuthorization(ctx, userID)
	if err != nil {
		return nil, err
	}
	graph, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return Authorities(graph, roleIDs, profileIDs)
}

// EffectivePermissions returns the active permission names granted to a
// user, for authorization checks. Inactive permissions are excluded even
// when still attached to a role.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	roleIDs, profileIDs, err := s.repo.UserAuthorization(ctx, userID)
	if err != nil {
		return nil, err
	}
	graph, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	perms, err := graph.PrincipalPermissions(roleIDs, profileIDs)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(perms))
	for _, p := range perms {
		if p.Active {
			names = append(names, p.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// EffectivePermissionsForUser returns the user's unfiltered permission
// closure, sorted by name.
func (s *Service) EffectivePermissionsForUser(ctx context.Context, userID int64) ([]Permission, error) {
	roleIDs, profileIDs, err := s.repo.UserAuthorization(ctx, userID)
	if err != nil {
		return nil, err
	}
	graph, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	perms, err := graph.PrincipalPermissions(roleIDs, profileIDs)
	if err != nil {
		return nil, err
	}
	return sortedPermissions(perms), nil
}

// EffectiveRolesForUser returns the user's shallow role union, sorted by
// name.
func (s *Service) EffectiveRolesForUser(ctx context.Context, userID int64) ([]Role, error) {
	roleIDs, profileIDs, err := s.repo.UserAuthorization(ctx, userID)
	if err != nil {
		return nil, err
	}
	graph, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	roles, err := graph.EffectiveRoles(roleIDs, profileIDs)
	if err != nil {
		return nil, err
	}
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Service) recordAudit(ctx context.Context, action, entityType string, entityID int64, details, oldValue, newValue string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, audit.Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
		OldValue:   oldValue,
		NewValue:   newValue,
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.String("entity", entityType), slog.Any("error", err))
	}
}

func sortedPermissions(perms map[int64]Permission) []Permission {
	out := make([]Permission, 0, len(perms))
	for _, p := range perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func permissionString(p Permission) string {
	return fmt.Sprintf("Permission{id=%d, name=%s, active=%t}", p.ID, p.Name, p.Active)
}

func roleString(r Role) string {
	parent := "none"
	if r.ParentID != nil {
		parent = fmt.Sprintf("%d", *r.ParentID)
	}
	return fmt.Sprintf("Role{id=%d, name=%s, parent=%s, active=%t}", r.ID, r.Name, parent, r.Active)
}

func profileString(p RoleProfile) string {
	return fmt.Sprintf("RoleProfile{id=%d, name=%s, roles=%d, active=%t}", p.ID, p.Name, len(p.RoleIDs), p.Active)
}
