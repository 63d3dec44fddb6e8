package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/dsa-dev/backoffice/internal/audit"
	"github.com/dsa-dev/backoffice/internal/shared"
)

type reparentCall struct {
	roleID   int64
	parentID *int64
}

type stubRepo struct {
	graph *Graph

	loadCalls     int
	reparentCalls []reparentCall

	createPermErr error

	userRoles    []int64
	userProfiles []int64
}

// LoadGraph rebuilds the snapshot from current state, so a stale cached
// graph will not observe later mutations.
func (s *stubRepo) LoadGraph(ctx context.Context) (*Graph, error) {
	s.loadCalls++
	roles := make([]Role, 0, len(s.graph.Roles))
	for _, r := range s.graph.Roles {
		roles = append(roles, r)
	}
	perms := make([]Permission, 0, len(s.graph.Permissions))
	for _, p := range s.graph.Permissions {
		perms = append(perms, p)
	}
	profiles := make([]RoleProfile, 0, len(s.graph.Profiles))
	for _, p := range s.graph.Profiles {
		profiles = append(profiles, p)
	}
	return NewGraph(roles, perms, profiles), nil
}

func (s *stubRepo) ListPermissions(ctx context.Context) ([]Permission, error) {
	var out []Permission
	for _, p := range s.graph.Permissions {
		out = append(out, p)
	}
	return out, nil
}

func (s *stubRepo) GetPermission(ctx context.Context, id int64) (Permission, error) {
	p, ok := s.graph.Permissions[id]
	if !ok {
		return Permission{}, fmt.Errorf("rbac: permission %d: %w", id, shared.ErrNotFound)
	}
	return p, nil
}

func (s *stubRepo) CreatePermission(ctx context.Context, name, description string) (Permission, error) {
	if s.createPermErr != nil {
		return Permission{}, s.createPermErr
	}
	p := Permission{ID: int64(len(s.graph.Permissions) + 1000), Name: name, Description: description, Active: true}
	s.graph.Permissions[p.ID] = p
	return p, nil
}

func (s *stubRepo) UpdatePermission(ctx context.Context, p Permission) (Permission, error) {
	if _, ok := s.graph.Permissions[p.ID]; !ok {
		return Permission{}, fmt.Errorf("rbac: permission %d: %w", p.ID, shared.ErrNotFound)
	}
	s.graph.Permissions[p.ID] = p
	return p, nil
}

func (s *stubRepo) ListRoles(ctx context.Context) ([]Role, error) {
	var out []Role
	for _, r := range s.graph.Roles {
		out = append(out, r)
	}
	return out, nil
}

func (s *stubRepo) GetRole(ctx context.Context, id int64) (Role, error) {
	r, ok := s.graph.Roles[id]
	if !ok {
		return Role{}, fmt.Errorf("rbac: role %d: %w", id, shared.ErrNotFound)
	}
	return r, nil
}

func (s *stubRepo) CreateRole(ctx context.Context, name, description string, parentID *int64) (Role, error) {
	r := Role{ID: int64(len(s.graph.Roles) + 100), Name: name, Description: description, Active: true, ParentID: parentID}
	s.graph.Roles[r.ID] = r
	return r, nil
}

func (s *stubRepo) UpdateRole(ctx context.Context, r Role) (Role, error) {
	if _, ok := s.graph.Roles[r.ID]; !ok {
		return Role{}, fmt.Errorf("rbac: role %d: %w", r.ID, shared.ErrNotFound)
	}
	s.graph.Roles[r.ID] = r
	return r, nil
}

func (s *stubRepo) ReparentRole(ctx context.Context, roleID int64, parentID *int64) error {
	s.reparentCalls = append(s.reparentCalls, reparentCall{roleID: roleID, parentID: parentID})
	r := s.graph.Roles[roleID]
	r.ParentID = parentID
	s.graph.Roles[roleID] = r
	return nil
}

func (s *stubRepo) AttachPermission(ctx context.Context, roleID, permissionID int64) error {
	r := s.graph.Roles[roleID]
	r.PermissionIDs = append(r.PermissionIDs, permissionID)
	s.graph.Roles[roleID] = r
	return nil
}

func (s *stubRepo) DetachPermission(ctx context.Context, roleID, permissionID int64) error {
	r := s.graph.Roles[roleID]
	kept := make([]int64, 0, len(r.PermissionIDs))
	for _, id := range r.PermissionIDs {
		if id != permissionID {
			kept = append(kept, id)
		}
	}
	r.PermissionIDs = kept
	s.graph.Roles[roleID] = r
	return nil
}

func (s *stubRepo) ListProfiles(ctx context.Context) ([]RoleProfile, error) {
	var out []RoleProfile
	for _, p := range s.graph.Profiles {
		out = append(out, p)
	}
	return out, nil
}

func (s *stubRepo) GetProfile(ctx context.Context, id int64) (RoleProfile, error) {
	p, ok := s.graph.Profiles[id]
	if !ok {
		return RoleProfile{}, fmt.Errorf("rbac: profile %d: %w", id, shared.ErrNotFound)
	}
	return p, nil
}

func (s *stubRepo) CreateProfile(ctx context.Context, p RoleProfile) (RoleProfile, error) {
	p.ID = int64(len(s.graph.Profiles) + 10)
	s.graph.Profiles[p.ID] = p
	return p, nil
}

func (s *stubRepo) UpdateProfile(ctx context.Context, p RoleProfile) (RoleProfile, error) {
	if _, ok := s.graph.Profiles[p.ID]; !ok {
		return RoleProfile{}, fmt.Errorf("rbac: profile %d: %w", p.ID, shared.ErrNotFound)
	}
	s.graph.Profiles[p.ID] = p
	return p, nil
}

func (s *stubRepo) DeleteProfile(ctx context.Context, id int64) error {
	delete(s.graph.Profiles, id)
	return nil
}

func (s *stubRepo) AddProfileRole(ctx context.Context, profileID, roleID int64) error    { return nil }
func (s *stubRepo) RemoveProfileRole(ctx context.Context, profileID, roleID int64) error { return nil }

func (s *stubRepo) UserAuthorization(ctx context.Context, userID int64) ([]int64, []int64, error) {
	return s.userRoles, s.userProfiles, nil
}

type stubRecorder struct {
	entries []audit.Entry
	fail    error
}

func (s *stubRecorder) Record(ctx context.Context, entry audit.Entry) error {
	if s.fail != nil {
		return s.fail
	}
	s.entries = append(s.entries, entry)
	return nil
}

func newTestService(repo *stubRepo, rec *stubRecorder) *Service {
	return NewService(repo, rec, slog.Default())
}

func strptr(s string) *string { return &s }

func hasPermission(perms []Permission, name string) bool {
	for _, p := range perms {
		if p.Name == name {
			return true
		}
	}
	return false
}

func TestCreatePermissionAuditsAndInvalidates(t *testing.T) {
	repo := &stubRepo{graph: chainGraph()}
	rec := &stubRecorder{}
	svc := newTestService(repo, rec)
	ctx := context.Background()

	if _, err := svc.Snapshot(ctx); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	perm, err := svc.CreatePermission(ctx, "  exports.run  ", "run exports")
	if err != nil {
		t.Fatalf("create permission: %v", err)
	}
	if perm.Name != "exports.run" {
		t.Fatalf("expected trimmed name, got %q", perm.Name)
	}
	if len(rec.entries) != 1 || rec.entries[0].Action != "CREATE" || rec.entries[0].EntityType != "Permission" {
		t.Fatalf("expected one CREATE audit entry, got %+v", rec.entries)
	}

	if _, err := svc.Snapshot(ctx); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if repo.loadCalls != 2 {
		t.Fatalf("mutation must invalidate the snapshot, got %d loads", repo.loadCalls)
	}
}

func TestCreatePermissionRejectsBlankName(t *testing.T) {
	svc := newTestService(&stubRepo{graph: chainGraph()}, &stubRecorder{})
	if _, err := svc.CreatePermission(context.Background(), "   ", ""); err == nil {
		t.Fatalf("expected error for blank name")
	}
}

func TestCreatePermissionConflictPassthrough(t *testing.T) {
	repo := &stubRepo{
		graph:         chainGraph(),
		createPermErr: fmt.Errorf("rbac: permission %q: %w", "dup", shared.ErrConflict),
	}
	svc := newTestService(repo, &stubRecorder{})
	_, err := svc.CreatePermission(context.Background(), "dup", "")
	if !errors.Is(err, shared.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestUpdateRoleRejectsCycle(t *testing.T) {
	repo := &stubRepo{graph: chainGraph()}
	svc := newTestService(repo, &stubRecorder{})

	_, err := svc.UpdateRole(context.Background(), 1, RoleUpdate{ParentID: ptr(4)})
	if !errors.Is(err, shared.ErrCircularInheritance) {
		t.Fatalf("expected circular inheritance rejection, got %v", err)
	}
	if len(repo.reparentCalls) != 0 {
		t.Fatalf("vetoed reparent must not reach storage")
	}
}

func TestUpdateRoleReparents(t *testing.T) {
	repo := &stubRepo{graph: NewGraph(
		[]Role{
			role(1, "ADMIN", nil),
			role(2, "MANAGER", ptr(1)),
			role(3, "OPERATOR", ptr(1)),
		},
		nil, nil,
	)}
	rec := &stubRecorder{}
	svc := newTestService(repo, rec)

	updated, err := svc.UpdateRole(context.Background(), 3, RoleUpdate{ParentID: ptr(2)})
	if err != nil {
		t.Fatalf("update role: %v", err)
	}
	if updated.ParentID == nil || *updated.ParentID != 2 {
		t.Fatalf("expected new parent 2, got %v", updated.ParentID)
	}
	if len(repo.reparentCalls) != 1 || repo.reparentCalls[0].roleID != 3 {
		t.Fatalf("expected one reparent call, got %+v", repo.reparentCalls)
	}
}

func TestUpdateRoleVetoLeavesRoleUntouched(t *testing.T) {
	repo := &stubRepo{graph: chainGraph()}
	rec := &stubRecorder{}
	svc := newTestService(repo, rec)
	ctx := context.Background()

	_, err := svc.UpdateRole(ctx, 1, RoleUpdate{Name: strptr("ADMIN_RENAMED"), ParentID: ptr(4)})
	if !errors.Is(err, shared.ErrCircularInheritance) {
		t.Fatalf("expected circular inheritance rejection, got %v", err)
	}
	got, err := svc.GetRole(ctx, 1)
	if err != nil {
		t.Fatalf("get role: %v", err)
	}
	if got.Name != "ADMIN" {
		t.Fatalf("rejected update must not persist the rename, got %q", got.Name)
	}

	_, err = svc.UpdateRole(ctx, 2, RoleUpdate{Name: strptr("MANAGER_RENAMED"), ParentID: ptr(99)})
	if !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("expected not found for unknown parent, got %v", err)
	}
	got, err = svc.GetRole(ctx, 2)
	if err != nil {
		t.Fatalf("get role: %v", err)
	}
	if got.Name != "MANAGER" {
		t.Fatalf("rejected update must not persist the rename, got %q", got.Name)
	}

	if len(rec.entries) != 0 {
		t.Fatalf("rejected updates must not audit, got %+v", rec.entries)
	}
}

func TestUpdateRoleUnknownParent(t *testing.T) {
	repo := &stubRepo{graph: chainGraph()}
	svc := newTestService(repo, &stubRecorder{})

	_, err := svc.UpdateRole(context.Background(), 2, RoleUpdate{ParentID: ptr(99)})
	if !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("expected not found for unknown parent, got %v", err)
	}
}

func TestRolePermissionMutationRefreshesResolution(t *testing.T) {
	repo := &stubRepo{graph: chainGraph()}
	svc := newTestService(repo, &stubRecorder{})
	ctx := context.Background()

	perms, err := svc.RoleEffectivePermissions(ctx, 4)
	if err != nil {
		t.Fatalf("effective permissions: %v", err)
	}
	if len(perms) != 4 {
		t.Fatalf("expected 4 permissions before the grant, got %d", len(perms))
	}

	created, err := svc.CreatePermission(ctx, "exports.run", "")
	if err != nil {
		t.Fatalf("create permission: %v", err)
	}
	if err := svc.AddPermissionToRole(ctx, 1, created.ID); err != nil {
		t.Fatalf("add permission to role: %v", err)
	}

	// Grant on the root is visible at the bottom of the chain without
	// waiting out a stale snapshot.
	perms, err = svc.RoleEffectivePermissions(ctx, 4)
	if err != nil {
		t.Fatalf("effective permissions: %v", err)
	}
	if !hasPermission(perms, "exports.run") {
		t.Fatalf("descendant must inherit the new root permission, got %v", perms)
	}

	if err := svc.RemovePermissionFromRole(ctx, 1, created.ID); err != nil {
		t.Fatalf("remove permission from role: %v", err)
	}
	perms, err = svc.RoleEffectivePermissions(ctx, 4)
	if err != nil {
		t.Fatalf("effective permissions: %v", err)
	}
	if hasPermission(perms, "exports.run") {
		t.Fatalf("revoked root permission must disappear from the descendant, got %v", perms)
	}
}

func TestUpdateProfileNameOnlyKeepsRoles(t *testing.T) {
	g := NewGraph(
		[]Role{
			role(1, "ADMIN", nil, 101),
			role(2, "AUDITOR", nil, 102),
		},
		[]Permission{
			perm(101, "system.admin", true),
			perm(102, "audit.view", true),
		},
		[]RoleProfile{profile(10, "Audit Pack", 1, 2)},
	)
	repo := &stubRepo{graph: g}
	rec := &stubRecorder{}
	svc := newTestService(repo, rec)

	updated, err := svc.UpdateProfile(context.Background(), 10, ProfileUpdate{Name: strptr("Audit Pack v2")})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.Name != "Audit Pack v2" {
		t.Fatalf("expected renamed profile, got %q", updated.Name)
	}
	if len(updated.RoleIDs) != 2 {
		t.Fatalf("role links must survive a name-only update, got %v", updated.RoleIDs)
	}
	if len(rec.entries) != 1 || !strings.Contains(rec.entries[0].NewValue, "roles=2") {
		t.Fatalf("audit must report the kept role set, got %+v", rec.entries)
	}
}

func TestAuditFailureDoesNotBlockMutation(t *testing.T) {
	repo := &stubRepo{graph: chainGraph()}
	rec := &stubRecorder{fail: errors.New("sink down")}
	svc := newTestService(repo, rec)

	if _, err := svc.CreatePermission(context.Background(), "exports.run", ""); err != nil {
		t.Fatalf("audit failure must not fail the mutation: %v", err)
	}
}

func TestEffectivePermissionsActiveOnly(t *testing.T) {
	g := NewGraph(
		[]Role{role(1, "ADMIN", nil, 101, 102)},
		[]Permission{
			perm(101, "system.admin", true),
			perm(102, "legacy.export", false),
		},
		nil,
	)
	repo := &stubRepo{graph: g, userRoles: []int64{1}}
	svc := newTestService(repo, &stubRecorder{})

	names, err := svc.EffectivePermissions(context.Background(), 7)
	if err != nil {
		t.Fatalf("effective permissions: %v", err)
	}
	if len(names) != 1 || names[0] != "system.admin" {
		t.Fatalf("expected active names only, got %v", names)
	}
}

func TestAuthoritiesForUser(t *testing.T) {
	g := NewGraph(
		[]Role{
			role(1, "ADMIN", nil, 101),
			role(2, "AUDITOR", nil, 102),
		},
		[]Permission{
			perm(101, "system.admin", true),
			perm(102, "audit.view", true),
		},
		[]RoleProfile{profile(10, "Audit Pack", 2)},
	)
	repo := &stubRepo{graph: g, userRoles: []int64{1}, userProfiles: []int64{10}}
	svc := newTestService(repo, &stubRecorder{})

	grants, err := svc.AuthoritiesForUser(context.Background(), 7)
	if err != nil {
		t.Fatalf("authorities: %v", err)
	}
	want := []string{"ROLE_ADMIN", "ROLE_AUDITOR", "audit.view", "system.admin"}
	if len(grants) != len(want) {
		t.Fatalf("expected %v, got %v", want, grants)
	}
	for i := range want {
		if grants[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, grants)
		}
	}
}
