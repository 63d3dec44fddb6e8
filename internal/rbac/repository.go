package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/dsa-dev/backoffice/internal/platform/db"
	"github.com/dsa-dev/backoffice/internal/shared"
)

// Repository defines persistence operations for the RBAC structure.
type Repository interface {
	LoadGraph(ctx context.Context) (*Graph, error)

	ListPermissions(ctx context.Context) ([]Permission, error)
	GetPermission(ctx context.Context, id int64) (Permission, error)
	CreatePermission(ctx context.Context, name, description string) (Permission, error)
	UpdatePermission(ctx context.Context, p Permission) (Permission, error)

	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, name, description string, parentID *int64) (Role, error)
	UpdateRole(ctx context.Context, r Role) (Role, error)
	ReparentRole(ctx context.Context, roleID int64, parentID *int64) error
	AttachPermission(ctx context.Context, roleID, permissionID int64) error
	DetachPermission(ctx context.Context, roleID, permissionID int64) error

	ListProfiles(ctx context.Context) ([]RoleProfile, error)
	GetProfile(ctx context.Context, id int64) (RoleProfile, error)
	CreateProfile(ctx context.Context, p RoleProfile) (RoleProfile, error)
	UpdateProfile(ctx context.Context, p RoleProfile) (RoleProfile, error)
	DeleteProfile(ctx context.Context, id int64) error
	AddProfileRole(ctx context.Context, profileID, roleID int64) error
	RemoveProfileRole(ctx context.Context, profileID, roleID int64) error

	UserAuthorization(ctx context.Context, userID int64) (roleIDs, profileIDs []int64, err error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

// LoadGraph batch-fetches the full role/permission structure in parallel
// and assembles an immutable snapshot. The resolver only ever sees this
// snapshot, keeping the closure computation free of persistence concerns.
func (r *PGRepository) LoadGraph(ctx context.Context) (*Graph, error) {
	var (
		roles     []Role
		perms     []Permission
		profiles  []RoleProfile
		rolePerms map[int64][]int64
		profRoles map[int64][]int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		roles, err = r.ListRoles(gctx)
		return err
	})
	g.Go(func() (err error) {
		perms, err = r.ListPermissions(gctx)
		return err
	})
	g.Go(func() (err error) {
		profiles, err = r.listProfileRecords(gctx)
		return err
	})
	g.Go(func() (err error) {
		rolePerms, err = r.loadLinks(gctx, `SELECT role_id, permission_id FROM role_permissions`)
		return err
	})
	g.Go(func() (err error) {
		profRoles, err = r.loadLinks(gctx, `SELECT profile_id, role_id FROM profile_roles`)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range roles {
		roles[i].PermissionIDs = rolePerms[roles[i].ID]
	}
	for i := range profiles {
		profiles[i].RoleIDs = profRoles[profiles[i].ID]
	}
	return NewGraph(roles, perms, profiles), nil
}

func (r *PGRepository) loadLinks(ctx context.Context, query string) (map[int64][]int64, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	links := make(map[int64][]int64)
	for rows.Next() {
		var from, to int64
		if err := rows.Scan(&from, &to); err != nil {
			return nil, err
		}
		links[from] = append(links[from], to)
	}
	return links, rows.Err()
}

// ListPermissions returns all permissions ordered by name.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, is_active, created_at, updated_at FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// GetPermission fetches a permission by ID.
func (r *PGRepository) GetPermission(ctx context.Context, id int64) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx, `SELECT id, name, description, is_active, created_at, updated_at FROM permissions WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Permission{}, fmt.Errorf("rbac: permission %d: %w", id, shared.ErrNotFound)
	}
	return p, err
}

// CreatePermission inserts a new active permission.
func (r *PGRepository) CreatePermission(ctx context.Context, name, description string) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx,
		`INSERT INTO permissions (name, description, is_active) VALUES ($1, $2, TRUE)
		 RETURNING id, name, description, is_active, created_at, updated_at`, name, description).
		Scan(&p.ID, &p.Name, &p.Description, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return Permission{}, fmt.Errorf("rbac: permission %q: %w", name, shared.ErrConflict)
	}
	return p, err
}

// UpdatePermission persists name/description/active changes.
func (r *PGRepository) UpdatePermission(ctx context.Context, p Permission) (Permission, error) {
	var out Permission
	err := r.pool.QueryRow(ctx,
		`UPDATE permissions SET name = $2, description = $3, is_active = $4, updated_at = NOW()
		 WHERE id = $1
		 RETURNING id, name, description, is_active, created_at, updated_at`,
		p.ID, p.Name, p.Description, p.Active).
		Scan(&out.ID, &out.Name, &out.Description, &out.Active, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Permission{}, fmt.Errorf("rbac: permission %d: %w", p.ID, shared.ErrNotFound)
	}
	if db.IsUniqueViolation(err) {
		return Permission{}, fmt.Errorf("rbac: permission %q: %w", p.Name, shared.ErrConflict)
	}
	return out, err
}

// ListRoles returns all roles ordered by name.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, is_active, parent_role_id, created_at, updated_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.Active, &role.ParentID, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by ID including its direct permission ids.
func (r *PGRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `SELECT id, name, description, is_active, parent_role_id, created_at, updated_at FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.Description, &role.Active, &role.ParentID, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, fmt.Errorf("rbac: role %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Role{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT permission_id FROM role_permissions WHERE role_id = $1`, id)
	if err != nil {
		return Role{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var pid int64
		if err := rows.Scan(&pid); err != nil {
			return Role{}, err
		}
		role.PermissionIDs = append(role.PermissionIDs, pid)
	}
	return role, rows.Err()
}

// CreateRole inserts a new role, optionally under a parent. The parent is
// verified inside the same transaction so a concurrent delete cannot
// leave a dangling reference.
func (r *PGRepository) CreateRole(ctx context.Context, name, description string, parentID *int64) (Role, error) {
	var role Role
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if parentID != nil {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, *parentID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("rbac: parent role %d: %w", *parentID, shared.ErrNotFound)
			}
		}
		return tx.QueryRow(ctx,
			`INSERT INTO roles (name, description, is_active, parent_role_id) VALUES ($1, $2, TRUE, $3)
			 RETURNING id, name, description, is_active, parent_role_id, created_at, updated_at`,
			name, description, parentID).
			Scan(&role.ID, &role.Name, &role.Description, &role.Active, &role.ParentID, &role.CreatedAt, &role.UpdatedAt)
	})
	if db.IsUniqueViolation(err) {
		return Role{}, fmt.Errorf("rbac: role %q: %w", name, shared.ErrConflict)
	}
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// UpdateRole persists name/description/active changes. Parent changes go
// through ReparentRole, which holds the cycle guard.
func (r *PGRepository) UpdateRole(ctx context.Context, role Role) (Role, error) {
	var out Role
	err := r.pool.QueryRow(ctx,
		`UPDATE roles SET name = $2, description = $3, is_active = $4, updated_at = NOW()
		 WHERE id = $1
		 RETURNING id, name, description, is_active, parent_role_id, created_at, updated_at`,
		role.ID, role.Name, role.Description, role.Active).
		Scan(&out.ID, &out.Name, &out.Description, &out.Active, &out.ParentID, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, fmt.Errorf("rbac: role %d: %w", role.ID, shared.ErrNotFound)
	}
	if db.IsUniqueViolation(err) {
		return Role{}, fmt.Errorf("rbac: role %q: %w", role.Name, shared.ErrConflict)
	}
	return out, err
}

// ReparentRole changes a role's parent reference. The cycle check and the
// write happen in one transaction with the role and its proposed ancestor
// chain locked, so two administrators reparenting concurrently cannot
// each pass a stale check and jointly introduce a cycle.
func (r *PGRepository) ReparentRole(ctx context.Context, roleID int64, parentID *int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var id int64
		if err := tx.QueryRow(ctx, `SELECT id FROM roles WHERE id = $1 FOR UPDATE`, roleID).Scan(&id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("rbac: role %d: %w", roleID, shared.ErrNotFound)
			}
			return err
		}

		if parentID != nil {
			cur := *parentID
			for {
				if cur == roleID {
					return fmt.Errorf("rbac: role %d cannot inherit from its own descendant %d: %w", roleID, *parentID, shared.ErrCircularInheritance)
				}
				var next *int64
				err := tx.QueryRow(ctx, `SELECT parent_role_id FROM roles WHERE id = $1 FOR UPDATE`, cur).Scan(&next)
				if errors.Is(err, pgx.ErrNoRows) {
					return fmt.Errorf("rbac: parent role %d: %w", cur, shared.ErrNotFound)
				}
				if err != nil {
					return err
				}
				if next == nil {
					break
				}
				cur = *next
			}
		}

		_, err := tx.Exec(ctx, `UPDATE roles SET parent_role_id = $2, updated_at = NOW() WHERE id = $1`, roleID, parentID)
		return err
	})
}

// AttachPermission links a permission to a role. Attaching twice is a
// no-op.
func (r *PGRepository) AttachPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		roleID, permissionID)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("rbac: role %d or permission %d: %w", roleID, permissionID, shared.ErrNotFound)
	}
	return err
}

// DetachPermission unlinks a permission from a role.
func (r *PGRepository) DetachPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	return err
}

func (r *PGRepository) listProfileRecords(ctx context.Context) ([]RoleProfile, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, is_active, created_by, updated_by, created_at, updated_at FROM role_profiles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var profiles []RoleProfile
	for rows.Next() {
		var p RoleProfile
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Active, &p.CreatedBy, &p.UpdatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// ListProfiles returns all role profiles with their role ids attached.
func (r *PGRepository) ListProfiles(ctx context.Context) ([]RoleProfile, error) {
	profiles, err := r.listProfileRecords(ctx)
	if err != nil {
		return nil, err
	}
	links, err := r.loadLinks(ctx, `SELECT profile_id, role_id FROM profile_roles`)
	if err != nil {
		return nil, err
	}
	for i := range profiles {
		profiles[i].RoleIDs = links[profiles[i].ID]
	}
	return profiles, nil
}

// GetProfile fetches a profile by ID including its role ids.
func (r *PGRepository) GetProfile(ctx context.Context, id int64) (RoleProfile, error) {
	var p RoleProfile
	err := r.pool.QueryRow(ctx, `SELECT id, name, description, is_active, created_by, updated_by, created_at, updated_at FROM role_profiles WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.Active, &p.CreatedBy, &p.UpdatedBy, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return RoleProfile{}, fmt.Errorf("rbac: profile %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return RoleProfile{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT role_id FROM profile_roles WHERE profile_id = $1`, id)
	if err != nil {
		return RoleProfile{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var rid int64
		if err := rows.Scan(&rid); err != nil {
			return RoleProfile{}, err
		}
		p.RoleIDs = append(p.RoleIDs, rid)
	}
	return p, rows.Err()
}

// CreateProfile inserts a profile and links its initial role set in one
// transaction.
func (r *PGRepository) CreateProfile(ctx context.Context, p RoleProfile) (RoleProfile, error) {
	var out RoleProfile
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO role_profiles (name, description, is_active, created_by, updated_by) VALUES ($1, $2, $3, $4, $4)
			 RETURNING id, name, description, is_active, created_by, updated_by, created_at, updated_at`,
			p.Name, p.Description, p.Active, p.CreatedBy).
			Scan(&out.ID, &out.Name, &out.Description, &out.Active, &out.CreatedBy, &out.UpdatedBy, &out.CreatedAt, &out.UpdatedAt); err != nil {
			return err
		}
		for _, rid := range p.RoleIDs {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, rid).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("rbac: role %d: %w", rid, shared.ErrNotFound)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO profile_roles (profile_id, role_id) VALUES ($1, $2)`, out.ID, rid); err != nil {
				return err
			}
		}
		out.RoleIDs = p.RoleIDs
		return nil
	})
	if db.IsUniqueViolation(err) {
		return RoleProfile{}, fmt.Errorf("rbac: profile %q: %w", p.Name, shared.ErrConflict)
	}
	if err != nil {
		return RoleProfile{}, err
	}
	return out, nil
}

// UpdateProfile persists profile fields and, when RoleIDs is non-nil,
// replaces the linked role set.
func (r *PGRepository) UpdateProfile(ctx context.Context, p RoleProfile) (RoleProfile, error) {
	var out RoleProfile
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`UPDATE role_profiles SET name = $2, description = $3, is_active = $4, updated_by = $5, updated_at = NOW()
			 WHERE id = $1
			 RETURNING id, name, description, is_active, created_by, updated_by, created_at, updated_at`,
			p.ID, p.Name, p.Description, p.Active, p.UpdatedBy).
			Scan(&out.ID, &out.Name, &out.Description, &out.Active, &out.CreatedBy, &out.UpdatedBy, &out.CreatedAt, &out.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("rbac: profile %d: %w", p.ID, shared.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if p.RoleIDs == nil {
			return nil
		}
		if _, err := tx.Exec(ctx, `DELETE FROM profile_roles WHERE profile_id = $1`, p.ID); err != nil {
			return err
		}
		for _, rid := range p.RoleIDs {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, rid).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("rbac: role %d: %w", rid, shared.ErrNotFound)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO profile_roles (profile_id, role_id) VALUES ($1, $2)`, p.ID, rid); err != nil {
				return err
			}
		}
		out.RoleIDs = p.RoleIDs
		return nil
	})
	if db.IsUniqueViolation(err) {
		return RoleProfile{}, fmt.Errorf("rbac: profile %q: %w", p.Name, shared.ErrConflict)
	}
	if err != nil {
		return RoleProfile{}, err
	}
	return out, nil
}

// DeleteProfile removes a profile and its role links.
func (r *PGRepository) DeleteProfile(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM role_profiles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rbac: profile %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

// AddProfileRole links a role to a profile.
func (r *PGRepository) AddProfileRole(ctx context.Context, profileID, roleID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO profile_roles (profile_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		profileID, roleID)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("rbac: profile %d or role %d: %w", profileID, roleID, shared.ErrNotFound)
	}
	return err
}

// RemoveProfileRole unlinks a role from a profile.
func (r *PGRepository) RemoveProfileRole(ctx context.Context, profileID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM profile_roles WHERE profile_id = $1 AND role_id = $2`, profileID, roleID)
	return err
}

// UserAuthorization returns the role and profile ids assigned to a user.
func (r *PGRepository) UserAuthorization(ctx context.Context, userID int64) ([]int64, []int64, error) {
	var roleIDs, profileIDs []int64

	rows, err := r.pool.Query(ctx, `SELECT role_id FROM user_roles WHERE user_id = $1`, userID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, nil, err
		}
		roleIDs = append(roleIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	prows, err := r.pool.Query(ctx, `SELECT profile_id FROM user_profiles WHERE user_id = $1`, userID)
	if err != nil {
		return nil, nil, err
	}
	defer prows.Close()
	for prows.Next() {
		var id int64
		if err := prows.Scan(&id); err != nil {
			return nil, nil, err
		}
		profileIDs = append(profileIDs, id)
	}
	return roleIDs, profileIDs, prows.Err()
}
