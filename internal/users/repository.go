package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dsa-dev/backoffice/internal/platform/db"
	"github.com/dsa-dev/backoffice/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, p shared.Pagination) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
	CreateUser(ctx context.Context, u User) (User, error)
	UpdateUser(ctx context.Context, u User) (User, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	SetPageSize(ctx context.Context, id int64, pageSize int) error
	AssignRole(ctx context.Context, userID, roleID int64) error
	UnassignRole(ctx context.Context, userID, roleID int64) error
	AssignProfile(ctx context.Context, userID, profileID int64) error
	UnassignProfile(ctx context.Context, userID, profileID int64) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

const userColumns = `id, username, email, full_name, password_hash, is_active, page_size, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.PasswordHash, &u.Active, &u.PageSize, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// ListUsers returns one page of users ordered by username.
func (r *Repository) ListUsers(ctx context.Context, p shared.Pagination) ([]User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY username OFFSET $1 LIMIT $2`,
		p.Offset(), p.PerPage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// GetUser fetches a user by ID including assigned role and profile ids.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("users: user %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return User{}, err
	}
	return r.attachAssignments(ctx, u)
}

// GetByUsername fetches a user by username. Used by authentication.
func (r *Repository) GetByUsername(ctx context.Context, username string) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("users: username %q: %w", username, shared.ErrNotFound)
	}
	if err != nil {
		return User{}, err
	}
	return r.attachAssignments(ctx, u)
}

func (r *Repository) attachAssignments(ctx context.Context, u User) (User, error) {
	roleIDs, err := r.loadIDs(ctx, `SELECT role_id FROM user_roles WHERE user_id = $1`, u.ID)
	if err != nil {
		return User{}, err
	}
	profileIDs, err := r.loadIDs(ctx, `SELECT profile_id FROM user_profiles WHERE user_id = $1`, u.ID)
	if err != nil {
		return User{}, err
	}
	u.RoleIDs = roleIDs
	u.ProfileIDs = profileIDs
	return u, nil
}

func (r *Repository) loadIDs(ctx context.Context, query string, arg any) ([]int64, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateUser inserts the account and its initial role/profile assignments
// in one transaction. Duplicate username or email maps to a conflict.
func (r *Repository) CreateUser(ctx context.Context, u User) (User, error) {
	var out User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		created, err := scanUser(tx.QueryRow(ctx,
			`INSERT INTO users (username, email, full_name, password_hash, is_active, page_size)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING `+userColumns,
			u.Username, u.Email, u.FullName, u.PasswordHash, u.Active, u.PageSize))
		if err != nil {
			return err
		}
		for _, rid := range u.RoleIDs {
			if _, err := tx.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`, created.ID, rid); err != nil {
				return err
			}
		}
		for _, pid := range u.ProfileIDs {
			if _, err := tx.Exec(ctx, `INSERT INTO user_profiles (user_id, profile_id) VALUES ($1, $2)`, created.ID, pid); err != nil {
				return err
			}
		}
		created.RoleIDs = u.RoleIDs
		created.ProfileIDs = u.ProfileIDs
		out = created
		return nil
	})
	if db.IsUniqueViolation(err) {
		return User{}, fmt.Errorf("users: username or email taken: %w", shared.ErrConflict)
	}
	if db.IsForeignKeyViolation(err) {
		return User{}, fmt.Errorf("users: role or profile assignment: %w", shared.ErrNotFound)
	}
	if err != nil {
		return User{}, err
	}
	return out, nil
}

// UpdateUser persists identity fields; password and assignments have
// dedicated operations.
func (r *Repository) UpdateUser(ctx context.Context, u User) (User, error) {
	out, err := scanUser(r.pool.QueryRow(ctx,
		`UPDATE users SET username = $2, email = $3, full_name = $4, is_active = $5, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+userColumns,
		u.ID, u.Username, u.Email, u.FullName, u.Active))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("users: user %d: %w", u.ID, shared.ErrNotFound)
	}
	if db.IsUniqueViolation(err) {
		return User{}, fmt.Errorf("users: username or email taken: %w", shared.ErrConflict)
	}
	if err != nil {
		return User{}, err
	}
	return r.attachAssignments(ctx, out)
}

// UpdatePassword replaces the stored hash.
func (r *Repository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("users: user %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

// SetPageSize stores the listing size preference.
func (r *Repository) SetPageSize(ctx context.Context, id int64, pageSize int) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET page_size = $2, updated_at = NOW() WHERE id = $1`, id, pageSize)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("users: user %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

// AssignRole links a role to a user. Assigning twice is a no-op.
func (r *Repository) AssignRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, roleID)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("users: user %d or role %d: %w", userID, roleID, shared.ErrNotFound)
	}
	return err
}

// UnassignRole unlinks a role from a user.
func (r *Repository) UnassignRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	return err
}

// AssignProfile links a profile to a user. Assigning twice is a no-op.
func (r *Repository) AssignProfile(ctx context.Context, userID, profileID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_profiles (user_id, profile_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, profileID)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("users: user %d or profile %d: %w", userID, profileID, shared.ErrNotFound)
	}
	return err
}

// UnassignProfile unlinks a profile from a user.
func (r *Repository) UnassignProfile(ctx context.Context, userID, profileID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_profiles WHERE user_id = $1 AND profile_id = $2`, userID, profileID)
	return err
}
