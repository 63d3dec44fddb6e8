package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dsa-dev/backoffice/internal/platform/db"
	"github.com/dsa-dev/backoffice/internal/shared"
)

// RepositoryPort defines data access methods for customers.
type RepositoryPort interface {
	List(ctx context.Context, activeOnly bool) ([]Customer, error)
	SearchByName(ctx context.Context, keyword string) ([]Customer, error)
	Get(ctx context.Context, id int64) (Customer, error)
	Create(ctx context.Context, c Customer) (Customer, error)
	Update(ctx context.Context, c Customer) (Customer, error)
	Delete(ctx context.Context, id int64) error
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

const customerColumns = `id, name, email, COALESCE(phone, ''), COALESCE(address, ''), active,
	COALESCE(created_by, ''), COALESCE(updated_by, ''), created_at, updated_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.Active,
		&c.CreatedBy, &c.UpdatedBy, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// List returns all customers, optionally only active ones.
func (r *Repository) List(ctx context.Context, activeOnly bool) ([]Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// SearchByName returns customers whose name contains the keyword.
func (r *Repository) SearchByName(ctx context.Context, keyword string) ([]Customer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE name ILIKE $1 ORDER BY name`,
		"%"+keyword+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func collect(rows pgx.Rows) ([]Customer, error) {
	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Get fetches a customer by ID.
func (r *Repository) Get(ctx context.Context, id int64) (Customer, error) {
	c, err := scanCustomer(r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, fmt.Errorf("customers: customer %d: %w", id, shared.ErrNotFound)
	}
	return c, err
}

// Create inserts a customer. A duplicate email maps to a conflict.
func (r *Repository) Create(ctx context.Context, c Customer) (Customer, error) {
	out, err := scanCustomer(r.pool.QueryRow(ctx,
		`INSERT INTO customers (name, email, phone, address, active, created_by, updated_by)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $6)
		 RETURNING `+customerColumns,
		c.Name, c.Email, c.Phone, c.Address, c.Active, c.CreatedBy))
	if db.IsUniqueViolation(err) {
		return Customer{}, fmt.Errorf("customers: email %q: %w", c.Email, shared.ErrConflict)
	}
	return out, err
}

// Update persists customer field changes.
func (r *Repository) Update(ctx context.Context, c Customer) (Customer, error) {
	out, err := scanCustomer(r.pool.QueryRow(ctx,
		`UPDATE customers SET name = $2, email = $3, phone = NULLIF($4, ''), address = NULLIF($5, ''),
		        active = $6, updated_by = $7, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+customerColumns,
		c.ID, c.Name, c.Email, c.Phone, c.Address, c.Active, c.UpdatedBy))
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, fmt.Errorf("customers: customer %d: %w", c.ID, shared.ErrNotFound)
	}
	if db.IsUniqueViolation(err) {
		return Customer{}, fmt.Errorf("customers: email %q: %w", c.Email, shared.ErrConflict)
	}
	return out, err
}

// Delete removes a customer. Accounts referencing it block the delete
// through the foreign key, surfaced as a conflict.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("customers: customer %d still holds accounts: %w", id, shared.ErrConflict)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("customers: customer %d: %w", id, shared.ErrNotFound)
	}
	return nil
}
