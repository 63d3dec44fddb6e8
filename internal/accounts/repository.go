package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dsa-dev/backoffice/internal/platform/db"
	"github.com/dsa-dev/backoffice/internal/shared"
)

// RepositoryPort defines data access methods for accounts.
type RepositoryPort interface {
	Search(ctx context.Context, spec Specification) ([]Account, error)
	ListAll(ctx context.Context) ([]Account, error)
	ListByCustomer(ctx context.Context, customerID int64) ([]Account, error)
	Get(ctx context.Context, id int64) (Account, error)
	GetByRef(ctx context.Context, accountRef string) (Account, error)
	Create(ctx context.Context, a Account) (Account, error)
	Update(ctx context.Context, a Account) (Account, error)
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

const accountColumns = `a.id, a.account_ref, a.account_name, a.currency, a.status, a.customer_id,
	COALESCE(a.created_by, ''), COALESCE(a.updated_by, ''), a.created_at, a.updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.AccountRef, &a.AccountName, &a.Currency, &a.Status, &a.CustomerID,
		&a.CreatedBy, &a.UpdatedBy, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// Search runs the assembled specification. The customers join is emitted
// at most once; SELECT DISTINCT guards against fan-out when it is.
func (r *Repository) Search(ctx context.Context, spec Specification) ([]Account, error) {
	where, args := spec.SQL()

	query := `SELECT `
	if spec.JoinCustomer {
		query += `DISTINCT `
	}
	query += accountColumns + ` FROM accounts a`
	if spec.JoinCustomer {
		query += ` JOIN customers c ON c.id = a.customer_id`
	}
	if where != "" {
		query += ` ` + where
	}
	query += ` ORDER BY a.id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccounts(rows)
}

// ListAll returns every account ordered by id.
func (r *Repository) ListAll(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts a ORDER BY a.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccounts(rows)
}

// ListByCustomer returns the accounts held by one customer.
func (r *Repository) ListByCustomer(ctx context.Context, customerID int64) ([]Account, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts a WHERE a.customer_id = $1 ORDER BY a.id`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func collectAccounts(rows pgx.Rows) ([]Account, error) {
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Get fetches an account by ID.
func (r *Repository) Get(ctx context.Context, id int64) (Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts a WHERE a.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, fmt.Errorf("accounts: account %d: %w", id, shared.ErrNotFound)
	}
	return a, err
}

// GetByRef fetches an account by its unique reference.
func (r *Repository) GetByRef(ctx context.Context, accountRef string) (Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts a WHERE a.account_ref = $1`, accountRef))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, fmt.Errorf("accounts: reference %q: %w", accountRef, shared.ErrNotFound)
	}
	return a, err
}

// Create inserts an account after verifying the customer exists inside
// the same transaction. A duplicate reference maps to a conflict.
func (r *Repository) Create(ctx context.Context, a Account) (Account, error) {
	var out Account
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`, a.CustomerID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("accounts: customer %d: %w", a.CustomerID, shared.ErrNotFound)
		}
		created, err := scanAccount(tx.QueryRow(ctx,
			`INSERT INTO accounts (account_ref, account_name, currency, status, customer_id, created_by, updated_by)
			 VALUES ($1, $2, $3, $4, $5, $6, $6)
			 RETURNING id, account_ref, account_name, currency, status, customer_id,
			           COALESCE(created_by, ''), COALESCE(updated_by, ''), created_at, updated_at`,
			a.AccountRef, a.AccountName, a.Currency, a.Status, a.CustomerID, a.CreatedBy))
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if db.IsUniqueViolation(err) {
		return Account{}, fmt.Errorf("accounts: reference %q: %w", a.AccountRef, shared.ErrConflict)
	}
	if err != nil {
		return Account{}, err
	}
	return out, nil
}

// Update persists name, currency and status changes. The reference and
// the owning customer are immutable after creation.
func (r *Repository) Update(ctx context.Context, a Account) (Account, error) {
	out, err := scanAccount(r.pool.QueryRow(ctx,
		`UPDATE accounts a SET account_name = $2, currency = $3, status = $4, updated_by = $5, updated_at = NOW()
		 WHERE a.id = $1
		 RETURNING `+accountColumns,
		a.ID, a.AccountName, a.Currency, a.Status, a.UpdatedBy))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, fmt.Errorf("accounts: account %d: %w", a.ID, shared.ErrNotFound)
	}
	return out, err
}

// Delete removes an account.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("accounts: account %d: %w", id, shared.ErrNotFound)
	}
	return nil
}
