package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dsa-dev/backoffice/internal/audit"
	"github.com/dsa-dev/backoffice/internal/shared"
)

// Service handles account business logic.
type Service struct {
	repo   RepositoryPort
	audit  audit.Recorder
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, recorder audit.Recorder, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: recorder, logger: logger}
}

// Search runs the predicate builder over the supplied criteria. Empty
// criteria short-circuits to the unfiltered listing so the degenerate
// search costs the same as a plain scan.
func (s *Service) Search(ctx context.Context, criteria SearchCriteria) ([]Account, error) {
	if criteria.IsEmpty() {
		return s.repo.ListAll(ctx)
	}
	return s.repo.Search(ctx, BuildSpecification(criteria))
}

// ListByCustomer returns the accounts held by one customer.
func (s *Service) ListByCustomer(ctx context.Context, customerID int64) ([]Account, error) {
	return s.repo.ListByCustomer(ctx, customerID)
}

// Get fetches one account.
func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	return s.repo.Get(ctx, id)
}

// GetByRef fetches one account by its unique reference.
func (s *Service) GetByRef(ctx context.Context, accountRef string) (Account, error) {
	return s.repo.GetByRef(ctx, strings.TrimSpace(accountRef))
}

// CreateInput carries the fields needed to open an account.
type CreateInput struct {
	AccountRef  string
	AccountName string
	Currency    string
	Status      AccountStatus
	CustomerID  int64
}

// Create opens an account for a customer.
func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	ref := strings.TrimSpace(in.AccountRef)
	if ref == "" {
		return Account{}, errors.New("accounts: account reference required")
	}
	status := in.Status
	if status == "" {
		status = StatusActive
	}
	if !ValidStatus(status) {
		return Account{}, fmt.Errorf("accounts: unknown status %q", status)
	}
	account, err := s.repo.Create(ctx, Account{
		AccountRef:  ref,
		AccountName: strings.TrimSpace(in.AccountName),
		Currency:    strings.ToUpper(strings.TrimSpace(in.Currency)),
		Status:      status,
		CustomerID:  in.CustomerID,
		CreatedBy:   shared.ActorFromContext(ctx),
	})
	if err != nil {
		return Account{}, err
	}
	s.recordAudit(ctx, "CREATE", account.ID, "Created account: "+account.AccountRef, "", accountString(account))
	return account, nil
}

// UpdateInput carries partial account changes; nil fields are left
// untouched.
type UpdateInput struct {
	AccountName *string
	Currency    *string
	Status      *AccountStatus
}

// Update applies partial changes to an account.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (Account, error) {
	account, err := s.repo.Get(ctx, id)
	if err != nil {
		return Account{}, err
	}
	before := accountString(account)

	if in.AccountName != nil {
		account.AccountName = strings.TrimSpace(*in.AccountName)
	}
	if in.Currency != nil {
		account.Currency = strings.ToUpper(strings.TrimSpace(*in.Currency))
	}
	if in.Status != nil {
		if !ValidStatus(*in.Status) {
			return Account{}, fmt.Errorf("accounts: unknown status %q", *in.Status)
		}
		account.Status = *in.Status
	}
	account.UpdatedBy = shared.ActorFromContext(ctx)

	account, err = s.repo.Update(ctx, account)
	if err != nil {
		return Account{}, err
	}
	s.recordAudit(ctx, "UPDATE", account.ID, "Updated account: "+account.AccountRef, before, accountString(account))
	return account, nil
}

// Delete removes an account.
func (s *Service) Delete(ctx context.Context, id int64) error {
	account, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, "DELETE", id, "Deleted account: "+account.AccountRef, accountString(account), "")
	return nil
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, details, oldValue, newValue string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, audit.Entry{
		Action:     action,
		EntityType: "Account",
		EntityID:   id,
		Details:    details,
		OldValue:   oldValue,
		NewValue:   newValue,
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func accountString(a Account) string {
	return fmt.Sprintf("Account{id=%d, ref=%s, name=%s, status=%s, customer=%d}",
		a.ID, a.AccountRef, a.AccountName, a.Status, a.CustomerID)
}
