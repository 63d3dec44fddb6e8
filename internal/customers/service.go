package customers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dsa-dev/backoffice/internal/audit"
	"github.com/dsa-dev/backoffice/internal/shared"
)

// Service handles customer business logic.
type Service struct {
	repo   RepositoryPort
	audit  audit.Recorder
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, recorder audit.Recorder, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: recorder, logger: logger}
}

// List returns customers, optionally only active ones.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]Customer, error) {
	return s.repo.List(ctx, activeOnly)
}

// Search returns customers matching a name keyword; a blank keyword
// lists everyone.
func (s *Service) Search(ctx context.Context, keyword string) ([]Customer, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return s.repo.List(ctx, false)
	}
	return s.repo.SearchByName(ctx, keyword)
}

// Get fetches one customer.
func (s *Service) Get(ctx context.Context, id int64) (Customer, error) {
	return s.repo.Get(ctx, id)
}

// CreateInput carries the fields needed to register a customer.
type CreateInput struct {
	Name    string
	Email   string
	Phone   string
	Address string
}

// Create registers a customer.
func (s *Service) Create(ctx context.Context, in CreateInput) (Customer, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Customer{}, errors.New("customers: name required")
	}
	customer, err := s.repo.Create(ctx, Customer{
		Name:      name,
		Email:     strings.TrimSpace(in.Email),
		Phone:     strings.TrimSpace(in.Phone),
		Address:   strings.TrimSpace(in.Address),
		Active:    true,
		CreatedBy: shared.ActorFromContext(ctx),
	})
	if err != nil {
		return Customer{}, err
	}
	s.recordAudit(ctx, "CREATE", customer.ID, "Created customer: "+customer.Name, "", customerString(customer))
	return customer, nil
}

// UpdateInput carries partial customer changes; nil fields are left
// untouched.
type UpdateInput struct {
	Name    *string
	Email   *string
	Phone   *string
	Address *string
	Active  *bool
}

// Update applies partial changes to a customer.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (Customer, error) {
	customer, err := s.repo.Get(ctx, id)
	if err != nil {
		return Customer{}, err
	}
	before := customerString(customer)

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return Customer{}, errors.New("customers: name required")
		}
		customer.Name = name
	}
	if in.Email != nil {
		customer.Email = strings.TrimSpace(*in.Email)
	}
	if in.Phone != nil {
		customer.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.Address != nil {
		customer.Address = strings.TrimSpace(*in.Address)
	}
	if in.Active != nil {
		customer.Active = *in.Active
	}
	customer.UpdatedBy = shared.ActorFromContext(ctx)

	customer, err = s.repo.Update(ctx, customer)
	if err != nil {
		return Customer{}, err
	}
	s.recordAudit(ctx, "UPDATE", customer.ID, "Updated customer: "+customer.Name, before, customerString(customer))
	return customer, nil
}

// Delete removes a customer.
func (s *Service) Delete(ctx context.Context, id int64) error {
	customer, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, "DELETE", id, "Deleted customer: "+customer.Name, customerString(customer), "")
	return nil
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, details, oldValue, newValue string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, audit.Entry{
		Action:     action,
		EntityType: "Customer",
		EntityID:   id,
		Details:    details,
		OldValue:   oldValue,
		NewValue:   newValue,
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func customerString(c Customer) string {
	return fmt.Sprintf("Customer{id=%d, name=%s, email=%s, active=%t}", c.ID, c.Name, c.Email, c.Active)
}
