package customers

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

type stubCustomerRepo struct {
	customers map[int64]Customer
	nextID    int64

	listCalls   int
	searchCalls int
}

func newStubCustomerRepo() *stubCustomerRepo {
	return &stubCustomerRepo{customers: make(map[int64]Customer), nextID: 1}
}

func (s *stubCustomerRepo) List(ctx context.Context, activeOnly bool) ([]Customer, error) {
	s.listCalls++
	var out []Customer
	for _, c := range s.customers {
		if activeOnly && !c.Active {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *stubCustomerRepo) SearchByName(ctx context.Context, keyword string) ([]Customer, error) {
	s.searchCalls++
	var out []Customer
	for _, c := range s.customers {
		if strings.Contains(strings.ToLower(c.Name), strings.ToLower(keyword)) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *stubCustomerRepo) Get(ctx context.Context, id int64) (Customer, error) {
	c, ok := s.customers[id]
	if !ok {
		return Customer{}, fmt.Errorf("customers: customer %d: %w", id, shared.ErrNotFound)
	}
	return c, nil
}

func (s *stubCustomerRepo) Create(ctx context.Context, c Customer) (Customer, error) {
	for _, existing := range s.customers {
		if existing.Email == c.Email {
			return Customer{}, fmt.Errorf("customers: email %q: %w", c.Email, shared.ErrConflict)
		}
	}
	c.ID = s.nextID
	s.nextID++
	s.customers[c.ID] = c
	return c, nil
}

func (s *stubCustomerRepo) Update(ctx context.Context, c Customer) (Customer, error) {
	if _, ok := s.customers[c.ID]; !ok {
		return Customer{}, fmt.Errorf("customers: customer %d: %w", c.ID, shared.ErrNotFound)
	}
	s.customers[c.ID] = c
	return c, nil
}

func (s *stubCustomerRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := s.customers[id]; !ok {
		return fmt.Errorf("customers: customer %d: %w", id, shared.ErrNotFound)
	}
	delete(s.customers, id)
	return nil
}

type captureRecorder struct {
	entries []audit.Entry
}

func (c *captureRecorder) Record(ctx context.Context, entry audit.Entry) error {
	c.entries = append(c.entries, entry)
	return nil
}

func TestCreateCustomerAuditsAndStampsActor(t *testing.T) {
	repo := newStubCustomerRepo()
	rec := &captureRecorder{}
	svc := NewService(repo, rec, slog.Default())
	ctx := shared.ContextWithActor(context.Background(), "admin")

	customer, err := svc.Create(ctx, CreateInput{Name: "  Acme Corp  ", Email: "ops@acme.test"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if customer.Name != "Acme Corp" {
		t.Fatalf("name must be trimmed, got %q", customer.Name)
	}
	if !customer.Active {
		t.Fatalf("new customers must default to active")
	}
	if customer.CreatedBy != "admin" {
		t.Fatalf("expected actor stamp, got %q", customer.CreatedBy)
	}
	if len(rec.entries) != 1 || rec.entries[0].Action != "CREATE" || rec.entries[0].EntityType != "Customer" {
		t.Fatalf("expected CREATE audit entry, got %+v", rec.entries)
	}
}

func TestCreateCustomerDuplicateEmail(t *testing.T) {
	repo := newStubCustomerRepo()
	svc := NewService(repo, &captureRecorder{}, slog.Default())
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateInput{Name: "Acme", Email: "ops@acme.test"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := svc.Create(ctx, CreateInput{Name: "Other", Email: "ops@acme.test"})
	if !errors.Is(err, shared.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestSearchBlankKeywordListsAll(t *testing.T) {
	repo := newStubCustomerRepo()
	svc := NewService(repo, &captureRecorder{}, slog.Default())

	if _, err := svc.Search(context.Background(), "   "); err != nil {
		t.Fatalf("search: %v", err)
	}
	if repo.listCalls != 1 || repo.searchCalls != 0 {
		t.Fatalf("blank keyword must fall back to a plain list")
	}
}

func TestUpdateCustomerPartial(t *testing.T) {
	repo := newStubCustomerRepo()
	svc := NewService(repo, &captureRecorder{}, slog.Default())
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{Name: "Acme", Email: "ops@acme.test", Phone: "555-0100"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	inactive := false
	updated, err := svc.Update(ctx, created.ID, UpdateInput{Active: &inactive})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Active {
		t.Fatalf("expected deactivation")
	}
	if updated.Name != "Acme" || updated.Phone != "555-0100" {
		t.Fatalf("untouched fields must survive, got %+v", updated)
	}
}

func TestDeleteCustomerAudits(t *testing.T) {
	repo := newStubCustomerRepo()
	rec := &captureRecorder{}
	svc := NewService(repo, rec, slog.Default())
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{Name: "Acme", Email: "ops@acme.test"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(rec.entries) != 2 || rec.entries[1].Action != "DELETE" {
		t.Fatalf("expected DELETE audit entry, got %+v", rec.entries)
	}
	if _, err := svc.Get(ctx, created.ID); !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}
