package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/dsa-dev/backoffice/internal/audit"
	"github.com/dsa-dev/backoffice/internal/shared"
)

type stubUserRepo struct {
	users  map[int64]User
	nextID int64

	createErr    error
	lastPageSize int
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[int64]User), nextID: 1}
}

func (s *stubUserRepo) ListUsers(ctx context.Context, p shared.Pagination) ([]User, error) {
	var out []User
	for _, u := range s.users {
		out = append(out, u)
	}
	return out, nil
}

func (s *stubUserRepo) GetUser(ctx context.Context, id int64) (User, error) {
	u, ok := s.users[id]
	if !ok {
		return User{}, fmt.Errorf("users: user %d: %w", id, shared.ErrNotFound)
	}
	return u, nil
}

func (s *stubUserRepo) GetByUsername(ctx context.Context, username string) (User, error) {
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, fmt.Errorf("users: username %q: %w", username, shared.ErrNotFound)
}

func (s *stubUserRepo) CreateUser(ctx context.Context, u User) (User, error) {
	if s.createErr != nil {
		return User{}, s.createErr
	}
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return User{}, fmt.Errorf("users: username or email taken: %w", shared.ErrConflict)
		}
	}
	u.ID = s.nextID
	s.nextID++
	s.users[u.ID] = u
	return u, nil
}

func (s *stubUserRepo) UpdateUser(ctx context.Context, u User) (User, error) {
	if _, ok := s.users[u.ID]; !ok {
		return User{}, fmt.Errorf("users: user %d: %w", u.ID, shared.ErrNotFound)
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *stubUserRepo) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("users: user %d: %w", id, shared.ErrNotFound)
	}
	u.PasswordHash = passwordHash
	s.users[id] = u
	return nil
}

func (s *stubUserRepo) SetPageSize(ctx context.Context, id int64, pageSize int) error {
	s.lastPageSize = pageSize
	return nil
}

func (s *stubUserRepo) AssignRole(ctx context.Context, userID, roleID int64) error      { return nil }
func (s *stubUserRepo) UnassignRole(ctx context.Context, userID, roleID int64) error    { return nil }
func (s *stubUserRepo) AssignProfile(ctx context.Context, userID, profileID int64) error { return nil }
func (s *stubUserRepo) UnassignProfile(ctx context.Context, userID, profileID int64) error {
	return nil
}

type stubRecorder struct {
	entries []audit.Entry
}

func (s *stubRecorder) Record(ctx context.Context, entry audit.Entry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func TestCreateUserHashesPassword(t *testing.T) {
	repo := newStubUserRepo()
	rec := &stubRecorder{}
	svc := NewService(repo, rec, slog.Default())

	user, err := svc.CreateUser(context.Background(), CreateUserInput{
		Username: " admin ",
		Email:    "admin@example.com",
		Password: "correct horse",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.Username != "admin" {
		t.Fatalf("expected trimmed username, got %q", user.Username)
	}
	if user.PageSize != DefaultPageSize {
		t.Fatalf("expected default page size, got %d", user.PageSize)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("correct horse")); err != nil {
		t.Fatalf("stored hash must verify: %v", err)
	}
	if len(rec.entries) != 1 || rec.entries[0].Action != "CREATE" {
		t.Fatalf("expected CREATE audit entry, got %+v", rec.entries)
	}
}

func TestCreateUserRejectsShortPassword(t *testing.T) {
	svc := NewService(newStubUserRepo(), &stubRecorder{}, slog.Default())
	if _, err := svc.CreateUser(context.Background(), CreateUserInput{Username: "admin", Password: "short"}); err == nil {
		t.Fatalf("expected short password rejection")
	}
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewService(repo, &stubRecorder{}, slog.Default())
	ctx := context.Background()

	if _, err := svc.CreateUser(ctx, CreateUserInput{Username: "admin", Password: "password1"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	_, err := svc.CreateUser(ctx, CreateUserInput{Username: "admin", Password: "password2"})
	if !errors.Is(err, shared.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestUpdateUserPartial(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewService(repo, &stubRecorder{}, slog.Default())
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, CreateUserInput{Username: "admin", Email: "a@example.com", Password: "password1"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	active := false
	updated, err := svc.UpdateUser(ctx, created.ID, UpdateUserInput{Active: &active})
	if err != nil {
		t.Fatalf("update user: %v", err)
	}
	if updated.Active {
		t.Fatalf("expected deactivated account")
	}
	if updated.Username != "admin" || updated.Email != "a@example.com" {
		t.Fatalf("untouched fields must survive, got %+v", updated)
	}
}

func TestSetPageSizeFallsBackToDefault(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewService(repo, &stubRecorder{}, slog.Default())
	ctx := context.Background()

	if err := svc.SetPageSize(ctx, 1, 50); err != nil {
		t.Fatalf("set page size: %v", err)
	}
	if repo.lastPageSize != 50 {
		t.Fatalf("expected 50, got %d", repo.lastPageSize)
	}

	if err := svc.SetPageSize(ctx, 1, 37); err != nil {
		t.Fatalf("set page size: %v", err)
	}
	if repo.lastPageSize != DefaultPageSize {
		t.Fatalf("unsupported size must fall back to default, got %d", repo.lastPageSize)
	}
}
