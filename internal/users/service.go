package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/dsa-dev/backoffice/internal/audit"
	"github.com/dsa-dev/backoffice/internal/shared"
)

// Service handles account management. Mutations are audited; audit
// failures are logged and swallowed.
type Service struct {
	repo   RepositoryPort
	audit  audit.Recorder
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, recorder audit.Recorder, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: recorder, logger: logger}
}

// CreateUserInput carries the fields needed to open an account.
type CreateUserInput struct {
	Username   string
	Email      string
	FullName   string
	Password   string
	RoleIDs    []int64
	ProfileIDs []int64
}

// UpdateUserInput carries partial identity changes; nil fields are left
// untouched.
type UpdateUserInput struct {
	Username *string
	Email    *string
	FullName *string
	Active   *bool
}

// ListUsers returns one page of accounts.
func (s *Service) ListUsers(ctx context.Context, p shared.Pagination) ([]User, error) {
	return s.repo.ListUsers(ctx, p)
}

// GetUser fetches one account.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// GetByUsername fetches one account by username.
func (s *Service) GetByUsername(ctx context.Context, username string) (User, error) {
	return s.repo.GetByUsername(ctx, strings.TrimSpace(username))
}

// CreateUser opens an account with a bcrypt password hash and the initial
// role/profile assignments.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return User{}, errors.New("users: username required")
	}
	if len(in.Password) < 8 {
		return User{}, errors.New("users: password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}
	user, err := s.repo.CreateUser(ctx, User{
		Username:     username,
		Email:        strings.TrimSpace(in.Email),
		FullName:     strings.TrimSpace(in.FullName),
		PasswordHash: string(hash),
		Active:       true,
		PageSize:     DefaultPageSize,
		RoleIDs:      in.RoleIDs,
		ProfileIDs:   in.ProfileIDs,
	})
	if err != nil {
		return User{}, err
	}
	s.recordAudit(ctx, "CREATE", user.ID, "Created user: "+user.Username, "", userString(user))
	return user, nil
}

// UpdateUser applies partial identity changes.
func (s *Service) UpdateUser(ctx context.Context, id int64, in UpdateUserInput) (User, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	before := userString(user)

	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		if username == "" {
			return User{}, errors.New("users: username required")
		}
		user.Username = username
	}
	if in.Email != nil {
		user.Email = strings.TrimSpace(*in.Email)
	}
	if in.FullName != nil {
		user.FullName = strings.TrimSpace(*in.FullName)
	}
	if in.Active != nil {
		user.Active = *in.Active
	}

	user, err = s.repo.UpdateUser(ctx, user)
	if err != nil {
		return User{}, err
	}
	s.recordAudit(ctx, "UPDATE", user.ID, "Updated user: "+user.Username, before, userString(user))
	return user, nil
}

// ChangePassword replaces the account password.
func (s *Service) ChangePassword(ctx context.Context, id int64, password string) error {
	if len(password) < 8 {
		return errors.New("users: password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("users: hash password: %w", err)
	}
	if err := s.repo.UpdatePassword(ctx, id, string(hash)); err != nil {
		return err
	}
	s.recordAudit(ctx, "UPDATE", id, "Changed password", "", "")
	return nil
}

// SetPageSize stores the listing size preference. Unsupported sizes fall
// back to the default instead of failing.
func (s *Service) SetPageSize(ctx context.Context, id int64, pageSize int) error {
	allowed := false
	for _, c := range PageSizeChoices() {
		if pageSize == c {
			allowed = true
			break
		}
	}
	if !allowed {
		pageSize = DefaultPageSize
	}
	return s.repo.SetPageSize(ctx, id, pageSize)
}

// AssignRole links a role to a user.
func (s *Service) AssignRole(ctx context.Context, userID, roleID int64) error {
	if err := s.repo.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.recordAudit(ctx, "UPDATE", userID, fmt.Sprintf("Assigned role %d", roleID), "", "")
	return nil
}

// UnassignRole unlinks a role from a user.
func (s *Service) UnassignRole(ctx context.Context, userID, roleID int64) error {
	if err := s.repo.UnassignRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.recordAudit(ctx, "UPDATE", userID, fmt.Sprintf("Unassigned role %d", roleID), "", "")
	return nil
}

// AssignProfile links a profile to a user.
func (s *Service) AssignProfile(ctx context.Context, userID, profileID int64) error {
	if err := s.repo.AssignProfile(ctx, userID, profileID); err != nil {
		return err
	}
	s.recordAudit(ctx, "UPDATE", userID, fmt.Sprintf("Assigned profile %d", profileID), "", "")
	return nil
}

// UnassignProfile unlinks a profile from a user.
func (s *Service) UnassignProfile(ctx context.Context, userID, profileID int64) error {
	if err := s.repo.UnassignProfile(ctx, userID, profileID); err != nil {
		return err
	}
	s.recordAudit(ctx, "UPDATE", userID, fmt.Sprintf("Unassigned profile %d", profileID), "", "")
	return nil
}

func (s *Service) recordAudit(ctx context.Context, action string, userID int64, details, oldValue, newValue string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, audit.Entry{
		Action:     action,
		EntityType: "User",
		EntityID:   userID,
		Details:    details,
		OldValue:   oldValue,
		NewValue:   newValue,
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func userString(u User) string {
	return fmt.Sprintf("User{id=%d, username=%s, email=%s, active=%t}", u.ID, u.Username, u.Email, u.Active)
}
