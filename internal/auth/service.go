package auth

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dsa-dev/backoffice/internal/audit"
	"github.com/dsa-dev/backoffice/internal/shared"
)

// AuthoritySource materializes the grant set for a user. Backed by the
// RBAC service in production.
type AuthoritySource interface {
	AuthoritiesForUser(ctx context.Context, userID int64) ([]string, error)
}

// Service wraps authentication business rules. Every login attempt is
// audited, success or failure; audit problems never block the login.
type Service struct {
	repo        Repository
	authorities AuthoritySource
	audit       audit.Recorder
	logger      *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, authorities AuthoritySource, recorder audit.Recorder, logger *slog.Logger) *Service {
	return &Service{repo: repo, authorities: authorities, audit: recorder, logger: logger}
}

// Login validates credentials and materializes the grant set. Unknown
// username, wrong password and deactivated account all collapse into
// ErrInvalidCredentials so the response does not leak which one failed.
func (s *Service) Login(ctx context.Context, username, password, ip string) (*LoginResult, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		s.recordAttempt(ctx, username, ip, false)
		return nil, shared.ErrInvalidCredentials
	}
	if !user.Active {
		s.recordAttempt(ctx, username, ip, false)
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.recordAttempt(ctx, username, ip, false)
		return nil, shared.ErrInvalidCredentials
	}

	grants, err := s.authorities.AuthoritiesForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	s.recordAttempt(ctx, user.Username, ip, true)
	return &LoginResult{User: *user, Authorities: grants}, nil
}

// RegisterSession persists the session metadata.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record and audits the logout.
func (s *Service) RemoveSession(ctx context.Context, id, username, ip string) error {
	if err := s.repo.DeleteSession(ctx, id); err != nil {
		return err
	}
	s.record(ctx, audit.Entry{Username: username, Action: "LOGOUT", EntityType: "Auth", IPAddress: ip})
	return nil
}

func (s *Service) recordAttempt(ctx context.Context, username, ip string, success bool) {
	action := "LOGIN_FAILED"
	if success {
		action = "LOGIN_SUCCESS"
	}
	s.record(ctx, audit.Entry{Username: username, Action: action, EntityType: "Auth", IPAddress: ip})
}

func (s *Service) record(ctx context.Context, entry audit.Entry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, entry); err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.String("action", entry.Action), slog.Any("error", err))
	}
}
