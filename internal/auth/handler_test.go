package auth_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/dsa-dev/backoffice/internal/audit"
	"github.com/dsa-dev/backoffice/internal/auth"
	"github.com/dsa-dev/backoffice/internal/shared"
)

type stubRepo struct {
	user     *auth.User
	sessions []string
}

func (s *stubRepo) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	if s.user == nil || s.user.Username != username {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	s.sessions = append(s.sessions, id)
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error { return nil }

func (s *stubRepo) DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type stubAuthorities struct {
	grants []string
}

func (s *stubAuthorities) AuthoritiesForUser(ctx context.Context, userID int64) ([]string, error) {
	return s.grants, nil
}

type captureRecorder struct {
	entries []audit.Entry
}

func (c *captureRecorder) Record(ctx context.Context, entry audit.Entry) error {
	c.entries = append(c.entries, entry)
	return nil
}

func newAuthHandler(t *testing.T, repo auth.Repository, grants []string, rec audit.Recorder) (*auth.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	service := auth.NewService(repo, &stubAuthorities{grants: grants}, rec, slog.Default())
	return auth.NewHandler(slog.Default(), service, sessionManager), sessionManager
}

func newRouter(handler *auth.Handler) chi.Router {
	r := chi.NewRouter()
	r.Route("/auth", handler.MountRoutes)
	return r
}

func withSession(t *testing.T, sm *shared.SessionManager, req *http.Request) (*http.Request, *shared.Session) {
	t.Helper()
	sess, err := sm.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	ctx := shared.ContextWithSession(req.Context(), sess)
	return req.WithContext(ctx), sess
}

func TestLoginSuccess(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	repo := &stubRepo{user: &auth.User{ID: 1, Username: "admin", PasswordHash: string(hashed), Active: true}}
	rec := &captureRecorder{}
	handler, sm := newAuthHandler(t, repo, []string{"ROLE_ADMIN", "users.view"}, rec)

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"username":"admin","password":"correctpass"}`))
	req.Header.Set("Content-Type", "application/json")
	req, sess := withSession(t, sm, req)

	res := httptest.NewRecorder()
	r := newRouter(handler)
	r.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var result auth.LoginResult
	if err := json.Unmarshal(res.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(result.Authorities) != 2 || result.Authorities[0] != "ROLE_ADMIN" {
		t.Fatalf("expected materialized grants, got %v", result.Authorities)
	}
	if sess.User() != "1" {
		t.Fatalf("expected session bound to user 1, got %q", sess.User())
	}
	if len(repo.sessions) != 1 {
		t.Fatalf("expected session row registered")
	}
	if len(rec.entries) != 1 || rec.entries[0].Action != "LOGIN_SUCCESS" {
		t.Fatalf("expected LOGIN_SUCCESS audit entry, got %+v", rec.entries)
	}
	// httptest requests carry 192.0.2.1:1234; the audit row keeps only
	// the client address.
	if rec.entries[0].IPAddress != "192.0.2.1" {
		t.Fatalf("expected audit IP without the port, got %q", rec.entries[0].IPAddress)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	repo := &stubRepo{user: &auth.User{ID: 1, Username: "admin", PasswordHash: string(hashed), Active: true}}
	rec := &captureRecorder{}
	handler, sm := newAuthHandler(t, repo, nil, rec)

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"username":"admin","password":"wrongpass"}`))
	req.Header.Set("Content-Type", "application/json")
	req, _ = withSession(t, sm, req)

	res := httptest.NewRecorder()
	newRouter(handler).ServeHTTP(res, req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
	if len(rec.entries) != 1 || rec.entries[0].Action != "LOGIN_FAILED" {
		t.Fatalf("expected LOGIN_FAILED audit entry, got %+v", rec.entries)
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	repo := &stubRepo{user: &auth.User{ID: 1, Username: "admin", PasswordHash: string(hashed), Active: false}}
	handler, sm := newAuthHandler(t, repo, nil, &captureRecorder{})

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"username":"admin","password":"correctpass"}`))
	req.Header.Set("Content-Type", "application/json")
	req, _ = withSession(t, sm, req)

	res := httptest.NewRecorder()
	newRouter(handler).ServeHTTP(res, req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("deactivated account must not log in, got %d", res.Code)
	}
}
