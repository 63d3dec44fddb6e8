package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *SessionManager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "test_session", "secret", time.Hour, false)
}

func TestSessionRoundTrip(t *testing.T) {
	sm := newTestManager(t)
	ctx := context.Background()

	sess, err := sm.Load(ctx, httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	sess.SetUser("42")
	sess.Set("username", "admin")

	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, httptest.NewRequest("GET", "/", nil), sess))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "test_session", cookies[0].Name)
	require.True(t, cookies[0].HttpOnly)

	next := httptest.NewRequest("GET", "/", nil)
	next.AddCookie(&http.Cookie{Name: "test_session", Value: cookies[0].Value})
	loaded, err := sm.Load(ctx, next)
	require.NoError(t, err)
	require.Equal(t, "42", loaded.User())
	require.Equal(t, "admin", loaded.Get("username"))
}

func TestSessionDestroyClearsState(t *testing.T) {
	sm := newTestManager(t)
	ctx := context.Background()

	sess, err := sm.Load(ctx, httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	sess.SetUser("42")

	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, httptest.NewRequest("GET", "/", nil), sess))
	id := rec.Result().Cookies()[0].Value

	sm.Destroy(sess)
	destroyRec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, destroyRec, httptest.NewRequest("GET", "/", nil), sess))
	require.Equal(t, -1, destroyRec.Result().Cookies()[0].MaxAge)

	next := httptest.NewRequest("GET", "/", nil)
	next.AddCookie(&http.Cookie{Name: "test_session", Value: id})
	loaded, err := sm.Load(ctx, next)
	require.NoError(t, err)
	require.Empty(t, loaded.User())
}

func TestCSRFTokenLifecycle(t *testing.T) {
	sm := newTestManager(t)
	cm := NewCSRFManager("csrf-secret")
	ctx := context.Background()

	sess, err := sm.Load(ctx, httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)

	token, err := cm.EnsureToken(ctx, sess)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	again, err := cm.EnsureToken(ctx, sess)
	require.NoError(t, err)
	require.Equal(t, token, again)

	require.NoError(t, cm.VerifyToken(ctx, sess, token))
	require.Error(t, cm.VerifyToken(ctx, sess, "forged"))
	require.Error(t, cm.VerifyToken(ctx, sess, ""))
}
