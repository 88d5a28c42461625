package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticator_IssueVerify(t *testing.T) {
	auth := NewAuthenticator("secret")

	token, err := auth.Issue("student-1", true, time.Hour)
	require.NoError(t, err)

	p, err := auth.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "student-1", p.StudentID)
	assert.True(t, p.Admin)

	_, err = NewAuthenticator("other").Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := auth.Issue("student-1", false, -time.Hour)
	require.NoError(t, err)
	_, err = auth.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noSubject, err := auth.Issue("", false, time.Hour)
	require.NoError(t, err)
	_, err = auth.Verify(noSubject)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticator_Middleware(t *testing.T) {
	auth := NewAuthenticator("secret")
	var seen *Principal
	h := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing_token")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_token")

	token, err := auth.Issue("student-2", false, time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "student-2", seen.StudentID)
}

func TestRequireAdmin(t *testing.T) {
	h := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(WithPrincipal(req.Context(), &Principal{StudentID: "s"}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = req.WithContext(WithPrincipal(req.Context(), &Principal{StudentID: "s", Admin: true}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCompositeHealthChecker(t *testing.T) {
	ctx := context.Background()
	hc := NewCompositeHealthChecker("test")

	status := hc.Check(ctx)
	assert.True(t, status.Healthy)
	assert.True(t, status.Ready)

	hc.AddCheck("database", func(context.Context) error { return nil })
	hc.AddReadinessCheck("catalog", func(context.Context) error { return errors.New("upstream down") })

	status = hc.Check(ctx)
	assert.True(t, status.Healthy, "readiness checks do not affect liveness")
	assert.False(t, status.Ready)
	assert.Equal(t, "upstream down", status.Checks["catalog"].Message)
	assert.Contains(t, status.Message, "catalog")

	hc.AddCheck("cache", func(context.Context) error { return errors.New("timeout") })
	status = hc.Check(ctx)
	assert.False(t, status.Healthy)
	assert.Equal(t, "Some checks failed: cache, catalog", status.Message)

	hc.RemoveCheck("cache")
	hc.RemoveCheck("catalog")
	status = hc.Check(ctx)
	assert.True(t, status.Healthy)
	assert.True(t, status.Ready)
	assert.Equal(t, "All checks passed", status.Message)
}

func TestCompositeHealthChecker_Timeout(t *testing.T) {
	hc := NewCompositeHealthChecker("test")
	hc.SetTimeout(20 * time.Millisecond)
	hc.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := hc.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Contains(t, status.Checks["slow"].Message, "deadline")
}

func TestCacheControlMiddleware(t *testing.T) {
	h := CacheControlMiddleware(5*time.Minute)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "public, max-age=300", rec.Header().Get("Cache-Control"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestRequestSizeLimitMiddleware(t *testing.T) {
	h := RequestSizeLimitMiddleware(8)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("this body is too long")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("ok")))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) MiddlewareFunc {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := ChainHandler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mw("outer"), mw("inner"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
