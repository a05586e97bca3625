package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PatriickRM/loan-banking-system/internal/session"
)

const testSecret = "unit-test-secret"

func issueToken(t *testing.T, secret string, roles []string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   "jperez",
		"roles": roles,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	viper.Set("jwt.secret_key", testSecret)
	t.Cleanup(viper.Reset)
	InitAuthMiddleware(nil)

	t.Run("valid token passes and stores identity", func(t *testing.T) {
		var identity session.Identity
		var ok bool
		handler := AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok = IdentityFrom(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+issueToken(t, testSecret, []string{"CLIENTE"}))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		require.True(t, ok)
		assert.Equal(t, "jperez", identity.Username)
		assert.Equal(t, []string{"CLIENTE"}, identity.Roles)
	})

	t.Run("missing header", func(t *testing.T) {
		called := false
		handler := AuthMiddleware(okHandler(&called))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.False(t, called)
	})

	t.Run("malformed header", func(t *testing.T) {
		called := false
		handler := AuthMiddleware(okHandler(&called))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Token abc")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.False(t, called)
	})

	t.Run("wrong signature rejected", func(t *testing.T) {
		called := false
		handler := AuthMiddleware(okHandler(&called))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+issueToken(t, "other-secret", nil))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.False(t, called)
	})

	t.Run("blacklisted token rejected", func(t *testing.T) {
		redisClient, redisMock := redismock.NewClientMock()
		InitAuthMiddleware(redisClient)
		t.Cleanup(func() { InitAuthMiddleware(nil) })

		token := issueToken(t, testSecret, nil)
		redisMock.ExpectExists("blacklist:" + token).SetVal(1)

		called := false
		handler := AuthMiddleware(okHandler(&called))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.False(t, called)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})
}

func TestRequireAnyRole(t *testing.T) {
	viper.Set("jwt.secret_key", testSecret)
	t.Cleanup(viper.Reset)
	InitAuthMiddleware(nil)

	protected := func(roles ...string) (http.Handler, *bool) {
		called := false
		return AuthMiddleware(RequireAnyRole(roles...)(okHandler(&called))), &called
	}

	t.Run("matching role passes", func(t *testing.T) {
		handler, called := protected(session.RoleAdmin, session.RoleAnalista)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+issueToken(t, testSecret, []string{"ANALISTA"}))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, *called)
	})

	t.Run("missing role is forbidden", func(t *testing.T) {
		handler, called := protected(session.RoleAdmin)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+issueToken(t, testSecret, []string{"CLIENTE"}))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.False(t, *called)
	})

	t.Run("no identity is forbidden", func(t *testing.T) {
		called := false
		handler := RequireAnyRole(session.RoleAdmin)(okHandler(&called))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.False(t, called)
	})
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
}
