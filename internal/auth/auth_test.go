package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	token, err := SignHMAC(testSecret, claims)
	require.NoError(t, err)
	return token
}

func protected(t *testing.T, admin bool) (http.Handler, *models.Principal) {
	v, err := NewHMACVerifier(testSecret)
	require.NoError(t, err)
	log := logger.NewNop()

	var seen models.Principal
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	if admin {
		h = RequireAdmin(log)(h)
	}
	return Middleware(v, log)(h), &seen
}

func call(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/bookings/my-bookings", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareFlatClaims(t *testing.T) {
	h, seen := protected(t, false)

	rec := call(h, signed(t, jwt.MapClaims{"sub": "user-1", "role": "admin"}))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, models.Principal{ID: "user-1", Role: models.RoleAdmin}, *seen)
}

func TestMiddlewareNestedUserClaims(t *testing.T) {
	h, seen := protected(t, false)

	rec := call(h, signed(t, jwt.MapClaims{"user": map[string]interface{}{"id": "user-2"}}))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, models.Principal{ID: "user-2", Role: models.RoleUser}, *seen)
}

func TestMiddlewareRealmRoles(t *testing.T) {
	h, seen := protected(t, false)

	rec := call(h, signed(t, jwt.MapClaims{"sub": "kc-1", "realm_access": map[string]interface{}{"roles": []string{"offline_access", "admin"}}}))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, seen.IsAdmin())
}

func TestMiddlewareRejects(t *testing.T) {
	h, _ := protected(t, false)

	assert.Equal(t, http.StatusUnauthorized, call(h, "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(h, "not-a-jwt").Code)

	expired := signed(t, jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(-time.Minute).Unix()})
	assert.Equal(t, http.StatusUnauthorized, call(h, expired).Code)

	forged, err := SignHMAC("other-secret", jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(time.Hour).Unix()})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, call(h, forged).Code)

	noSubject := signed(t, jwt.MapClaims{"role": "admin"})
	assert.Equal(t, http.StatusUnauthorized, call(h, noSubject).Code)
}

func TestRequireAdmin(t *testing.T) {
	h, _ := protected(t, true)

	assert.Equal(t, http.StatusForbidden, call(h, signed(t, jwt.MapClaims{"sub": "user-1"})).Code)
	assert.Equal(t, http.StatusNoContent, call(h, signed(t, jwt.MapClaims{"sub": "admin-1", "role": "admin"})).Code)
}

func TestExtractTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := ExtractTokenFromRequest(req)
	assert.ErrorIs(t, err, ErrMissingToken)

	req.Header.Set("Authorization", "bearer abc")
	token, err := ExtractTokenFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	req.Header.Set("Authorization", "Basic abc")
	_, err = ExtractTokenFromRequest(req)
	assert.Error(t, err)
}
