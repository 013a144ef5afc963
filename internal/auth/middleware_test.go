package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tour-booking/internal/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-admin-secret"

func signed(t *testing.T, sub string, roles []string, exp time.Time) string {
	claims := jwt.MapClaims{
		"sub":          sub,
		"exp":          exp.Unix(),
		"realm_access": map[string]interface{}{"roles": roles},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestHMACVerifier(t *testing.T) {
	v := NewHMACVerifier(secret)
	ctx := context.Background()

	claims, err := v.Verify(ctx, signed(t, "ops-1", []string{"admin"}, time.Now().Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "ops-1", claims.Subject)
	assert.True(t, claims.HasRole("admin"))

	_, err = v.Verify(ctx, signed(t, "ops-1", []string{"admin"}, time.Now().Add(-time.Hour)))
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewHMACVerifier("other").Verify(ctx, signed(t, "ops-1", nil, time.Now().Add(time.Hour)))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

type rejectAll struct{}

func (rejectAll) Verify(context.Context, string) (*Claims, error) {
	return nil, errors.New("unknown issuer")
}

func TestRequireRole(t *testing.T) {
	v := Chain{rejectAll{}, NewHMACVerifier(secret)}
	var subject string
	h := RequireRole(v, "admin", logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = Subject(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"malformed header", "Token abc", http.StatusUnauthorized},
		{"bad token", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"wrong role", "Bearer " + signed(t, "guide-7", []string{"guide"}, time.Now().Add(time.Hour)), http.StatusForbidden},
		{"admin", "Bearer " + signed(t, "ops-1", []string{"admin"}, time.Now().Add(time.Hour)), http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/bookings", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
	assert.Equal(t, "ops-1", subject)
}
