package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func protected(perm Permission) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(ClaimsFromContext(r.Context()).Sub))
	})
	return NewJWTMiddleware(testSecret).Authenticate(RequirePermission(perm)(ok))
}

func call(t *testing.T, h http.Handler, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticateAndAuthorize(t *testing.T) {
	admin, err := IssueToken(testSecret, "u-admin", RoleAdmin, time.Hour)
	require.NoError(t, err)
	clinician, err := IssueToken(testSecret, "u-doc", RoleClinician, time.Hour)
	require.NoError(t, err)
	expired, err := IssueToken(testSecret, "u-doc", RoleClinician, -time.Minute)
	require.NoError(t, err)
	foreign, err := IssueToken("other-secret", "u-doc", RoleAdmin, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		perm   Permission
		token  string
		status int
	}{
		{"admin may reset", PermPatientsReset, admin, http.StatusOK},
		{"clinician may decrypt", PermPatientsDecrypt, clinician, http.StatusOK},
		{"clinician may not reset", PermPatientsReset, clinician, http.StatusForbidden},
		{"missing token", PermPatientsDecrypt, "", http.StatusUnauthorized},
		{"expired token", PermPatientsDecrypt, expired, http.StatusUnauthorized},
		{"wrong secret", PermPatientsDecrypt, foreign, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := call(t, protected(tt.perm), tt.token)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestAuthenticateRejectsNoneAlgorithm(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Sub: "x", Role: RoleAdmin}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	rec := call(t, protected(PermPatientsReset), tok)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateWithoutSecret(t *testing.T) {
	h := NewJWTMiddleware("").Authenticate(http.NotFoundHandler())
	rec := call(t, h, "anything")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
