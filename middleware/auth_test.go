package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/edudati/openheal-research/models"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func sign(t *testing.T, claims jwt.MapClaims, key string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return s
}

func validClaims(role models.ResearcherRole) jwt.MapClaims {
	return jwt.MapClaims{
		"user_id": "r-1",
		"role":    string(role),
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
}

func principalEcho(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := PrincipalFromContext(r.Context())
		require.NoError(t, err)
		if p.IsSuperuser {
			w.Header().Set("X-Superuser", "1")
		}
		w.Write([]byte(p.ResearcherID))
	})
}

func TestAuthenticate(t *testing.T) {
	handler := Authenticate(secret, nil)(principalEcho(t))

	expired := validClaims(models.RoleResearcher)
	expired["exp"] = time.Now().Add(-time.Minute).Unix()

	tests := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{"bearer header", "Bearer " + sign(t, validClaims(models.RoleResearcher), secret), "", http.StatusOK},
		{"query token", "", sign(t, validClaims(models.RoleResearcher), secret), http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", "", http.StatusUnauthorized},
		{"wrong key", "Bearer " + sign(t, validClaims(models.RoleResearcher), "other"), "", http.StatusUnauthorized},
		{"expired", "Bearer " + sign(t, expired, secret), "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "r-1", rec.Body.String())
			}
		})
	}
}

func TestAuthenticateRejectsNoneAlgorithm(t *testing.T) {
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims(models.RoleSuperuser)).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	Authenticate(secret, nil)(principalEcho(t)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthorize(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	handler := Authorize(models.RoleSuperuser)(ok)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(WithClaims(req.Context(), validClaims(models.RoleSuperuser))))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(WithClaims(req.Context(), validClaims(models.RoleResearcher))))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPrincipalFromContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := WithClaims(req.Context(), validClaims(models.RoleSuperuser))
	p, err := PrincipalFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r-1", p.ResearcherID)
	assert.True(t, p.IsSuperuser)

	bad := validClaims("admin")
	_, err = PrincipalFromContext(WithClaims(req.Context(), bad))
	assert.Error(t, err)

	noID := validClaims(models.RoleResearcher)
	noID["user_id"] = 7.0
	_, err = PrincipalFromContext(WithClaims(req.Context(), noID))
	assert.Error(t, err)

	_, err = PrincipalFromContext(req.Context())
	assert.Error(t, err)
}

func TestRequireAPIKey(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	RequireAPIKey("k")(ok).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"detail":"unauthorised"}`, rec.Body.String())

	req.Header.Set("X-API-Key", "k")
	rec = httptest.NewRecorder()
	RequireAPIKey("k")(ok).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	RequireAPIKey("")(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
