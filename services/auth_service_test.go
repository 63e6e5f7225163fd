package services

import (
	"context"
	"testing"
	"time"

	"github.com/edudati/openheal-research/models"
	"github.com/edudati/openheal-research/testutil"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

func (e *testEnv) authService() *AuthService {
	return NewAuthService(e.local, e.researchers, e.studies, testSecret, discardLogger())
}

func addAccount(t *testing.T, env *testEnv, id, username, email, password string, active bool) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, env.researchers.Create(context.Background(), nil, &models.Researcher{
		ID: id, Username: username, Email: email, PasswordHash: string(hash),
		FirstName: "Maria", LastName: "Silva", IsActive: active, CreatedAt: time.Now().UTC(),
	}))
}

func TestLoginByUsernameOrEmail(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	addAccount(t, env, "r-1", "maria", "maria@lab.org", "secret-pass", true)
	svc := env.authService()

	for _, login := range []string{"maria", "MARIA", "Maria@Lab.org"} {
		r, token, err := svc.Login(ctx, LoginInput{Login: login, Password: "secret-pass"})
		require.NoError(t, err, login)
		assert.Equal(t, "r-1", r.ID)
		assert.Empty(t, r.PasswordHash)
		assert.NotEmpty(t, token)
	}
}

func TestLoginPrefersExactUsername(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	// r-2's username is r-1's email
	addAccount(t, env, "r-1", "maria", "shared@lab.org", "first-pass", true)
	addAccount(t, env, "r-2", "shared@lab.org", "other@lab.org", "second-pass", true)
	svc := env.authService()

	r, _, err := svc.Login(ctx, LoginInput{Login: "shared@lab.org", Password: "second-pass"})
	require.NoError(t, err)
	assert.Equal(t, "r-2", r.ID)

	_, _, err = svc.Login(ctx, LoginInput{Login: "shared@lab.org", Password: "first-pass"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginRejects(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	addAccount(t, env, "r-1", "maria", "maria@lab.org", "secret-pass", true)
	addAccount(t, env, "r-2", "joao", "joao@lab.org", "secret-pass", false)
	svc := env.authService()

	cases := []LoginInput{
		{Login: "maria", Password: "wrong-pass"},
		{Login: "joao", Password: "secret-pass"},
		{Login: "nobody", Password: "secret-pass"},
		{Login: "", Password: "secret-pass"},
		{Login: "maria", Password: ""},
	}
	for _, in := range cases {
		_, _, err := svc.Login(ctx, in)
		assert.ErrorIs(t, err, ErrInvalidCredentials, in.Login)
	}
}

func TestLoginTokenClaims(t *testing.T) {
	env := newTestEnv(t)
	addAccount(t, env, "r-1", "maria", "maria@lab.org", "secret-pass", true)
	svc := env.authService()
	issued := time.Now().Truncate(time.Second)
	svc.now = func() time.Time { return issued }

	_, signed, err := svc.Login(context.Background(), LoginInput{Login: "maria", Password: "secret-pass"})
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(signed, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	})
	require.NoError(t, err)
	assert.True(t, token.Valid)
	assert.Equal(t, jwt.SigningMethodHS256, token.Method)
	assert.Equal(t, "r-1", claims[ClaimUserID])
	assert.Equal(t, string(models.RoleResearcher), claims[ClaimRole])
	assert.Equal(t, "Maria Silva", claims["name"])
	assert.Equal(t, float64(issued.Add(tokenTTL).Unix()), claims["exp"])
}

func TestCreateResearcher(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	testutil.AddStudy(t, env.local, "s-1", "alpha")
	testutil.AddStudy(t, env.local, "s-2", "beta")
	svc := env.authService()

	r, err := svc.CreateResearcher(ctx, CreateResearcherInput{
		Username:   " maria ",
		Email:      "maria@lab.org",
		Password:   "secret-pass",
		StudyCodes: []string{"alpha", "beta"},
	})
	require.NoError(t, err)
	assert.Equal(t, "maria", r.Username)
	assert.Empty(t, r.PasswordHash)

	ids, err := env.researchers.StudyIDs(ctx, r.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s-1", "s-2"}, ids)

	_, _, err = svc.Login(ctx, LoginInput{Login: "maria", Password: "secret-pass"})
	require.NoError(t, err)
}

func TestCreateResearcherRejects(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	testutil.AddStudy(t, env.local, "s-1", "alpha")
	addAccount(t, env, "r-1", "maria", "maria@lab.org", "secret-pass", true)
	svc := env.authService()

	_, err := svc.CreateResearcher(ctx, CreateResearcherInput{Username: "x", Password: "short"})
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	_, err = svc.CreateResearcher(ctx, CreateResearcherInput{Username: "", Password: "secret-pass"})
	assert.ErrorIs(t, err, ErrValidationFailed)

	_, err = svc.CreateResearcher(ctx, CreateResearcherInput{Username: "MARIA", Password: "secret-pass"})
	assert.ErrorIs(t, err, ErrResearcherUsernameTaken)

	_, err = svc.CreateResearcher(ctx, CreateResearcherInput{Username: "other", Email: "MARIA@lab.org", Password: "secret-pass"})
	assert.ErrorIs(t, err, ErrResearcherEmailTaken)

	_, err = svc.CreateResearcher(ctx, CreateResearcherInput{Username: "other", Password: "secret-pass", StudyCodes: []string{"gamma"}})
	assert.ErrorIs(t, err, ErrValidationFailed)

	// nothing half-created by the failed attempts
	found, err := env.researchers.FindByLogin(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, found)
}
