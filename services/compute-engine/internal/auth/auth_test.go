package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/pkg/mocks"
)

const testSecret = "test-secret"

func TestTokenManager_GenerateAndValidate(t *testing.T) {
	m := NewTokenManager(testSecret, time.Minute)

	token, err := m.Generate("user-1", false, []string{ComponentPermission("project-1")})
	require.NoError(t, err)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.False(t, claims.IsAdmin)
	assert.Equal(t, []string{"admin:project-1"}, claims.Permissions)
}

func TestTokenManager_Validate_WrongSecret(t *testing.T) {
	token, err := NewTokenManager("other", time.Minute).Generate("user-1", true, nil)
	require.NoError(t, err)

	_, err = NewTokenManager(testSecret, time.Minute).Validate(token)
	assert.Error(t, err)
}

func TestTokenManager_Validate_Expired(t *testing.T) {
	claims := &TokenClaims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = NewTokenManager(testSecret, time.Minute).Validate(token)
	assert.Error(t, err)
}

func TestTokenManager_Validate_RejectsNoneAlgorithm(t *testing.T) {
	claims := &TokenClaims{UserID: "user-1", IsAdmin: true}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewTokenManager(testSecret, time.Minute).Validate(token)
	assert.Error(t, err)
}

func TestPasscodeChecker(t *testing.T) {
	hash, err := HashPasscode("s3cret", 4)
	require.NoError(t, err)

	checker := NewPasscodeChecker(hash)
	assert.True(t, checker.Enabled())
	assert.True(t, checker.Check("s3cret"))
	assert.False(t, checker.Check("wrong"))
	assert.False(t, checker.Check(""))

	assert.False(t, NewPasscodeChecker("").Check("s3cret"))
}

func TestIdentity_CanAdminister(t *testing.T) {
	var anonymous *Identity
	assert.False(t, anonymous.CanAdminister("p-1"))

	admin := &Identity{IsAdmin: true}
	assert.True(t, admin.CanAdminister("p-1"))

	user := &Identity{UserUUID: "u-1", Permissions: []string{ComponentPermission("p-1")}}
	assert.True(t, user.CanAdminister("p-1"))
	assert.False(t, user.CanAdminister("p-2"))
}

func TestRequireComponentAdmin(t *testing.T) {
	ctx := context.Background()

	err := RequireComponentAdmin(ctx, "p-1")
	assert.True(t, errors.IsCode(err, errors.ErrUnauthorized))

	userCtx := WithIdentity(ctx, &Identity{UserUUID: "u-1", Permissions: []string{ComponentPermission("p-1")}})
	assert.NoError(t, RequireComponentAdmin(userCtx, "p-1"))
	assert.True(t, errors.IsCode(RequireComponentAdmin(userCtx, "p-2"), errors.ErrForbidden))

	// задачу без компонента отменяет только системный администратор
	assert.True(t, errors.IsCode(RequireComponentAdmin(userCtx, ""), errors.ErrForbidden))

	adminCtx := WithIdentity(ctx, &Identity{UserUUID: "root", IsAdmin: true})
	assert.NoError(t, RequireComponentAdmin(adminCtx, ""))
	assert.NoError(t, RequireSystemAdmin(adminCtx))
}

func newTestAuthenticator(t *testing.T) (*Authenticator, *TokenManager) {
	t.Helper()
	hash, err := HashPasscode("s3cret", 4)
	require.NoError(t, err)
	tokens := NewTokenManager(testSecret, time.Minute)
	return NewAuthenticator(tokens, NewPasscodeChecker(hash)), tokens
}

func TestAuthenticator_Authenticate(t *testing.T) {
	authenticator, tokens := newTestAuthenticator(t)

	r := httptest.NewRequest(http.MethodGet, "/api/ce/pause", nil)
	identity, err := authenticator.Authenticate(r)
	require.NoError(t, err)
	assert.Nil(t, identity)

	r.Header.Set(PasscodeHeader, "s3cret")
	identity, err = authenticator.Authenticate(r)
	require.NoError(t, err)
	assert.True(t, identity.IsAdmin)
	assert.True(t, identity.ViaPasscode)

	r.Header.Set(PasscodeHeader, "wrong")
	_, err = authenticator.Authenticate(r)
	assert.True(t, errors.IsCode(err, errors.ErrUnauthorized))

	token, err := tokens.Generate("user-1", false, nil)
	require.NoError(t, err)
	r = httptest.NewRequest(http.MethodGet, "/api/ce/task", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	identity, err = authenticator.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "user-1", identity.UserUUID)

	r.Header.Set("Authorization", "Basic abc")
	_, err = authenticator.Authenticate(r)
	assert.True(t, errors.IsCode(err, errors.ErrUnauthorized))
}

func TestMiddleware(t *testing.T) {
	authenticator, tokens := newTestAuthenticator(t)
	log := mocks.NewPermissiveLogger()

	var seen *Identity
	handler := Middleware(authenticator, log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	token, err := tokens.Generate("user-1", true, nil)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, "/api/ce/pause", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "user:user-1", seen.String())

	r = httptest.NewRequest(http.MethodPost, "/api/ce/pause", nil)
	r.Header.Set("Authorization", "Bearer garbage")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
