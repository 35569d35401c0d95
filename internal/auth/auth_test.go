package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var cheap = HashParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func newService(t *testing.T, enabled bool) (*AuthService, string) {
	t.Helper()

	hash, err := NewPasswordHasherWithParams(cheap).HashPassword("s3cret")
	require.NoError(t, err)

	token, tokenHash, err := NewAPITokenGenerator().GenerateAPIToken()
	require.NoError(t, err)

	svc := NewAuthService(config.AuthConfig{
		Enabled:        enabled,
		JWTSecretEnv:   "ODG_AUTH_TEST_SECRET",
		AccessTokenTTL: time.Minute,
		Users: []config.UserConfig{
			{Username: "bench", PasswordHash: hash, Role: "operator"},
		},
		APITokens: []config.APITokenSpec{
			{Name: "ci", TokenHash: tokenHash, Role: "Technician"},
		},
	}, zap.NewNop())
	return svc, token
}

func TestPasswordHashing(t *testing.T) {
	h := NewPasswordHasherWithParams(cheap)
	encoded, err := h.HashPassword("pw")
	require.NoError(t, err)
	assert.Contains(t, encoded, "$argon2id$v=19$m=1024,t=1,p=1$")

	ok, err := h.VerifyPassword("pw", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	// Kosten kommen aus dem Hash
	ok, err = NewPasswordHasher().VerifyPassword("wrong", encoded)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.VerifyPassword("pw", "$bcrypt$nope")
	assert.Error(t, err)
}

func TestRoles(t *testing.T) {
	assert.True(t, RoleAdmin.Allows(RoleTechnician))
	assert.True(t, RoleOperator.Allows(RoleOperator))
	assert.False(t, RoleOperator.Allows(RoleTechnician))
	assert.False(t, RoleViewer.Allows(RoleOperator))
	assert.Equal(t, RoleViewer, ParseRole("superuser"))
	assert.Equal(t, RoleTechnician, ParseRole(" Technician "))
}

func TestLoginAndValidate(t *testing.T) {
	svc, apiToken := newService(t, true)

	_, _, err := svc.LoginUser(t.Context(), "bench", "nope", "127.0.0.1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.LoginUser(t.Context(), "ghost", "s3cret", "127.0.0.1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	token, expires, err := svc.LoginUser(t.Context(), "bench", "s3cret", "127.0.0.1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expires, 5*time.Second)

	p, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "bench", p.Username)
	assert.Equal(t, RoleOperator, p.Role)

	again, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, p.Subject, again.Subject)

	p, err = svc.ValidateToken(apiToken)
	require.NoError(t, err)
	assert.Equal(t, RoleTechnician, p.Role)
	assert.Equal(t, "ci", p.Token)

	_, err = svc.ValidateToken("odg_short")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, apiToken := newService(t, true)

	r := gin.New()
	r.Use(svc.AuthMiddleware())
	r.POST("/erase", RequireRole(RoleTechnician), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.POST("/apply", RequireRole(RoleOperator), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	userToken, _, err := svc.LoginUser(t.Context(), "bench", "s3cret", "")
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"no header", "/apply", "", http.StatusUnauthorized},
		{"bad scheme", "/apply", "Basic abc", http.StatusUnauthorized},
		{"operator apply", "/apply", "Bearer " + userToken, http.StatusNoContent},
		{"operator erase", "/erase", "Bearer " + userToken, http.StatusForbidden},
		{"api token erase", "/erase", "Bearer " + apiToken, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestMiddlewareDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _ := newService(t, false)

	r := gin.New()
	r.Use(svc.AuthMiddleware())
	r.POST("/erase", RequireRole(RoleAdmin), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/erase", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
