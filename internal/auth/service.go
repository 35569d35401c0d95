package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Role orders what a caller may do. A higher role includes every lower one.
type Role string

const (
	RoleViewer     Role = "viewer"
	RoleOperator   Role = "operator"
	RoleTechnician Role = "technician"
	RoleAdmin      Role = "admin"
)

var roleLevels = map[Role]int{
	RoleViewer:     0,
	RoleOperator:   1,
	RoleTechnician: 2,
	RoleAdmin:      3,
}

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// ParseRole maps a configured role name; unknown names become viewer.
func ParseRole(s string) Role {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := roleLevels[r]; ok {
		return r
	}
	return RoleViewer
}

// Allows reports whether r is at least required.
func (r Role) Allows(required Role) bool {
	return roleLevels[r] >= roleLevels[required]
}

// Principal is the authenticated caller of a request.
type Principal struct {
	Subject  uuid.UUID `json:"subject"`
	Username string    `json:"username"`
	Role     Role      `json:"role"`
	Token    string    `json:"token_name,omitempty"`
}

type user struct {
	id           uuid.UUID
	username     string
	passwordHash string
	role         Role
}

type apiToken struct {
	name string
	role Role
}

// subjectNamespace keys the stable per-user subject ids.
var subjectNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("odrive-gateway/users"))

// AuthService authenticates operators from the configured user list and
// API tokens. Nothing is persisted; accounts live in the config file.
type AuthService struct {
	enabled        bool
	logger         *zap.Logger
	jwtHandler     *JWTHandler
	passwordHasher *PasswordHasher
	tokenGen       *APITokenGenerator

	users  map[string]user
	tokens map[string]apiToken // sha256 hex -> token
}

func NewAuthService(cfg config.AuthConfig, logger *zap.Logger) *AuthService {
	jwtSecret := cfg.GetJWTSecret()

	a := &AuthService{
		enabled:        cfg.Enabled,
		logger:         logger,
		jwtHandler:     NewJWTHandler(jwtSecret, cfg.AccessTokenTTL),
		passwordHasher: NewPasswordHasher(),
		tokenGen:       NewAPITokenGenerator(),
		users:          make(map[string]user, len(cfg.Users)),
		tokens:         make(map[string]apiToken, len(cfg.APITokens)),
	}

	for _, u := range cfg.Users {
		a.users[u.Username] = user{
			id:           uuid.NewSHA1(subjectNamespace, []byte(u.Username)),
			username:     u.Username,
			passwordHash: u.PasswordHash,
			role:         ParseRole(u.Role),
		}
	}
	for _, t := range cfg.APITokens {
		a.tokens[strings.ToLower(t.TokenHash)] = apiToken{name: t.Name, role: ParseRole(t.Role)}
	}

	if cfg.Enabled && !cfg.IsProductionReady() {
		logger.Warn("Auth enabled with development JWT secret", zap.String("env", cfg.JWTSecretEnv))
	}
	return a
}

func (a *AuthService) Enabled() bool {
	return a.enabled
}

// LoginUser verifies the password and issues an access token.
func (a *AuthService) LoginUser(ctx context.Context, username, password, ipAddress string) (string, time.Time, error) {
	u, ok := a.users[username]
	if !ok {
		a.logger.Warn("Login failed", zap.String("username", username), zap.String("ip", ipAddress), zap.String("reason", "user not found"))
		return "", time.Time{}, ErrInvalidCredentials
	}

	// Verify password
	valid, err := a.passwordHasher.VerifyPassword(password, u.passwordHash)
	if err != nil || !valid {
		a.logger.Warn("Login failed", zap.String("username", username), zap.String("ip", ipAddress), zap.String("reason", "invalid password"))
		return "", time.Time{}, ErrInvalidCredentials
	}

	token, expiresAt, err := a.jwtHandler.GenerateAccessToken(u.id, u.username, string(u.role))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate access token: %w", err)
	}

	a.logger.Info("User logged in", zap.String("username", username), zap.String("role", string(u.role)))
	return token, expiresAt, nil
}

// ValidateToken accepts a JWT access token or an API token.
func (a *AuthService) ValidateToken(token string) (*Principal, error) {
	// Try JWT first
	if claims, err := a.jwtHandler.ValidateAccessToken(token); err == nil {
		return &Principal{
			Subject:  claims.UserID,
			Username: claims.Username,
			Role:     ParseRole(claims.Role),
		}, nil
	}

	if !a.tokenGen.ValidateTokenFormat(token) {
		return nil, ErrInvalidToken
	}
	t, ok := a.tokens[a.tokenGen.HashToken(token)]
	if !ok {
		return nil, ErrInvalidToken
	}
	return &Principal{Username: t.name, Role: t.role, Token: t.name}, nil
}

// HashPassword produces a hash for the users section of the config.
func (a *AuthService) HashPassword(password string) (string, error) {
	return a.passwordHasher.HashPassword(password)
}
