package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-approval/internal/domain"
	apperrors "github.com/spec-kit/ticket-approval/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// SystemUserID identifies calls made with the shared system token.
const SystemUserID = "system"

// UserLoader resolves the user named by a token.
type UserLoader interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// Principal represents the authenticated caller.
type Principal struct {
	User *domain.User
}

// IsSystem reports whether the caller is the platform itself.
func (p *Principal) IsSystem() bool {
	return p.User != nil && p.User.Role == domain.UserRoleSystem
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens      *TokenManager
	users       UserLoader
	systemToken []byte
}

// NewAuthMiddleware constructs middleware. An empty systemToken
// disables system access.
func NewAuthMiddleware(tokens *TokenManager, users UserLoader, systemToken string) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users, systemToken: []byte(systemToken)}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	if len(m.systemToken) > 0 && subtle.ConstantTimeCompare([]byte(parts[1]), m.systemToken) == 1 {
		c.Locals(principalKey, &Principal{User: &domain.User{
			ID:       SystemUserID,
			Name:     "System",
			Username: SystemUserID,
			Role:     domain.UserRoleSystem,
			Status:   domain.UserStatusActive,
		}})
		return c.Next()
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}
	if claims.Role == domain.UserRoleSystem {
		return apperrors.NewUnauthorized("invalid token")
	}

	user, err := m.users.GetByID(c.UserContext(), claims.UserID())
	if err != nil {
		mapped := apperrors.ToDomainError(err)
		if errors.Is(err, pgx.ErrNoRows) || mapped.HTTPStatus == http.StatusNotFound {
			return apperrors.NewUnauthorized("user not found")
		}
		return mapped
	}
	if user.Status != domain.UserStatusActive {
		return apperrors.NewUnauthorized("user suspended")
	}

	c.Locals(principalKey, &Principal{User: user})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
