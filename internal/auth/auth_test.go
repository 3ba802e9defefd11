package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-approval/internal/domain"
	apperrors "github.com/spec-kit/ticket-approval/pkg/util/errorutil"
)

type stubUsers map[string]*domain.User

func (s stubUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, pgx.ErrNoRows
}

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5, "ticket-approval")

	token, expiresAt, err := tm.GenerateToken("u1", domain.UserRoleOrgAdmin)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), expiresAt, 5*time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID())
	assert.Equal(t, "ticket-approval", claims.Issuer)
	assert.Equal(t, domain.UserRoleOrgAdmin, claims.Role)
}

func TestTokenRejectsWrongSecretAndExpiry(t *testing.T) {
	token, _, err := NewTokenManager("secret", 5, "ticket-approval").GenerateToken("u1", domain.UserRoleUser)
	require.NoError(t, err)

	_, err = NewTokenManager("other", 5, "ticket-approval").ParseToken(token)
	assert.Error(t, err)

	expired := &TokenManager{secret: []byte("secret"), ttl: -time.Minute}
	old, _, err := expired.GenerateToken("u1", domain.UserRoleUser)
	require.NoError(t, err)
	_, err = expired.ParseToken(old)
	assert.Error(t, err)

	_, err = NewTokenManager("secret", 5, "someone-else").ParseToken(token)
	assert.Error(t, err)
}

func newAuthApp(t *testing.T) (*fiber.App, *TokenManager) {
	t.Helper()
	tm := NewTokenManager("secret", 5, "ticket-approval")
	users := stubUsers{
		"alice": {ID: "alice", Role: domain.UserRoleUser, Status: domain.UserStatusActive},
		"gone":  {ID: "gone", Role: domain.UserRoleUser, Status: domain.UserStatusSuspended},
	}
	mw := NewAuthMiddleware(tm, users, "sys-token")

	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
	}})
	who := func(c *fiber.Ctx) error {
		p, _ := PrincipalFromContext(c)
		return c.SendString(p.User.ID)
	}
	app.Get("/me", mw.Handle, RequireUser(), who)
	app.Get("/system", mw.Handle, RequireRole(domain.UserRoleSystem), who)
	return app, tm
}

func doGet(t *testing.T, app *fiber.App, path, bearer string) int {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestMiddlewareAuthenticatesUsers(t *testing.T) {
	app, tm := newAuthApp(t)
	alice, _, err := tm.GenerateToken("alice", domain.UserRoleUser)
	require.NoError(t, err)
	suspended, _, err := tm.GenerateToken("gone", domain.UserRoleUser)
	require.NoError(t, err)
	unknown, _, err := tm.GenerateToken("nobody", domain.UserRoleUser)
	require.NoError(t, err)
	forged, _, err := tm.GenerateToken("alice", domain.UserRoleSystem)
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		bearer string
		want   int
	}{
		{name: "no header", path: "/me", want: 401},
		{name: "garbage token", path: "/me", bearer: "nope", want: 401},
		{name: "user", path: "/me", bearer: alice, want: 200},
		{name: "suspended user", path: "/me", bearer: suspended, want: 401},
		{name: "unknown user", path: "/me", bearer: unknown, want: 401},
		{name: "system role in jwt", path: "/system", bearer: forged, want: 401},
		{name: "user on system route", path: "/system", bearer: alice, want: 403},
		{name: "system token", path: "/system", bearer: "sys-token", want: 200},
		{name: "system token on user route", path: "/me", bearer: "sys-token", want: 403},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, doGet(t, app, tt.path, tt.bearer))
		})
	}
}

func TestSystemTokenDisabledWhenEmpty(t *testing.T) {
	mw := NewAuthMiddleware(NewTokenManager("secret", 5, "ticket-approval"), stubUsers{}, "")
	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		var de *apperrors.DomainError
		if errors.As(err, &de) {
			return c.SendStatus(de.HTTPStatus)
		}
		return c.SendStatus(500)
	}})
	app.Get("/x", mw.Handle, func(c *fiber.Ctx) error { return c.SendStatus(200) })

	assert.Equal(t, 401, doGet(t, app, "/x", ""))
	assert.Equal(t, 401, doGet(t, app, "/x", " "))
}
