package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestReadyReportsDependencies(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name   string
		deps   map[string]Pinger
		status int
	}{
		{name: "all up", deps: map[string]Pinger{"postgres": ok, "redis": nil}, status: 200},
		{name: "postgres down", deps: map[string]Pinger{"postgres": down, "redis": ok}, status: 503},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/ready", NewHealthHandler("svc", "v1", tt.deps).Ready)

			resp, err := app.Test(httptest.NewRequest("GET", "/ready", nil), -1)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)

			var body map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			if tt.status == 200 {
				deps := body["dependencies"].(map[string]any)
				assert.Equal(t, "disabled", deps["redis"])
				assert.Equal(t, "ok", deps["postgres"])
			} else {
				details := body["error"].(map[string]any)["details"].(map[string]any)
				assert.Equal(t, "connection refused", details["postgres"])
			}
		})
	}
}
