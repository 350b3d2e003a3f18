package handler

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/pkg/logger"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/pkg/serverutils"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/service"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ownerOnly struct {
	owner string
}

func (o ownerOnly) Authorize(workerID, sessionID string) error {
	if workerID != o.owner || sessionID != "s1" {
		return service.ErrSessionNotFound
	}
	return nil
}

func signedToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	s, err := token.SignedString([]byte("stream-secret"))
	require.NoError(t, err)
	return s
}

func TestStreamHandshake(t *testing.T) {
	t.Setenv("JWT_SECRET", "stream-secret")
	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware())
	NewSessionStreamHandler(ownerOnly{owner: "worker-1"}, nil, logger.NewNop()).RegisterRoutes(app.Group("/api"))

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{name: "missing token", path: "/api/ky/v1/sessions/s1/stream", status: 401},
		{name: "garbage token", path: "/api/ky/v1/sessions/s1/stream?token=abc", status: 401},
		{name: "other worker", path: "/api/ky/v1/sessions/s1/stream?token=" + signedToken(t, "worker-2"), status: 404},
		{name: "unknown session", path: "/api/ky/v1/sessions/s9/stream", header: "Bearer " + signedToken(t, "worker-1"), status: 404},
		{name: "plain http", path: "/api/ky/v1/sessions/s1/stream?token=" + signedToken(t, "worker-1"), status: 426},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			body, _ := io.ReadAll(resp.Body)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))
		})
	}
}
