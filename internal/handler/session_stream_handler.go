package handler

import (
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/pkg/logger"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/pkg/serverutils"
	internalWS "github.com/Ibar-Aki/solar-aldrin-sub001/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const streamModule = "SessionStreamHandler"

// SessionAuthorizer reports whether a worker owns a live session.
type SessionAuthorizer interface {
	Authorize(workerID, sessionID string) error
}

// SessionStreamHandler upgrades followers of one KY session to a websocket.
type SessionStreamHandler struct {
	sessions SessionAuthorizer
	hub      *internalWS.Hub
	logger   logger.ILogger
}

func NewSessionStreamHandler(sessions SessionAuthorizer, hub *internalWS.Hub, log logger.ILogger) *SessionStreamHandler {
	return &SessionStreamHandler{
		sessions: sessions,
		hub:      hub,
		logger:   log,
	}
}

// ServeWs authenticates the handshake before upgrading.
func (h *SessionStreamHandler) ServeWs(c *fiber.Ctx) error {
	// Browsers cannot set headers on a websocket handshake, so the query
	// parameter comes first.
	tokenStr := c.Query("token")
	if tokenStr == "" {
		tokenStr = serverutils.BearerToken(c)
	}
	if tokenStr == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Missing token (query 'token' or header 'Authorization')"))
	}

	workerID, err := serverutils.ParseWorkerToken(tokenStr)
	if err != nil {
		h.logger.Warn(streamModule, "Invalid token in websocket handshake", map[string]interface{}{"error": err.Error()})
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
	}

	sessionID := c.Params("id")
	if err := h.sessions.Authorize(workerID, sessionID); err != nil {
		return err
	}

	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return websocket.New(func(conn *websocket.Conn) {
		fields := map[string]interface{}{"session_id": sessionID, "worker_id": workerID}
		h.logger.Info(streamModule, "Follower connected", fields)
		internalWS.ServeWs(h.hub, conn, sessionID)
		h.logger.Info(streamModule, "Follower disconnected", fields)
	})(c)
}

func (h *SessionStreamHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/ky/v1/sessions/:id/stream", h.ServeWs)
}
