package controller

import (
	"errors"
	"strconv"

	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/dto"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/pkg/serverutils"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// IChatController serves the model API the KY client talks to. Errors use
// the flat {error, code, retriable} body the client classifies.
type IChatController interface {
	RegisterRoutes(r fiber.Router)
	Chat(ctx *fiber.Ctx) error
	Feedback(ctx *fiber.Ctx) error
}

type chatController struct {
	chatService  service.IChatService
	serviceToken string
}

func NewChatController(chatService service.IChatService, serviceToken string) IChatController {
	return &chatController{
		chatService:  chatService,
		serviceToken: serviceToken,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	guard := serverutils.ServiceTokenMiddleware(c.serviceToken)
	r.Post("/chat", guard, c.Chat)
	r.Post("/feedback", guard, c.Feedback)
}

func (c *chatController) Chat(ctx *fiber.Ctx) error {
	var req dto.ChatAPIRequest
	if err := ctx.BodyParser(&req); err != nil {
		return writeChatError(ctx, fiber.StatusBadRequest, "INVALID_REQUEST", "malformed request body", false)
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return writeValidationError(ctx, err)
	}

	res, err := c.chatService.Chat(ctx.UserContext(), &req)
	if err != nil {
		return writeServiceError(ctx, err)
	}
	return ctx.JSON(res)
}

func (c *chatController) Feedback(ctx *fiber.Ctx) error {
	var req dto.FeedbackAPIRequest
	if err := ctx.BodyParser(&req); err != nil {
		return writeChatError(ctx, fiber.StatusBadRequest, "INVALID_REQUEST", "malformed request body", false)
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return writeValidationError(ctx, err)
	}

	res, err := c.chatService.Feedback(ctx.UserContext(), &req)
	if err != nil {
		return writeServiceError(ctx, err)
	}
	if res == nil {
		return ctx.SendStatus(fiber.StatusNoContent)
	}
	return ctx.JSON(res)
}

func writeChatError(ctx *fiber.Ctx, status int, code, message string, retriable bool) error {
	return ctx.Status(status).JSON(dto.ChatAPIErrorResponse{
		Error:     message,
		Code:      code,
		Retriable: retriable,
	})
}

func writeValidationError(ctx *fiber.Ctx, err error) error {
	message := err.Error()
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		message = serverutils.ValidationMessage(verrs)
	}
	return writeChatError(ctx, fiber.StatusBadRequest, "INVALID_REQUEST", message, false)
}

func writeServiceError(ctx *fiber.Ctx, err error) error {
	var svcErr *service.ChatServiceError
	if !errors.As(err, &svcErr) {
		return writeChatError(ctx, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error", false)
	}
	if svcErr.RetryAfter > 0 {
		ctx.Set(fiber.HeaderRetryAfter, strconv.Itoa(svcErr.RetryAfter))
	}
	return writeChatError(ctx, svcErr.Status, svcErr.Code, svcErr.Message, svcErr.Retriable)
}
