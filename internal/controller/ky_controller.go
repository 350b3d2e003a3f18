package controller

import (
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/dto"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/pkg/serverutils"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IKyController interface {
	RegisterRoutes(r fiber.Router)
	Start(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Submit(ctx *fiber.Ctx) error
	Retry(ctx *fiber.Ctx) error
	NearMiss(ctx *fiber.Ctx) error
	Feedback(ctx *fiber.Ctx) error
	Speaker(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
	History(ctx *fiber.Ctx) error
}

type kyController struct {
	kyService service.IKySessionService
}

func NewKyController(kyService service.IKySessionService) IKyController {
	return &kyController{
		kyService: kyService,
	}
}

func (c *kyController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/ky/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Get("history", c.History)
	h.Post("sessions", c.Start)
	h.Get("sessions/:id", c.Show)
	h.Delete("sessions/:id", c.Delete)
	h.Post("sessions/:id/turns", c.Submit)
	h.Post("sessions/:id/retry", c.Retry)
	h.Put("sessions/:id/near-miss", c.NearMiss)
	h.Post("sessions/:id/feedback", c.Feedback)
	h.Post("sessions/:id/speaker", c.Speaker)
}

func workerID(ctx *fiber.Ctx) string {
	id, _ := ctx.Locals("user_id").(string)
	return id
}

func (c *kyController) Start(ctx *fiber.Ctx) error {
	var req dto.StartSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.kyService.Start(ctx.UserContext(), workerID(ctx), &req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Session started", res))
}

func (c *kyController) Show(ctx *fiber.Ctx) error {
	res, err := c.kyService.Get(ctx.UserContext(), workerID(ctx), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get session", res))
}

func (c *kyController) Submit(ctx *fiber.Ctx) error {
	var req dto.SubmitTurnRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.kyService.Submit(ctx.UserContext(), workerID(ctx), ctx.Params("id"), req.Text)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success submit turn", res))
}

func (c *kyController) Retry(ctx *fiber.Ctx) error {
	res, err := c.kyService.Retry(ctx.UserContext(), workerID(ctx), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success retry turn", res))
}

func (c *kyController) NearMiss(ctx *fiber.Ctx) error {
	var req dto.NearMissRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.kyService.SetNearMiss(ctx.UserContext(), workerID(ctx), ctx.Params("id"), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success update near miss", res))
}

// Feedback answers 204 when the model had nothing to add.
func (c *kyController) Feedback(ctx *fiber.Ctx) error {
	res, err := c.kyService.Feedback(ctx.UserContext(), workerID(ctx), ctx.Params("id"))
	if err != nil {
		return err
	}
	if res == nil {
		return ctx.SendStatus(fiber.StatusNoContent)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get feedback", res))
}

func (c *kyController) Speaker(ctx *fiber.Ctx) error {
	var req dto.SpeakerRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.kyService.Speaker(ctx.UserContext(), workerID(ctx), ctx.Params("id"), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success update speaker", res))
}

func (c *kyController) Delete(ctx *fiber.Ctx) error {
	if err := c.kyService.Delete(ctx.UserContext(), workerID(ctx), ctx.Params("id")); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete session", nil))
}

func (c *kyController) History(ctx *fiber.Ctx) error {
	var query dto.HistoryQuery
	if err := ctx.QueryParser(&query); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed query")
	}
	if err := serverutils.ValidateRequest(query); err != nil {
		return err
	}

	res, err := c.kyService.History(ctx.UserContext(), workerID(ctx), &query)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get history", res))
}
