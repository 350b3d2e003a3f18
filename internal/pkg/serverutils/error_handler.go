package serverutils

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// StatusError is implemented by domain errors that know their HTTP status.
type StatusError interface {
	error
	HTTPStatus() int
}

// ErrorHandlerMiddleware turns errors returned by handlers into the common
// response envelope.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}
		code, message := Classify(err)
		return ctx.Status(code).JSON(ErrorResponse(code, message))
	}
}

// Classify maps an error to a status and a client-safe message.
func Classify(err error) (int, string) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return fiber.StatusBadRequest, ValidationMessage(validationErrs)
	}

	var statusErr StatusError
	if errors.As(err, &statusErr) {
		return statusErr.HTTPStatus(), statusErr.Error()
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code, fiberErr.Message
	}

	if errors.Is(err, ErrMissingToken) || errors.Is(err, ErrInvalidToken) {
		return fiber.StatusUnauthorized, err.Error()
	}
	return fiber.StatusInternalServerError, "internal server error"
}
