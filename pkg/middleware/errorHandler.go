package middleware

import (
	"errors"

	"github.com/Alwanly/service-heartbeat-pipeline/pkg/logger"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/wrapper"
	"github.com/gofiber/fiber/v2"
)

func ErrorHandler(log *logger.CanonicalLogger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "internal server error"
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		}

		log.HTTPError(c.Method(), c.Path(), code, err)

		return c.Status(code).JSON(wrapper.ResponseFailed(code, message, nil))
	}
}
