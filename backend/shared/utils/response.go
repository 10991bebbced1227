package utils

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/fathima-sithara/social-platform/backend/shared/apperr"
)

func JSONSuccess(c *fiber.Ctx, status int, payload interface{}) error {
	return c.Status(status).JSON(fiber.Map{"success": true, "data": payload})
}

func JSONMessage(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"success": true, "message": msg})
}

func JSONError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"success": false, "message": msg})
}

// StatusFor maps the apperr sentinels onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrBadRequest):
		return fiber.StatusBadRequest
	case errors.Is(err, apperr.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, apperr.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, apperr.ErrRateLimited):
		return fiber.StatusTooManyRequests
	case errors.Is(err, apperr.ErrServiceUnavailable), errors.Is(err, apperr.ErrConnection):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// Fail writes err with the matching status. Internal errors are not echoed to the client.
func Fail(c *fiber.Ctx, err error) error {
	status := StatusFor(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		msg = "internal server error"
	}
	return JSONError(c, status, msg)
}
