package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/catalinfl/ocrbatch/internal/ocrerrors"
)

// writeError maps an ocrerrors.Kind to the HTTP status §7 specifies and
// writes a JSON error body, centralising what the teacher's handlers.go
// repeats inline (c.Status(fiber.StatusBadRequest).JSON(...)) in every
// handler.
func writeError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError

	switch ocrerrors.KindOf(err) {
	case ocrerrors.BadInput, ocrerrors.NoValidInput:
		status = fiber.StatusBadRequest
	case ocrerrors.NotFound:
		status = fiber.StatusNotFound
	case ocrerrors.AlreadyTerminal:
		status = fiber.StatusBadRequest
	case ocrerrors.TransientIO, ocrerrors.CacheIO, ocrerrors.Internal:
		status = fiber.StatusInternalServerError
	}

	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
