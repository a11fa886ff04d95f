package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"treeline/internal/apierrors"
)

// errorResponse maps the service error taxonomy to HTTP statuses:
// unknown project -> 404, precondition failures -> 400, store trouble
// -> 503, anything else -> 500.
func errorResponse(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, apierrors.ErrProjectNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, apierrors.ErrInvalidName),
		errors.Is(err, apierrors.ErrSameSourceAndDestination),
		errors.Is(err, apierrors.ErrLocationChangeViaRename),
		errors.Is(err, apierrors.ErrDepthExceeded),
		errors.Is(err, apierrors.ErrUnknownField),
		errors.Is(err, apierrors.ErrProjectExists),
		errors.Is(err, apierrors.ErrMissingIDOrName):
		status = fiber.StatusBadRequest
	case errors.Is(err, apierrors.ErrStoreUnavailable):
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}
