package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/ngasd/ngasd/internal/disks"
	"github.com/ngasd/ngasd/internal/logging"
	"github.com/ngasd/ngasd/internal/metadata"
	"github.com/ngasd/ngasd/internal/models"
	"github.com/ngasd/ngasd/internal/node"
)

// domainErrors maps core sentinel errors to HTTP status and error code
var domainErrors = []struct {
	target error
	status int
	code   string
}{
	{metadata.ErrDiskNotFound, fiber.StatusNotFound, "DISK_NOT_FOUND"},
	{disks.ErrUnknownSlot, fiber.StatusNotFound, "UNKNOWN_SLOT"},
	{disks.ErrNoStorageSets, fiber.StatusServiceUnavailable, "NO_STORAGE_SETS"},
	{node.ErrNotOnline, fiber.StatusConflict, "NODE_OFFLINE"},
	{disks.ErrIllegalLogicalName, fiber.StatusInternalServerError, "ILLEGAL_LOGICAL_NAME"},
}

// ErrorHandler returns a custom error handler middleware
func ErrorHandler(logger *logging.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		errCode := "ERROR"
		message := "Internal Server Error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		} else {
			for _, de := range domainErrors {
				if errors.Is(err, de.target) {
					code = de.status
					errCode = de.code
					message = err.Error()
					break
				}
			}
		}

		fields := []interface{}{
			"path", c.Path(),
			"method", c.Method(),
			"status", code,
			"error", err,
		}
		reqLogger := logger.WithContext(c.UserContext())
		if code >= fiber.StatusInternalServerError {
			reqLogger.Error("Request error", fields...)
		} else {
			reqLogger.Warn("Request error", fields...)
		}

		return c.Status(code).JSON(models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:      errCode,
				Message:   message,
				Path:      c.Path(),
				RequestID: logging.RequestID(c.UserContext()),
			},
		})
	}
}
