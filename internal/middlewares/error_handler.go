package middlewares

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/gitado/gitado/internal/ado"
	"github.com/gitado/gitado/internal/repo"
)

// ErrorHandler renders uncaught errors as GitLab style JSON envelopes.
// Upstream Azure DevOps errors keep their status code and message so the
// caller sees what ADO said.
func ErrorHandler(ctx *fiber.Ctx, err error) error {
	var (
		upstreamErr *ado.UpstreamError
		protocolErr *ado.ProtocolError
		fiberErr    *fiber.Error
	)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return jsonMessage(ctx, fiber.StatusNotFound, "404 Project Not Found")
	case errors.As(err, &upstreamErr):
		message := upstreamErr.Message
		if message == "" {
			message = http.StatusText(upstreamErr.StatusCode)
		}
		return jsonMessage(ctx, upstreamErr.StatusCode, message)
	case errors.As(err, &protocolErr):
		slog.Error("unexpected upstream response", "path", ctx.Path(), "error", err)
		return jsonMessage(ctx, fiber.StatusBadGateway, protocolErr.Error())
	case errors.As(err, &fiberErr):
		return jsonMessage(ctx, fiberErr.Code, fmt.Sprintf("%d %s", fiberErr.Code, http.StatusText(fiberErr.Code)))
	default:
		slog.Error("unhandled error", "path", ctx.Path(), "error", err)
		return jsonMessage(ctx, fiber.StatusInternalServerError, "500 Internal Server Error")
	}
}

func jsonMessage(ctx *fiber.Ctx, statusCode int, message string) error {
	return ctx.Status(statusCode).JSON(fiber.Map{"message": message})
}
