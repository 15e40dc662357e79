package auth

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

const (
	accessContextKey = "resolvedAccess"

	// ReauthenticateHintHeader tells API clients how to recover from a 401.
	ReauthenticateHintHeader = "X-Gitado-Reauthenticate"

	wwwAuthenticateREST = `Bearer realm="gitado"`
)

// Access returns the resolved access attached by Middleware. Panics when
// called outside an authenticated route group.
func Access(ctx *fiber.Ctx) *ResolvedAccess {
	return ctx.Locals(accessContextKey).(*ResolvedAccess)
}

// Middleware authenticates every /api/v4 request. Any outcome other than
// success is a 401 with a JSON message; there is no anonymous surface.
func Middleware(resolver *Resolver) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		cred := ExtractCredential(ctx.Get("PRIVATE-TOKEN"), ctx.Get(fiber.HeaderAuthorization))
		access, err := resolver.Resolve(ctx.Context(), cred)
		if err != nil {
			return unauthorized(ctx, err)
		}
		ctx.Locals(accessContextKey, access)
		return ctx.Next()
	}
}

func unauthorized(ctx *fiber.Ctx, err error) error {
	message := err.Error()
	hint := "supply-organization-username"
	switch {
	case errors.Is(err, ErrInvalidToken):
		hint = "token-invalid"
	case errors.Is(err, ErrLegacyToken):
		hint = "token-must-be-recreated"
	case errors.Is(err, ErrAuthRequired):
		hint = "credentials-missing"
	default:
		// resolver hit storage trouble; do not leak internals
		slog.Error("Credential resolution failed", "path", ctx.Path(), "error", err)
		message = ErrAuthRequired.Error()
	}
	ctx.Set(fiber.HeaderWWWAuthenticate, wwwAuthenticateREST)
	ctx.Set(ReauthenticateHintHeader, hint)
	return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"message": "401 Unauthorized: " + message,
	})
}
