package api

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gitado/gitado/internal/auth"
	"github.com/gitado/gitado/internal/repo"
	"github.com/gitado/gitado/internal/token"
	"github.com/gitado/gitado/params"
)

const defaultTokenValidity = 30 * 24 * time.Hour

// TokenHandler manages project access tokens. The ":id" in every route goes
// through the locator, so token records are always keyed by the resolved
// repository GUID and scoping is enforced before any token operation.
type TokenHandler struct {
	tokens  *token.Service
	locator *repo.Locator
}

func NewTokenHandler(tokens *token.Service, locator *repo.Locator) *TokenHandler {
	return &TokenHandler{
		tokens:  tokens,
		locator: locator,
	}
}

func (h *TokenHandler) resolveProjectID(ctx *fiber.Ctx) (string, error) {
	access := auth.Access(ctx)
	resolution, err := h.locator.Resolve(ctx.Context(), access, ctx.Params("id"))
	if err != nil {
		return "", err
	}
	return resolution.Repo.ID, nil
}

func parseTokenID(ctx *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(ctx.Params("tokenId"), 10, 64)
	if err != nil {
		return 0, fiber.ErrBadRequest
	}
	return id, nil
}

func (h *TokenHandler) ListTokens(ctx *fiber.Ctx) error {
	projectID, err := h.resolveProjectID(ctx)
	if err != nil {
		return err
	}
	records, err := h.tokens.List(ctx.Context(), projectID)
	if err != nil {
		return err
	}
	out := make([]AccessToken, 0, len(records))
	for i := range records {
		out = append(out, newAccessToken(&records[i], ""))
	}
	return ctx.JSON(out)
}

type createTokenRequest struct {
	Name        string   `json:"name"`
	Scopes      []string `json:"scopes"`
	AccessLevel int      `json:"access_level"`
	ExpiresAt   string   `json:"expires_at"`
}

func (h *TokenHandler) CreateToken(ctx *fiber.Ctx) error {
	projectID, err := h.resolveProjectID(ctx)
	if err != nil {
		return err
	}

	var req createTokenRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	if strings.TrimSpace(req.Name) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "name is required")
	}
	expiresAt := time.Now().Add(defaultTokenValidity)
	if req.ExpiresAt != "" {
		expiresAt, err = time.Parse("2006-01-02", req.ExpiresAt)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "expires_at must be a YYYY-MM-DD date")
		}
	}
	if req.AccessLevel == 0 {
		req.AccessLevel = 40
	}

	access := auth.Access(ctx)
	record, plaintext, err := h.tokens.Create(ctx.Context(), token.CreateParams{
		ProjectID:       projectID,
		Name:            req.Name,
		Scopes:          req.Scopes,
		AccessLevel:     req.AccessLevel,
		AdoPat:          access.Pat,
		AdoBaseURL:      access.Config.AdoBaseURL,
		AllowedProjects: access.Config.AllowedProjects,
		ExpiresAt:       expiresAt,
	})
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(newAccessToken(record, plaintext))
}

func (h *TokenHandler) RevokeToken(ctx *fiber.Ctx) error {
	projectID, err := h.resolveProjectID(ctx)
	if err != nil {
		return err
	}
	tokenID, err := parseTokenID(ctx)
	if err != nil {
		return err
	}
	err = h.tokens.Revoke(ctx.Context(), projectID, tokenID)
	if errors.Is(err, token.ErrTokenNotFound) || errors.Is(err, token.ErrTokenRevoked) {
		return fiber.ErrNotFound
	}
	if err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (h *TokenHandler) RotateToken(ctx *fiber.Ctx) error {
	projectID, err := h.resolveProjectID(ctx)
	if err != nil {
		return err
	}
	tokenID, err := parseTokenID(ctx)
	if err != nil {
		return err
	}
	record, plaintext, err := h.tokens.Rotate(ctx.Context(), projectID, tokenID, params.RotatedTokenValidity)
	if errors.Is(err, token.ErrTokenNotFound) || errors.Is(err, token.ErrTokenRevoked) {
		return fiber.ErrNotFound
	}
	if err != nil {
		return err
	}
	return ctx.JSON(newAccessToken(record, plaintext))
}

// ListOwnTokens implements the personal_access_tokens listing for the
// caller's own credential. Only a project access token has a record to show.
func (h *TokenHandler) ListOwnTokens(ctx *fiber.Ctx) error {
	cred := auth.ExtractCredential(ctx.Get("PRIVATE-TOKEN"), ctx.Get(fiber.HeaderAuthorization))
	value := strings.TrimSpace(cred.Token)
	if !strings.HasPrefix(value, params.ProjectTokenPrefix) ||
		strings.HasPrefix(value, params.OAuthTokenPrefix) {
		return ctx.JSON([]AccessToken{})
	}
	record, err := h.tokens.Resolve(ctx.Context(), value)
	if err != nil {
		return ctx.JSON([]AccessToken{})
	}
	return ctx.JSON([]AccessToken{newAccessToken(record, "")})
}
