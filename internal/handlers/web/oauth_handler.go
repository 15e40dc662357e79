package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/gitado/gitado/internal/oauth"
	"github.com/gitado/gitado/internal/repo"
)

// OAuthHandler drives the browser half of the authorization code flow: the
// PAT entry form, the project selection form, and the token endpoint.
type OAuthHandler struct {
	oauthService *oauth.Service
	nameCache    *repo.NameCache
}

func NewOAuthHandler(oauthService *oauth.Service, nameCache *repo.NameCache) *OAuthHandler {
	return &OAuthHandler{
		oauthService: oauthService,
		nameCache:    nameCache,
	}
}

type authorizeForm struct {
	ClientID     string `form:"client_id"`
	RedirectURI  string `form:"redirect_uri"`
	State        string `form:"state"`
	ResponseType string `form:"response_type"`
	Scope        string `form:"scope"`
	Organization string `form:"organization"`
	Pat          string `form:"pat"`
}

func (h *OAuthHandler) renderAuthorizePage(ctx *fiber.Ctx, statusCode int, form authorizeForm, errorMsg string) error {
	// organizations seen on earlier successful resolutions, offered as
	// completion suggestions on the form
	knownOrgs, _ := h.nameCache.KnownOrgs(ctx.Context())
	return ctx.Status(statusCode).Render("authorize", fiber.Map{
		"clientId":     form.ClientID,
		"redirectUri":  form.RedirectURI,
		"state":        form.State,
		"responseType": form.ResponseType,
		"scope":        form.Scope,
		"organization": form.Organization,
		"knownOrgs":    knownOrgs,
		"errorMsg":     errorMsg,
	})
}

func (h *OAuthHandler) GetAuthorize(ctx *fiber.Ctx) error {
	form := authorizeForm{
		ClientID:     ctx.Query("client_id"),
		RedirectURI:  ctx.Query("redirect_uri"),
		State:        ctx.Query("state"),
		ResponseType: ctx.Query("response_type"),
		Scope:        ctx.Query("scope"),
	}
	return h.renderAuthorizePage(ctx, fiber.StatusOK, form, "")
}

func (h *OAuthHandler) PostAuthorize(ctx *fiber.Ctx) error {
	var form authorizeForm
	if err := ctx.BodyParser(&form); err != nil {
		return fiber.ErrBadRequest
	}

	session, err := h.oauthService.BeginAuthorization(ctx.Context(), oauth.BeginParams{
		ClientID:     form.ClientID,
		RedirectURI:  form.RedirectURI,
		State:        form.State,
		ResponseType: form.ResponseType,
		Scope:        form.Scope,
		OrgName:      form.Organization,
		Pat:          form.Pat,
	})
	switch {
	case errors.Is(err, oauth.ErrInvalidRequest):
		msg := MsgMissingAuthorizeFields
		if form.RedirectURI == "" {
			msg = MsgMissingRedirectURI
		}
		return h.renderAuthorizePage(ctx, fiber.StatusBadRequest, form, msg)
	case errors.Is(err, oauth.ErrAccessDenied):
		return h.renderAuthorizePage(ctx, fiber.StatusUnauthorized, form, MsgPATRejected)
	case err != nil:
		return err
	}

	return ctx.Render("select-projects", fiber.Map{
		"sessionId":    session.ID,
		"organization": session.OrgName,
		"projects":     session.CandidateProjects,
	})
}

type confirmForm struct {
	SessionID string   `form:"session_id"`
	Action    string   `form:"action"`
	Projects  []string `form:"projects"`
}

func (h *OAuthHandler) PostConfirm(ctx *fiber.Ctx) error {
	var form confirmForm
	if err := ctx.BodyParser(&form); err != nil {
		return fiber.ErrBadRequest
	}

	if form.Action == "deny" {
		result, err := h.oauthService.Deny(ctx.Context(), form.SessionID)
		if errors.Is(err, oauth.ErrSessionExpired) {
			return h.renderAuthorizePage(ctx, fiber.StatusBadRequest, authorizeForm{}, MsgSessionExpired)
		}
		if err != nil {
			return err
		}
		return redirect(ctx, result.RedirectURI, "error", "access_denied", "state", result.State)
	}

	result, err := h.oauthService.Confirm(ctx.Context(), form.SessionID, form.Projects)
	if errors.Is(err, oauth.ErrSessionExpired) {
		return h.renderAuthorizePage(ctx, fiber.StatusBadRequest, authorizeForm{}, MsgSessionExpired)
	}
	if err != nil {
		return err
	}
	return redirect(ctx, result.RedirectURI, "code", result.Code, "state", result.State)
}

type tokenForm struct {
	GrantType    string `form:"grant_type"`
	Code         string `form:"code"`
	RefreshToken string `form:"refresh_token"`
	ClientID     string `form:"client_id"`
	ClientSecret string `form:"client_secret"`
	RedirectURI  string `form:"redirect_uri"`
}

func oauthError(ctx *fiber.Ctx, statusCode int, errCode string, description string) error {
	return ctx.Status(statusCode).JSON(fiber.Map{
		"error":             errCode,
		"error_description": description,
	})
}

func (h *OAuthHandler) PostToken(ctx *fiber.Ctx) error {
	var form tokenForm
	if err := ctx.BodyParser(&form); err != nil {
		return oauthError(ctx, fiber.StatusBadRequest, "invalid_request", "malformed request body")
	}

	var (
		resp *oauth.TokenResponse
		err  error
	)
	switch form.GrantType {
	case "authorization_code":
		resp, err = h.oauthService.Exchange(ctx.Context(), form.ClientSecret, form.Code)
	case "refresh_token":
		resp, err = h.oauthService.Refresh(ctx.Context(), form.ClientSecret, form.RefreshToken)
	default:
		return oauthError(ctx, fiber.StatusBadRequest, "unsupported_grant_type", "use authorization_code or refresh_token")
	}

	switch {
	case errors.Is(err, oauth.ErrInvalidClient):
		return oauthError(ctx, fiber.StatusUnauthorized, "invalid_client", "client authentication failed")
	case errors.Is(err, oauth.ErrInvalidGrant):
		return oauthError(ctx, fiber.StatusBadRequest, "invalid_grant", "code or refresh token is invalid or expired")
	case err != nil:
		return err
	}
	return ctx.JSON(resp)
}
