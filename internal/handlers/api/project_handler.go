package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gitado/gitado/internal/ado"
	"github.com/gitado/gitado/internal/auth"
	"github.com/gitado/gitado/internal/repo"
)

const (
	// advertised GitLab compatibility level; clients gate features on it
	compatVersion = "17.0.0"
)

// ProjectHandler serves the read side of the GitLab surface: identity,
// version and project lookup.
type ProjectHandler struct {
	adoClient *ado.Client
	locator   *repo.Locator
}

func NewProjectHandler(adoClient *ado.Client, locator *repo.Locator) *ProjectHandler {
	return &ProjectHandler{
		adoClient: adoClient,
		locator:   locator,
	}
}

func (h *ProjectHandler) GetUser(ctx *fiber.Ctx) error {
	access := auth.Access(ctx)
	org := h.adoClient.Org(access.Config.AdoBaseURL, access.AuthHeader)
	identity, err := org.GetIdentity(ctx.Context())
	if err != nil {
		return err
	}
	return ctx.JSON(newUser(identity))
}

func (h *ProjectHandler) GetVersion(ctx *fiber.Ctx) error {
	return ctx.JSON(Version{
		Version:  compatVersion,
		Revision: "gitado",
	})
}

func (h *ProjectHandler) GetProject(ctx *fiber.Ctx) error {
	access := auth.Access(ctx)
	resolution, err := h.locator.Resolve(ctx.Context(), access, ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(newProject(resolution, ctx.BaseURL()))
}
