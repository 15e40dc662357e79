package git

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/gitado/gitado/internal/auth"
	"github.com/gitado/gitado/internal/repo"
	"github.com/gitado/gitado/params"
)

const (
	serviceUploadPack  = "git-upload-pack"
	serviceReceivePack = "git-receive-pack"

	wwwAuthenticateGit = `Basic realm="Git"`
)

// Tunnel proxies the three Git Smart HTTP endpoints to ADO. It does its own
// credential extraction: git clients only send Authorization, and unlike the
// REST surface a raw ADO PAT is rejected here — only gateway-minted tokens
// may drive git traffic.
type Tunnel struct {
	resolver   *auth.Resolver
	locator    *repo.Locator
	httpClient *http.Client
}

func NewTunnel(resolver *auth.Resolver, locator *repo.Locator, httpClient *http.Client) *Tunnel {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Tunnel{
		resolver:   resolver,
		locator:    locator,
		httpClient: httpClient,
	}
}

// Register mounts the smart HTTP routes. Must run after more specific
// routes (oauth, api) so the wildcards do not shadow them.
func (t *Tunnel) Register(router fiber.Router) {
	router.Get("/:namespace/:project/info/refs", t.GetInfoRefs)
	router.Post("/:namespace/:project/git-upload-pack", t.PostUploadPack)
	router.Post("/:namespace/:project/git-receive-pack", t.PostReceivePack)
}

func (t *Tunnel) authenticate(ctx *fiber.Ctx) (*auth.ResolvedAccess, error) {
	cred := auth.ExtractCredential("", ctx.Get(fiber.HeaderAuthorization))
	// only classified tokens pass; a raw PAT has no org context here
	if !strings.HasPrefix(cred.Token, params.ProjectTokenPrefix) {
		return nil, auth.ErrAuthRequired
	}
	return t.resolver.Resolve(ctx.Context(), auth.Credential{Token: cred.Token})
}

// unauthorized answers in plain text: git clients show the body verbatim
// and choke on JSON here.
func unauthorized(ctx *fiber.Ctx) error {
	ctx.Set(fiber.HeaderWWWAuthenticate, wwwAuthenticateGit)
	return ctx.Status(fiber.StatusUnauthorized).SendString("Authentication required\n")
}

func notFound(ctx *fiber.Ctx) error {
	return ctx.Status(fiber.StatusNotFound).SendString("Repository not found\n")
}

func (t *Tunnel) resolveRepo(ctx *fiber.Ctx, access *auth.ResolvedAccess) (*repo.Resolution, error) {
	namespace := ctx.Params("namespace")
	project := strings.TrimSuffix(ctx.Params("project"), ".git")
	return t.locator.Resolve(ctx.Context(), access, namespace+"/"+project)
}

func (t *Tunnel) GetInfoRefs(ctx *fiber.Ctx) error {
	service := ctx.Query("service")
	if service != serviceUploadPack && service != serviceReceivePack {
		return ctx.Status(fiber.StatusBadRequest).SendString("Unsupported service\n")
	}
	access, err := t.authenticate(ctx)
	if err != nil {
		return unauthorized(ctx)
	}
	resolution, err := t.resolveRepo(ctx, access)
	if errors.Is(err, repo.ErrNotFound) {
		return notFound(ctx)
	}
	if err != nil {
		return err
	}

	upstreamURL := gitURL(access.Config.AdoBaseURL, resolution, "info/refs") + "?service=" + service
	return t.forward(ctx, access, upstreamURL, nil, "application/x-"+service+"-advertisement")
}

func (t *Tunnel) PostUploadPack(ctx *fiber.Ctx) error {
	return t.servicePost(ctx, serviceUploadPack)
}

func (t *Tunnel) PostReceivePack(ctx *fiber.Ctx) error {
	return t.servicePost(ctx, serviceReceivePack)
}

func (t *Tunnel) servicePost(ctx *fiber.Ctx, service string) error {
	access, err := t.authenticate(ctx)
	if err != nil {
		return unauthorized(ctx)
	}
	resolution, err := t.resolveRepo(ctx, access)
	if errors.Is(err, repo.ErrNotFound) {
		return notFound(ctx)
	}
	if err != nil {
		return err
	}

	body, err := decodeBody(ctx.Body(), ctx.Get(fiber.HeaderContentEncoding))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).SendString("Malformed request body\n")
	}

	upstreamURL := gitURL(access.Config.AdoBaseURL, resolution, service)
	return t.forward(ctx, access, upstreamURL, body, "application/x-"+service+"-result")
}

// gitURL addresses ADO's smart HTTP surface: {org}/{project}/_git/{repo}/...
func gitURL(baseURL string, resolution *repo.Resolution, suffix string) string {
	return strings.TrimRight(baseURL, "/") +
		"/" + url.PathEscape(resolution.ProjectName) +
		"/_git/" + url.PathEscape(resolution.Repo.Name) +
		"/" + suffix
}

// forward re-issues the request against ADO and relays the response
// byte-for-byte. The body has already been transcoded to identity.
func (t *Tunnel) forward(ctx *fiber.Ctx, access *auth.ResolvedAccess, upstreamURL string, body []byte, defaultContentType string) error {
	method := http.MethodGet
	var reader io.Reader
	if body != nil {
		method = http.MethodPost
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx.Context(), method, upstreamURL, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", access.AuthHeader)
	if contentType := ctx.Get(fiber.HeaderContentType); contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if accept := ctx.Get(fiber.HeaderAccept); accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		slog.Error("Git tunnel upstream request failed", "url", upstreamURL, "error", err)
		return ctx.Status(fiber.StatusBadGateway).SendString("Upstream unavailable\n")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}
	ctx.Set(fiber.HeaderContentType, contentType)
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	return ctx.Status(resp.StatusCode).Send(payload)
}
