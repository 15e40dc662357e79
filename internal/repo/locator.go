package repo

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/gitado/gitado/internal/ado"
	"github.com/gitado/gitado/internal/auth"
	"github.com/gitado/gitado/internal/common"
)

// ErrNotFound covers both nonexistent repositories and repositories outside
// the caller's allowed projects. The two are deliberately indistinguishable
// so a scoped token cannot be used to enumerate projects.
var ErrNotFound = errors.New("repository not found")

// Resolution is the Locator's answer: the concrete ADO repository and the
// actual project name to address it under.
type Resolution struct {
	Repo        *ado.Repository
	ProjectName string
}

// Locator resolves a client-visible repository identifier (GUID, bare name,
// or namespace/path with possibly slugged segments) to an ADO repository,
// scoped by the caller's allowed projects. It is the single authority for
// "may this caller reach this repository".
type Locator struct {
	client *ado.Client
	cache  *NameCache
}

func NewLocator(client *ado.Client, cache *NameCache) *Locator {
	return &Locator{client: client, cache: cache}
}

// Resolve runs the multi-stage fallback search: path identifiers resolve
// project-first, bare identifiers GUID-first with a name probe fallback.
func (l *Locator) Resolve(ctx context.Context, access *auth.ResolvedAccess, identifier string) (*Resolution, error) {
	decoded, err := url.QueryUnescape(identifier)
	if err != nil {
		decoded = identifier
	}
	decoded = strings.Trim(decoded, "/")
	if decoded == "" {
		return nil, ErrNotFound
	}

	org := l.client.Org(access.Config.AdoBaseURL, access.AuthHeader)
	var resolution *Resolution
	if idx := strings.LastIndex(decoded, "/"); idx >= 0 {
		resolution, err = l.resolvePath(ctx, org, &access.Config, decoded[:idx], decoded[idx+1:])
	} else {
		resolution, err = l.resolveBare(ctx, org, &access.Config, decoded)
	}
	if err != nil {
		return nil, err
	}

	l.cacheResolution(ctx, &access.Config, resolution)
	return resolution, nil
}

// resolvePath handles namespace/repo identifiers. The namespace segment maps
// to an ADO project, possibly via slug or the allowed-projects list.
func (l *Locator) resolvePath(ctx context.Context, org *ado.OrgClient, cfg *auth.AccessConfig, projectPart, repoPart string) (*Resolution, error) {
	projectName, ok := l.resolveProjectName(ctx, cfg, projectPart, repoPart)
	if !ok {
		// the namespace is not in the allowed list; report not-found
		return nil, ErrNotFound
	}

	if res, err := l.findInProject(ctx, org, projectName, repoPart); err == nil {
		return res, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// the namespace may be a slug of a project we have not seen yet
	projects, err := org.ListProjects(ctx)
	if err != nil {
		return nil, passthroughOrNotFound(err)
	}
	for _, project := range projects {
		if !common.SlugEqual(project.Name, projectPart) || strings.EqualFold(project.Name, projectName) {
			continue
		}
		if !cfg.ProjectAllowed(project.Name) {
			continue
		}
		if res, err := l.findInProject(ctx, org, project.Name, repoPart); err == nil {
			return res, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// resolveProjectName maps the namespace segment to an actual project name.
// With a configured allowed list the segment must match one of its entries;
// otherwise the cached actual name or the verbatim segment is used.
func (l *Locator) resolveProjectName(ctx context.Context, cfg *auth.AccessConfig, projectPart, repoPart string) (string, bool) {
	if cfg.Restricted() {
		for _, allowed := range cfg.AllowedProjects {
			if common.SlugEqual(allowed, projectPart) {
				return allowed, true
			}
		}
		return "", false
	}
	org := cfg.OrgName
	if org == "" {
		org = ado.OrgName(cfg.AdoBaseURL)
	}
	if org == "" {
		// base URLs of on-premises servers carry no org segment; recover
		// the org recorded for this path on an earlier resolution
		org, _ = l.cache.OrgForPath(ctx, projectPart, repoPart)
	}
	if actual, ok := l.cache.ActualName(ctx, org, projectPart); ok {
		return actual, true
	}
	return projectPart, true
}

// findInProject tries the direct repository GET, then a case-insensitive
// name or slug match over the project's repository list.
func (l *Locator) findInProject(ctx context.Context, org *ado.OrgClient, projectName, repoPart string) (*Resolution, error) {
	repo, err := org.GetRepository(ctx, projectName, repoPart)
	if err == nil {
		return &Resolution{Repo: repo, ProjectName: repo.Project.Name}, nil
	}
	if err := passthroughOrNotFound(err); !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	repos, err := org.ListRepositories(ctx, projectName)
	if err != nil {
		return nil, passthroughOrNotFound(err)
	}
	for i := range repos {
		if common.SlugEqual(repos[i].Name, repoPart) {
			return &Resolution{Repo: &repos[i], ProjectName: repos[i].Project.Name}, nil
		}
	}
	return nil, ErrNotFound
}

// resolveBare handles identifiers without a slash: GUIDs resolve directly at
// organization level; bare names fall back to probing allowed projects or
// the full repository list.
func (l *Locator) resolveBare(ctx context.Context, org *ado.OrgClient, cfg *auth.AccessConfig, id string) (*Resolution, error) {
	repo, err := org.GetRepositoryByID(ctx, id)
	if err == nil {
		if !cfg.ProjectAllowed(repo.Project.Name) {
			return nil, ErrNotFound
		}
		return &Resolution{Repo: repo, ProjectName: repo.Project.Name}, nil
	}

	var upstream *ado.UpstreamError
	if errors.As(err, &upstream) && upstream.IsProjectNameRequired() {
		// the id was a bare repository name, not a GUID
		return l.resolveBareName(ctx, org, cfg, id)
	}
	return nil, passthroughOrNotFound(err)
}

func (l *Locator) resolveBareName(ctx context.Context, org *ado.OrgClient, cfg *auth.AccessConfig, name string) (*Resolution, error) {
	if cfg.Restricted() {
		for _, project := range cfg.AllowedProjects {
			repo, err := org.GetRepository(ctx, project, name)
			if err == nil {
				return &Resolution{Repo: repo, ProjectName: repo.Project.Name}, nil
			}
			if err := passthroughOrNotFound(err); !errors.Is(err, ErrNotFound) {
				return nil, err
			}
		}
		return nil, ErrNotFound
	}

	repos, err := org.ListAllRepositories(ctx)
	if err != nil {
		return nil, passthroughOrNotFound(err)
	}
	for i := range repos {
		if strings.EqualFold(repos[i].Name, name) || repos[i].ID == name {
			return &Resolution{Repo: &repos[i], ProjectName: repos[i].Project.Name}, nil
		}
	}
	return nil, ErrNotFound
}

// cacheResolution opportunistically records slug reverse mappings and the
// path → organization association.
func (l *Locator) cacheResolution(ctx context.Context, cfg *auth.AccessConfig, res *Resolution) {
	org := cfg.OrgName
	if org == "" {
		org = ado.OrgName(cfg.AdoBaseURL)
	}
	if org == "" {
		return
	}
	l.cache.CacheActualName(ctx, org, res.ProjectName)
	l.cache.CacheActualName(ctx, org, res.Repo.Name)
	l.cache.CacheOrgMapping(ctx, res.ProjectName, res.Repo.Name, org)
	l.cache.AddKnownOrg(ctx, org)
}

// passthroughOrNotFound collapses upstream 404s into ErrNotFound and keeps
// every other upstream failure intact for the caller to surface.
func passthroughOrNotFound(err error) error {
	var upstream *ado.UpstreamError
	if errors.As(err, &upstream) && upstream.NotFound() {
		return ErrNotFound
	}
	return err
}
