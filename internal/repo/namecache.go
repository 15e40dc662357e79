package repo

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/gitado/gitado/internal/common"
	"github.com/gitado/gitado/internal/store"
	"github.com/gitado/gitado/params"
)

// NameCache is a best-effort reverse mapping from URL-safe slugs to actual
// ADO display names, and from namespace/project paths to organizations.
// Entries are written opportunistically on successful resolutions, never
// expire, and writes skip values that would not change.
type NameCache struct {
	storage store.Storage
}

func NewNameCache(storage store.Storage) *NameCache {
	return &NameCache{storage: storage}
}

func actualNameKey(org, slug string) string {
	return params.ActualNameKeyPrefix + org + "/" + slug
}

// ActualName resolves a slug back to the display name observed earlier.
func (c *NameCache) ActualName(ctx context.Context, org, slug string) (string, bool) {
	raw, err := c.storage.Get(ctx, actualNameKey(org, common.Slugify(slug)))
	if err != nil {
		return "", false
	}
	return string(raw), true
}

// CacheActualName records slug → display name. A no-op when the name is its
// own slug or the cached value already matches.
func (c *NameCache) CacheActualName(ctx context.Context, org, actual string) {
	slug := common.Slugify(actual)
	if slug == actual {
		return
	}
	key := actualNameKey(org, slug)
	if existing, err := c.storage.Get(ctx, key); err == nil && string(existing) == actual {
		return
	}
	if err := c.storage.Set(ctx, key, []byte(actual), 0); err != nil {
		slog.Warn("Failed to cache actual name", "org", org, "slug", slug, "error", err)
	}
}

// CacheOrgMapping records that namespace/project lives in org, under both
// the literal and the slug-normalized path forms.
func (c *NameCache) CacheOrgMapping(ctx context.Context, namespace, project, org string) {
	literal := namespace + "/" + project
	slugged := common.Slugify(namespace) + "/" + common.Slugify(project)
	paths := []string{literal}
	if slugged != literal {
		paths = append(paths, slugged)
	}
	for _, path := range paths {
		key := params.OrgMappingKeyPrefix + path
		if existing, err := c.storage.Get(ctx, key); err == nil && string(existing) == org {
			continue
		}
		if err := c.storage.Set(ctx, key, []byte(org), 0); err != nil {
			slog.Warn("Failed to cache org mapping", "path", path, "error", err)
		}
	}
}

// OrgForPath looks up the organization previously seen for a path.
func (c *NameCache) OrgForPath(ctx context.Context, namespace, project string) (string, bool) {
	for _, path := range []string{
		namespace + "/" + project,
		common.Slugify(namespace) + "/" + common.Slugify(project),
	} {
		if raw, err := c.storage.Get(ctx, params.OrgMappingKeyPrefix+path); err == nil {
			return string(raw), true
		}
	}
	return "", false
}

// AddKnownOrg appends org to the known organization list if absent.
func (c *NameCache) AddKnownOrg(ctx context.Context, org string) {
	orgs, _ := c.KnownOrgs(ctx)
	for _, known := range orgs {
		if strings.EqualFold(known, org) {
			return
		}
	}
	orgs = append(orgs, org)
	raw, err := json.Marshal(orgs)
	if err != nil {
		return
	}
	if err := c.storage.Set(ctx, params.KnownOrgsKey, raw, 0); err != nil {
		slog.Warn("Failed to record known org", "org", org, "error", err)
	}
}

func (c *NameCache) KnownOrgs(ctx context.Context) ([]string, error) {
	raw, err := c.storage.Get(ctx, params.KnownOrgsKey)
	if err == store.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var orgs []string
	if err := json.Unmarshal(raw, &orgs); err != nil {
		return nil, err
	}
	return orgs, nil
}
