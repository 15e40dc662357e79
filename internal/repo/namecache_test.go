package repo

import (
	"context"
	"testing"

	"github.com/gitado/gitado/internal/store"
)

func TestNameCacheActualName(t *testing.T) {
	ctx := context.Background()
	cache := NewNameCache(store.NewMemoryStorage())

	cache.CacheActualName(ctx, "contoso", "Main System")
	actual, ok := cache.ActualName(ctx, "contoso", "main-system")
	if !ok || actual != "Main System" {
		t.Errorf("actual name = %q, %v", actual, ok)
	}

	// lookups are keyed per organization
	if _, ok := cache.ActualName(ctx, "fabrikam", "main-system"); ok {
		t.Error("actual name leaked across organizations")
	}
}

func TestNameCacheOrgForPath(t *testing.T) {
	ctx := context.Background()
	cache := NewNameCache(store.NewMemoryStorage())

	if _, ok := cache.OrgForPath(ctx, "Main System", "my-repo"); ok {
		t.Error("unseen path reported a cached org")
	}

	cache.CacheOrgMapping(ctx, "Main System", "my-repo", "contoso")

	// both the literal and the slug-normalized path forms resolve
	if org, ok := cache.OrgForPath(ctx, "Main System", "my-repo"); !ok || org != "contoso" {
		t.Errorf("literal path: org = %q, %v", org, ok)
	}
	if org, ok := cache.OrgForPath(ctx, "main-system", "my-repo"); !ok || org != "contoso" {
		t.Errorf("slugged path: org = %q, %v", org, ok)
	}
}

func TestNameCacheKnownOrgs(t *testing.T) {
	ctx := context.Background()
	cache := NewNameCache(store.NewMemoryStorage())

	orgs, err := cache.KnownOrgs(ctx)
	if err != nil || orgs != nil {
		t.Fatalf("empty cache: %v, %v", orgs, err)
	}

	cache.AddKnownOrg(ctx, "contoso")
	cache.AddKnownOrg(ctx, "fabrikam")
	cache.AddKnownOrg(ctx, "CONTOSO") // case-insensitive duplicate

	orgs, err = cache.KnownOrgs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(orgs) != 2 || orgs[0] != "contoso" || orgs[1] != "fabrikam" {
		t.Errorf("known orgs = %v", orgs)
	}
}
