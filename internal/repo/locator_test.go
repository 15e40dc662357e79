package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gitado/gitado/internal/ado"
	"github.com/gitado/gitado/internal/auth"
	"github.com/gitado/gitado/internal/common"
	"github.com/gitado/gitado/internal/store"
)

// fakeADO serves the slice of the ADO REST API the locator touches.
type fakeADO struct {
	projects  []ado.Project
	repos     []ado.Repository
	repoLists atomic.Int64
}

func (f *fakeADO) repoByGUID(id string) *ado.Repository {
	for i := range f.repos {
		if f.repos[i].ID == id {
			return &f.repos[i]
		}
	}
	return nil
}

func (f *fakeADO) handler() http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}
	notFound := func(w http.ResponseWriter, msg string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `{"message":%q}`, msg)
	}

	mux.HandleFunc("GET /_apis/projects", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"count": len(f.projects), "value": f.projects})
	})
	mux.HandleFunc("GET /_apis/git/repositories", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"count": len(f.repos), "value": f.repos})
	})
	mux.HandleFunc("GET /_apis/git/repositories/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if repo := f.repoByGUID(id); repo != nil {
			writeJSON(w, repo)
			return
		}
		notFound(w, "TF401019: a project name is required in order to reference a Git repository by name")
	})
	mux.HandleFunc("GET /{project}/_apis/git/repositories", func(w http.ResponseWriter, r *http.Request) {
		f.repoLists.Add(1)
		project := r.PathValue("project")
		var matched []ado.Repository
		for _, repo := range f.repos {
			if common.SlugEqual(repo.Project.Name, project) {
				matched = append(matched, repo)
			}
		}
		if len(matched) == 0 {
			notFound(w, "project does not exist")
			return
		}
		writeJSON(w, map[string]any{"count": len(matched), "value": matched})
	})
	mux.HandleFunc("GET /{project}/_apis/git/repositories/{id}", func(w http.ResponseWriter, r *http.Request) {
		project, id := r.PathValue("project"), r.PathValue("id")
		for i := range f.repos {
			repo := &f.repos[i]
			// the direct endpoint accepts exact names or GUIDs, not slugs
			if (repo.Name == id || repo.ID == id) && repo.Project.Name == project {
				writeJSON(w, repo)
				return
			}
		}
		notFound(w, "repository does not exist")
	})
	return mux
}

// countingStorage counts writes so tests can assert cache idempotence.
type countingStorage struct {
	store.Storage
	sets atomic.Int64
}

func (c *countingStorage) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.sets.Add(1)
	return c.Storage.Set(ctx, key, value, ttl)
}

func testFixture() *fakeADO {
	return &fakeADO{
		projects: []ado.Project{
			{ID: "p-main", Name: "Main System"},
			{ID: "p-team-a", Name: "Team A"},
			{ID: "p-team-b", Name: "Team B"},
		},
		repos: []ado.Repository{
			{ID: "11111111-aaaa-bbbb-cccc-000000000001", Name: "my-repo", Project: ado.Project{ID: "p-main", Name: "Main System"}},
			{ID: "11111111-aaaa-bbbb-cccc-000000000002", Name: "abc123", Project: ado.Project{ID: "p-team-a", Name: "Team A"}},
			{ID: "11111111-aaaa-bbbb-cccc-000000000003", Name: "secret-repo", Project: ado.Project{ID: "p-team-b", Name: "Team B"}},
		},
	}
}

func newTestLocator(t *testing.T, fake *fakeADO) (*Locator, *countingStorage, *auth.ResolvedAccess) {
	t.Helper()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)
	counting := &countingStorage{Storage: store.NewMemoryStorage()}
	locator := NewLocator(ado.NewClient(server.Client()), NewNameCache(counting))
	access := &auth.ResolvedAccess{
		AuthHeader: ado.PATAuthHeader("pat"),
		Config: auth.AccessConfig{
			AdoBaseURL:      server.URL,
			OrgName:         "contoso",
			AllowedProjects: []string{},
		},
	}
	return locator, counting, access
}

func TestResolveSluggedPath(t *testing.T) {
	ctx := context.Background()
	locator, _, access := newTestLocator(t, testFixture())

	res, err := locator.Resolve(ctx, access, "main-system/my-repo")
	if err != nil {
		t.Fatal(err)
	}
	if res.ProjectName != "Main System" || res.Repo.Name != "my-repo" {
		t.Errorf("resolution = %+v", res)
	}
}

func TestResolveSluggedPathWithinAllowedProjects(t *testing.T) {
	ctx := context.Background()
	locator, _, access := newTestLocator(t, testFixture())
	access.Config.AllowedProjects = []string{"Main System"}

	res, err := locator.Resolve(ctx, access, "main-system/my-repo")
	if err != nil {
		t.Fatal(err)
	}
	if res.ProjectName != "Main System" {
		t.Errorf("projectName = %q", res.ProjectName)
	}

	// a namespace outside the allowed list is indistinguishable from absence
	if _, err := locator.Resolve(ctx, access, "team-b/secret-repo"); err != ErrNotFound {
		t.Errorf("disallowed namespace: got %v, want ErrNotFound", err)
	}
}

func TestResolveURLEncodedIdentifier(t *testing.T) {
	ctx := context.Background()
	locator, _, access := newTestLocator(t, testFixture())

	res, err := locator.Resolve(ctx, access, "main-system%2Fmy-repo")
	if err != nil {
		t.Fatal(err)
	}
	if res.Repo.Name != "my-repo" {
		t.Errorf("repo = %+v", res.Repo)
	}
}

func TestResolveGUID(t *testing.T) {
	ctx := context.Background()
	locator, _, access := newTestLocator(t, testFixture())

	res, err := locator.Resolve(ctx, access, "11111111-aaaa-bbbb-cccc-000000000001")
	if err != nil {
		t.Fatal(err)
	}
	if res.ProjectName != "Main System" {
		t.Errorf("projectName = %q", res.ProjectName)
	}
}

func TestResolveGUIDOutsideAllowedProjectsIsNotFound(t *testing.T) {
	ctx := context.Background()
	locator, _, access := newTestLocator(t, testFixture())
	access.Config.AllowedProjects = []string{"Team A"}

	// the repository exists in Team B; the caller must not learn that
	_, err := locator.Resolve(ctx, access, "11111111-aaaa-bbbb-cccc-000000000003")
	if err != ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestResolveBareNameFallback(t *testing.T) {
	ctx := context.Background()
	locator, _, access := newTestLocator(t, testFixture())
	access.Config.AllowedProjects = []string{"Team A"}

	// org-level lookup fails with "project name is required", then the
	// allowed-project probe finds the repo by name
	res, err := locator.Resolve(ctx, access, "abc123")
	if err != nil {
		t.Fatal(err)
	}
	if res.ProjectName != "Team A" || res.Repo.Name != "abc123" {
		t.Errorf("resolution = %+v", res)
	}
}

func TestResolveBareNameUnrestrictedScansOrg(t *testing.T) {
	ctx := context.Background()
	locator, _, access := newTestLocator(t, testFixture())

	res, err := locator.Resolve(ctx, access, "ABC123")
	if err != nil {
		t.Fatal(err)
	}
	if res.Repo.Name != "abc123" {
		t.Errorf("repo = %+v", res.Repo)
	}
}

func TestResolveMissingRepo(t *testing.T) {
	ctx := context.Background()
	locator, _, access := newTestLocator(t, testFixture())

	if _, err := locator.Resolve(ctx, access, "main-system/nope"); err != ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
	if _, err := locator.Resolve(ctx, access, "nope"); err != ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestResolveRecoversOrgFromPathCache(t *testing.T) {
	ctx := context.Background()
	fake := testFixture()
	locator, _, access := newTestLocator(t, fake)

	// prime the caches with a credential that knows its organization
	if _, err := locator.Resolve(ctx, access, "main-system/my-repo"); err != nil {
		t.Fatal(err)
	}

	// on-premises base URLs carry no organization segment; the path cache
	// recovers it, the cached actual name applies, and the direct
	// repository GET hits without a list scan
	access.Config.OrgName = ""
	lists := fake.repoLists.Load()
	res, err := locator.Resolve(ctx, access, "main-system/my-repo")
	if err != nil {
		t.Fatal(err)
	}
	if res.ProjectName != "Main System" {
		t.Errorf("projectName = %q", res.ProjectName)
	}
	if fake.repoLists.Load() != lists {
		t.Error("resolution fell back to a repository list scan")
	}
}

func TestRepeatedResolutionSkipsRedundantCacheWrites(t *testing.T) {
	ctx := context.Background()
	locator, counting, access := newTestLocator(t, testFixture())

	if _, err := locator.Resolve(ctx, access, "main-system/my-repo"); err != nil {
		t.Fatal(err)
	}
	writesAfterFirst := counting.sets.Load()
	if writesAfterFirst == 0 {
		t.Fatal("first resolution should populate the name cache")
	}

	if _, err := locator.Resolve(ctx, access, "main-system/my-repo"); err != nil {
		t.Fatal(err)
	}
	if counting.sets.Load() != writesAfterFirst {
		t.Errorf("second resolution wrote %d extra cache entries",
			counting.sets.Load()-writesAfterFirst)
	}
}
