package token

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gitado/gitado/internal/store"
	"github.com/gitado/gitado/params"
)

func newTestService() (*Service, store.Storage) {
	storage := store.NewMemoryStorage()
	return NewService(storage), storage
}

func testCreateParams() CreateParams {
	return CreateParams{
		ProjectID:       "proj-1",
		Name:            "ci token",
		Scopes:          []string{"api", "read_repository"},
		AccessLevel:     40,
		AdoPat:          "ado-pat-secret",
		AdoBaseURL:      "https://dev.azure.com/contoso",
		AllowedProjects: []string{"Main System"},
	}
}

func TestCreateAndResolve(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	record, value, err := svc.Create(ctx, testCreateParams())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(value, params.ProjectTokenPrefix) {
		t.Errorf("token value %q missing glpat- prefix", value)
	}
	if strings.HasPrefix(value, params.OAuthTokenPrefix) {
		t.Errorf("project token must not collide with the oauth prefix: %q", value)
	}

	resolved, err := svc.Resolve(ctx, value)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.ID != record.ID || resolved.AdoPat != "ado-pat-secret" {
		t.Errorf("resolved = %+v", resolved)
	}
	if resolved.AdoBaseURL != "https://dev.azure.com/contoso" {
		t.Errorf("adoBaseUrl = %q", resolved.AdoBaseURL)
	}
	if resolved.LastUsedAt.IsZero() {
		t.Error("lastUsedAt not updated on resolve")
	}
}

func TestResolveUnrestrictedToken(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	// An empty project list means unrestricted scope. It must survive the
	// storage round trip as [] and never be mistaken for a legacy record.
	p := testCreateParams()
	p.AllowedProjects = []string{}
	_, value, err := svc.Create(ctx, p)
	if err != nil {
		t.Fatal(err)
	}

	resolved, err := svc.Resolve(ctx, value)
	if err != nil {
		t.Fatalf("unrestricted token rejected: %v", err)
	}
	if resolved.AllowedProjects == nil {
		t.Fatal("allowedProjects round-tripped to nil")
	}
	if len(resolved.AllowedProjects) != 0 {
		t.Errorf("allowedProjects = %v, want empty", resolved.AllowedProjects)
	}

	// Create normalizes a nil list to the unrestricted form.
	p = testCreateParams()
	p.AllowedProjects = nil
	_, value, err = svc.Create(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	resolved, err = svc.Resolve(ctx, value)
	if err != nil {
		t.Fatalf("normalized token rejected: %v", err)
	}
	if resolved.AllowedProjects == nil || len(resolved.AllowedProjects) != 0 {
		t.Errorf("allowedProjects = %v, want empty", resolved.AllowedProjects)
	}
}

func TestResolveRejectsRevoked(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	record, value, err := svc.Create(ctx, testCreateParams())
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Revoke(ctx, record.ProjectID, record.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Resolve(ctx, value); err != ErrTokenRevoked {
		t.Errorf("resolve after revoke: got %v, want ErrTokenRevoked", err)
	}
	// the record survives revocation
	kept, err := svc.Get(ctx, record.ProjectID, record.ID)
	if err != nil {
		t.Fatalf("revoked record hard-deleted: %v", err)
	}
	if !kept.Revoked {
		t.Error("record not flagged revoked")
	}
}

func TestResolveRejectsExpired(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	p := testCreateParams()
	p.ExpiresAt = time.Now().Add(-time.Minute)
	_, value, err := svc.Create(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Resolve(ctx, value); err != ErrTokenExpired {
		t.Errorf("got %v, want ErrTokenExpired", err)
	}
}

func TestResolveRejectsLegacyRecord(t *testing.T) {
	ctx := context.Background()
	svc, storage := newTestService()

	// simulate a record written before org scoping existed
	legacy := map[string]any{
		"id":        int64(42),
		"projectId": "proj-legacy",
		"name":      "old token",
		"adoPat":    "pat",
		"createdAt": time.Now(),
	}
	raw, _ := json.Marshal(legacy)
	if err := storage.Set(ctx, params.AccessTokenKeyPrefix+"proj-legacy:42", raw, 0); err != nil {
		t.Fatal(err)
	}
	lookup, _ := json.Marshal(TokenLookup{ProjectID: "proj-legacy", TokenID: 42})
	if err := storage.Set(ctx, params.TokenLookupKeyPrefix+"glpat-legacyvalue", lookup, 0); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Resolve(ctx, "glpat-legacyvalue"); err != ErrLegacyToken {
		t.Errorf("got %v, want ErrLegacyToken", err)
	}
}

func TestRotate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	record, oldValue, err := svc.Create(ctx, testCreateParams())
	if err != nil {
		t.Fatal(err)
	}
	rotated, newValue, err := svc.Rotate(ctx, record.ProjectID, record.ID, params.RotatedTokenValidity)
	if err != nil {
		t.Fatal(err)
	}
	if newValue == oldValue {
		t.Error("rotation reused the token value")
	}
	if rotated.Name != record.Name || rotated.AdoBaseURL != record.AdoBaseURL {
		t.Errorf("rotated record lost metadata: %+v", rotated)
	}
	if rotated.ExpiresAt.IsZero() {
		t.Error("rotated token has no expiry")
	}
	if _, err := svc.Resolve(ctx, oldValue); err != ErrTokenRevoked {
		t.Errorf("old value after rotation: got %v, want ErrTokenRevoked", err)
	}
	if _, err := svc.Resolve(ctx, newValue); err != nil {
		t.Errorf("new value does not resolve: %v", err)
	}
}

func TestListSkipsRevoked(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	keep, _, err := svc.Create(ctx, testCreateParams())
	if err != nil {
		t.Fatal(err)
	}
	gone, _, err := svc.Create(ctx, testCreateParams())
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Revoke(ctx, gone.ProjectID, gone.ID); err != nil {
		t.Fatal(err)
	}

	tokens, err := svc.List(ctx, "proj-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) != 1 || tokens[0].ID != keep.ID {
		t.Errorf("list = %+v", tokens)
	}
}

func TestOAuthTokenRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	value, err := svc.MintOAuthToken(ctx, OAuthTokenData{
		AdoPat:          "pat",
		OrgName:         "contoso",
		AdoBaseURL:      "https://dev.azure.com/contoso",
		AllowedProjects: []string{"Team A"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(value, params.OAuthTokenPrefix) {
		t.Errorf("oauth token value %q missing glpat-oauth- prefix", value)
	}
	data, err := svc.GetOAuthToken(ctx, value)
	if err != nil {
		t.Fatal(err)
	}
	if data.OrgName != "contoso" || len(data.AllowedProjects) != 1 {
		t.Errorf("data = %+v", data)
	}
	if _, err := svc.GetOAuthToken(ctx, "glpat-oauth-unknown"); err != ErrTokenNotFound {
		t.Errorf("unknown oauth token: got %v, want ErrTokenNotFound", err)
	}
}
