package auth

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/gitado/gitado/internal/store"
	"github.com/gitado/gitado/internal/token"
)

func newTestResolver() (*Resolver, *token.Service) {
	tokens := token.NewService(store.NewMemoryStorage())
	return NewResolver(tokens), tokens
}

func TestResolveOAuthToken(t *testing.T) {
	ctx := context.Background()
	resolver, tokens := newTestResolver()

	value, err := tokens.MintOAuthToken(ctx, token.OAuthTokenData{
		AdoPat:          "pat",
		OrgName:         "contoso",
		AdoBaseURL:      "https://dev.azure.com/contoso",
		AllowedProjects: []string{"Team A"},
	})
	if err != nil {
		t.Fatal(err)
	}

	access, err := resolver.Resolve(ctx, Credential{Token: value})
	if err != nil {
		t.Fatal(err)
	}
	if access.Config.AdoBaseURL != "https://dev.azure.com/contoso" {
		t.Errorf("adoBaseUrl = %q", access.Config.AdoBaseURL)
	}
	if !access.Config.Restricted() || !access.Config.ProjectAllowed("team a") {
		t.Errorf("config = %+v", access.Config)
	}
	if access.Config.ProjectAllowed("Team B") {
		t.Error("Team B should not be allowed")
	}

	if _, err := resolver.Resolve(ctx, Credential{Token: "glpat-oauth-missing"}); err != ErrInvalidToken {
		t.Errorf("unknown oauth token: got %v, want ErrInvalidToken", err)
	}
}

func TestResolveProjectToken(t *testing.T) {
	ctx := context.Background()
	resolver, tokens := newTestResolver()

	_, value, err := tokens.Create(ctx, token.CreateParams{
		ProjectID:       "proj-1",
		Name:            "deploy",
		AdoPat:          "pat",
		AdoBaseURL:      "https://dev.azure.com/contoso",
		AllowedProjects: []string{"Main System"},
	})
	if err != nil {
		t.Fatal(err)
	}

	access, err := resolver.Resolve(ctx, Credential{Token: value})
	if err != nil {
		t.Fatal(err)
	}
	if access.Config.OrgName != "contoso" {
		t.Errorf("orgName = %q", access.Config.OrgName)
	}

	if _, err := resolver.Resolve(ctx, Credential{Token: "glpat-nosuchtoken"}); err != ErrInvalidToken {
		t.Errorf("unknown project token: got %v, want ErrInvalidToken", err)
	}
}

func TestResolveExpiredProjectToken(t *testing.T) {
	ctx := context.Background()
	resolver, tokens := newTestResolver()

	_, value, err := tokens.Create(ctx, token.CreateParams{
		ProjectID:       "proj-1",
		Name:            "stale",
		AdoPat:          "pat",
		AdoBaseURL:      "https://dev.azure.com/contoso",
		AllowedProjects: []string{},
		ExpiresAt:       time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := resolver.Resolve(ctx, Credential{Token: value}); err != ErrInvalidToken {
		t.Errorf("expired token: got %v, want ErrInvalidToken", err)
	}
}

func TestResolveRawPATWithUsername(t *testing.T) {
	ctx := context.Background()
	resolver, _ := newTestResolver()

	access, err := resolver.Resolve(ctx, Credential{Token: "raw-ado-pat", Username: "contoso"})
	if err != nil {
		t.Fatal(err)
	}
	if access.Config.AdoBaseURL != "https://dev.azure.com/contoso" {
		t.Errorf("adoBaseUrl = %q", access.Config.AdoBaseURL)
	}
	if access.Config.Restricted() {
		t.Error("raw PAT access must be unrestricted")
	}
	if !access.Config.ProjectAllowed("Anything") {
		t.Error("unrestricted config should allow any project")
	}
}

func TestResolveRejectsBarePAT(t *testing.T) {
	ctx := context.Background()
	resolver, _ := newTestResolver()

	if _, err := resolver.Resolve(ctx, Credential{Token: "raw-ado-pat"}); err != ErrAuthRequired {
		t.Errorf("bare PAT without username: got %v, want ErrAuthRequired", err)
	}
	if _, err := resolver.Resolve(ctx, Credential{}); err != ErrAuthRequired {
		t.Errorf("empty credential: got %v, want ErrAuthRequired", err)
	}
}

func TestExtractCredential(t *testing.T) {
	basic := func(user, pass string) string {
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
	}
	tests := []struct {
		name          string
		privateToken  string
		authorization string
		want          Credential
	}{
		{"private token wins", "glpat-abc", basic("u", "p"), Credential{Token: "glpat-abc"}},
		{"bearer", "", "Bearer glpat-oauth-xyz", Credential{Token: "glpat-oauth-xyz"}},
		{"basic with org", "", basic("contoso", "pat123"), Credential{Token: "pat123", Username: "contoso"}},
		{"basic empty user", "", basic("", "pat123"), Credential{Token: "pat123"}},
		{"password with colon", "", basic("org", "a:b:c"), Credential{Token: "a:b:c", Username: "org"}},
		{"garbage", "", "Basic !!!notbase64", Credential{}},
		{"nothing", "", "", Credential{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractCredential(tt.privateToken, tt.authorization)
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}
