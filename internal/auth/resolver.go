package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/gitado/gitado/internal/ado"
	"github.com/gitado/gitado/internal/token"
	"github.com/gitado/gitado/params"
)

// Credential is a client-supplied secret plus the optional basic-auth
// username, which doubles as an organization hint for raw ADO PATs.
type Credential struct {
	Token    string
	Username string
}

// AccessConfig is the effective scope a resolved credential grants.
// An empty AllowedProjects list means unrestricted: ADO's own PAT
// permissions still apply.
type AccessConfig struct {
	AdoBaseURL      string
	OrgName         string
	AllowedProjects []string
}

// Restricted reports whether the credential is limited to specific projects.
func (c *AccessConfig) Restricted() bool {
	return len(c.AllowedProjects) > 0
}

// ProjectAllowed checks a resolved ADO project name against the allowed
// list, case-insensitively. Unrestricted configs allow everything.
func (c *AccessConfig) ProjectAllowed(projectName string) bool {
	if !c.Restricted() {
		return true
	}
	for _, allowed := range c.AllowedProjects {
		if strings.EqualFold(allowed, projectName) {
			return true
		}
	}
	return false
}

// ResolvedAccess is what every downstream handler consumes: the ADO auth
// header to re-issue requests with, the underlying PAT for minting derived
// tokens, and the scope it operates under.
type ResolvedAccess struct {
	AuthHeader string
	Pat        string
	Config     AccessConfig
}

// Resolver classifies inbound credentials and produces ResolvedAccess.
// Every failure is one of the sentinel errors in this package; there is no
// silent fallback to a default organization.
type Resolver struct {
	tokens *token.Service
}

func NewResolver(tokens *token.Service) *Resolver {
	return &Resolver{tokens: tokens}
}

// Resolve classifies by token prefix: glpat-oauth-* first, then glpat-*,
// then raw PAT with a username org hint.
func (r *Resolver) Resolve(ctx context.Context, cred Credential) (*ResolvedAccess, error) {
	value := strings.TrimSpace(cred.Token)
	switch {
	case strings.HasPrefix(value, params.OAuthTokenPrefix):
		data, err := r.tokens.GetOAuthToken(ctx, value)
		if errors.Is(err, token.ErrTokenNotFound) {
			return nil, ErrInvalidToken
		}
		if err != nil {
			return nil, err
		}
		return &ResolvedAccess{
			AuthHeader: ado.PATAuthHeader(data.AdoPat),
			Pat:        data.AdoPat,
			Config: AccessConfig{
				AdoBaseURL:      data.AdoBaseURL,
				OrgName:         data.OrgName,
				AllowedProjects: data.AllowedProjects,
			},
		}, nil

	case strings.HasPrefix(value, params.ProjectTokenPrefix):
		record, err := r.tokens.Resolve(ctx, value)
		if errors.Is(err, token.ErrLegacyToken) {
			return nil, ErrLegacyToken
		}
		if errors.Is(err, token.ErrTokenNotFound) ||
			errors.Is(err, token.ErrTokenRevoked) ||
			errors.Is(err, token.ErrTokenExpired) {
			return nil, ErrInvalidToken
		}
		if err != nil {
			return nil, err
		}
		return &ResolvedAccess{
			AuthHeader: ado.PATAuthHeader(record.AdoPat),
			Pat:        record.AdoPat,
			Config: AccessConfig{
				AdoBaseURL:      record.AdoBaseURL,
				OrgName:         ado.OrgName(record.AdoBaseURL),
				AllowedProjects: record.AllowedProjects,
			},
		}, nil

	case cred.Username != "" && value != "":
		// raw ADO PAT; the username names the organization
		return &ResolvedAccess{
			AuthHeader: ado.PATAuthHeader(value),
			Pat:        value,
			Config: AccessConfig{
				AdoBaseURL:      ado.OrgBaseURL(cred.Username),
				OrgName:         cred.Username,
				AllowedProjects: []string{},
			},
		}, nil

	default:
		return nil, ErrAuthRequired
	}
}

// ExtractCredential pulls a credential out of request headers, preferring
// PRIVATE-TOKEN over Authorization. Returns a zero Credential when nothing
// usable is present.
func ExtractCredential(privateToken, authorization string) Credential {
	if privateToken != "" {
		return Credential{Token: privateToken}
	}
	scheme, rest, ok := strings.Cut(authorization, " ")
	if !ok {
		return Credential{}
	}
	rest = strings.TrimSpace(rest)
	switch {
	case strings.EqualFold(scheme, "Bearer"):
		return Credential{Token: rest}
	case strings.EqualFold(scheme, "Basic"):
		decoded, err := base64.StdEncoding.DecodeString(rest)
		if err != nil {
			return Credential{}
		}
		username, password, ok := strings.Cut(string(decoded), ":")
		if !ok {
			return Credential{}
		}
		return Credential{Token: password, Username: username}
	}
	return Credential{}
}
