package oauth

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gitado/gitado/internal/ado"
	"github.com/gitado/gitado/internal/common"
	"github.com/gitado/gitado/internal/store"
	"github.com/gitado/gitado/internal/token"
	"github.com/gitado/gitado/params"
)

// Session is the state between the PAT entry form and project selection.
// Single-use, 10-minute TTL, stored in the shared KV storage so any
// instance can finish a flow another instance started.
type Session struct {
	ID                string    `json:"id"`
	ClientID          string    `json:"clientId"`
	RedirectURI       string    `json:"redirectUri"`
	State             string    `json:"state"`
	ResponseType      string    `json:"responseType"`
	Scope             string    `json:"scope"`
	Pat               string    `json:"pat"`
	OrgName           string    `json:"orgName"`
	AdoBaseURL        string    `json:"adoBaseUrl"`
	CandidateProjects []string  `json:"candidateProjects"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

// Code maps a one-time authorization code to the minted access token value.
type Code struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// RefreshTokenData points a glrt-* value at its access token. Rotated on
// every refresh: the old record is deleted and a new one minted.
type RefreshTokenData struct {
	AccessToken string    `json:"accessToken"`
	CreatedAt   time.Time `json:"createdAt"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// Service implements the authorization-code grant where the "client"
// supplies an ADO PAT and picks the projects to expose. No ADO app
// registration exists; the PAT itself is the proof of authority.
type Service struct {
	clientSecret string
	adoClient    *ado.Client
	tokens       *token.Service
	sessionStore store.Store[Session]
	codeStore    store.Store[Code]
	refreshStore store.Store[RefreshTokenData]

	// orgBaseURL maps an organization name to its base URL; replaced in
	// tests to point at a fake server
	orgBaseURL func(org string) string
}

func NewService(storage store.Storage, adoClient *ado.Client, tokens *token.Service, clientSecret string) *Service {
	return &Service{
		clientSecret: clientSecret,
		adoClient:    adoClient,
		tokens:       tokens,
		sessionStore: store.New[Session](storage, params.OAuthSessionKeyPrefix),
		codeStore:    store.New[Code](storage, params.OAuthCodeKeyPrefix),
		refreshStore: store.New[RefreshTokenData](storage, params.RefreshTokenKeyPrefix),
		orgBaseURL:   ado.OrgBaseURL,
	}
}

type BeginParams struct {
	ClientID     string
	RedirectURI  string
	State        string
	ResponseType string
	Scope        string
	OrgName      string
	Pat          string
}

// BeginAuthorization validates the PAT against ADO's project list and, on
// success, opens a single-use session holding the PAT and the candidate
// projects for the selection form.
func (s *Service) BeginAuthorization(ctx context.Context, p BeginParams) (*Session, error) {
	if p.RedirectURI == "" || p.Pat == "" || p.OrgName == "" {
		return nil, ErrInvalidRequest
	}
	baseURL := p.OrgName
	orgName := p.OrgName
	if !strings.Contains(baseURL, "://") {
		baseURL = s.orgBaseURL(p.OrgName)
	} else {
		orgName = ado.OrgName(baseURL)
	}

	org := s.adoClient.Org(baseURL, ado.PATAuthHeader(p.Pat))
	projects, err := org.ListProjects(ctx)
	if err != nil {
		slog.Info("PAT validation failed during authorization", "org", orgName, "error", err)
		return nil, ErrAccessDenied
	}
	names := make([]string, 0, len(projects))
	for _, project := range projects {
		names = append(names, project.Name)
	}

	session := Session{
		ID:                uuid.NewString(),
		ClientID:          p.ClientID,
		RedirectURI:       p.RedirectURI,
		State:             p.State,
		ResponseType:      p.ResponseType,
		Scope:             p.Scope,
		Pat:               p.Pat,
		OrgName:           orgName,
		AdoBaseURL:        baseURL,
		CandidateProjects: names,
		ExpiresAt:         time.Now().Add(params.OAuthSessionExpiration),
	}
	if err := s.sessionStore.Set(ctx, session.ID, session, params.OAuthSessionExpiration); err != nil {
		return nil, err
	}
	return &session, nil
}

// ConfirmResult carries what the redirect back to the client needs.
type ConfirmResult struct {
	RedirectURI string
	Code        string
	State       string
}

// Confirm consumes the session, mints the durable access token scoped to
// the selected projects (all candidates when none selected), and issues a
// one-time authorization code.
func (s *Service) Confirm(ctx context.Context, sessionID string, selected []string) (*ConfirmResult, error) {
	session, err := s.sessionStore.Take(ctx, sessionID)
	if err == store.ErrNotFound {
		return nil, ErrSessionExpired
	}
	if err != nil {
		return nil, err
	}
	if time.Now().After(session.ExpiresAt) {
		return nil, ErrSessionExpired
	}

	allowed := filterSelection(session.CandidateProjects, selected)
	if len(allowed) == 0 {
		allowed = session.CandidateProjects
	}

	accessToken, err := s.tokens.MintOAuthToken(ctx, token.OAuthTokenData{
		AdoPat:          session.Pat,
		OrgName:         session.OrgName,
		AdoBaseURL:      session.AdoBaseURL,
		AllowedProjects: allowed,
	})
	if err != nil {
		return nil, err
	}

	code := uuid.NewString()
	record := Code{
		AccessToken: accessToken,
		ExpiresAt:   time.Now().Add(params.OAuthCodeExpiration),
	}
	if err := s.codeStore.Set(ctx, code, record, params.OAuthCodeExpiration); err != nil {
		return nil, err
	}
	return &ConfirmResult{
		RedirectURI: session.RedirectURI,
		Code:        code,
		State:       session.State,
	}, nil
}

// Deny consumes the session and reports where to send the user back. The
// PAT held in the session is discarded without minting anything.
func (s *Service) Deny(ctx context.Context, sessionID string) (*ConfirmResult, error) {
	session, err := s.sessionStore.Take(ctx, sessionID)
	if err == store.ErrNotFound {
		return nil, ErrSessionExpired
	}
	if err != nil {
		return nil, err
	}
	return &ConfirmResult{
		RedirectURI: session.RedirectURI,
		State:       session.State,
	}, nil
}

// filterSelection keeps only selections that were actually offered.
func filterSelection(candidates, selected []string) []string {
	var kept []string
	for _, pick := range selected {
		for _, candidate := range candidates {
			if pick == candidate {
				kept = append(kept, candidate)
				break
			}
		}
	}
	return kept
}

// Exchange turns a one-time authorization code into the access token and a
// fresh refresh token.
func (s *Service) Exchange(ctx context.Context, clientSecret, code string) (*TokenResponse, error) {
	if err := s.checkClientSecret(clientSecret); err != nil {
		return nil, err
	}
	record, err := s.codeStore.Take(ctx, code)
	if err == store.ErrNotFound {
		return nil, ErrInvalidGrant
	}
	if err != nil {
		return nil, err
	}
	if time.Now().After(record.ExpiresAt) {
		return nil, ErrInvalidGrant
	}
	refreshToken, err := s.mintRefreshToken(ctx, record.AccessToken)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{
		AccessToken:  record.AccessToken,
		TokenType:    "Bearer",
		ExpiresIn:    params.AccessTokenExpiresIn,
		RefreshToken: refreshToken,
	}, nil
}

// Refresh rotates a refresh token: the access token payload is re-minted
// under a new value, a new refresh token replaces the old one. The prior
// access token value is left intact.
func (s *Service) Refresh(ctx context.Context, clientSecret, refreshToken string) (*TokenResponse, error) {
	if err := s.checkClientSecret(clientSecret); err != nil {
		return nil, err
	}
	record, err := s.refreshStore.Get(ctx, refreshToken)
	if err == store.ErrNotFound {
		return nil, ErrInvalidGrant
	}
	if err != nil {
		return nil, err
	}

	// the association may have been removed since; that is a revocation
	data, err := s.tokens.GetOAuthToken(ctx, record.AccessToken)
	if err != nil {
		return nil, ErrInvalidGrant
	}

	newAccessToken, err := s.tokens.MintOAuthToken(ctx, *data)
	if err != nil {
		return nil, err
	}
	newRefreshToken, err := s.mintRefreshToken(ctx, newAccessToken)
	if err != nil {
		return nil, err
	}
	if err := s.refreshStore.Delete(ctx, refreshToken); err != nil && err != store.ErrNotFound {
		slog.Warn("Failed to delete rotated refresh token", "error", err)
	}
	return &TokenResponse{
		AccessToken:  newAccessToken,
		TokenType:    "Bearer",
		ExpiresIn:    params.AccessTokenExpiresIn,
		RefreshToken: newRefreshToken,
	}, nil
}

func (s *Service) mintRefreshToken(ctx context.Context, accessToken string) (string, error) {
	secret, err := common.GenerateSecret(params.TokenSecretLength)
	if err != nil {
		return "", err
	}
	value := params.RefreshTokenPrefix + secret
	record := RefreshTokenData{
		AccessToken: accessToken,
		CreatedAt:   time.Now(),
	}
	if err := s.refreshStore.Set(ctx, value, record, params.RefreshTokenExpiration); err != nil {
		return "", err
	}
	return value, nil
}

func (s *Service) checkClientSecret(presented string) error {
	if s.clientSecret == "" {
		return nil
	}
	if presented != s.clientSecret {
		return ErrInvalidClient
	}
	return nil
}
