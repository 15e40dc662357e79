package token

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gitado/gitado/internal/common"
	"github.com/gitado/gitado/internal/store"
	"github.com/gitado/gitado/params"
)

// Service owns every token record in storage. The invariant it maintains:
// exactly one non-revoked, non-expired StoredAccessToken exists per live
// token value, reachable via token_lookup:<value>.
type Service struct {
	lookupStore store.Store[TokenLookup]
	accessStore store.Store[StoredAccessToken]
	oauthStore  store.Store[OAuthTokenData]
}

func NewService(storage store.Storage) *Service {
	return &Service{
		lookupStore: store.New[TokenLookup](storage, params.TokenLookupKeyPrefix),
		accessStore: store.New[StoredAccessToken](storage, params.AccessTokenKeyPrefix),
		oauthStore:  store.New[OAuthTokenData](storage, params.OAuthTokenKeyPrefix),
	}
}

func recordKey(projectID string, tokenID int64) string {
	return fmt.Sprintf("%s:%d", projectID, tokenID)
}

type CreateParams struct {
	ProjectID       string
	Name            string
	Scopes          []string
	AccessLevel     int
	AdoPat          string
	AdoBaseURL      string
	AllowedProjects []string
	ExpiresAt       time.Time
}

// Create mints a project access token. The plaintext value is returned once
// and never stored outside the lookup key.
func (s *Service) Create(ctx context.Context, p CreateParams) (*StoredAccessToken, string, error) {
	var value string
	for {
		secret, err := common.GenerateSecret(params.TokenSecretLength)
		if err != nil {
			return nil, "", err
		}
		value = params.ProjectTokenPrefix + secret
		// classification checks the oauth prefix first, so a project token
		// must never start with it
		if !strings.HasPrefix(value, params.OAuthTokenPrefix) {
			break
		}
	}

	record := StoredAccessToken{
		ID:              GenerateID(),
		ProjectID:       p.ProjectID,
		Name:            p.Name,
		Scopes:          p.Scopes,
		AccessLevel:     p.AccessLevel,
		AdoPat:          p.AdoPat,
		CreatedAt:       time.Now(),
		ExpiresAt:       p.ExpiresAt,
		AdoBaseURL:      p.AdoBaseURL,
		AllowedProjects: p.AllowedProjects,
	}
	if record.AllowedProjects == nil {
		record.AllowedProjects = []string{}
	}
	if err := s.accessStore.Save(ctx, recordKey(p.ProjectID, record.ID), record); err != nil {
		return nil, "", err
	}
	lookup := TokenLookup{ProjectID: p.ProjectID, TokenID: record.ID}
	if err := s.lookupStore.Save(ctx, value, lookup); err != nil {
		return nil, "", err
	}
	return &record, value, nil
}

// Resolve maps a glpat-* value to its record, rejecting revoked, expired and
// legacy records. LastUsedAt is updated best-effort.
func (s *Service) Resolve(ctx context.Context, value string) (*StoredAccessToken, error) {
	lookup, err := s.lookupStore.Get(ctx, value)
	if err == store.ErrNotFound {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	key := recordKey(lookup.ProjectID, lookup.TokenID)
	record, err := s.accessStore.Get(ctx, key)
	if err == store.ErrNotFound {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	if record.Revoked {
		return nil, ErrTokenRevoked
	}
	if record.Expired(time.Now()) {
		return nil, ErrTokenExpired
	}
	if record.Legacy() {
		return nil, ErrLegacyToken
	}

	record.LastUsedAt = time.Now()
	if err := s.accessStore.Save(ctx, key, record); err != nil {
		slog.Warn("Failed to update token lastUsedAt", "tokenId", record.ID, "error", err)
	}
	return &record, nil
}

func (s *Service) Get(ctx context.Context, projectID string, tokenID int64) (*StoredAccessToken, error) {
	record, err := s.accessStore.Get(ctx, recordKey(projectID, tokenID))
	if err == store.ErrNotFound {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// List returns every non-revoked token of a project.
func (s *Service) List(ctx context.Context, projectID string) ([]StoredAccessToken, error) {
	var tokens []StoredAccessToken
	cursor := ""
	for {
		page, err := s.accessStore.List(ctx, 100, cursor)
		if err != nil {
			return nil, err
		}
		for _, key := range page.Keys {
			if !strings.HasPrefix(key, projectID+":") {
				continue
			}
			record, err := s.accessStore.Get(ctx, key)
			if err != nil {
				continue
			}
			if !record.Revoked {
				tokens = append(tokens, record)
			}
		}
		if page.Cursor == "" {
			return tokens, nil
		}
		cursor = page.Cursor
	}
}

// Revoke flags the record. The lookup entry is left in place; Resolve
// rejects the value through the flag, and history stays queryable.
func (s *Service) Revoke(ctx context.Context, projectID string, tokenID int64) error {
	key := recordKey(projectID, tokenID)
	record, err := s.accessStore.Get(ctx, key)
	if err == store.ErrNotFound {
		return ErrTokenNotFound
	}
	if err != nil {
		return err
	}
	if record.Revoked {
		return ErrTokenRevoked
	}
	record.Revoked = true
	return s.accessStore.Save(ctx, key, record)
}

// Rotate revokes the old record and mints a replacement carrying the same
// name, scopes and scoping metadata. Not atomic: a concurrent use of the old
// value during rotation may observe either outcome.
func (s *Service) Rotate(ctx context.Context, projectID string, tokenID int64, validity time.Duration) (*StoredAccessToken, string, error) {
	old, err := s.Get(ctx, projectID, tokenID)
	if err != nil {
		return nil, "", err
	}
	if old.Revoked {
		return nil, "", ErrTokenRevoked
	}
	if err := s.Revoke(ctx, projectID, tokenID); err != nil {
		return nil, "", err
	}
	return s.Create(ctx, CreateParams{
		ProjectID:       old.ProjectID,
		Name:            old.Name,
		Scopes:          old.Scopes,
		AccessLevel:     old.AccessLevel,
		AdoPat:          old.AdoPat,
		AdoBaseURL:      old.AdoBaseURL,
		AllowedProjects: old.AllowedProjects,
		ExpiresAt:       time.Now().Add(validity),
	})
}

// MintOAuthToken stores a durable OAuth token association and returns the
// bearer value. No TTL: the association lives until explicitly removed.
func (s *Service) MintOAuthToken(ctx context.Context, data OAuthTokenData) (string, error) {
	secret, err := common.GenerateSecret(params.TokenSecretLength)
	if err != nil {
		return "", err
	}
	value := params.OAuthTokenPrefix + secret
	if data.AllowedProjects == nil {
		data.AllowedProjects = []string{}
	}
	if err := s.oauthStore.Save(ctx, value, data); err != nil {
		return "", err
	}
	return value, nil
}

func (s *Service) GetOAuthToken(ctx context.Context, value string) (*OAuthTokenData, error) {
	data, err := s.oauthStore.Get(ctx, value)
	if err == store.ErrNotFound {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &data, nil
}

func (s *Service) OAuthTokenExists(ctx context.Context, value string) (bool, error) {
	return s.oauthStore.Exists(ctx, value)
}
