package token

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

var snowflakeNode *snowflake.Node

func init() {
	var err error
	snowflakeNode, err = snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
}

// GenerateID returns a process-unique, roughly time-ordered numeric id for
// token records. GitLab clients expect integer token ids.
func GenerateID() int64 {
	return int64(snowflakeNode.Generate())
}

// StoredAccessToken is a project access token record. Records are never hard
// deleted; revocation is a flag so history survives rotation.
//
// A record missing AdoBaseURL or AllowedProjects predates access scoping and
// must be rejected as legacy, never defaulted to a global organization.
type StoredAccessToken struct {
	ID              int64     `json:"id"`
	ProjectID       string    `json:"projectId"`
	Name            string    `json:"name"`
	Scopes          []string  `json:"scopes"`
	AccessLevel     int       `json:"accessLevel"`
	AdoPat          string    `json:"adoPat"`
	CreatedAt       time.Time `json:"createdAt"`
	ExpiresAt       time.Time `json:"expiresAt,omitempty"`
	LastUsedAt      time.Time `json:"lastUsedAt,omitempty"`
	Revoked         bool      `json:"revoked"`
	AdoBaseURL      string    `json:"adoBaseUrl,omitempty"`
	AllowedProjects []string  `json:"allowedProjects"`
}

func (t *StoredAccessToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// Legacy reports whether the record predates org/allowed-projects scoping.
func (t *StoredAccessToken) Legacy() bool {
	return t.AdoBaseURL == "" || t.AllowedProjects == nil
}

// OAuthTokenData is the durable association behind a glpat-oauth-* bearer
// value. Immutable after mint; no TTL.
type OAuthTokenData struct {
	AdoPat          string   `json:"adoPat"`
	OrgName         string   `json:"orgName"`
	AdoBaseURL      string   `json:"adoBaseUrl"`
	AllowedProjects []string `json:"allowedProjects"`
}

// TokenLookup points a live token value at its access token record.
type TokenLookup struct {
	ProjectID string `json:"projectId"`
	TokenID   int64  `json:"tokenId"`
}
