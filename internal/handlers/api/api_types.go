package api

import (
	"hash/fnv"
	"strings"
	"time"

	"github.com/gitado/gitado/internal/ado"
	"github.com/gitado/gitado/internal/common"
	"github.com/gitado/gitado/internal/repo"
	"github.com/gitado/gitado/internal/token"
)

// Response shapes mirror the GitLab REST API, trimmed to the fields Git
// tooling actually reads.

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	State    string `json:"state"`
}

type Namespace struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

type Project struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Path              string    `json:"path"`
	PathWithNamespace string    `json:"path_with_namespace"`
	DefaultBranch     string    `json:"default_branch,omitempty"`
	HTTPURLToRepo     string    `json:"http_url_to_repo,omitempty"`
	WebURL            string    `json:"web_url,omitempty"`
	Namespace         Namespace `json:"namespace"`
}

type AccessToken struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Scopes      []string   `json:"scopes"`
	AccessLevel int        `json:"access_level"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   string     `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	Active      bool       `json:"active"`
	Revoked     bool       `json:"revoked"`
	Token       string     `json:"token,omitempty"`
}

type Version struct {
	Version  string `json:"version"`
	Revision string `json:"revision"`
}

// userID derives a stable numeric id from the ADO identity GUID; GitLab
// clients expect an integer.
func userID(identityID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(identityID))
	return int64(h.Sum64() & (1<<63 - 1))
}

func newUser(identity *ado.Identity) User {
	username := identity.Email
	if at := strings.IndexByte(username, '@'); at > 0 {
		username = username[:at]
	}
	if username == "" {
		username = common.Slugify(identity.DisplayName)
	}
	return User{
		ID:       userID(identity.ID),
		Username: username,
		Name:     identity.DisplayName,
		Email:    identity.Email,
		State:    "active",
	}
}

func newProject(res *repo.Resolution, gatewayBaseURL string) Project {
	path := common.Slugify(res.Repo.Name)
	namespacePath := common.Slugify(res.ProjectName)
	fullPath := namespacePath + "/" + path
	return Project{
		ID:                res.Repo.ID,
		Name:              res.Repo.Name,
		Path:              path,
		PathWithNamespace: fullPath,
		DefaultBranch:     strings.TrimPrefix(res.Repo.DefaultBranch, "refs/heads/"),
		HTTPURLToRepo:     gatewayBaseURL + "/" + fullPath + ".git",
		WebURL:            res.Repo.WebURL,
		Namespace: Namespace{
			Name: res.ProjectName,
			Path: namespacePath,
		},
	}
}

func newAccessToken(record *token.StoredAccessToken, plaintext string) AccessToken {
	out := AccessToken{
		ID:          record.ID,
		Name:        record.Name,
		Scopes:      record.Scopes,
		AccessLevel: record.AccessLevel,
		CreatedAt:   record.CreatedAt,
		Active:      !record.Revoked && !record.Expired(time.Now()),
		Revoked:     record.Revoked,
		Token:       plaintext,
	}
	if !record.ExpiresAt.IsZero() {
		out.ExpiresAt = record.ExpiresAt.Format("2006-01-02")
	}
	if !record.LastUsedAt.IsZero() {
		lastUsed := record.LastUsedAt
		out.LastUsedAt = &lastUsed
	}
	return out
}
