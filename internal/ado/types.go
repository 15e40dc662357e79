package ado

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	State       string `json:"state,omitempty"`
	Visibility  string `json:"visibility,omitempty"`
}

type Repository struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	URL           string  `json:"url,omitempty"`
	DefaultBranch string  `json:"defaultBranch,omitempty"`
	Size          int64   `json:"size,omitempty"`
	RemoteURL     string  `json:"remoteUrl,omitempty"`
	WebURL        string  `json:"webUrl,omitempty"`
	IsDisabled    bool    `json:"isDisabled,omitempty"`
	Project       Project `json:"project"`
}

type listEnvelope[T any] struct {
	Count int `json:"count"`
	Value []T `json:"value"`
}

// Identity is the caller's resolved ADO identity, produced from either a
// ConnectionData or a Profile response.
type Identity struct {
	ID          string
	DisplayName string
	Email       string
}

type connectionDataUser struct {
	ID                  string `json:"id"`
	ProviderDisplayName string `json:"providerDisplayName"`
	Properties          struct {
		Account struct {
			Value string `json:"$value"`
		} `json:"Account"`
	} `json:"properties"`
}

// identityEnvelope covers both shapes ADO may return for an identity probe.
// The authenticatedUser field is the discriminant: present means
// ConnectionData, absent means Profile.
type identityEnvelope struct {
	AuthenticatedUser json.RawMessage `json:"authenticatedUser"`
	ID                string          `json:"id"`
	DisplayName       string          `json:"displayName"`
	EmailAddress      string          `json:"emailAddress"`
}

// DecodeIdentity decodes an identity response by explicit discriminant check
// instead of sniffing field presence informally.
func DecodeIdentity(raw []byte) (*Identity, error) {
	var envelope identityEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &ProtocolError{Body: string(raw), Err: err}
	}
	if len(envelope.AuthenticatedUser) > 0 && string(envelope.AuthenticatedUser) != "null" {
		var user connectionDataUser
		if err := json.Unmarshal(envelope.AuthenticatedUser, &user); err != nil {
			return nil, &ProtocolError{Body: string(envelope.AuthenticatedUser), Err: err}
		}
		return &Identity{
			ID:          user.ID,
			DisplayName: user.ProviderDisplayName,
			Email:       user.Properties.Account.Value,
		}, nil
	}
	if envelope.ID == "" {
		return nil, &ProtocolError{Body: string(raw)}
	}
	return &Identity{
		ID:          envelope.ID,
		DisplayName: envelope.DisplayName,
		Email:       envelope.EmailAddress,
	}, nil
}

// UpstreamError carries a non-2xx ADO response through to the caller.
type UpstreamError struct {
	StatusCode int
	Message    string
	TypeKey    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("ado: upstream status %d: %s", e.StatusCode, e.Message)
}

// IsProjectNameRequired reports whether the upstream rejection means the
// identifier was a bare repository name rather than a GUID.
func (e *UpstreamError) IsProjectNameRequired() bool {
	return strings.Contains(strings.ToLower(e.Message), "project name is required")
}

func (e *UpstreamError) NotFound() bool {
	return e.StatusCode == 404
}

// ProtocolError means ADO answered with a body that does not decode as the
// expected JSON shape. Surfaced diagnostically instead of crashing on parse.
type ProtocolError struct {
	Body string
	Err  error
}

func (e *ProtocolError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if e.Err != nil {
		return fmt.Sprintf("ado: unexpected response body: %v: %q", e.Err, body)
	}
	return fmt.Sprintf("ado: unexpected response body: %q", body)
}

type adoErrorBody struct {
	Message string `json:"message"`
	TypeKey string `json:"typeKey"`
}
