package ado

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	retryMaxTries     = 3
	retryInitialDelay = 250 * time.Millisecond
)

// Client is a thin typed client for the slice of the ADO REST API this
// gateway needs. Credentials and base URLs vary per request, so every call
// takes them explicitly.
type Client struct {
	httpClient *http.Client
}

func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient}
}

// Org binds the client to one organization base URL and auth header.
func (c *Client) Org(baseURL, authHeader string) *OrgClient {
	return &OrgClient{c: c, baseURL: baseURL, auth: authHeader}
}

type OrgClient struct {
	c       *Client
	baseURL string
	auth    string
}

func (o *OrgClient) BaseURL() string {
	return o.baseURL
}

// get performs an idempotent GET with bounded exponential backoff. Retries
// stop on any HTTP response below 500; POSTs are never retried anywhere in
// this package to avoid duplicate side effects.
func (o *OrgClient) get(ctx context.Context, url string, out any) error {
	operation := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Authorization", o.auth)
		req.Header.Set("Accept", "application/json")
		resp, err := o.c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return nil, decodeUpstreamError(resp.StatusCode, body)
		}
		if resp.StatusCode >= 300 {
			return nil, backoff.Permanent(decodeUpstreamError(resp.StatusCode, body))
		}
		return body, nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = retryInitialDelay
	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(retryMaxTries),
	)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ProtocolError{Body: string(body), Err: err}
	}
	return nil
}

func decodeUpstreamError(status int, body []byte) error {
	var parsed adoErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return &UpstreamError{StatusCode: status, Message: parsed.Message, TypeKey: parsed.TypeKey}
	}
	msg := string(bytes.TrimSpace(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &UpstreamError{StatusCode: status, Message: msg}
}

// ListProjects also serves as the PAT validity probe: an invalid PAT yields
// a 401/302 upstream error here.
func (o *OrgClient) ListProjects(ctx context.Context) ([]Project, error) {
	var envelope listEnvelope[Project]
	url := apiURL(o.baseURL, "_apis", "projects")
	if err := o.get(ctx, url, &envelope); err != nil {
		return nil, err
	}
	return envelope.Value, nil
}

// GetRepository fetches a repository inside a known project. The id may be
// a name or a GUID.
func (o *OrgClient) GetRepository(ctx context.Context, project, id string) (*Repository, error) {
	var repo Repository
	url := apiURL(o.baseURL, project, "_apis", "git", "repositories", id)
	if err := o.get(ctx, url, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

// GetRepositoryByID looks a repository up at organization level, which only
// works when id is a GUID.
func (o *OrgClient) GetRepositoryByID(ctx context.Context, id string) (*Repository, error) {
	var repo Repository
	url := apiURL(o.baseURL, "_apis", "git", "repositories", id)
	if err := o.get(ctx, url, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

func (o *OrgClient) ListRepositories(ctx context.Context, project string) ([]Repository, error) {
	var envelope listEnvelope[Repository]
	url := apiURL(o.baseURL, project, "_apis", "git", "repositories")
	if err := o.get(ctx, url, &envelope); err != nil {
		return nil, err
	}
	return envelope.Value, nil
}

// ListAllRepositories lists every repository visible to the credential
// across the whole organization.
func (o *OrgClient) ListAllRepositories(ctx context.Context) ([]Repository, error) {
	var envelope listEnvelope[Repository]
	url := apiURL(o.baseURL, "_apis", "git", "repositories")
	if err := o.get(ctx, url, &envelope); err != nil {
		return nil, err
	}
	return envelope.Value, nil
}

// GetIdentity probes the caller's identity via the connection data endpoint.
func (o *OrgClient) GetIdentity(ctx context.Context) (*Identity, error) {
	var raw json.RawMessage
	url := apiURL(o.baseURL, "_apis", "connectionData")
	if err := o.get(ctx, url, &raw); err != nil {
		return nil, err
	}
	return DecodeIdentity(raw)
}
