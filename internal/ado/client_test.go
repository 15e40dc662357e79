package ado

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPATAuthHeader(t *testing.T) {
	// base64(":secret") with the empty-username convention ADO expects
	got := PATAuthHeader("secret")
	want := "Basic OnNlY3JldA=="
	if got != want {
		t.Errorf("PATAuthHeader = %q, want %q", got, want)
	}
}

func TestOrgName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://dev.azure.com/contoso", "contoso"},
		{"https://dev.azure.com/contoso/", "contoso"},
		{"https://dev.azure.com/My%20Org", "My Org"},
		{"https://dev.azure.com", ""},
	}
	for _, tt := range tests {
		if got := OrgName(tt.url); got != tt.want {
			t.Errorf("OrgName(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestListProjectsSendsAuthHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Basic OnBhdA==" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("api-version") == "" {
			t.Error("missing api-version query parameter")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"count": 1,
			"value": []Project{{ID: "p1", Name: "Main System"}},
		})
	}))
	defer server.Close()

	org := NewClient(server.Client()).Org(server.URL, PATAuthHeader("pat"))
	projects, err := org.ListProjects(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 1 || projects[0].Name != "Main System" {
		t.Errorf("projects = %+v", projects)
	}
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(Repository{ID: "r1", Name: "repo"})
	}))
	defer server.Close()

	org := NewClient(server.Client()).Org(server.URL, PATAuthHeader("pat"))
	repo, err := org.GetRepositoryByID(context.Background(), "r1")
	if err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if repo.ID != "r1" || calls != 3 {
		t.Errorf("repo=%+v calls=%d", repo, calls)
	}
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"TF401019: project name is required","typeKey":"GitRepositoryNotFoundException"}`)
	}))
	defer server.Close()

	org := NewClient(server.Client()).Org(server.URL, PATAuthHeader("pat"))
	_, err := org.GetRepositoryByID(context.Background(), "abc123")
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("4xx retried %d times", calls)
	}
	if !upstream.IsProjectNameRequired() {
		t.Error("IsProjectNameRequired should detect the TF401019 message")
	}
}

func TestDecodeIdentityTaggedUnion(t *testing.T) {
	connectionData := []byte(`{
		"authenticatedUser": {
			"id": "u-1",
			"providerDisplayName": "Jamie Doe",
			"properties": {"Account": {"$value": "jamie@example.com"}}
		},
		"instanceId": "x"
	}`)
	identity, err := DecodeIdentity(connectionData)
	if err != nil {
		t.Fatal(err)
	}
	if identity.ID != "u-1" || identity.DisplayName != "Jamie Doe" || identity.Email != "jamie@example.com" {
		t.Errorf("connection data identity = %+v", identity)
	}

	profile := []byte(`{"id":"u-2","displayName":"Sam Roe","emailAddress":"sam@example.com"}`)
	identity, err = DecodeIdentity(profile)
	if err != nil {
		t.Fatal(err)
	}
	if identity.ID != "u-2" || identity.Email != "sam@example.com" {
		t.Errorf("profile identity = %+v", identity)
	}

	if _, err := DecodeIdentity([]byte(`{"something":"else"}`)); err == nil {
		t.Error("undecodable identity should fail")
	}
	var protoErr *ProtocolError
	_, err = DecodeIdentity([]byte(`<html>sign in</html>`))
	if !errors.As(err, &protoErr) {
		t.Errorf("non-JSON body should yield ProtocolError, got %v", err)
	}
}
