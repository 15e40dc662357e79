package ado

import (
	"encoding/base64"
	"net/url"
	"strings"
)

const apiVersion = "7.1"

// PATAuthHeader converts an ADO personal access token to the Basic
// authorization header ADO expects: empty username, PAT as password.
func PATAuthHeader(pat string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(":"+pat))
}

// OrgBaseURL builds the dev.azure.com base URL for an organization name.
func OrgBaseURL(org string) string {
	return "https://dev.azure.com/" + url.PathEscape(org)
}

// OrgName extracts the organization segment from a dev.azure.com base URL.
// Returns "" when the URL has no path segment.
func OrgName(baseURL string) string {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return ""
	}
	name, err := url.PathUnescape(segments[0])
	if err != nil {
		return segments[0]
	}
	return name
}

// apiURL joins path segments onto a base URL and appends the api-version
// query parameter. Each segment is path-escaped.
func apiURL(baseURL string, segments ...string) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimRight(baseURL, "/"))
	for _, segment := range segments {
		sb.WriteByte('/')
		sb.WriteString(url.PathEscape(segment))
	}
	sb.WriteString("?api-version=" + apiVersion)
	return sb.String()
}
