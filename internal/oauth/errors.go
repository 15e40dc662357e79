package oauth

import "errors"

// Error names follow RFC 6749 so handlers can map them straight onto the
// wire format.
var (
	ErrAccessDenied     = errors.New("access_denied")
	ErrInvalidGrant     = errors.New("invalid_grant")
	ErrInvalidClient    = errors.New("invalid_client")
	ErrInvalidRequest   = errors.New("invalid_request")
	ErrUnsupportedGrant = errors.New("unsupported_grant_type")
	ErrSessionExpired   = errors.New("authorization session expired or already used")
)
