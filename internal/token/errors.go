package token

import "errors"

var (
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenRevoked  = errors.New("token has been revoked")
	ErrTokenExpired  = errors.New("token has expired")
	// ErrLegacyToken marks records created before organization scoping was
	// recorded per token. They cannot be resolved safely and must be recreated.
	ErrLegacyToken = errors.New("token predates organization scoping and must be recreated")
)
