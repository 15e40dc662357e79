package auth

import "errors"

var (
	// ErrAuthRequired means no usable credential was presented. The caller
	// should supply a PAT with the organization name as the basic-auth
	// username, or a gateway-minted token.
	ErrAuthRequired = errors.New("authentication required: supply an organization name as username with your PAT, or a gateway token")
	// ErrInvalidToken covers tokens that classified but resolved to a
	// missing, revoked or expired record.
	ErrInvalidToken = errors.New("token is invalid or has expired")
	// ErrLegacyToken is kept distinct so the caller learns the token must be
	// recreated rather than retried.
	ErrLegacyToken = errors.New("token was created before organization scoping and must be recreated")
)
