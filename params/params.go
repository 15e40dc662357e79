package params

import "time"

const (
	ServerBodyLimit    = 64 * 1024 * 1024 // git pack uploads can be large
	ServerIdleTimeout  = 30 * time.Second
	ServerReadTimeout  = 60 * time.Second
	ServerWriteTimeout = 60 * time.Second

	// storage key prefixes
	TokenLookupKeyPrefix  = "token_lookup:"
	AccessTokenKeyPrefix  = "access_token:"
	OAuthTokenKeyPrefix   = "oauth_token:"
	RefreshTokenKeyPrefix = "refresh_token:"
	OAuthSessionKeyPrefix = "oauth_session:"
	OAuthCodeKeyPrefix    = "oauth_code:"
	ActualNameKeyPrefix   = "actual_name:"
	OrgMappingKeyPrefix   = "org_mapping:"
	KnownOrgsKey          = "known_orgs"

	// token value prefixes, load-bearing for credential classification
	ProjectTokenPrefix = "glpat-"
	OAuthTokenPrefix   = "glpat-oauth-"
	RefreshTokenPrefix = "glrt-"

	TokenSecretLength = 20 // length of the random part appended to a token prefix

	OAuthSessionExpiration = 10 * time.Minute // step-1 authorize session, single-use
	OAuthCodeExpiration    = 10 * time.Minute // authorization code, single-use
	RefreshTokenExpiration = 90 * 24 * time.Hour
	AccessTokenExpiresIn   = 7200 // expires_in advertised on token exchange, seconds
	RotatedTokenValidity   = 7 * 24 * time.Hour

	HealthCheckServerAddr = ":3001" // health check server address
)
