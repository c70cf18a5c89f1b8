package identity

import "time"

// LoginInput carries the operator credentials presented to Login.
type LoginInput struct {
	Username string
	Password string
	IP       string // recorded in the audit log
}

// IssuedTokens is a freshly signed access/refresh pair. Both Login and
// RefreshToken hand one back; expiry times are echoed so clients can
// schedule their renewal without decoding the tokens.
type IssuedTokens struct {
	AccessToken           string
	RefreshToken          string
	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt time.Time
	TokenType             string
}

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	IssuedTokens
	Username string
}

// RefreshTokenInput carries the refresh token to be exchanged.
type RefreshTokenInput struct {
	RefreshToken string
}

// LogoutInput identifies the presented access token so it can be revoked
// for its remaining life. With AllSessions set, every outstanding token is
// invalidated instead.
type LogoutInput struct {
	Username    string
	TokenID     string
	ExpiresAt   time.Time
	AllSessions bool
}
