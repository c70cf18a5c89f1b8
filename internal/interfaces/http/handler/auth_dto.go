package handler

import (
	"time"

	"github.com/storefleet/backend/internal/application/identity"
)

// =====================
// Auth Request DTOs
// =====================

// LoginRequest carries the operator credentials for the login endpoint.
type LoginRequest struct {
	Username string `json:"username" binding:"required,min=3,max=100"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

// RefreshTokenRequest carries the refresh token to exchange for a new pair.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutRequest is the optional logout body. Without it only the presented
// token is revoked.
type LogoutRequest struct {
	AllSessions bool `json:"all_sessions"`
}

// =====================
// Auth Response DTOs
// =====================

// TokenResponse is the signed token pair as it appears on the wire.
type TokenResponse struct {
	AccessToken           string    `json:"access_token"`
	RefreshToken          string    `json:"refresh_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
	TokenType             string    `json:"token_type"`
}

// LoginResponse is the body of a successful login.
type LoginResponse struct {
	Token    TokenResponse `json:"token"`
	Username string        `json:"username"`
}

// RefreshTokenResponse is the body of a successful token refresh.
type RefreshTokenResponse struct {
	Token TokenResponse `json:"token"`
}

// LogoutResponse acknowledges a logout.
type LogoutResponse struct {
	Message string `json:"message"`
}

func toTokenResponse(tokens identity.IssuedTokens) TokenResponse {
	return TokenResponse{
		AccessToken:           tokens.AccessToken,
		RefreshToken:          tokens.RefreshToken,
		AccessTokenExpiresAt:  tokens.AccessTokenExpiresAt,
		RefreshTokenExpiresAt: tokens.RefreshTokenExpiresAt,
		TokenType:             tokens.TokenType,
	}
}
