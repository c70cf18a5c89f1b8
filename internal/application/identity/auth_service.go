// Package identity implements admin authentication for the dashboard API.
// There is a single operator account sourced from configuration; tokens are
// an HS256 access/refresh pair with logout backed by a token blacklist.
package identity

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/storefleet/backend/internal/domain/shared"
	"github.com/storefleet/backend/internal/infrastructure/auth"
)

// AuthService handles admin authentication operations
type AuthService struct {
	credentials *auth.AdminCredentials
	jwtService  *auth.JWTService
	blacklist   auth.TokenBlacklist
	logger      *zap.Logger
}

// NewAuthService creates a new authentication service. blacklist may be nil,
// in which case logout is a client-side concern only.
func NewAuthService(
	credentials *auth.AdminCredentials,
	jwtService *auth.JWTService,
	blacklist auth.TokenBlacklist,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		credentials: credentials,
		jwtService:  jwtService,
		blacklist:   blacklist,
		logger:      logger,
	}
}

// Login verifies the admin credentials and issues a token pair
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	s.logger.Info("Login attempt",
		zap.String("username", input.Username),
		zap.String("ip", input.IP))

	if !s.credentials.Verify(input.Username, input.Password) {
		s.logger.Warn("Invalid credentials",
			zap.String("username", input.Username),
			zap.String("ip", input.IP))
		return nil, shared.NewDomainError("INVALID_CREDENTIALS", "Invalid username or password")
	}

	tokenPair, err := s.jwtService.GenerateTokenPair(input.Username)
	if err != nil {
		s.logger.Error("Failed to generate token pair", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to generate authentication tokens")
	}

	s.logger.Info("Admin logged in", zap.String("username", input.Username))

	return &LoginResult{
		IssuedTokens: issuedFrom(tokenPair),
		Username:     input.Username,
	}, nil
}

// RefreshToken rotates the token pair using a valid refresh token. The
// rotation count is bounded; once exceeded the operator must log in again.
func (s *AuthService) RefreshToken(ctx context.Context, input RefreshTokenInput) (*IssuedTokens, error) {
	claims, err := s.jwtService.ValidateRefreshToken(input.RefreshToken)
	if err != nil {
		s.logger.Warn("Refresh token validation failed", zap.Error(err))
		return nil, mapTokenError(err)
	}

	revoked, err := s.isRevoked(ctx, claims)
	if err != nil {
		s.logger.Error("Token revocation check failed", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to verify token state")
	}
	if revoked {
		s.logger.Warn("Refresh attempt with revoked token", zap.String("username", claims.Username))
		return nil, shared.NewDomainError("TOKEN_REVOKED", "Token has been revoked")
	}

	tokenPair, err := s.jwtService.RefreshTokenPair(input.RefreshToken)
	if err != nil {
		s.logger.Warn("Token refresh failed", zap.String("username", claims.Username), zap.Error(err))
		return nil, mapTokenError(err)
	}

	s.logger.Info("Token refreshed",
		zap.String("username", claims.Username),
		zap.Int("refresh_count", claims.RefreshCount+1))

	issued := issuedFrom(tokenPair)
	return &issued, nil
}

// Logout revokes the presented access token for its remaining lifetime so it
// cannot be replayed before expiry. With AllSessions set, every outstanding
// token is invalidated through the global cutoff.
func (s *AuthService) Logout(ctx context.Context, input LogoutInput) error {
	if s.blacklist == nil {
		s.logger.Info("Logout without blacklist configured", zap.String("username", input.Username))
		return nil
	}

	if input.AllSessions {
		ttl := s.jwtService.GetRefreshTokenExpiration()
		if err := s.blacklist.RevokeAllSessions(ctx, ttl); err != nil {
			s.logger.Error("Failed to revoke all sessions", zap.Error(err))
			return shared.NewDomainError("INTERNAL_ERROR", "Failed to revoke sessions")
		}
		s.logger.Info("All sessions revoked", zap.String("username", input.Username))
		return nil
	}

	ttl := time.Until(input.ExpiresAt)
	if ttl <= 0 {
		// Already expired, nothing to revoke
		return nil
	}

	if err := s.blacklist.Revoke(ctx, input.TokenID, ttl); err != nil {
		s.logger.Error("Failed to revoke token", zap.Error(err))
		return shared.NewDomainError("INTERNAL_ERROR", "Failed to revoke token")
	}

	s.logger.Info("Admin logged out", zap.String("username", input.Username))
	return nil
}

// isRevoked checks the refresh token against the blacklist: its own JTI
// first, then the global session cutoff.
func (s *AuthService) isRevoked(ctx context.Context, claims *auth.Claims) (bool, error) {
	if s.blacklist == nil {
		return false, nil
	}

	if revoked, err := s.blacklist.IsRevoked(ctx, claims.ID); err != nil || revoked {
		return revoked, err
	}
	return s.blacklist.IsSessionRevoked(ctx, claims.GetIssuedAtTime())
}

func issuedFrom(pair *auth.TokenPair) IssuedTokens {
	return IssuedTokens{
		AccessToken:           pair.AccessToken,
		RefreshToken:          pair.RefreshToken,
		AccessTokenExpiresAt:  pair.AccessTokenExpiresAt,
		RefreshTokenExpiresAt: pair.RefreshTokenExpiresAt,
		TokenType:             pair.TokenType,
	}
}

// mapTokenError converts JWT validation failures into API-facing domain errors
func mapTokenError(err error) error {
	switch err {
	case auth.ErrExpiredToken:
		return shared.NewDomainError("TOKEN_EXPIRED", "Refresh token has expired")
	case auth.ErrMaxRefreshExceeded:
		return shared.NewDomainError("TOKEN_MAX_REFRESH", "Maximum token refresh count exceeded. Please log in again")
	case auth.ErrInvalidToken, auth.ErrInvalidTokenType, auth.ErrInvalidClaims, auth.ErrTokenNotYetValid, auth.ErrMissingUsername:
		return shared.NewDomainError("TOKEN_INVALID", "Invalid refresh token")
	default:
		return shared.NewDomainError("TOKEN_ERROR", "Failed to validate refresh token")
	}
}
