package middleware

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/storefleet/backend/internal/infrastructure/auth"
	"github.com/storefleet/backend/internal/interfaces/http/dto"
)

// Context keys under which the guard publishes the verified identity.
const (
	JWTClaimsKey   = "jwt_claims"
	JWTUsernameKey = "jwt_username"

	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "

	// AccessTokenQueryParam carries the token for endpoints the browser's
	// EventSource API connects to; EventSource cannot set request headers.
	AccessTokenQueryParam = "access_token"
)

// JWTMiddlewareConfig configures the bearer-token guard.
type JWTMiddlewareConfig struct {
	JWTService     *auth.JWTService    // validates presented access tokens
	TokenBlacklist auth.TokenBlacklist // optional, consulted for revocations
	Disabled       bool                // waves every request through (local development)

	// SkipPaths never require a token. QueryTokenPaths additionally accept
	// one as ?access_token= for clients that cannot set headers.
	SkipPaths       []string
	QueryTokenPaths []string

	// OnError replaces the default 401 response when set.
	OnError func(c *gin.Context, err error)
	Logger  *zap.Logger
}

// DefaultJWTConfig covers the dashboard API: everything requires a token
// except the health probe and the login flow, and the monitor stream may
// authenticate through its query string.
func DefaultJWTConfig(jwtService *auth.JWTService) JWTMiddlewareConfig {
	return JWTMiddlewareConfig{
		JWTService: jwtService,
		SkipPaths: []string{
			"/health",
			"/api/v1/auth/login",
			"/api/v1/auth/refresh",
		},
		QueryTokenPaths: []string{
			"/api/v1/monitor/stream",
		},
	}
}

// JWTAuthMiddleware guards requests with the default configuration.
func JWTAuthMiddleware(jwtService *auth.JWTService) gin.HandlerFunc {
	return JWTAuthMiddlewareWithConfig(DefaultJWTConfig(jwtService))
}

// JWTAuthMiddlewareWithConfig returns a middleware that validates the bearer
// token, checks it against the blacklist, and stores the claims in the
// request context for handlers.
func JWTAuthMiddlewareWithConfig(cfg JWTMiddlewareConfig) gin.HandlerFunc {
	guard := &tokenGuard{cfg: cfg, log: cfg.Logger}
	if guard.log == nil {
		guard.log = zap.NewNop()
	}
	return guard.handle
}

type tokenGuard struct {
	cfg JWTMiddlewareConfig
	log *zap.Logger
}

func (g *tokenGuard) handle(c *gin.Context) {
	if g.cfg.Disabled || slices.Contains(g.cfg.SkipPaths, c.Request.URL.Path) {
		c.Next()
		return
	}

	token, err := g.extractToken(c)
	if err != nil {
		g.reject(c, err, "Missing or malformed credentials")
		return
	}

	claims, err := g.cfg.JWTService.ValidateAccessToken(token)
	if err != nil {
		g.reject(c, err, "Token validation failed")
		return
	}

	if reason := g.revocation(c.Request.Context(), claims); reason != "" {
		g.reject(c, auth.ErrTokenRevoked, reason)
		return
	}

	c.Set(JWTClaimsKey, claims)
	c.Set(JWTUsernameKey, claims.Username)
	g.log.Debug("JWT authentication successful", zap.String("username", claims.Username))

	c.Next()
}

// extractToken pulls the bearer token from the Authorization header, falling
// back to the access_token query parameter on paths allowed to use it.
func (g *tokenGuard) extractToken(c *gin.Context) (string, error) {
	if header := c.GetHeader(AuthHeaderKey); header != "" {
		token, ok := strings.CutPrefix(header, BearerPrefix)
		if !ok || token == "" {
			return "", auth.ErrInvalidToken
		}
		return token, nil
	}

	if slices.Contains(g.cfg.QueryTokenPaths, c.Request.URL.Path) {
		if token := c.Query(AccessTokenQueryParam); token != "" {
			return token, nil
		}
	}

	return "", auth.ErrInvalidToken
}

// revocation reports why the claims are no longer acceptable, or "" if they
// still are. Blacklist lookups fail open so an unavailable backend does not
// take the whole API down with it; failures are logged instead.
func (g *tokenGuard) revocation(ctx context.Context, claims *auth.Claims) string {
	blacklist := g.cfg.TokenBlacklist
	if blacklist == nil {
		return ""
	}

	// A single logout revokes the token's own JTI.
	if claims.ID != "" {
		revoked, err := blacklist.IsRevoked(ctx, claims.ID)
		switch {
		case err != nil:
			g.log.Error("Failed to check token blacklist",
				zap.String("jti", claims.ID), zap.Error(err))
		case revoked:
			return "Token has been revoked"
		}
	}

	// Logout-all-sessions sets a global issuance cutoff.
	revoked, err := blacklist.IsSessionRevoked(ctx, claims.GetIssuedAtTime())
	switch {
	case err != nil:
		g.log.Error("Failed to check session cutoff", zap.Error(err))
	case revoked:
		return "Session has been revoked"
	}

	return ""
}

// reject aborts the request with a 401 carrying a code derived from the
// validation error. reason only reaches the log, not the response.
func (g *tokenGuard) reject(c *gin.Context, err error, reason string) {
	if g.cfg.OnError != nil {
		g.cfg.OnError(c, err)
		return
	}

	g.log.Warn("JWT authentication failed",
		zap.Error(err),
		zap.String("reason", reason),
		zap.String("path", c.Request.URL.Path))

	code, message := dto.ErrCodeUnauthorized, "Authentication required"
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		code, message = dto.ErrCodeTokenExpired, "Token has expired"
	case errors.Is(err, auth.ErrTokenRevoked):
		code, message = dto.ErrCodeTokenRevoked, "Token has been revoked"
	case errors.Is(err, auth.ErrInvalidTokenType):
		code, message = dto.ErrCodeTokenInvalid, "Invalid token type"
	case errors.Is(err, auth.ErrTokenNotYetValid):
		code, message = dto.ErrCodeTokenInvalid, "Token is not yet valid"
	case errors.Is(err, auth.ErrInvalidToken):
		code, message = dto.ErrCodeTokenInvalid, "Invalid token"
	}

	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponse(code, message))
}

// GetJWTClaims returns the verified claims for the request, or nil when the
// guard did not run or let the request through unauthenticated.
func GetJWTClaims(c *gin.Context) *auth.Claims {
	v, ok := c.Get(JWTClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}

// GetJWTUsername returns the authenticated username, or "" when there is none.
func GetJWTUsername(c *gin.Context) string {
	v, ok := c.Get(JWTUsernameKey)
	if !ok {
		return ""
	}
	username, _ := v.(string)
	return username
}
