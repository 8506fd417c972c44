// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/amirphl/commission-engine/app/dto"
	"github.com/amirphl/commission-engine/app/services"
	"github.com/gofiber/fiber/v3"
)

const bearerPrefix = "Bearer "

// tokenFailures maps token service errors to the code and message returned with 401
var tokenFailures = []struct {
	err     error
	code    string
	message string
}{
	{services.ErrTokenExpired, "TOKEN_EXPIRED", "Access token has expired"},
	{services.ErrTokenRevoked, "TOKEN_REVOKED", "Access token has been revoked"},
	{services.ErrTokenInvalid, "TOKEN_INVALID", "Invalid access token"},
}

// AuthMiddleware guards two audiences: operators carrying a JWT, and the
// upstream service modules (recharge, purchase) calling with an API key.
type AuthMiddleware struct {
	tokens        services.TokenService
	requireAPIKey bool
	apiKeyHeader  string
	apiKeys       []string
}

func NewAuthMiddleware(tokenService services.TokenService, requireAPIKey bool, apiKeyHeader string, apiKeys []string) *AuthMiddleware {
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	return &AuthMiddleware{
		tokens:        tokenService,
		requireAPIKey: requireAPIKey,
		apiKeyHeader:  apiKeyHeader,
		apiKeys:       apiKeys,
	}
}

func unauthorized(c fiber.Ctx, code, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error:   dto.ErrorDetail{Code: code},
	})
}

// AdminAuthenticate accepts only access tokens and stores admin_id, token_id and token_claims in Locals
func (m *AuthMiddleware) AdminAuthenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return unauthorized(c, "MISSING_AUTHORIZATION_HEADER", "Authorization header is required")
		}
		token, found := strings.CutPrefix(header, bearerPrefix)
		if !found {
			return unauthorized(c, "INVALID_AUTHORIZATION_FORMAT", "Invalid authorization header format. Expected 'Bearer <token>'")
		}
		if token = strings.TrimSpace(token); token == "" {
			return unauthorized(c, "MISSING_ACCESS_TOKEN", "Access token is required")
		}

		claims, err := m.tokens.ValidateAdminToken(token)
		if err != nil {
			for _, f := range tokenFailures {
				if errors.Is(err, f.err) {
					return unauthorized(c, f.code, f.message)
				}
			}
			return unauthorized(c, "TOKEN_VALIDATION_FAILED", "Token validation failed")
		}
		if claims.TokenType != services.TokenTypeAccess {
			return unauthorized(c, "TOKEN_INVALID", "Refresh tokens cannot be used for API access")
		}

		c.Locals("admin_id", claims.AdminID)
		c.Locals("token_id", claims.TokenID)
		c.Locals("token_claims", claims)
		return c.Next()
	}
}

// ServiceAuthenticate checks the caller's API key. It lets everything through when keys are not required.
func (m *AuthMiddleware) ServiceAuthenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		if !m.requireAPIKey {
			return c.Next()
		}
		key := c.Get(m.apiKeyHeader)
		if key == "" {
			return unauthorized(c, "MISSING_API_KEY", "API key is required")
		}
		if !m.knownKey(key) {
			return unauthorized(c, "INVALID_API_KEY", "Invalid API key")
		}
		return c.Next()
	}
}

func (m *AuthMiddleware) knownKey(key string) bool {
	for _, allowed := range m.apiKeys {
		if allowed != "" && subtle.ConstantTimeCompare([]byte(key), []byte(allowed)) == 1 {
			return true
		}
	}
	return false
}
