package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestTokenService creates a token service for testing with symmetric key
func createTestTokenService() (TokenService, error) {
	return NewTokenService(
		15*time.Minute,
		7*24*time.Hour,
		"test-issuer",
		"test-audience",
		false, // useRSAKeys
		"",    // privateKeyPEM
		"",    // publicKeyPEM
		"test-secret-key-for-jwt-signing-32-chars", // secretKey
	)
}

func TestNewTokenService(t *testing.T) {
	tests := []struct {
		name        string
		useRSAKeys  bool
		secretKey   string
		privateKey  string
		publicKey   string
		expectError bool
	}{
		{
			name:        "valid symmetric key configuration",
			secretKey:   "test-secret-key-for-jwt-signing-32-chars",
			expectError: false,
		},
		{
			name:        "missing secret key",
			secretKey:   "",
			expectError: true,
		},
		{
			name:        "rsa without keys",
			useRSAKeys:  true,
			expectError: true,
		},
		{
			name:        "rsa with garbage keys",
			useRSAKeys:  true,
			privateKey:  "not a pem",
			publicKey:   "not a pem",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, err := NewTokenService(15*time.Minute, time.Hour, "iss", "aud", tt.useRSAKeys, tt.privateKey, tt.publicKey, tt.secretKey)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, service)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, service)
			}
		})
	}
}

func TestGenerateAdminTokens(t *testing.T) {
	service, err := createTestTokenService()
	require.NoError(t, err)

	for _, adminID := range []uint{1, 0, 999999999} {
		accessToken, refreshToken, err := service.GenerateAdminTokens(adminID)
		require.NoError(t, err)
		assert.NotEmpty(t, accessToken)
		assert.NotEmpty(t, refreshToken)
		assert.NotEqual(t, accessToken, refreshToken)

		// Verify tokens are valid JWT format (should start with "eyJ")
		assert.Contains(t, accessToken, "eyJ")
		assert.Contains(t, refreshToken, "eyJ")
	}
}

func TestValidateAdminToken(t *testing.T) {
	service, err := createTestTokenService()
	require.NoError(t, err)

	accessToken, refreshToken, err := service.GenerateAdminTokens(42)
	require.NoError(t, err)

	other, err := NewTokenService(15*time.Minute, time.Hour, "test-issuer", "test-audience", false, "", "", "another-secret-key-for-jwt-signing-32")
	require.NoError(t, err)
	foreignToken, _, err := other.GenerateAdminTokens(42)
	require.NoError(t, err)

	tests := []struct {
		name        string
		token       string
		expectError error
		expectType  string
	}{
		{name: "valid access token", token: accessToken, expectType: TokenTypeAccess},
		{name: "valid refresh token", token: refreshToken, expectType: TokenTypeRefresh},
		{name: "empty token", token: "", expectError: ErrTokenInvalid},
		{name: "invalid token format", token: "invalid.token.format", expectError: ErrTokenInvalid},
		{name: "token signed with another key", token: foreignToken, expectError: ErrTokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := service.ValidateAdminToken(tt.token)

			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
				assert.Nil(t, claims)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, uint(42), claims.AdminID)
			assert.Equal(t, tt.expectType, claims.TokenType)
			assert.NotEmpty(t, claims.TokenID)
			assert.True(t, claims.ExpiresAt.After(claims.IssuedAt))
		})
	}
}

func TestValidateAdminTokenWrongIssuer(t *testing.T) {
	issuerA, err := NewTokenService(15*time.Minute, time.Hour, "issuer-a", "aud", false, "", "", "shared-secret-key-for-jwt-signing-32")
	require.NoError(t, err)
	issuerB, err := NewTokenService(15*time.Minute, time.Hour, "issuer-b", "aud", false, "", "", "shared-secret-key-for-jwt-signing-32")
	require.NoError(t, err)

	token, _, err := issuerA.GenerateAdminTokens(1)
	require.NoError(t, err)

	_, err = issuerB.ValidateAdminToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenExpiration(t *testing.T) {
	service, err := NewTokenService(-time.Minute, -time.Minute, "test-issuer", "test-audience", false, "", "", "test-secret-key-for-jwt-signing-32-chars")
	require.NoError(t, err)

	accessToken, _, err := service.GenerateAdminTokens(7)
	require.NoError(t, err)

	claims, err := service.ValidateAdminToken(accessToken)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Nil(t, claims)
}

func TestRevokeToken(t *testing.T) {
	service, err := createTestTokenService()
	require.NoError(t, err)

	accessToken, refreshToken, err := service.GenerateAdminTokens(5)
	require.NoError(t, err)

	require.NoError(t, service.RevokeToken(accessToken))

	_, err = service.ValidateAdminToken(accessToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	// Other tokens of the same admin stay valid
	claims, err := service.ValidateAdminToken(refreshToken)
	require.NoError(t, err)
	assert.False(t, service.IsTokenRevoked(claims.TokenID))

	assert.Error(t, service.RevokeToken("invalid.token"))
}

func TestConcurrentTokenGeneration(t *testing.T) {
	service, err := createTestTokenService()
	require.NoError(t, err)

	const workers = 20
	tokens := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			access, _, err := service.GenerateAdminTokens(uint(i + 1))
			assert.NoError(t, err)
			tokens[i] = access
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, workers)
	for i, token := range tokens {
		assert.False(t, seen[token], "duplicate token generated")
		seen[token] = true

		claims, err := service.ValidateAdminToken(token)
		require.NoError(t, err)
		assert.Equal(t, uint(i+1), claims.AdminID)
	}
}
