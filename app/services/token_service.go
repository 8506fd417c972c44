// Package services provides technical concerns of the commission engine: admin tokens and event publishing
package services

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/amirphl/commission-engine/utils"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token has been revoked")
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenService issues and verifies the bearer tokens guarding the operator endpoints
// (config management, settlement, incident retries).
type TokenService interface {
	GenerateAdminTokens(adminID uint) (accessToken, refreshToken string, err error)
	ValidateAdminToken(token string) (*AdminTokenClaims, error)
	RevokeToken(token string) error
	IsTokenRevoked(tokenID string) bool
}

// AdminTokenClaims is the verified view of an operator token handed to handlers
type AdminTokenClaims struct {
	AdminID   uint      `json:"admin_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	TokenType string    `json:"token_type"`
	TokenID   string    `json:"jti"`
}

// operatorClaims is the signed payload
type operatorClaims struct {
	AdminID   uint   `json:"admin_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// signingKeys holds either an RSA pair or an HMAC secret
type signingKeys struct {
	method  jwt.SigningMethod
	signKey any
	checkFn jwt.Keyfunc
}

type TokenServiceImpl struct {
	keys       signingKeys
	parser     *jwt.Parser
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	audience   string

	mu      sync.RWMutex
	revoked map[string]time.Time // jti -> expiry, pruned on every revoke
}

// NewTokenService builds a token service signing with RS256 when useRSAKeys is set and HS256 otherwise.
func NewTokenService(accessTokenTTL, refreshTokenTTL time.Duration, issuer, audience string, useRSAKeys bool, privateKeyPEM, publicKeyPEM, secretKey string) (TokenService, error) {
	keys, err := loadSigningKeys(useRSAKeys, privateKeyPEM, publicKeyPEM, secretKey)
	if err != nil {
		return nil, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{keys.method.Alg()}),
		jwt.WithIssuedAt(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	return &TokenServiceImpl{
		keys:       keys,
		parser:     jwt.NewParser(opts...),
		accessTTL:  accessTokenTTL,
		refreshTTL: refreshTokenTTL,
		issuer:     issuer,
		audience:   audience,
		revoked:    make(map[string]time.Time),
	}, nil
}

func loadSigningKeys(useRSA bool, privateKeyPEM, publicKeyPEM, secret string) (signingKeys, error) {
	if !useRSA {
		if secret == "" {
			return signingKeys{}, fmt.Errorf("secret key is required when not using RSA keys")
		}
		key := []byte(secret)
		return signingKeys{
			method:  jwt.SigningMethodHS256,
			signKey: key,
			checkFn: func(*jwt.Token) (any, error) { return key, nil },
		}, nil
	}

	priv, pub, err := decodeRSAPair(privateKeyPEM, publicKeyPEM)
	if err != nil {
		return signingKeys{}, fmt.Errorf("failed to parse RSA keys: %w", err)
	}
	return signingKeys{
		method:  jwt.SigningMethodRS256,
		signKey: priv,
		checkFn: func(*jwt.Token) (any, error) { return pub, nil },
	}, nil
}

func decodeRSAPair(privateKeyPEM, publicKeyPEM string) (*rsa.PrivateKey, *rsa.PublicKey, error) {
	if privateKeyPEM == "" || publicKeyPEM == "" {
		return nil, nil, fmt.Errorf("both private and public keys are required")
	}

	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, nil, fmt.Errorf("private key is not PEM encoded")
	}
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("private key: %w", err)
	}

	block, _ = pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, nil, fmt.Errorf("public key is not PEM encoded")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("public key: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, nil, fmt.Errorf("public key is not RSA")
	}
	return priv, pub, nil
}

// GenerateAdminTokens issues an access/refresh pair for the operator
func (s *TokenServiceImpl) GenerateAdminTokens(adminID uint) (string, string, error) {
	access, err := s.sign(adminID, TokenTypeAccess, s.accessTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err := s.sign(adminID, TokenTypeRefresh, s.refreshTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (s *TokenServiceImpl) sign(adminID uint, tokenType string, ttl time.Duration) (string, error) {
	jti, err := newTokenID()
	if err != nil {
		return "", err
	}
	now := utils.UTCNow()

	claims := operatorClaims{
		AdminID:   adminID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.issuer,
			Subject:   fmt.Sprintf("operator:%d", adminID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}

	return jwt.NewWithClaims(s.keys.method, claims).SignedString(s.keys.signKey)
}

// ValidateAdminToken verifies signature, issuer, audience and expiry, then consults the revocation list
func (s *TokenServiceImpl) ValidateAdminToken(token string) (*AdminTokenClaims, error) {
	var claims operatorClaims
	parsed, err := s.parser.ParseWithClaims(token, &claims, s.keys.checkFn)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil, !parsed.Valid:
		return nil, ErrTokenInvalid
	}
	if claims.ID == "" || claims.IssuedAt == nil || claims.ExpiresAt == nil || claims.TokenType == "" {
		return nil, ErrTokenInvalid
	}
	if s.IsTokenRevoked(claims.ID) {
		return nil, ErrTokenRevoked
	}

	return &AdminTokenClaims{
		AdminID:   claims.AdminID,
		TokenType: claims.TokenType,
		TokenID:   claims.ID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// RevokeToken blacklists the token's jti in memory until it would have expired anyway
func (s *TokenServiceImpl) RevokeToken(token string) error {
	claims, err := s.ValidateAdminToken(token)
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}

	now := utils.UTCNow()

	s.mu.Lock()
	defer s.mu.Unlock()
	for jti, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, jti)
		}
	}
	s.revoked[claims.TokenID] = claims.ExpiresAt
	return nil
}

func (s *TokenServiceImpl) IsTokenRevoked(tokenID string) bool {
	s.mu.RLock()
	_, ok := s.revoked[tokenID]
	s.mu.RUnlock()
	return ok
}

func newTokenID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
