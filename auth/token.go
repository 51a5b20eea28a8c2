// Package auth verifies the bearer tokens that identify a tenant.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	"imagegen/models"
)

var (
	ErrMissingToken     = errors.New("missing bearer token")
	ErrInvalidToken     = errors.New("invalid token format")
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token not yet valid")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrInvalidIssuer    = errors.New("invalid issuer")
	ErrMissingSubject   = errors.New("token has no subject")
)

// VerifyConfig holds verification configuration
type VerifyConfig struct {
	SecretKey      []byte        // HMAC (HS256)
	PublicKey      any           // RSA (RS256), *rsa.PublicKey
	ExpectedIssuer string        // optional
	ClockSkew      time.Duration // optional
	Now            func() time.Time
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}

// VerifyToken verifies the signature and time claims of tokenString and
// returns its claims. The subject is required; it names the tenant.
func VerifyToken(tokenString string, config VerifyConfig) (*models.TenantClaims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	var allowedAlgs []jose.SignatureAlgorithm
	if config.SecretKey != nil {
		allowedAlgs = append(allowedAlgs, jose.HS256)
	}
	if config.PublicKey != nil {
		allowedAlgs = append(allowedAlgs, jose.RS256)
	}
	if len(allowedAlgs) == 0 {
		return nil, errors.New("no verification key provided")
	}

	tok, err := jwt.ParseSigned(tokenString, allowedAlgs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := &models.TenantClaims{}
	if len(tok.Headers) == 0 {
		return nil, fmt.Errorf("%w: missing header", ErrInvalidToken)
	}
	var key any = config.SecretKey
	if jose.SignatureAlgorithm(tok.Headers[0].Algorithm) == jose.RS256 {
		key = config.PublicKey
	}
	if verifyErr := tok.Claims(key, claims); verifyErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, verifyErr)
	}

	nowFn := config.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	now := nowFn().Unix()
	clockSkew := int64(config.ClockSkew.Seconds())

	if claims.ExpiresAt > 0 && claims.ExpiresAt < (now-clockSkew) {
		return nil, ErrTokenExpired
	}
	if claims.IssuedAt > 0 && claims.IssuedAt > (now+clockSkew) {
		return nil, ErrTokenNotYetValid
	}
	if config.ExpectedIssuer != "" && claims.Issuer != config.ExpectedIssuer {
		return nil, fmt.Errorf("%w: expected '%s', got '%s'",
			ErrInvalidIssuer, config.ExpectedIssuer, claims.Issuer)
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}

	return claims, nil
}

// SignToken creates an HS256 token for claims. Used by the CLI token
// command and by tests.
func SignToken(claims *models.TenantClaims, secret []byte) (string, error) {
	if claims == nil {
		return "", errors.New("claims cannot be nil")
	}
	if len(secret) == 0 {
		return "", errors.New("signing secret cannot be empty")
	}

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: secret}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}

	token, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to create JWT: %w", err)
	}
	return token, nil
}
