package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/packfinderz-cart/pkg/config"
)

// clockSkew tolerates drift between the token issuer and this service.
const clockSkew = 30 * time.Second

var (
	signingMethod = jwt.SigningMethodHS256

	ErrNoSecret   = errors.New("jwt secret is required")
	ErrNoIdentity = errors.New("token carries no user id")
)

// Verifier checks HS256 access tokens issued by the platform auth service.
type Verifier struct {
	key    []byte
	parser *jwt.Parser
}

func NewVerifier(cfg config.JWTConfig) (*Verifier, error) {
	if !cfg.Enabled() {
		return nil, ErrNoSecret
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &Verifier{key: []byte(cfg.Secret), parser: jwt.NewParser(opts...)}, nil
}

// Verify returns the claims of a valid token that names a user.
func (v *Verifier) Verify(token string) (*AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}
	if _, err := v.parser.ParseWithClaims(token, claims, v.keyFunc); err != nil {
		return nil, err
	}
	if claims.Identity() == "" {
		return nil, ErrNoIdentity
	}
	return claims, nil
}

func (v *Verifier) keyFunc(*jwt.Token) (any, error) {
	return v.key, nil
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// MintAccessToken signs a token the way the platform auth service does. The cart only
// uses it for local tooling and tests.
func MintAccessToken(cfg config.JWTConfig, now time.Time, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	switch {
	case !cfg.Enabled():
		return "", ErrNoSecret
	case cfg.ExpirationMinutes <= 0:
		return "", fmt.Errorf("jwt expiration minutes must be positive, got %d", cfg.ExpirationMinutes)
	case userID == "":
		return "", ErrNoIdentity
	}

	claims := newAccessTokenClaims(cfg.Issuer, userID, now, time.Duration(cfg.ExpirationMinutes)*time.Minute)
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}
