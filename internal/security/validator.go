// Package security validates the bearer access tokens presented to the resource server.
// Tokens are issued by the external identity provider; this package never issues
// production tokens.
package security

import (
	"context"
	"crypto"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a token is malformed, expired, or fails signature/issuer/audience checks.
var ErrInvalidToken = errors.New("invalid token")

// DefaultLeeway absorbs clock skew between the provider and this host when checking exp/nbf/iat.
const DefaultLeeway = 30 * time.Second

// Principal is the identity carried by a validated access token.
type Principal struct {
	Subject   string
	Issuer    string
	Audience  []string
	ClientID  string
	Scopes    []string
	ExpiresAt time.Time
}

// HasScope reports whether the token was granted scope.
func (p *Principal) HasScope(scope string) bool {
	if p == nil {
		return false
	}
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Validator checks a raw bearer token and returns its principal or ErrInvalidToken.
type Validator interface {
	Validate(ctx context.Context, rawToken string) (*Principal, error)
}

// AccessClaims holds the access-token claims the resource server reads.
// scp and cid follow Okta's access token layout.
type AccessClaims struct {
	jwt.RegisteredClaims
	Scopes   []string `json:"scp,omitempty"`
	ClientID string   `json:"cid,omitempty"`
}

func (c *AccessClaims) principal() *Principal {
	p := &Principal{
		Subject:  c.Subject,
		Issuer:   c.Issuer,
		Audience: []string(c.Audience),
		ClientID: c.ClientID,
		Scopes:   c.Scopes,
	}
	if c.ExpiresAt != nil {
		p.ExpiresAt = c.ExpiresAt.Time
	}
	return p
}

// KeyValidator validates RS256/ES256 tokens against a single configured public key.
// It checks signature, exp (required), iss, and aud when an audience is configured.
type KeyValidator struct {
	publicKey crypto.PublicKey
	parser    *jwt.Parser
}

// NewKeyValidator returns a KeyValidator for publicKey. audience may be empty to skip the aud check.
func NewKeyValidator(publicKey crypto.PublicKey, issuer, audience string) (*KeyValidator, error) {
	alg := KeyAlg(publicKey)
	if alg == "" {
		return nil, ErrInvalidKey
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{alg}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(DefaultLeeway),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &KeyValidator{publicKey: publicKey, parser: jwt.NewParser(opts...)}, nil
}

// Validate parses and validates the access token (signature, exp, iss, aud).
func (v *KeyValidator) Validate(_ context.Context, rawToken string) (*Principal, error) {
	if rawToken == "" {
		return nil, ErrInvalidToken
	}
	claims := &AccessClaims{}
	token, err := v.parser.ParseWithClaims(rawToken, claims, func(*jwt.Token) (interface{}, error) {
		return v.publicKey, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims.principal(), nil
}
