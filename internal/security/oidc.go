package security

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCValidator validates tokens against the issuer's published signing keys (JWKS).
// Keys are fetched lazily and refreshed by go-oidc when an unknown kid appears.
type OIDCValidator struct {
	issuer     string
	verifier   *oidc.IDTokenVerifier
	httpClient *http.Client
}

// NewOIDCValidator discovers issuer's metadata and returns a validator backed by its JWKS.
// audience may be empty to skip the aud check.
func NewOIDCValidator(ctx context.Context, issuer, audience string) (*OIDCValidator, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery for %s: %w", issuer, err)
	}
	return &OIDCValidator{
		issuer:     issuer,
		verifier:   provider.Verifier(verifierConfig(audience)),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}, nil
}

// NewOIDCValidatorWithKeySet returns a validator using keySet directly, without discovery.
func NewOIDCValidatorWithKeySet(issuer, audience string, keySet oidc.KeySet) *OIDCValidator {
	return &OIDCValidator{
		issuer:     issuer,
		verifier:   oidc.NewVerifier(issuer, keySet, verifierConfig(audience)),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func verifierConfig(audience string) *oidc.Config {
	return &oidc.Config{
		ClientID:             audience,
		SkipClientIDCheck:    audience == "",
		SupportedSigningAlgs: []string{oidc.RS256, oidc.ES256},
	}
}

// Validate verifies signature, iss and exp (and aud when configured).
func (v *OIDCValidator) Validate(ctx context.Context, rawToken string) (*Principal, error) {
	if rawToken == "" {
		return nil, ErrInvalidToken
	}
	tok, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	var extra struct {
		Scopes   []string `json:"scp"`
		ClientID string   `json:"cid"`
	}
	if err := tok.Claims(&extra); err != nil {
		return nil, ErrInvalidToken
	}
	return &Principal{
		Subject:   tok.Subject,
		Issuer:    tok.Issuer,
		Audience:  tok.Audience,
		ClientID:  extra.ClientID,
		Scopes:    extra.Scopes,
		ExpiresAt: tok.Expiry,
	}, nil
}

// HealthCheck reports whether the issuer's discovery document is reachable.
func (v *OIDCValidator) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.issuer+"/.well-known/openid-configuration", nil)
	if err != nil {
		return err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("issuer discovery returned %d", resp.StatusCode)
	}
	return nil
}
