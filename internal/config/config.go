// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
// The resource server and the client share one Config; each binary validates the
// subset it needs via ValidateResourceServer or ValidateClient.
type Config struct {
	// HTTPAddr is the address the resource server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the optional address for the gRPC health listener; empty disables it.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogFormat is "json" or "console".
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// Issuer is the identity provider's issuer URL (e.g. https://dev-123.okta.com/oauth2/default).
	Issuer string `mapstructure:"OKTA_ISSUER"`
	// ClientID is the OAuth client identifier registered with the provider.
	ClientID string `mapstructure:"OKTA_CLIENT_ID"`
	// ClientSecret is optional; public clients rely on PKCE instead.
	ClientSecret string `mapstructure:"OKTA_CLIENT_SECRET"`
	// RedirectURI is where the provider sends the browser after login (…/callback).
	RedirectURI string `mapstructure:"OKTA_REDIRECT_URI"`
	// PKCE enables the S256 code challenge on the authorization request.
	PKCE bool `mapstructure:"OKTA_PKCE"`
	// Audience is the expected aud claim on access tokens (Okta default: api://default). Empty skips the check.
	Audience string `mapstructure:"OKTA_AUDIENCE"`
	// JWTPublicKey is a PEM public key or path to one. When set the resource server validates
	// tokens against it instead of the issuer's JWKS.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`

	// ClientAddr is the address the client web app listens on (e.g. :3000).
	ClientAddr string `mapstructure:"CLIENT_ADDR"`
	// ResourceServerURL is the base URL the client's API client talks to.
	ResourceServerURL string `mapstructure:"RESOURCE_SERVER_URL"`
	// CookieHashKey authenticates the login state cookie (32 or 64 bytes recommended).
	CookieHashKey string `mapstructure:"COOKIE_HASH_KEY"`
	// CookieBlockKey optionally encrypts the login state cookie (16, 24 or 32 bytes).
	CookieBlockKey string `mapstructure:"COOKIE_BLOCK_KEY"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext to the collector even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName overrides the service.name resource attribute.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", "")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("OKTA_ISSUER", "")
	v.SetDefault("OKTA_CLIENT_ID", "")
	v.SetDefault("OKTA_CLIENT_SECRET", "")
	v.SetDefault("OKTA_REDIRECT_URI", "http://localhost:3000/callback")
	v.SetDefault("OKTA_PKCE", true)
	v.SetDefault("OKTA_AUDIENCE", "api://default")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("CLIENT_ADDR", ":3000")
	v.SetDefault("RESOURCE_SERVER_URL", "http://localhost:8080")
	v.SetDefault("COOKIE_HASH_KEY", "")
	v.SetDefault("COOKIE_BLOCK_KEY", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Issuer = strings.TrimSuffix(strings.TrimSpace(cfg.Issuer), "/")
	cfg.ResourceServerURL = strings.TrimSuffix(strings.TrimSpace(cfg.ResourceServerURL), "/")

	switch strings.ToLower(cfg.LogFormat) {
	case "json", "console":
	default:
		return nil, errors.New("config: LOG_FORMAT must be json or console")
	}

	return &cfg, nil
}

// ValidateResourceServer checks the fields the resource server needs.
// Tokens are validated either against JWT_PUBLIC_KEY or the issuer's JWKS, so one of them is required.
func (c *Config) ValidateResourceServer() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.Issuer == "" {
		return errors.New("config: OKTA_ISSUER must be set")
	}
	return nil
}

// ValidateClient checks the fields the client web app needs.
func (c *Config) ValidateClient() error {
	if c.ClientAddr == "" {
		return errors.New("config: CLIENT_ADDR must be set")
	}
	if c.Issuer == "" {
		return errors.New("config: OKTA_ISSUER must be set")
	}
	if c.ClientID == "" {
		return errors.New("config: OKTA_CLIENT_ID must be set")
	}
	if c.RedirectURI == "" {
		return errors.New("config: OKTA_REDIRECT_URI must be set")
	}
	if c.ResourceServerURL == "" {
		return errors.New("config: RESOURCE_SERVER_URL must be set")
	}
	if c.ClientSecret == "" && !c.PKCE {
		return errors.New("config: OKTA_PKCE must be true for public clients (no OKTA_CLIENT_SECRET)")
	}
	if c.Env == "production" && c.CookieHashKey == "" {
		return errors.New("config: COOKIE_HASH_KEY must be set when APP_ENV=production")
	}
	return nil
}

// Production reports whether APP_ENV is production.
func (c *Config) Production() bool {
	return c != nil && c.Env == "production"
}

// ServiceNameOr returns ServiceName, or fallback when unset.
func (c *Config) ServiceNameOr(fallback string) string {
	if c == nil || strings.TrimSpace(c.ServiceName) == "" {
		return fallback
	}
	return c.ServiceName
}
