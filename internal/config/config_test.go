package config

import (
	"os"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.GRPCAddr != "" {
		t.Errorf("GRPCAddr = %q, want empty", cfg.GRPCAddr)
	}
	if cfg.ClientAddr != ":3000" {
		t.Errorf("ClientAddr = %q, want %q", cfg.ClientAddr, ":3000")
	}
	if cfg.RedirectURI != "http://localhost:3000/callback" {
		t.Errorf("RedirectURI = %q, want default", cfg.RedirectURI)
	}
	if !cfg.PKCE {
		t.Error("PKCE should default to true")
	}
	if cfg.Audience != "api://default" {
		t.Errorf("Audience = %q, want %q", cfg.Audience, "api://default")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("OKTA_ISSUER", "https://dev-1.okta.com/oauth2/default/")
	os.Setenv("OKTA_PKCE", "false")
	os.Setenv("RESOURCE_SERVER_URL", "http://api.local:8080/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9090")
	}
	if cfg.Issuer != "https://dev-1.okta.com/oauth2/default" {
		t.Errorf("Issuer = %q, want trailing slash trimmed", cfg.Issuer)
	}
	if cfg.PKCE {
		t.Error("PKCE should be false")
	}
	if cfg.ResourceServerURL != "http://api.local:8080" {
		t.Errorf("ResourceServerURL = %q, want trailing slash trimmed", cfg.ResourceServerURL)
	}
}

func TestLoad_InvalidLogFormat(t *testing.T) {
	os.Clearenv()
	os.Setenv("LOG_FORMAT", "xml")

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load should return error for LOG_FORMAT=xml")
	}
	if cfg != nil {
		t.Error("Load should return nil config on error")
	}
}

func TestValidateResourceServer(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"ok", Config{HTTPAddr: ":8080", Issuer: "https://issuer"}, ""},
		{"missing addr", Config{Issuer: "https://issuer"}, "config: HTTP_ADDR must be set"},
		{"missing issuer", Config{HTTPAddr: ":8080"}, "config: OKTA_ISSUER must be set"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.ValidateResourceServer()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateResourceServer: %v", err)
				}
				return
			}
			if err == nil || err.Error() != tc.wantErr {
				t.Errorf("error = %v, want %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidateClient(t *testing.T) {
	base := Config{
		ClientAddr:        ":3000",
		Issuer:            "https://issuer",
		ClientID:          "client",
		RedirectURI:       "http://localhost:3000/callback",
		ResourceServerURL: "http://localhost:8080",
		PKCE:              true,
	}
	if err := base.ValidateClient(); err != nil {
		t.Fatalf("ValidateClient: %v", err)
	}

	noClientID := base
	noClientID.ClientID = ""
	if err := noClientID.ValidateClient(); err == nil {
		t.Error("ValidateClient should fail without OKTA_CLIENT_ID")
	}

	publicNoPKCE := base
	publicNoPKCE.PKCE = false
	if err := publicNoPKCE.ValidateClient(); err == nil {
		t.Error("ValidateClient should fail for a public client without PKCE")
	}

	confidential := publicNoPKCE
	confidential.ClientSecret = "secret"
	if err := confidential.ValidateClient(); err != nil {
		t.Errorf("ValidateClient confidential client: %v", err)
	}

	prod := base
	prod.Env = "production"
	if err := prod.ValidateClient(); err == nil {
		t.Error("ValidateClient should require COOKIE_HASH_KEY in production")
	}
}

func TestServiceNameOr(t *testing.T) {
	var nilCfg *Config
	if got := nilCfg.ServiceNameOr("fallback"); got != "fallback" {
		t.Errorf("nil ServiceNameOr = %q, want fallback", got)
	}
	cfg := &Config{ServiceName: "custom"}
	if got := cfg.ServiceNameOr("fallback"); got != "custom" {
		t.Errorf("ServiceNameOr = %q, want custom", got)
	}
}
