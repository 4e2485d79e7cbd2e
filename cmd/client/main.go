// Client: the browser-facing coffee-shop web app. Login and logout go through the OIDC issuer;
// the session guard decides which views render and which token the API client sends.
// Set OKTA_ISSUER, OKTA_CLIENT_ID, OKTA_REDIRECT_URI and RESOURCE_SERVER_URL.
package main

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coffee-shop-demo/internal/config"
	"coffee-shop-demo/internal/logging"
	"coffee-shop-demo/internal/oidcprovider"
	"coffee-shop-demo/internal/session"
	"coffee-shop-demo/internal/telemetry"
	telemetryotel "coffee-shop-demo/internal/telemetry/otel"
	"coffee-shop-demo/internal/web"
)

const (
	serviceName = "client"
	version     = "0.1.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New(os.Stderr, "info", "json")
		bootLog.Fatal().Err(err).Msg("config: load failed")
	}
	log := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err := cfg.ValidateClient(); err != nil {
		log.Fatal().Err(err).Msg("config: invalid")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:       cfg.OTLPEndpoint,
		ServiceName:    cfg.ServiceNameOr(serviceName),
		ServiceVersion: version,
		Insecure:       cfg.OTLPInsecure,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("telemetry: providers")
	}
	providers.SetGlobal()

	discoveryCtx, cancelDiscovery := context.WithTimeout(ctx, 15*time.Second)
	provider, err := oidcprovider.New(discoveryCtx, oidcprovider.Config{
		Issuer:       cfg.Issuer,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURI:  cfg.RedirectURI,
		PKCE:         cfg.PKCE,
		HashKey:      []byte(cfg.CookieHashKey),
		BlockKey:     []byte(cfg.CookieBlockKey),
		SecureCookie: cfg.Production(),
	})
	cancelDiscovery()
	if err != nil {
		log.Fatal().Err(err).Msg("oidc: provider")
	}

	guard := session.NewGuard(provider, cfg.ResourceServerURL, logging.Component(log, "session"),
		session.WithEmitter(telemetryotel.NewEventEmitter(providers.LoggerProvider)),
	)
	handler, err := web.NewRouter(web.Deps{
		Guard:     guard,
		Auth:      provider,
		Log:       logging.Component(log, "web"),
		PublicURL: publicOrigin(cfg.RedirectURI),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("web: router")
	}

	srv := &http.Server{
		Addr:              cfg.ClientAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.ClientAddr).Msg("http: listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http: serve")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http: shutdown")
	}
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("telemetry: shutdown")
	}
	log.Info().Msg("stopped")
}

// publicOrigin derives the client's origin from its redirect URI (scheme://host).
func publicOrigin(redirectURI string) string {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
