// Resource server: validates bearer tokens and serves GET /trialDetails plus /actuator/**.
// Set OKTA_ISSUER (and optionally JWT_PUBLIC_KEY, OKTA_AUDIENCE, GRPC_ADDR).
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"coffee-shop-demo/internal/config"
	"coffee-shop-demo/internal/health"
	"coffee-shop-demo/internal/hoststats"
	"coffee-shop-demo/internal/logging"
	"coffee-shop-demo/internal/security"
	"coffee-shop-demo/internal/server"
	"coffee-shop-demo/internal/telemetry"
	telemetryotel "coffee-shop-demo/internal/telemetry/otel"
)

const (
	serviceName = "resourceserver"
	version     = "0.1.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New(os.Stderr, "info", "json")
		bootLog.Fatal().Err(err).Msg("config: load failed")
	}
	log := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err := cfg.ValidateResourceServer(); err != nil {
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
	emitter := telemetryotel.NewEventEmitter(providers.LoggerProvider)

	healthSvc := health.NewService()
	validator, err := newValidator(ctx, cfg, healthSvc)
	if err != nil {
		log.Fatal().Err(err).Msg("security: validator")
	}
	sampler, err := hoststats.NewSampler()
	if err != nil {
		log.Fatal().Err(err).Msg("hoststats: sampler")
	}
	healthSvc.Register("hoststats", sampler)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: server.NewRouter(server.Deps{
			Validator:   validator,
			Sampler:     sampler,
			Health:      healthSvc,
			Registry:    reg,
			Emitter:     emitter,
			Log:         logging.Component(log, "http"),
			ServiceName: cfg.ServiceNameOr(serviceName),
			Version:     version,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http: listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http: serve")
		}
	}()

	var grpcStop func()
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatal().Err(err).Msg("grpc: listen")
		}
		gs := server.NewGRPCServer(healthSvc)
		grpcStop = gs.GracefulStop
		go func() {
			log.Info().Str("addr", cfg.GRPCAddr).Msg("grpc: listening")
			if err := gs.Serve(lis); err != nil {
				log.Error().Err(err).Msg("grpc: serve")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http: shutdown")
	}
	if grpcStop != nil {
		grpcStop()
	}
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("telemetry: shutdown")
	}
	log.Info().Msg("stopped")
}

// newValidator prefers a static JWT_PUBLIC_KEY; otherwise it validates against the issuer's JWKS.
func newValidator(ctx context.Context, cfg *config.Config, healthSvc *health.Service) (security.Validator, error) {
	if cfg.JWTPublicKey != "" {
		pub, err := security.ParsePublicKey(cfg.JWTPublicKey)
		if err != nil {
			return nil, err
		}
		return security.NewKeyValidator(pub, cfg.Issuer, cfg.Audience)
	}
	v, err := security.NewOIDCValidator(ctx, cfg.Issuer, cfg.Audience)
	if err != nil {
		return nil, err
	}
	healthSvc.Register("issuer", v)
	return v, nil
}
