package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/odontomarket/dental-marketplace-platform/internal/api/router"
	"github.com/odontomarket/dental-marketplace-platform/internal/appointments"
	"github.com/odontomarket/dental-marketplace-platform/internal/clinicorp"
	"github.com/odontomarket/dental-marketplace-platform/internal/clinics"
	appconfig "github.com/odontomarket/dental-marketplace-platform/internal/config"
	"github.com/odontomarket/dental-marketplace-platform/internal/credit"
	httpmiddleware "github.com/odontomarket/dental-marketplace-platform/internal/http/middleware"
	"github.com/odontomarket/dental-marketplace-platform/internal/observability/metrics"
	"github.com/odontomarket/dental-marketplace-platform/pkg/logging"
)

func main() {
	// Load .env in local development; in deployed environments the variables
	// come from the runtime.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting dental-marketplace-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, slug cache disabled", "error", err)
			redisClient = nil
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	proxyMetrics := metrics.NewProxyMetrics(registry)

	box, err := clinicorp.NewSecretBox(cfg.CredentialsEncryptionKey)
	if err != nil {
		logger.Error("failed to initialize credential encryption", "error", err)
		os.Exit(1)
	}
	if cfg.CredentialsEncryptionKey == "" {
		logger.Warn("CREDENTIALS_ENCRYPTION_KEY not set, stored credentials will not be encrypted")
	}

	proxyLogger := logger.Named("clinicorp")
	credentialStore := clinicorp.NewStore(pool)
	resolver := clinicorp.NewResolver(credentialStore, box, cfg.ClinicorpBaseURL, proxyLogger)
	invoker := clinicorp.NewInvoker(cfg.ClinicorpTimeout, proxyLogger)
	slugCache := clinicorp.NewSlugCache(redisClient, cfg.SlugCacheTTL, proxyLogger)

	proxy := clinicorp.NewProxy(clinicorp.ProxyOptions{
		Resolver:  resolver,
		Invoker:   invoker,
		SlugCache: slugCache,
		Metrics:   proxyMetrics,
		Logger:    proxyLogger,
	})
	clinicorpHandler := clinicorp.NewHandler(proxy, credentialStore, box, proxyLogger)

	clinicsRepo := clinics.NewPgRepository(pool)
	clinicsHandler := clinics.NewHandler(clinicsRepo, logger.Named("clinics"))

	appointmentsRepo := appointments.NewPgRepository(pool)
	appointmentsService := appointments.NewService(appointmentsRepo, proxy, logger.Named("appointments"))
	appointmentsHandler := appointments.NewHandler(appointmentsService, appointmentsRepo, logger.Named("appointments"))

	creditRepo := credit.NewPgRepository(pool)
	creditHandler := credit.NewHandler(creditRepo, logger.Named("credit"))

	verifier := httpmiddleware.NewVerifier(cfg.AuthJWTSecret, cfg.AuthUserInfoURL, logger.Named("auth"))

	r := router.New(&router.Config{
		Logger:              logger,
		ClinicorpHandler:    clinicorpHandler,
		ClinicsHandler:      clinicsHandler,
		AppointmentsHandler: appointmentsHandler,
		CreditHandler:       creditHandler,
		Verifier:            verifier,
		MetricsHandler:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerSecond:  cfg.RateLimitPerSecond,
		RateLimitBurst:      cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
