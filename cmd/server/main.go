package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/crmbridge/bridge-server/internal/config"
	"github.com/crmbridge/bridge-server/internal/connector"
	"github.com/crmbridge/bridge-server/internal/connector/bullhorn"
	"github.com/crmbridge/bridge-server/internal/connector/clio"
	"github.com/crmbridge/bridge-server/internal/connector/httpclient"
	"github.com/crmbridge/bridge-server/internal/connector/insightly"
	"github.com/crmbridge/bridge-server/internal/connector/pipedrive"
	"github.com/crmbridge/bridge-server/internal/database"
	"github.com/crmbridge/bridge-server/internal/handler"
	"github.com/crmbridge/bridge-server/internal/jobs"
	"github.com/crmbridge/bridge-server/internal/middleware"
	"github.com/crmbridge/bridge-server/internal/redis"
	"github.com/crmbridge/bridge-server/internal/repository"
	"github.com/crmbridge/bridge-server/internal/service"
	"github.com/crmbridge/bridge-server/internal/util"
)

func main() {
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(cfg.IsProduction()); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	if cfg.AutoMigrate {
		migrator, err := database.NewMigrator(db)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to prepare migrations")
		}
		if err := migrator.Up(); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
	}

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	userRepo := repository.NewUserRepository(db.DB, util.NewSecretBox(cfg.EncryptionKey))
	stateRepo := repository.NewOAuthStateRepository(db.DB)
	callLogRepo := repository.NewCallLogRepository(db.DB)
	messageLogRepo := repository.NewMessageLogRepository(db.DB)

	recordings := redis.NewRecordingCache(redisClient.Client, cfg.RecordingCacheTTL())
	claims := redis.NewClaimStore(redisClient.Client, cfg.LogClaimTTL())
	limiter := redis.NewRateLimiter(redisClient.Client)

	registry := buildRegistry(cfg)
	if len(registry.Platforms()) == 0 {
		log.Warn().Msg("no crm connectors configured")
	}
	for _, p := range registry.Platforms() {
		log.Info().Str("platform", p.Name).Str("authType", string(p.AuthType)).Msg("connector registered")
	}

	oauthClient := newConnectorClient(cfg, "oauth")
	signer := util.NewSessionSigner(cfg.JWTSecret, cfg.JWTTTL())

	tokenService := service.NewTokenService(userRepo, oauthClient, cfg.TokenRefreshBuffer())
	dispatcher := service.NewDispatcher(registry, userRepo, tokenService)
	authService := service.NewAuthService(dispatcher, userRepo, stateRepo, oauthClient, signer)
	contactService := service.NewContactService(cfg.DefaultRegion)
	callLogService := service.NewCallLogService(callLogRepo, recordings, claims)
	messageLogService := service.NewMessageLogService(messageLogRepo, claims)

	authHandler := handler.NewAuthHandler(authService, dispatcher, registry)
	crmHandler := handler.NewCRMHandler(dispatcher, contactService, callLogService, messageLogService)

	authMiddleware := middleware.NewAuthMiddleware(signer)
	userRateLimit := middleware.NewUserRateLimitMiddleware(limiter, cfg.RateLimitPerMinute)
	loginRateLimit := middleware.NewIPRateLimitMiddleware(limiter, cfg.LoginRateLimitPerMinute, time.Minute, "login")
	corsMiddleware := middleware.NewCORSMiddleware(cfg.CORSAllowedOrigins)
	securityHeaders := middleware.NewSecurityHeadersMiddleware(cfg.IsProduction())
	bodyLimit := middleware.NewBodyLimitMiddleware(config.MaxRequestBodyBytes)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(corsMiddleware.Handler)
	r.Use(securityHeaders.Handler)
	r.Use(bodyLimit.Handler)

	handler.NewRouter(r, authHandler, crmHandler, handler.RouteMiddleware{
		Session:        authMiddleware.Handler,
		UserRateLimit:  userRateLimit.Handler,
		LoginRateLimit: loginRateLimit.Handler,
	})

	cleanupJob := jobs.NewCleanupJob(stateRepo, config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// buildRegistry registers every connector with credentials configured.
func buildRegistry(cfg *config.Config) *connector.Registry {
	registry := connector.NewRegistry()

	if cfg.Pipedrive.Enabled() {
		registry.Register(pipedrive.New(pipedrive.Config{
			ClientID:     cfg.Pipedrive.ClientID,
			ClientSecret: cfg.Pipedrive.ClientSecret,
			RedirectURI:  cfg.Pipedrive.RedirectURI,
		}, newConnectorClient(cfg, pipedrive.Platform)))
	}
	if cfg.Clio.Enabled() {
		registry.Register(clio.New(clio.Config{
			ClientID:     cfg.Clio.ClientID,
			ClientSecret: cfg.Clio.ClientSecret,
			RedirectURI:  cfg.Clio.RedirectURI,
		}, newConnectorClient(cfg, clio.Platform)))
	}
	if cfg.Bullhorn.Enabled() {
		registry.Register(bullhorn.New(bullhorn.Config{
			ClientID:     cfg.Bullhorn.ClientID,
			ClientSecret: cfg.Bullhorn.ClientSecret,
			RedirectURI:  cfg.Bullhorn.RedirectURI,
		}, newConnectorClient(cfg, bullhorn.Platform)))
	}
	if cfg.InsightlyEnabled {
		registry.Register(insightly.New(insightly.Config{}, newConnectorClient(cfg, insightly.Platform)))
	}

	return registry
}

func newConnectorClient(cfg *config.Config, name string) *httpclient.Client {
	return httpclient.New(httpclient.Config{
		Name:      name,
		Timeout:   cfg.ConnectorTimeout(),
		RateLimit: cfg.ConnectorRateLimitPerSecond,
	})
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
