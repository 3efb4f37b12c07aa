package cmd

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"swipe-match-backend/internal/catalog"
	"swipe-match-backend/internal/config"
	"swipe-match-backend/internal/models"
	"swipe-match-backend/internal/repository"
	"swipe-match-backend/internal/services"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Run() {
	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "config.yaml"
	}
	configPath := flag.String("config", defaultPath, "path to the YAML configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	// Open the store
	repo, err := openRepository(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("Failed to open store")
	}
	defer repo.Close()

	// Initialize services
	notifier := newNotifier(cfg.APNs)
	deviceService := services.NewDeviceService(repo, cfg.JWT.Secret, cfg.JWT.TokenTTL)
	sessionService := services.NewSessionService(repo, services.NewSessionHub(), notifier, services.SessionOptions{
		MaxSwipes:  cfg.Session.MaxSwipes,
		TxAttempts: cfg.Session.TxAttempts,
		TxBackoff:  cfg.Session.TxBackoff,
	})
	catalogService := newCatalog(context.Background(), cfg)

	handler := newRouter(routerDeps{
		devices:        deviceService,
		sessions:       sessionService,
		candidates:     catalogService,
		inviteBaseURL:  cfg.Invite.BaseURL,
		allowedOrigins: cfg.Server.AllowedOrigins,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Str("store", cfg.Store.Driver).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// WebSocket connections are hijacked and not tracked by Shutdown
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// openRepository connects the configured store and applies migrations
func openRepository(ctx context.Context, cfg *config.Config) (repository.Repository, error) {
	switch cfg.Store.Driver {
	case "memory":
		log.Warn().Msg("Using in-memory store, data is lost on restart")
		return repository.NewMemoryRepository(), nil

	case "sqlite":
		repo, err := repository.OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.SQLite.Path).Msg("SQLite database ready")
		return repo, nil

	default:
		db, err := pgxpool.New(ctx, cfg.Database.DSN())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		// Test database connection
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		log.Info().Msg("Database connection established")

		if err := repository.MigratePostgres(db); err != nil {
			db.Close()
			return nil, err
		}
		return repository.NewPostgresRepository(db), nil
	}
}

// newCatalog builds the candidate source. The fallback pool comes from S3 when
// configured and the embedded list otherwise.
func newCatalog(ctx context.Context, cfg *config.Config) *catalog.Service {
	fallback := loadFallback(ctx, cfg.AWS)

	var provider catalog.Provider
	if cfg.Catalog.FoursquareAPIKey != "" {
		provider = catalog.NewFoursquareProvider(cfg.Catalog.FoursquareAPIKey, cfg.Catalog.FoursquareURL, cfg.Catalog.RadiusMeters)
	} else {
		log.Warn().Msg("No Foursquare API key configured, serving the fallback pool only")
	}

	cache := catalog.NewCache(cfg.Catalog.CacheTTL, cfg.Catalog.CacheMaxEntries)
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	return catalog.NewService(provider, cache, fallback, rnd)
}

func loadFallback(ctx context.Context, aws config.AWSConfig) []models.Candidate {
	if aws.S3Bucket == "" || aws.FallbackKey == "" {
		return catalog.DefaultFallback()
	}

	client, err := catalog.NewS3Client(ctx, aws.Region, aws.AccessKey, aws.SecretKey, aws.Endpoint)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create S3 client, using built-in fallback pool")
		return catalog.DefaultFallback()
	}

	pool, err := catalog.FallbackFromS3(ctx, client, aws.S3Bucket, aws.FallbackKey)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load fallback pool from S3, using built-in pool")
		return catalog.DefaultFallback()
	}

	log.Info().Int("candidates", len(pool)).Str("bucket", aws.S3Bucket).Msg("Loaded fallback pool from S3")
	return pool
}

func newNotifier(cfg config.APNsConfig) services.Notifier {
	if cfg.KeyPath == "" {
		return services.NopNotifier{}
	}

	notifier, err := services.NewAPNsNotifier(cfg.KeyPath, cfg.KeyID, cfg.TeamID, cfg.Topic, cfg.Production)
	if err != nil {
		log.Error().Err(err).Msg("Failed to set up APNs, push notifications disabled")
		return services.NopNotifier{}
	}

	log.Info().Bool("production", cfg.Production).Msg("APNs notifications enabled")
	return notifier
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

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
