package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"

	_ "github.com/reelmark/bookmarks-api/docs" // Swagger docs
	"github.com/reelmark/bookmarks-api/internal/auth"
	"github.com/reelmark/bookmarks-api/internal/config"
	"github.com/reelmark/bookmarks-api/internal/logging"
	"github.com/reelmark/bookmarks-api/internal/metrics"
	"github.com/reelmark/bookmarks-api/internal/middleware"
	"github.com/reelmark/bookmarks-api/internal/routes"
	"github.com/reelmark/bookmarks-api/internal/services"
	"github.com/reelmark/bookmarks-api/internal/store"
)

// @title Bookmarks API
// @version 1.0
// @description Accounts and personal movie bookmarks

// @host localhost:5000
// @BasePath /api

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

const tableWaitTimeout = 2 * time.Minute

// backend is satisfied by every store implementation
type backend interface {
	store.UserRepository
	store.BookmarkRepository
	store.Pinger
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := logging.New(cfg)

	// Initialize metrics
	if err := metrics.Init(); err != nil {
		logger.WithError(err).Fatal("Failed to initialize metrics")
	}

	// Initialize tracing
	tracingShutdown, err := middleware.InitTracing(&cfg.Observability, logging.GetVersion(), cfg.Server.Environment, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to setup tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracingShutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Failed to shutdown tracing")
		}
	}()

	jwtSecret := cfg.JWT.Secret
	if cfg.JWT.SecretName != "" {
		jwtSecret, err = middleware.GetSecretValue(cfg.AWS.Region, cfg.JWT.SecretName, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to load JWT secret")
		}
	}

	tokens, err := auth.NewTokenService(jwtSecret, cfg.JWT.TTL, auth.WithIssuer(cfg.JWT.Issuer))
	if err != nil {
		logger.WithError(err).Fatal("Failed to create token service")
	}

	repo, err := initializeStore(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize store")
	}

	creds := store.NewCredentialStore(repo, auth.NewBcryptHasher(cfg.Auth.BcryptCost))

	// Initialize middleware manager
	middlewareManager, err := middleware.NewManager(cfg, tokens, creds, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize middleware manager")
	}
	defer middlewareManager.Close()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Bookmarks API",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		BodyLimit:    cfg.Server.BodyLimit,
		ErrorHandler: middleware.ErrorHandler(!cfg.Server.IsProduction()),
		// c.IP() reads ProxyHeader only for requests from a trusted proxy
		ProxyHeader:             cfg.Server.ProxyHeader,
		EnableTrustedProxyCheck: true,
		TrustedProxies:          cfg.Server.TrustedProxies,
		EnableIPValidation:      true,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Requested-With,Idempotency-Key",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	// OTEL use
	app.Use(otelfiber.Middleware())

	if !cfg.Server.IsProduction() {
		// pprof for memory profiling (accessible at /debug/pprof/)
		app.Use(pprof.New())
	}

	// Setup routes
	routes.Setup(app, routes.Dependencies{
		Config:     cfg,
		Logger:     logger,
		Middleware: middlewareManager,
		Accounts:   services.NewAccountService(creds, tokens, logger),
		Bookmarks:  services.NewBookmarkService(repo, logger),
		Store:      repo,
	})

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		logger.Info("Gracefully shutting down...")
		if err := app.Shutdown(); err != nil {
			logger.WithError(err).Error("Server shutdown failed")
		}
	}()

	// Start server
	logger.WithFields(logrus.Fields{
		"port":    cfg.Server.Port,
		"backend": cfg.Store.Backend,
	}).Info("Starting Bookmarks API server")
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		logger.WithError(err).Error("Server stopped")
	}
}

func initializeStore(cfg *config.Config, logger *logrus.Logger) (backend, error) {
	if cfg.Store.Backend == config.StoreBackendMemory {
		logger.Warn("Using in-memory store; data is lost on restart")
		return store.NewMemoryStore(), nil
	}

	dynamoClient, err := initializeDynamoDB(cfg, logger)
	if err != nil {
		return nil, err
	}

	repo := store.NewDynamoStore(dynamoClient, cfg.DynamoDB.UsersTableName, cfg.DynamoDB.BookmarksTableName, logger)

	if cfg.DynamoDB.CreateTables {
		if err := repo.EnsureTables(context.Background(), tableWaitTimeout); err != nil {
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := repo.Ping(ctx); err != nil {
		return nil, fmt.Errorf("store unreachable: %w", err)
	}

	return repo, nil
}

func initializeDynamoDB(cfg *config.Config, logger *logrus.Logger) (*dynamodb.Client, error) {
	ctx := context.Background()

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.DynamoDB.Region),
	}
	if cfg.AWS.Profile != "" {
		// Use specific profile for local development
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Log credentials provider info for debugging
	creds, credErr := awsCfg.Credentials.Retrieve(ctx)
	if credErr != nil {
		logger.WithError(credErr).Warn("Failed to retrieve credentials (will retry on first API call)")
	} else {
		logger.WithFields(logrus.Fields{
			"provider":          creds.Source,
			"has_session_token": creds.SessionToken != "",
			"region":            cfg.DynamoDB.Region,
		}).Debug("AWS credentials retrieved")
	}

	dynamoClient := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoDB.Endpoint != "" {
			// DynamoDB Local
			o.BaseEndpoint = aws.String(cfg.DynamoDB.Endpoint)
		}
	})

	logger.WithFields(logrus.Fields{
		"region":          cfg.DynamoDB.Region,
		"users_table":     cfg.DynamoDB.UsersTableName,
		"bookmarks_table": cfg.DynamoDB.BookmarksTableName,
		"endpoint":        cfg.DynamoDB.Endpoint,
	}).Info("DynamoDB client initialized")

	return dynamoClient, nil
}
