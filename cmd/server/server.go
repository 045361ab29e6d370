package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"poster-api/internal/config"
	"poster-api/internal/domain/credits"
	"poster-api/internal/domain/history"
	"poster-api/internal/domain/poster"
	"poster-api/internal/domain/share"
	"poster-api/internal/infrastructure/auth"
	"poster-api/internal/infrastructure/dynamo"
	"poster-api/internal/infrastructure/generation"
	"poster-api/internal/infrastructure/logger"
	"poster-api/internal/infrastructure/observability"
	"poster-api/internal/infrastructure/storage"
	"poster-api/internal/interfaces/httpserver"
)

// @title Poster API
// @version 1.0
// @description Credit-metered poster generation with history and share links
// @BasePath /
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization
type Application struct {
	httpServer *httpserver.HttpServer
	log        zerolog.Logger
}

func NewApplication(httpServer *httpserver.HttpServer, log zerolog.Logger) *Application {
	return &Application{
		httpServer: httpServer,
		log:        log,
	}
}

func (a *Application) Start(ctx context.Context) error {
	return a.httpServer.Run(ctx)
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	store, err := dynamo.NewDynamoStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("connect dynamodb")
	}

	storageClient, err := storage.NewS3Storage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize storage")
	}

	generator, err := generation.NewBedrock(ctx, cfg, storageClient, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize generation")
	}

	authValidator, err := auth.NewValidator(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize auth")
	}

	ledger := credits.NewLedger(cfg, store, log)
	histLog := history.NewLog(cfg, store, storageClient, log)
	posterService := poster.NewService(cfg, ledger, histLog, generator, generator, storageClient, log)
	issuer := share.NewIssuer(cfg, store, storageClient, log)

	httpServer := httpserver.New(cfg, log, ledger, histLog, posterService, issuer, authValidator)
	app := NewApplication(httpServer, log)

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
