//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"

	"poster-api/internal/config"
	"poster-api/internal/domain/credits"
	"poster-api/internal/domain/history"
	"poster-api/internal/domain/poster"
	"poster-api/internal/domain/share"
	"poster-api/internal/infrastructure/auth"
	"poster-api/internal/infrastructure/dynamo"
	"poster-api/internal/infrastructure/generation"
	"poster-api/internal/infrastructure/logger"
	"poster-api/internal/infrastructure/storage"
	"poster-api/internal/interfaces/httpserver"
)

var posterSet = wire.NewSet(
	dynamo.NewDynamoStore,
	wire.Bind(new(dynamo.Store), new(*dynamo.DynamoStore)),
	storage.NewS3Storage,
	wire.Bind(new(history.Signer), new(*storage.S3Storage)),
	wire.Bind(new(generation.Uploader), new(*storage.S3Storage)),
	generation.NewBedrock,
	wire.Bind(new(poster.Generator), new(*generation.Bedrock)),
	wire.Bind(new(poster.Editor), new(*generation.Bedrock)),
	credits.NewLedger,
	history.NewLog,
	poster.NewService,
	share.NewIssuer,
)

// BuildApplication assembles the poster API with Wire.
func BuildApplication(ctx context.Context) (*Application, error) {
	wire.Build(
		config.Load,
		logger.New,
		auth.NewValidator,
		posterSet,
		httpserver.New,
		NewApplication,
	)
	return nil, nil
}
