// Package main provides the Finanzas SD API server.
package main

import (
	"context"
	"time"

	"finanzas-sd/api"
	"finanzas-sd/db"
	"finanzas-sd/db/clickhouse"
	"finanzas-sd/db/dynamo"
	"finanzas-sd/db/memory"
	"finanzas-sd/internal/materialize"
	"finanzas-sd/internal/taxonomy"
	"finanzas-sd/pkg/platform"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

func main() {
	env := platform.GetEnv("ENV", "production")
	logger := platform.InitLogger(env, platform.GetEnv("LOG_LEVEL", "info"))

	ctx := context.Background()

	catalog, err := loadCatalog(ctx, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load taxonomy catalog")
	}
	logger.Info().
		Str("version", catalog.Version()).
		Int("entries", catalog.Len()).
		Msg("taxonomy catalog loaded")

	store, err := buildStore(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize store")
	}

	cfg := api.DefaultConfig()
	cfg.Port = platform.GetEnvInt("PORT", 8080)
	cfg.Environment = env
	cfg.RequestTimeout = platform.GetEnvDuration("REQUEST_TIMEOUT", 60*time.Second)

	matCfg := materialize.Config{
		DefaultCanonicalCode: platform.GetEnv("DEFAULT_CANONICAL_CODE", "OTR-VARIOS"),
		DefaultCurrency:      platform.GetEnv("DEFAULT_CURRENCY", "MXN"),
	}

	server := api.NewServer(store, catalog, matCfg, cfg, logger)

	if host := platform.GetEnv("CLICKHOUSE_HOST", ""); host != "" {
		chCfg := clickhouse.DefaultConfig()
		chCfg.Host = host
		chCfg.Port = platform.GetEnvInt("CLICKHOUSE_PORT", 9000)
		chCfg.Database = platform.GetEnv("CLICKHOUSE_DATABASE", "finanzas")
		chCfg.Username = platform.GetEnv("CLICKHOUSE_USER", "default")
		chCfg.Password = platform.GetEnv("CLICKHOUSE_PASSWORD", "")
		allocations, err := clickhouse.NewStore(chCfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to allocations store")
		}
		if err := allocations.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to ensure allocations schema")
		}
		defer allocations.Close()
		server.WithAllocations(allocations)
		logger.Info().Str("host", chCfg.Host).Msg("allocations store connected")
	}

	if err := server.StartWithGracefulShutdown(); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}

// loadCatalog picks the taxonomy source: bundled table by default, a local
// file, or an object-storage location.
func loadCatalog(ctx context.Context, logger zerolog.Logger) (*taxonomy.Catalog, error) {
	switch source := platform.GetEnv("TAXONOMY_SOURCE", "bundled"); source {
	case "file":
		path := platform.GetEnv("TAXONOMY_FILE", "taxonomy.json")
		logger.Info().Str("path", path).Msg("loading taxonomy from file")
		return taxonomy.FileLoader(path).Load(ctx)
	case "s3":
		bucket := platform.GetEnv("TAXONOMY_BUCKET", "")
		key := platform.GetEnv("TAXONOMY_KEY", "taxonomy.json")
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("bucket", bucket).Str("key", key).Msg("loading taxonomy from object storage")
		return taxonomy.NewS3Loader(s3.NewFromConfig(awsCfg), bucket, key).Load(ctx)
	default:
		return taxonomy.Bundled()
	}
}

func buildStore(ctx context.Context) (db.Store, error) {
	switch platform.GetEnv("STORE", "memory") {
	case "dynamo":
		return dynamo.NewStore(ctx, dynamo.Config{
			Table:    platform.GetEnv("DYNAMO_TABLE", "finanzas-sd"),
			Region:   platform.GetEnv("AWS_REGION", ""),
			Endpoint: platform.GetEnv("DYNAMO_ENDPOINT", ""),
		})
	default:
		return memory.NewStore(), nil
	}
}
