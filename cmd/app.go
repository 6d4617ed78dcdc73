package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"

	"github.com/kozaktomas/photo-archive/internal/awsconf"
	"github.com/kozaktomas/photo-archive/internal/config"
	"github.com/kozaktomas/photo-archive/internal/database"
	"github.com/kozaktomas/photo-archive/internal/database/dynamo"
	"github.com/kozaktomas/photo-archive/internal/database/postgres"
	"github.com/kozaktomas/photo-archive/internal/ingest"
	"github.com/kozaktomas/photo-archive/internal/logger"
	"github.com/kozaktomas/photo-archive/internal/recognition"
	"github.com/kozaktomas/photo-archive/internal/search"
	"github.com/kozaktomas/photo-archive/internal/storage"
	"github.com/kozaktomas/photo-archive/internal/tagging"
)

// app holds the wired archive components shared by the commands.
type app struct {
	cfg         *config.Config
	log         *zap.Logger
	store       *database.Store
	rekognition *recognition.Rekognition
	objects     *storage.S3
	engine      *search.Engine
	reconciler  *tagging.Reconciler
	pipeline    *ingest.Pipeline
}

// Backend requirements for newApp.
const (
	anyBackend     = false
	durableBackend = true
)

// newApp loads configuration, opens the configured backend, hydrates the
// record store and builds the AWS collaborators. Commands that read or tag
// existing records pass durableBackend and are refused on the memory backend,
// where every process starts with an empty archive.
func newApp(ctx context.Context, durable bool) (*app, error) {
	cfg := config.Load()
	if durable {
		if err := requireDurableBackend(cfg); err != nil {
			return nil, err
		}
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	awsCfg, err := awsconf.Load(ctx, &cfg.AWS, cfg.Recognition.MaxAttempts)
	if err != nil {
		return nil, err
	}

	backend, err := openBackend(ctx, cfg, awsCfg, log)
	if err != nil {
		return nil, err
	}

	store := database.NewStore(backend, log)
	if err := store.Load(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	rek := recognition.NewFromConfig(awsCfg, cfg.AWS.CollectionID, cfg.Recognition, log)
	objects := storage.NewS3FromConfig(awsCfg, cfg.AWS.Bucket, log)

	return &app{
		cfg:         cfg,
		log:         log,
		store:       store,
		rekognition: rek,
		objects:     objects,
		engine:      search.New(store, rek, objects, cfg.Ingest.MaxImageDimension, log),
		reconciler:  tagging.New(store, rek, cfg.Tagging, log),
		pipeline:    ingest.NewPipeline(ingest.NewAdapter(store, log), rek, objects, cfg.Ingest, log),
	}, nil
}

// openBackend returns the durable table for the configured backend, or nil
// for the in-memory archive.
func openBackend(ctx context.Context, cfg *config.Config, awsCfg aws.Config, log *zap.Logger) (database.Backend, error) {
	switch cfg.Database.Backend {
	case config.BackendMemory, "":
		log.Warn("using in-memory record store, records are lost on exit")
		return nil, nil
	case config.BackendPostgres:
		backend, err := postgres.Open(ctx, &cfg.Database, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		return backend, nil
	case config.BackendDynamoDB:
		return dynamo.NewFromConfig(awsCfg, cfg.AWS.Table), nil
	default:
		return nil, fmt.Errorf("unknown database backend %q", cfg.Database.Backend)
	}
}

// requireDurableBackend rejects the memory backend for commands that need
// records written by an earlier process.
func requireDurableBackend(cfg *config.Config) error {
	switch cfg.Database.Backend {
	case config.BackendMemory, "":
		return fmt.Errorf("this command needs a durable record store: set DATABASE_BACKEND to %q or %q",
			config.BackendPostgres, config.BackendDynamoDB)
	}
	return nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("failed to close record store", zap.Error(err))
	}
	_ = a.log.Sync()
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(data))
	return nil
}
