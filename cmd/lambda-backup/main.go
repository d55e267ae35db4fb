package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/google/uuid"

	"github.com/Ruslex1234/aws-lambda-ide-backup/pkg/backup"
	"github.com/Ruslex1234/aws-lambda-ide-backup/pkg/config"
	"github.com/Ruslex1234/aws-lambda-ide-backup/pkg/registry"
	"github.com/Ruslex1234/aws-lambda-ide-backup/pkg/storage"
	"github.com/Ruslex1234/aws-lambda-ide-backup/pkg/transfer"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	runner, artifacts, err := buildRunner(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		lambda.Start(handler(runner))
		return
	}
	runOnce(ctx, runner, artifacts)
}

// buildRunner wires the process-wide AWS clients into the pipeline. They
// are constructed once and live for the process lifetime.
func buildRunner(ctx context.Context, cfg *config.Config) (*backup.Runner, *storage.ArtifactStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load aws config: %w", err)
	}

	s3Client := storage.NewS3Client(awsCfg, cfg.Endpoint)
	artifacts := storage.NewArtifactStore(s3Client, cfg.DestBucket, cfg.DestPrefix)
	if cfg.EncryptionEnabled {
		if err := artifacts.WithEncryption(cfg.EncryptionType, cfg.KMSKeyID); err != nil {
			return nil, nil, err
		}
	}

	runner := &backup.Runner{
		Registry:      registry.NewFetcher(awslambda.NewFromConfig(awsCfg)),
		States:        storage.NewStateStore(s3Client, cfg.DestBucket, cfg.StatePrefix),
		Downloads:     transfer.NewDownloader(cfg.DownloadTimeout),
		Artifacts:     artifacts,
		StaticTargets: cfg.TargetFunctions,
	}
	return runner, artifacts, nil
}

func handler(runner *backup.Runner) func(ctx context.Context, payload json.RawMessage) (*backup.Output, error) {
	return func(ctx context.Context, payload json.RawMessage) (*backup.Output, error) {
		runID := uuid.NewString()
		if lc, ok := lambdacontext.FromContext(ctx); ok {
			runID = lc.AwsRequestID
		}
		slog.Info("invocation started", "run_id", runID, "event", string(payload))
		return runner.Run(ctx, payload)
	}
}

// runOnce is the CLI mode for local or cron-driven use: a single run over
// an optional event file, or a backup-history listing.
func runOnce(ctx context.Context, runner *backup.Runner, artifacts *storage.ArtifactStore) {
	eventPath := flag.String("event", "", "path to a JSON event payload to process")
	versionsFor := flag.String("versions", "", "list stored backup versions for a function and exit")
	flag.Parse()

	if *versionsFor != "" {
		versions, err := artifacts.Versions(ctx, *versionsFor)
		if err != nil {
			slog.Error("listing versions failed", "function", *versionsFor, "error", err)
			os.Exit(1)
		}
		for _, v := range versions {
			fmt.Printf("%s\t%s\t%d\tlatest=%t\n", v.VersionID, v.LastModified.Format("2006-01-02T15:04:05Z07:00"), v.Size, v.IsLatest)
		}
		return
	}

	payload := []byte("{}")
	if *eventPath != "" {
		data, err := os.ReadFile(*eventPath)
		if err != nil {
			slog.Error("reading event file failed", "path", *eventPath, "error", err)
			os.Exit(1)
		}
		payload = data
	}

	slog.Info("run started", "run_id", uuid.NewString())
	out, err := runner.Run(ctx, payload)
	if err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
	if err := json.NewEncoder(os.Stdout).Encode(out); err != nil {
		slog.Error("encoding results failed", "error", err)
		os.Exit(1)
	}
}
