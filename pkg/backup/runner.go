package backup

import (
	"context"
	"log/slog"

	"github.com/samber/lo"

	"github.com/Ruslex1234/aws-lambda-ide-backup/pkg/registry"
	"github.com/Ruslex1234/aws-lambda-ide-backup/pkg/storage"
)

// The runner depends on narrow interfaces so tests can substitute fakes
// for the AWS-backed implementations wired up in main.

type MetadataFetcher interface {
	Fetch(ctx context.Context, functionName string) (*registry.PackageDescriptor, error)
}

type StateStore interface {
	Load(ctx context.Context, functionName string) (*storage.BackupState, error)
	Save(ctx context.Context, functionName string, state *storage.BackupState) error
}

type PackageDownloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

type ArtifactStore interface {
	EnsureVersioning(ctx context.Context) error
	Upload(ctx context.Context, functionName string, data []byte, desc *registry.PackageDescriptor) (*storage.ObjectRef, error)
}

// TargetResult is one entry of the invocation result: either an outcome
// ({function, changed, ...}) or a failure ({function, error}).
type TargetResult struct {
	Function string             `json:"function"`
	Changed  *bool              `json:"changed,omitempty"`
	S3       *storage.ObjectRef `json:"s3,omitempty"`
	CodeSha  string             `json:"code_sha,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// Output is the invocation's return payload, one entry per resolved
// target in resolution order.
type Output struct {
	Results []TargetResult `json:"results"`
}

// Runner drives one invocation end to end.
type Runner struct {
	Registry  MetadataFetcher
	States    StateStore
	Downloads PackageDownloader
	Artifacts ArtifactStore

	// StaticTargets is the polling-mode list, used when the invocation
	// event carries no update notification.
	StaticTargets []string
}

// Run ensures bucket versioning, resolves targets, and processes each one
// in order. Only the versioning check and target resolution are fatal; a
// failing target becomes an error entry and the rest still run.
func (r *Runner) Run(ctx context.Context, payload []byte) (*Output, error) {
	if err := r.Artifacts.EnsureVersioning(ctx); err != nil {
		return nil, err
	}
	targets, err := ResolveTargets(payload, r.StaticTargets)
	if err != nil {
		return nil, err
	}

	out := &Output{Results: make([]TargetResult, 0, len(targets))}
	for _, fn := range targets {
		result, err := r.processFunction(ctx, fn)
		if err != nil {
			slog.Error("failed processing function", "function", fn, "error", err)
			out.Results = append(out.Results, TargetResult{Function: fn, Error: err.Error()})
			continue
		}
		out.Results = append(out.Results, *result)
	}
	return out, nil
}

func (r *Runner) processFunction(ctx context.Context, functionName string) (*TargetResult, error) {
	desc, err := r.Registry.Fetch(ctx, functionName)
	if err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	last, err := r.States.Load(ctx, functionName)
	if err != nil {
		return nil, err
	}
	if !Changed(last, desc.CodeSha256) {
		slog.Info("no code change, skipping", "function", functionName)
		return &TargetResult{Function: functionName, Changed: lo.ToPtr(false)}, nil
	}

	slog.Info("change detected, downloading package", "function", functionName)
	data, err := r.Downloads.Download(ctx, desc.Location)
	if err != nil {
		return nil, err
	}
	ref, err := r.Artifacts.Upload(ctx, functionName, data, desc)
	if err != nil {
		return nil, err
	}
	if err := r.States.Save(ctx, functionName, &storage.BackupState{
		CodeSha:      desc.CodeSha256,
		LastModified: desc.LastModified,
		S3Bucket:     ref.Bucket,
		S3Key:        ref.Key,
		S3VersionID:  ref.VersionID,
	}); err != nil {
		return nil, err
	}

	slog.Info("uploaded package backup",
		"function", functionName,
		"bucket", ref.Bucket,
		"key", ref.Key,
		"version_id", ref.VersionID)
	return &TargetResult{
		Function: functionName,
		Changed:  lo.ToPtr(true),
		S3:       ref,
		CodeSha:  desc.CodeSha256,
	}, nil
}
