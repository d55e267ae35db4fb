package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BackupState is the last-backed-up record for one function. It is a
// pointer for fast change detection; the bucket's own version history is
// the source of truth for backups.
type BackupState struct {
	CodeSha      string `json:"code_sha"`
	LastModified string `json:"last_modified"`
	S3Bucket     string `json:"s3_bucket"`
	S3Key        string `json:"s3_key"`
	S3VersionID  string `json:"s3_version_id"`
}

// StateStore keeps one JSON record per function under
// <prefix>/<shortName>.json in the destination bucket.
type StateStore struct {
	client S3Client
	bucket string
	prefix string
}

func NewStateStore(client S3Client, bucket, prefix string) *StateStore {
	return &StateStore{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// ShortName reduces a function ARN to its unqualified name. Plain names
// pass through, so state is keyed identically no matter which identifier
// form the caller used.
func ShortName(identifier string) string {
	if !strings.HasPrefix(identifier, "arn:") {
		return identifier
	}
	parts := strings.Split(identifier, ":")
	for i, part := range parts {
		if part == "function" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return identifier
}

func (s *StateStore) key(functionName string) string {
	return s.prefix + "/" + ShortName(functionName) + ".json"
}

// Load returns the prior state, or nil when none exists. A missing record
// and an AccessDenied read are both treated as "no state" so the tool can
// run under roles without read access to the state prefix; the next backup
// then behaves like a first run.
func (s *StateStore) Load(ctx context.Context, functionName string) (*BackupState, error) {
	key := s.key(functionName)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			slog.Info("no prior state, treating as first run", "function", functionName, "key", key)
			return nil, nil
		}
		if isAccessDenied(err) {
			slog.Warn("state read denied, treating as first run", "function", functionName, "key", key)
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read %v: %v", ErrStateStore, key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %v: %v", ErrStateStore, key, err)
	}
	var state BackupState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: decode %v: %v", ErrStateStore, key, err)
	}
	return &state, nil
}

// Save overwrites the whole record for the function.
func (s *StateStore) Save(ctx context.Context, functionName string, state *BackupState) error {
	key := s.key(functionName)
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("%w: encode %v: %v", ErrStateStore, key, err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("%w: write %v: %v", ErrStateStore, key, err)
	}
	return nil
}
