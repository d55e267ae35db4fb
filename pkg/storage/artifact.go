package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/Ruslex1234/aws-lambda-ide-backup/pkg/registry"
)

type EncryptionType string

const (
	EncryptionAES256 EncryptionType = "AES256"
	EncryptionKMS    EncryptionType = "aws:kms"
)

// ObjectRef locates one stored backup, including the bucket-assigned
// version when versioning was in effect at write time.
type ObjectRef struct {
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	VersionID string `json:"version_id,omitempty"`
}

// ArtifactVersion is one entry of a function's backup history, as kept by
// the bucket's native versioning.
type ArtifactVersion struct {
	VersionID    string
	LastModified time.Time
	Size         int64
	IsLatest     bool
}

// ArtifactStore writes package archives to a stable key per function.
// Every function always overwrites the same key; the bucket's versioning,
// not a key-naming scheme, retains the history.
type ArtifactStore struct {
	client            S3Client
	bucket            string
	prefix            string
	encryptionEnabled bool
	encryptionType    EncryptionType
	kmsKeyID          string
}

func NewArtifactStore(client S3Client, bucket, prefix string) *ArtifactStore {
	return &ArtifactStore{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// WithEncryption turns on server-side encryption for uploads. KMS requires
// a key id.
func (a *ArtifactStore) WithEncryption(encryptionType, kmsKeyID string) error {
	switch encryptionType {
	case "AES256":
		a.encryptionType = EncryptionAES256
	case "KMS":
		if kmsKeyID == "" {
			return fmt.Errorf("KMS encryption requested but no KMS key specified")
		}
		a.encryptionType = EncryptionKMS
		a.kmsKeyID = kmsKeyID
	default:
		return fmt.Errorf("unknown encryption type specified for backup bucket: %v", encryptionType)
	}
	a.encryptionEnabled = true
	return nil
}

func (a *ArtifactStore) key(functionName string) string {
	return a.prefix + "/" + functionName + ".zip"
}

// EnsureVersioning enables versioning on the destination bucket if it is
// not already enabled. The status is queried first so routine invocations
// do not need PutBucketVersioning permission.
func (a *ArtifactStore) EnsureVersioning(ctx context.Context) error {
	out, err := a.client.GetBucketVersioning(ctx, &s3.GetBucketVersioningInput{
		Bucket: aws.String(a.bucket),
	})
	if err != nil {
		return fmt.Errorf("%w: check %v: %v", ErrVersioning, a.bucket, err)
	}
	if out.Status == types.BucketVersioningStatusEnabled {
		return nil
	}
	slog.Info("enabling versioning on bucket", "bucket", a.bucket)
	_, err = a.client.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
		Bucket: aws.String(a.bucket),
		VersioningConfiguration: &types.VersioningConfiguration{
			Status: types.BucketVersioningStatusEnabled,
		},
	})
	if err != nil {
		return fmt.Errorf("%w: enable on %v: %v", ErrVersioning, a.bucket, err)
	}
	return nil
}

// Upload writes the package to the function's stable key with the
// descriptor attached as object metadata, then reads the object head back
// to learn the version the bucket assigned. A missing version id is
// tolerated; it only means versioning could not be confirmed.
func (a *ArtifactStore) Upload(ctx context.Context, functionName string, data []byte, desc *registry.PackageDescriptor) (*ObjectRef, error) {
	key := a.key(functionName)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/zip"),
		Metadata: map[string]string{
			"function_arn":   desc.FunctionArn,
			"lambda_version": desc.Version,
			"last_modified":  desc.LastModified,
			"code_sha":       desc.CodeSha256,
		},
	}
	if a.encryptionEnabled {
		input.ServerSideEncryption = types.ServerSideEncryption(a.encryptionType)
		if a.encryptionType == EncryptionKMS {
			input.SSEKMSKeyId = aws.String(a.kmsKeyID)
		}
	}
	if _, err := a.client.PutObject(ctx, input); err != nil {
		return nil, fmt.Errorf("upload %v: %w", key, err)
	}
	head, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("confirm upload %v: %w", key, err)
	}
	return &ObjectRef{
		Bucket:    a.bucket,
		Key:       key,
		VersionID: aws.ToString(head.VersionId),
	}, nil
}

// Versions lists the backup history of one function, newest first as S3
// returns it.
func (a *ArtifactStore) Versions(ctx context.Context, functionName string) ([]ArtifactVersion, error) {
	key := a.key(functionName)
	var (
		keyMarker       *string
		versionIDMarker *string
		versions        []ArtifactVersion
	)
	for {
		out, err := a.client.ListObjectVersions(ctx, &s3.ListObjectVersionsInput{
			Bucket:          aws.String(a.bucket),
			Prefix:          aws.String(key),
			KeyMarker:       keyMarker,
			VersionIdMarker: versionIDMarker,
		})
		if err != nil {
			return nil, fmt.Errorf("list versions %v: %w", key, err)
		}
		for _, v := range out.Versions {
			if aws.ToString(v.Key) != key {
				continue
			}
			av := ArtifactVersion{
				VersionID: aws.ToString(v.VersionId),
				Size:      aws.ToInt64(v.Size),
				IsLatest:  aws.ToBool(v.IsLatest),
			}
			if v.LastModified != nil {
				av.LastModified = *v.LastModified
			}
			versions = append(versions, av)
		}
		if aws.ToBool(out.IsTruncated) {
			keyMarker = out.NextKeyMarker
			versionIDMarker = out.NextVersionIdMarker
			continue
		}
		break
	}
	return versions, nil
}
