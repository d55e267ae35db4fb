package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type mockS3Client struct {
	MockGetObject           func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	MockPutObject           func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	MockHeadObject          func(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	MockGetBucketVersioning func(ctx context.Context, params *s3.GetBucketVersioningInput, optFns ...func(*s3.Options)) (*s3.GetBucketVersioningOutput, error)
	MockPutBucketVersioning func(ctx context.Context, params *s3.PutBucketVersioningInput, optFns ...func(*s3.Options)) (*s3.PutBucketVersioningOutput, error)
	MockListObjectVersions  func(ctx context.Context, params *s3.ListObjectVersionsInput, optFns ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error)
}

func (m *mockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return m.MockGetObject(ctx, params, optFns...)
}

func (m *mockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return m.MockPutObject(ctx, params, optFns...)
}

func (m *mockS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return m.MockHeadObject(ctx, params, optFns...)
}

func (m *mockS3Client) GetBucketVersioning(ctx context.Context, params *s3.GetBucketVersioningInput, optFns ...func(*s3.Options)) (*s3.GetBucketVersioningOutput, error) {
	return m.MockGetBucketVersioning(ctx, params, optFns...)
}

func (m *mockS3Client) PutBucketVersioning(ctx context.Context, params *s3.PutBucketVersioningInput, optFns ...func(*s3.Options)) (*s3.PutBucketVersioningOutput, error) {
	return m.MockPutBucketVersioning(ctx, params, optFns...)
}

func (m *mockS3Client) ListObjectVersions(ctx context.Context, params *s3.ListObjectVersionsInput, optFns ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error) {
	return m.MockListObjectVersions(ctx, params, optFns...)
}

type storedObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
	versionID   string
	modified    time.Time
}

// emulateS3Client is an in-memory bucket with optional versioning, enough
// to exercise the state and artifact stores end to end.
type emulateS3Client struct {
	objects    map[string]storedObject
	history    map[string][]storedObject
	versioning types.BucketVersioningStatus

	nextVersion              int
	putCalls                 int
	putBucketVersioningCalls int
}

func newEmulateS3Client() *emulateS3Client {
	return &emulateS3Client{
		objects: make(map[string]storedObject),
		history: make(map[string][]storedObject),
	}
}

func (m *emulateS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	obj, ok := m.objects[*params.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(bytes.NewReader(obj.data)),
		ContentType: aws.String(obj.contentType),
	}, nil
}

func (m *emulateS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.putCalls++
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	obj := storedObject{
		data:     data,
		metadata: params.Metadata,
		modified: time.Now(),
	}
	if params.ContentType != nil {
		obj.contentType = *params.ContentType
	}
	if m.versioning == types.BucketVersioningStatusEnabled {
		m.nextVersion++
		obj.versionID = fmt.Sprintf("v%03d", m.nextVersion)
	}
	m.objects[*params.Key] = obj
	m.history[*params.Key] = append(m.history[*params.Key], obj)
	return &s3.PutObjectOutput{}, nil
}

func (m *emulateS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	obj, ok := m.objects[*params.Key]
	if !ok {
		return nil, &types.NotFound{}
	}
	out := &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		Metadata:      obj.metadata,
	}
	if obj.versionID != "" {
		out.VersionId = aws.String(obj.versionID)
	}
	return out, nil
}

func (m *emulateS3Client) GetBucketVersioning(ctx context.Context, params *s3.GetBucketVersioningInput, optFns ...func(*s3.Options)) (*s3.GetBucketVersioningOutput, error) {
	return &s3.GetBucketVersioningOutput{Status: m.versioning}, nil
}

func (m *emulateS3Client) PutBucketVersioning(ctx context.Context, params *s3.PutBucketVersioningInput, optFns ...func(*s3.Options)) (*s3.PutBucketVersioningOutput, error) {
	m.putBucketVersioningCalls++
	m.versioning = params.VersioningConfiguration.Status
	return &s3.PutBucketVersioningOutput{}, nil
}

func (m *emulateS3Client) ListObjectVersions(ctx context.Context, params *s3.ListObjectVersionsInput, optFns ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error) {
	out := &s3.ListObjectVersionsOutput{IsTruncated: aws.Bool(false)}
	for key, versions := range m.history {
		if params.Prefix != nil && !strings.HasPrefix(key, *params.Prefix) {
			continue
		}
		for i := len(versions) - 1; i >= 0; i-- {
			v := versions[i]
			out.Versions = append(out.Versions, types.ObjectVersion{
				Key:          aws.String(key),
				VersionId:    aws.String(v.versionID),
				Size:         aws.Int64(int64(len(v.data))),
				IsLatest:     aws.Bool(i == len(versions)-1),
				LastModified: aws.Time(v.modified),
			})
		}
	}
	return out, nil
}
