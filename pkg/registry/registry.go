package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
)

// ErrLookup indicates the Lambda API could not resolve the function or the
// call itself failed. Not retried here; the caller records it per target.
var ErrLookup = errors.New("lambda registry lookup failed")

// LambdaClient is the subset of the Lambda API the fetcher needs.
type LambdaClient interface {
	GetFunction(ctx context.Context, params *lambda.GetFunctionInput, optFns ...func(*lambda.Options)) (*lambda.GetFunctionOutput, error)
}

// PackageDescriptor describes the currently published code of a function.
// Location is a time-limited presigned URL and must be used promptly.
type PackageDescriptor struct {
	FunctionName string
	FunctionArn  string
	Version      string
	LastModified string
	CodeSha256   string
	Location     string
}

// Validate rejects descriptors that cannot be backed up. An empty code hash
// or download location means the registry response is unusable.
func (d *PackageDescriptor) Validate() error {
	if d.CodeSha256 == "" || d.Location == "" {
		return fmt.Errorf("%w: missing code info for %v", ErrLookup, d.FunctionName)
	}
	return nil
}

type Fetcher struct {
	client LambdaClient
}

func NewFetcher(client LambdaClient) *Fetcher {
	return &Fetcher{client: client}
}

// Fetch returns the package descriptor for a function name or ARN.
func (f *Fetcher) Fetch(ctx context.Context, functionName string) (*PackageDescriptor, error) {
	out, err := f.client.GetFunction(ctx, &lambda.GetFunctionInput{
		FunctionName: aws.String(functionName),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v: %v", ErrLookup, functionName, err)
	}
	desc := &PackageDescriptor{FunctionName: functionName}
	if cfg := out.Configuration; cfg != nil {
		desc.FunctionArn = aws.ToString(cfg.FunctionArn)
		desc.Version = aws.ToString(cfg.Version)
		desc.LastModified = aws.ToString(cfg.LastModified)
		desc.CodeSha256 = aws.ToString(cfg.CodeSha256)
	}
	if code := out.Code; code != nil {
		desc.Location = aws.ToString(code.Location)
	}
	return desc, nil
}
