package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"swipe-match-backend/internal/models"
)

//go:embed fallback.json
var fallbackJSON []byte

// DefaultFallback returns the built-in pool of Hoboken restaurants
func DefaultFallback() []models.Candidate {
	pool, err := ParseFallback(bytes.NewReader(fallbackJSON))
	if err != nil {
		panic(fmt.Sprintf("embedded fallback pool is invalid: %v", err))
	}
	return pool
}

// ParseFallback decodes a JSON array of candidates
func ParseFallback(r io.Reader) ([]models.Candidate, error) {
	var pool []models.Candidate
	if err := json.NewDecoder(r).Decode(&pool); err != nil {
		return nil, fmt.Errorf("failed to decode fallback pool: %w", err)
	}
	for i, c := range pool {
		if c.ID == "" {
			return nil, fmt.Errorf("fallback candidate %d has no id", i)
		}
	}
	return pool, nil
}

// ObjectGetter is the slice of the S3 client the fallback loader needs
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewS3Client builds an S3 client. Empty keys use the default credential chain
// and an empty endpoint uses AWS.
func NewS3Client(ctx context.Context, region, accessKeyID, secretAccessKey, endpoint string) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// FallbackFromS3 loads a replacement fallback pool stored as a JSON object
func FallbackFromS3(ctx context.Context, client ObjectGetter, bucket, key string) ([]models.Candidate, error) {
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get fallback object s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	pool, err := ParseFallback(out.Body)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("fallback object s3://%s/%s is empty", bucket, key)
	}
	return pool, nil
}
