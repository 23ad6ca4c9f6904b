package data

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dev-protocol/ar-io-node/internal/metrics"
)

// S3Config holds settings for the optional S3 data source.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	Region    string
}

// S3Source serves whole objects previously mirrored into an S3 bucket,
// keyed by content identifier under a configurable prefix. It sits
// between the local cache tier and the network tiers in the chain.
type S3Source struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Source creates an S3 source from the given config.
func NewS3Source(ctx context.Context, cfg S3Config) (*S3Source, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Source{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// GetData fetches the object at <prefix><id>.
func (s *S3Source) GetData(ctx context.Context, id string) (*Result, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + id),
	})
	if err != nil {
		metrics.RecordDataSourceRequest("s3", false)
		return nil, fmt.Errorf("s3 get %s: %w", id, err)
	}

	metrics.RecordDataSourceRequest("s3", true)
	return &Result{
		Stream:     out.Body,
		Size:       aws.ToInt64(out.ContentLength),
		Verified:   false,
		Cached:     false,
		SourceType: "s3",
	}, nil
}
