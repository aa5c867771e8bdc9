package common

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Config contains the connection settings for an S3-compatible bucket (AWS S3, Aliyun OSS,
// MinIO). Empty credentials fall back to the standard AWS credential chain.
type S3Config struct {
	// Endpoint overrides the service URL, e.g. "https://oss-cn-shenzhen.aliyuncs.com".
	Endpoint string
	// Region to sign requests for. OSS accepts its region id, e.g. "oss-cn-shenzhen".
	Region string
	// AccessKeyID and AccessKeySecret select static credentials when both are set.
	AccessKeyID     string
	AccessKeySecret string
	// Bucket every call operates on.
	Bucket string
	// UsePathStyle forces path-style addressing (useful for some S3-compatible providers).
	UsePathStyle bool
	// MaxAttempts overrides the SDK retry budget; zero keeps the SDK default.
	MaxAttempts int
}

// S3 wraps the AWS SDK for Go v2 S3 client with the narrow surface the probes need.
type S3 struct {
	client *s3.Client
	bucket string
}

// NewS3 creates a new S3 wrapper bound to cfg.Bucket.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	var loadOpts []func(*config.LoadOptions) error
	region := cfg.Region
	if region == "" && cfg.Endpoint != "" {
		region = "us-east-1"
	}
	if region != "" {
		loadOpts = append(loadOpts, config.WithRegion(region))
	}
	if cfg.AccessKeyID != "" && cfg.AccessKeySecret != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.AccessKeySecret, ""),
		))
	}
	if cfg.MaxAttempts > 0 {
		loadOpts = append(loadOpts, config.WithRetryMaxAttempts(cfg.MaxAttempts))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}

	c := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &S3{client: c, bucket: cfg.Bucket}, nil
}

// Bucket returns the bucket the wrapper is bound to.
func (s *S3) Bucket() string { return s.bucket }

// Head retrieves the object's metadata without returning the body.
func (s *S3) Head(ctx context.Context, key string) (*s3.HeadObjectOutput, error) {
	return s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
}

// Exists returns true if the object exists (HTTP 200 from HeadObject); false if 404/NotFound.
func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Head(ctx, key)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// Ping verifies the bucket is reachable with the configured credentials.
func (s *S3) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("head bucket %s: %w", s.bucket, err)
	}
	return nil
}

// IsNotFound reports whether err is an S3 "object does not exist" response.
func IsNotFound(err error) bool {
	// Check for HTTP 404 response error
	var respErr *http.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
		return true
	}

	// Check for API error code NotFound / NoSuchKey
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
