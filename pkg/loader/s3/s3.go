package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/OFFIS-RIT/kiwi/characters/pkg/loader"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/logger"
)

// ObjectGetter is the part of *s3.Client the loader uses.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// BookLoader loads book files from an S3 bucket. It also works against
// S3-compatible storage like MinIO.
type BookLoader struct {
	bucket string
	client ObjectGetter
	cache  *loader.Cache
}

func NewBookLoaderWithClient(bucket string, client ObjectGetter) *BookLoader {
	return &BookLoader{
		bucket: bucket,
		client: client,
		cache:  loader.NewCache(),
	}
}

// ClientParams configures an S3 client with static credentials.
type ClientParams struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// NewClient builds a path-style S3 client.
func NewClient(ctx context.Context, params ClientParams) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(params.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			params.AccessKey,
			params.SecretKey,
			"",
		)),
	}
	if params.Endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(params.Endpoint))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	}), nil
}

func (l *BookLoader) GetBookText(ctx context.Context, file loader.BookFile) ([]byte, error) {
	return l.cache.Load(loader.CacheKey(file), func() ([]byte, error) {
		out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(l.bucket),
			Key:    aws.String(file.Path),
		})
		if err != nil {
			return nil, fmt.Errorf("get s3://%s/%s: %w", l.bucket, file.Path, err)
		}
		defer out.Body.Close()

		buf := new(bytes.Buffer)
		if _, err := io.Copy(buf, out.Body); err != nil {
			return nil, fmt.Errorf("read s3://%s/%s: %w", l.bucket, file.Path, err)
		}
		logger.Debug("[Loader] Fetched book", "bucket", l.bucket, "key", file.Path, "bytes", buf.Len())
		return buf.Bytes(), nil
	})
}

var _ loader.BookLoader = (*BookLoader)(nil)
