package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Backend implements Backend over a remote S3-compatible service using
// the AWS SDK.
type S3Backend struct {
	name   string
	bucket string
	client *s3.Client
}

// S3Options configures an S3Backend.
type S3Options struct {
	Name            string
	Bucket          string
	Region          string
	Endpoint        string
	ForcePathStyle  bool
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Backend builds an S3 client for one remote bucket. Credentials,
// when omitted, come from the default AWS credential chain.
func NewS3Backend(ctx context.Context, opts S3Options) (*S3Backend, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = opts.ForcePathStyle
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})

	return &S3Backend{
		name:   opts.Name,
		bucket: opts.Bucket,
		client: client,
	}, nil
}

func (b *S3Backend) Name() string {
	return b.name
}

func (b *S3Backend) HeadBucket(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return ErrNoSuchBucket
		}
		return err
	}
	return nil
}

func (b *S3Backend) ListObjects(ctx context.Context, prefix string, maxKeys int) ([]ObjectInfo, error) {
	maxKeys = ClampMaxKeys(maxKeys)

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.bucket),
		MaxKeys: aws.Int32(int32(maxKeys)),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	out, err := b.client.ListObjectsV2(ctx, input)
	if err != nil {
		var noBucket *types.NoSuchBucket
		if errors.As(err, &noBucket) {
			return nil, ErrNoSuchBucket
		}
		return nil, err
	}

	objects := make([]ObjectInfo, 0, len(out.Contents))
	for _, obj := range out.Contents {
		objects = append(objects, ObjectInfo{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			ETag:         aws.ToString(obj.ETag),
			LastModified: aws.ToTime(obj.LastModified),
			ContentType:  DefaultContentType,
		})
	}
	return objects, nil
}

func (b *S3Backend) HeadObject(ctx context.Context, key string) (ObjectInfo, error) {
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return ObjectInfo{}, ErrNoSuchKey
		}
		return ObjectInfo{}, err
	}
	return b.objectInfo(key, out.ContentLength, out.ETag, out.LastModified, out.ContentType), nil
}

func (b *S3Backend) GetObject(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ObjectInfo{}, ErrNoSuchKey
		}
		return nil, ObjectInfo{}, err
	}
	info := b.objectInfo(key, out.ContentLength, out.ETag, out.LastModified, out.ContentType)
	return out.Body, info, nil
}

func (b *S3Backend) PutObject(ctx context.Context, key string, body io.Reader) (string, error) {
	out, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.ETag), nil
}

func (b *S3Backend) DeleteObject(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		// S3 DeleteObject already succeeds for missing keys; anything
		// surfacing here is a real failure.
		slog.Warn("delete object failed", "backend", b.name, "key", key, "error", err)
		return err
	}
	return nil
}

func (b *S3Backend) objectInfo(key string, size *int64, etag *string, lastModified *time.Time, contentType *string) ObjectInfo {
	info := ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(size),
		ETag:         aws.ToString(etag),
		LastModified: aws.ToTime(lastModified),
		ContentType:  aws.ToString(contentType),
	}
	if info.ContentType == "" {
		info.ContentType = DefaultContentType
	}
	return info
}
