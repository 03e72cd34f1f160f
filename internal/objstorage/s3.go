package objstorage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Options configures an S3Storage.
type S3Options struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string // optional, for S3-compatible stores
	// Static credentials; when empty the default AWS credential chain is
	// used.
	AccessKeyID     string
	SecretAccessKey string
}

// S3Storage stores payloads as S3 objects under <prefix>/<shard>/<digest>,
// sharing the shard layout with FileSystemStorage so a bucket can be synced
// to disk and served locally.
type S3Storage struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

var _ ObjStorage = (*S3Storage)(nil)

// NewS3Storage creates an S3-backed storage.
func NewS3Storage(ctx context.Context, opts S3Options) (*S3Storage, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 storage requires a bucket")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Storage{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   opts.Bucket,
		prefix:   opts.Prefix,
	}, nil
}

func (s *S3Storage) key(key string) (string, error) {
	if len(key) < 4 {
		return "", fmt.Errorf("digest too short: %q", key)
	}
	return path.Join(s.prefix, key[0:2], key[2:4], key), nil
}

func (s *S3Storage) Put(key string, r io.Reader, size int64) error {
	objKey, err := s.key(key)
	if err != nil {
		return err
	}

	// S3 PUTs are idempotent by key; skipping the upload when the object
	// exists saves the transfer for large payloads.
	ok, err := s.Contains(key)
	if err != nil {
		return err
	}
	if ok {
		if _, err := io.Copy(io.Discard, r); err != nil {
			return fmt.Errorf("reading payload: %w", err)
		}
		return nil
	}

	_, err = s.uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objKey),
		Body:          r,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

func (s *S3Storage) Get(key string, w io.Writer) error {
	objKey, err := s.key(key)
	if err != nil {
		return err
	}

	out, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return fmt.Errorf("payload not found: %s", key)
		}
		return fmt.Errorf("fetching %s: %w", key, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading payload: %w", err)
	}
	return nil
}

func (s *S3Storage) Contains(key string) (bool, error) {
	objKey, err := s.key(key)
	if err != nil {
		return false, err
	}

	_, err = s.client.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("checking %s: %w", key, err)
	}
	return true, nil
}

func (s *S3Storage) Check() error {
	_, err := s.client.HeadBucket(context.Background(), &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket %s inaccessible: %w", s.bucket, err)
	}
	return nil
}
