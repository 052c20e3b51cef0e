package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/domain"
	"github.com/rs/zerolog"
)

// S3Config configures an S3 or S3-compatible (R2, MinIO) bucket
type S3Config struct {
	Bucket          string
	Prefix          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Store keeps artifacts in a bucket under a key prefix.
type S3Store struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucket     string
	prefix     string
	log        zerolog.Logger
}

// NewS3Store creates a client for cfg. Static credentials are used when
// given, otherwise the default AWS credential chain applies.
func NewS3Store(ctx context.Context, cfg S3Config, log zerolog.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, domain.NewError("artifact store", domain.KindArgument, errors.New("bucket is required"))
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		// S3-compatible stores such as R2 do not accept the optional checksums
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	return &S3Store{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		bucket:     cfg.Bucket,
		prefix:     strings.Trim(cfg.Prefix, "/"),
		log: log.With().
			Str("component", "artifacts").
			Str("backend", "s3").
			Str("bucket", cfg.Bucket).
			Logger(),
	}, nil
}

// Name identifies the backend
func (s *S3Store) Name() string {
	return "s3"
}

func (s *S3Store) objectKey(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", domain.NewError("artifact store", domain.KindArgument, err)
	}
	if s.prefix == "" {
		return cleaned, nil
	}
	return path.Join(s.prefix, cleaned), nil
}

func (s *S3Store) uri(objectKey string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, objectKey)
}

// Put uploads data
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return "", err
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", domain.NewPathError("artifact put", domain.KindIO, s.uri(objectKey), err)
	}

	s.log.Debug().Str("key", objectKey).Int("bytes", len(data)).Msg("Uploaded artifact")
	return s.uri(objectKey), nil
}

// Get downloads an artifact
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}

	buf := manager.NewWriteAtBuffer(nil)
	_, err = s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, domain.NewPathError("artifact get", domain.KindIO, s.uri(objectKey), err)
	}
	return buf.Bytes(), nil
}

// List returns keys below prefix, relative to the store prefix
func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	full := prefix
	if s.prefix != "" {
		full = s.prefix + "/" + strings.TrimPrefix(prefix, "/")
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(full),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, domain.NewPathError("artifact list", domain.KindIO, s.uri(full), err)
		}
		for _, obj := range page.Contents {
			k := aws.ToString(obj.Key)
			if s.prefix != "" {
				k = strings.TrimPrefix(k, s.prefix+"/")
			}
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Delete removes an artifact. Missing keys are not an error.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	var notFound *types.NoSuchKey
	if err != nil && !errors.As(err, &notFound) {
		return domain.NewPathError("artifact delete", domain.KindIO, s.uri(objectKey), err)
	}
	return nil
}
