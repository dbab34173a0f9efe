package reliability

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

// ArchiveConfig locates the bucket the report cache is mirrored to.
// Endpoint is set for S3-compatible stores such as R2 or MinIO.
type ArchiveConfig struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Prefix    string
	// Root is the local cache directory; keys are paths relative to it.
	Root string
}

type objectStore interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type uploader interface {
	Upload(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Archiver mirrors cached reports to object storage. Cached files never
// change, so an object that already exists is left alone.
type Archiver struct {
	cfg      ArchiveConfig
	store    objectStore
	uploader uploader
	log      zerolog.Logger
}

// NewArchiver connects to the configured bucket.
func NewArchiver(ctx context.Context, cfg ArchiveConfig, log zerolog.Logger) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("archive bucket not configured")
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newArchiver(cfg, client, manager.NewUploader(client), log), nil
}

func newArchiver(cfg ArchiveConfig, store objectStore, up uploader, log zerolog.Logger) *Archiver {
	return &Archiver{
		cfg:      cfg,
		store:    store,
		uploader: up,
		log:      log.With().Str("service", "archive").Str("bucket", cfg.Bucket).Logger(),
	}
}

// Key returns the object key of a local file.
func (a *Archiver) Key(localPath string) string {
	rel := filepath.Base(localPath)
	if a.cfg.Root != "" {
		if r, err := filepath.Rel(a.cfg.Root, localPath); err == nil && !strings.HasPrefix(r, "..") {
			rel = r
		}
	}
	return path.Join(a.cfg.Prefix, filepath.ToSlash(rel))
}

// Archive uploads localPath unless its object already exists.
func (a *Archiver) Archive(ctx context.Context, localPath string) error {
	key := a.Key(localPath)

	exists, err := a.exists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		a.log.Debug().Str("key", key).Msg("Already archived")
		return nil
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	if _, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	a.log.Info().Str("key", key).Msg("Archived report")
	return nil
}

func (a *Archiver) exists(ctx context.Context, key string) (bool, error) {
	_, err := a.store.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check %s: %w", key, err)
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == 404
}
