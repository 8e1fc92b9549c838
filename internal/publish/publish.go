package publish

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mgpai22/bilingo/internal/logging"
)

// Options locates the S3-compatible bucket finished tracks are uploaded to.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	// Prefix is prepended to every object key.
	Prefix string
}

// S3Publisher uploads subtitle files to object storage with minio-go.
type S3Publisher struct {
	client *minio.Client
	opts   Options
	logger *logging.Logger

	bucketOnce sync.Once
	bucketErr  error
}

func New(opts Options, logger *logging.Logger) (*S3Publisher, error) {
	if strings.TrimSpace(opts.Endpoint) == "" {
		return nil, errors.New("publish endpoint is required")
	}
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("publish bucket is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}
	return &S3Publisher{client: client, opts: opts, logger: logger}, nil
}

// creates the bucket on first use when it does not exist yet
func (p *S3Publisher) ensureBucket(ctx context.Context) error {
	p.bucketOnce.Do(func() {
		exists, err := p.client.BucketExists(ctx, p.opts.Bucket)
		if err != nil {
			p.bucketErr = fmt.Errorf("failed to check bucket %s: %w", p.opts.Bucket, err)
			return
		}
		if exists {
			return
		}
		if err := p.client.MakeBucket(ctx, p.opts.Bucket, minio.MakeBucketOptions{Region: p.opts.Region}); err != nil {
			p.bucketErr = fmt.Errorf("failed to create bucket %s: %w", p.opts.Bucket, err)
			return
		}
		p.logger.Infow("created bucket", "bucket", p.opts.Bucket)
	})
	return p.bucketErr
}

// Publish uploads each file under <prefix>/<videoID>/ and returns the
// object keys written.
func (p *S3Publisher) Publish(ctx context.Context, videoID string, files []string) ([]string, error) {
	if err := p.ensureBucket(ctx); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(files))
	for _, file := range files {
		key := ObjectKey(p.opts.Prefix, videoID, file)
		info, err := p.client.FPutObject(ctx, p.opts.Bucket, key, file, minio.PutObjectOptions{
			ContentType: ContentType(file),
		})
		if err != nil {
			return keys, fmt.Errorf("failed to upload %s: %w", filepath.Base(file), err)
		}
		p.logger.Debugw("uploaded subtitle",
			"bucket", p.opts.Bucket,
			"key", key,
			"bytes", info.Size,
		)
		keys = append(keys, key)
	}
	return keys, nil
}

// ObjectKey is the bucket key for a local file of a video.
func ObjectKey(prefix, videoID, file string) string {
	return path.Join(strings.Trim(prefix, "/"), videoID, filepath.Base(file))
}

// ContentType returns the MIME type served for a subtitle file.
func ContentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".vtt":
		return "text/vtt; charset=utf-8"
	case ".srt":
		return "application/x-subrip; charset=utf-8"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
