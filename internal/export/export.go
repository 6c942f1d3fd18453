// Package export renders filtered views as CSV and publishes them to object
// storage behind a time-limited download link.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"sales-dashboard/internal/dataset"
	"sales-dashboard/internal/models"
)

const (
	ContentType       = "text/csv; charset=utf-8"
	DefaultURLExpiry  = 15 * time.Minute
	defaultRegion     = "us-east-1"
	objectKeyPrefix   = "exports"
	fileNameTimestamp = "20060102-150405"
)

var ErrNotConfigured = errors.New("export storage is not configured")

// CSV renders view in schema order.
func CSV(view models.FilteredView) ([]byte, error) {
	var buf bytes.Buffer
	if err := dataset.Write(&buf, view); err != nil {
		return nil, fmt.Errorf("render csv: %w", err)
	}
	return buf.Bytes(), nil
}

// FileName is the download name for an export taken at now.
func FileName(now time.Time) string {
	return "sales-export-" + now.UTC().Format(fileNameTimestamp) + ".csv"
}

type Published struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	Size      int       `json:"size"`
	Records   int       `json:"records"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Publisher stores an export and hands back a download link.
type Publisher interface {
	Publish(ctx context.Context, fileName string, body []byte) (Published, error)
}

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	URLExpiry time.Duration
}

type S3Store struct {
	client *minio.Client
	bucket string
	region string
	expiry time.Duration

	mu    sync.Mutex
	ready bool
}

func NewS3Store(cfg S3Config) (*S3Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = defaultRegion
	}
	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = DefaultURLExpiry
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	return &S3Store{
		client: client,
		bucket: bucket,
		region: region,
		expiry: expiry,
	}, nil
}

// ensureBucket creates the bucket on first use. Only success is remembered;
// a failed check runs again on the next publish.
func (s *S3Store) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return err
		}
	}
	s.ready = true
	return nil
}

func (s *S3Store) Publish(ctx context.Context, fileName string, body []byte) (Published, error) {
	if s == nil || s.client == nil {
		return Published{}, ErrNotConfigured
	}
	if err := s.ensureBucket(ctx); err != nil {
		return Published{}, fmt.Errorf("ensure bucket: %w", err)
	}

	key := ObjectKey(uuid.NewString(), fileName)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType:        ContentType,
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", fileName),
	})
	if err != nil {
		return Published{}, fmt.Errorf("put object: %w", err)
	}

	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	link, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.expiry, params)
	if err != nil {
		return Published{}, fmt.Errorf("presign object: %w", err)
	}

	return Published{
		Key:       key,
		URL:       link.String(),
		Size:      len(body),
		ExpiresAt: time.Now().UTC().Add(s.expiry),
	}, nil
}

// ObjectKey places every export under its own id so concurrent exports with
// the same file name never collide.
func ObjectKey(id, fileName string) string {
	name := strings.Trim(strings.TrimSpace(fileName), "/")
	if name == "" {
		name = "export.csv"
	}
	return objectKeyPrefix + "/" + id + "/" + name
}
