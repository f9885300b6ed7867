package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/mind-engage/mindengage-itembank/internal/logger"
)

type GCSConfig struct {
	Bucket          string
	CDNDomain       string // serves objects instead of storage.googleapis.com when set
	EmulatorHost    string // e.g. http://localhost:4443
	CredentialsFile string
}

// GCSStore keeps objects in one bucket. Object visibility follows the
// bucket's IAM policy.
type GCSStore struct {
	client    *storage.Client
	bucket    string
	cdnDomain string
	baseURL   string // emulator only
	log       *logger.Logger
}

func NewGCSStore(ctx context.Context, cfg GCSConfig, log *logger.Logger) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs: bucket is required")
	}
	log = logger.OrNop(log).With("service", "GCSStore")

	var opts []option.ClientOption
	emulator := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
	switch {
	case emulator != "":
		_ = os.Setenv("STORAGE_EMULATOR_HOST", emulator)
		opts = append(opts, option.WithoutAuthentication())
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile), option.WithScopes(storage.ScopeReadWrite))
	default:
		log.Warn("no GCS credentials file configured, relying on application default credentials")
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs: create client: %w", err)
	}
	log.Info("object storage initialized", "bucket", cfg.Bucket, "cdn_domain", cfg.CDNDomain, "emulator_host", emulator)
	return &GCSStore{
		client:    client,
		bucket:    cfg.Bucket,
		cdnDomain: strings.TrimRight(cfg.CDNDomain, "/"),
		baseURL:   emulator,
		log:       log,
	}, nil
}

func (s *GCSStore) Close() error { return s.client.Close() }

func (s *GCSStore) Upload(ctx context.Context, data []byte, key, mimeType string, _ bool) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(k).NewWriter(ctx)
	w.ContentType = mimeType
	if w.ContentType == "" {
		w.ContentType = contentTypeForKey(k)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write %s to GCS: %w", k, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close GCS writer for %s: %w", k, err)
	}
	return s.URL(k), nil
}

func (s *GCSStore) URL(key string) string {
	key = strings.TrimPrefix(key, "/")
	switch {
	case s.cdnDomain != "":
		return fmt.Sprintf("https://%s/%s", s.cdnDomain, key)
	case s.baseURL != "":
		return fmt.Sprintf("%s/%s/%s", s.baseURL, s.bucket, key)
	default:
		return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, key)
	}
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.client.Bucket(s.bucket).Object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("delete GCS object %q: %w", key, err)
	}
	return nil
}

func (s *GCSStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.Bucket(s.bucket).Object(key).Attrs(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrObjectNotExist):
		return false, nil
	default:
		return false, err
	}
}
