// Package archive mirrors committed dataset files to an S3 compatible object
// store, so a capture PC's disk is not the only copy of a session.
package archive

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds the object store connection
type Config struct {
	Endpoint  string `koanf:"endpoint" yaml:"endpoint"`
	AccessKey string `koanf:"access_key" yaml:"access_key"`
	SecretKey string `koanf:"secret_key" yaml:"secret_key"`
	UseSSL    bool   `koanf:"use_ssl" yaml:"use_ssl"`
	Bucket    string `koanf:"bucket" yaml:"bucket"`

	// Prefix is prepended to every object key, e.g. "lab-b/2024"
	Prefix string `koanf:"prefix" yaml:"prefix"`
}

// Enabled is true when an endpoint and a bucket are configured
func (c Config) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// Archiver uploads files
type Archiver interface {
	Upload(ctx context.Context, session, file string) error
}

// Mirror is an Archiver on a minio client
type Mirror struct {
	client *miniogo.Client
	bucket string
	prefix string
}

// NewMirror connects to the store described by cfg
func NewMirror(cfg Config) (*Mirror, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Mirror{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

// EnsureBucket creates the bucket if it does not exist
func (m *Mirror) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.bucket, err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, m.bucket, miniogo.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", m.bucket, err)
		}
	}
	return nil
}

// Key is the object key for file within session
func (m *Mirror) Key(session, file string) string {
	return ObjectKey(m.prefix, session, file)
}

// ObjectKey joins prefix, session and the base name and parent folder of
// file, e.g. prefix/session/cubert/12_cubert.tif
func ObjectKey(prefix, session, file string) string {
	dir := filepath.Base(filepath.Dir(file))
	parts := []string{}
	if prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts, session)
	if dir != "." && dir != string(filepath.Separator) {
		parts = append(parts, dir)
	}
	parts = append(parts, filepath.Base(file))
	return path.Join(parts...)
}

// Upload implements Archiver
func (m *Mirror) Upload(ctx context.Context, session, file string) error {
	ct := "application/octet-stream"
	switch strings.ToLower(filepath.Ext(file)) {
	case ".tif", ".tiff":
		ct = "image/tiff"
	case ".fits", ".fit":
		ct = "image/fits"
	}
	_, err := m.client.FPutObject(ctx, m.bucket, m.Key(session, file), file, miniogo.PutObjectOptions{ContentType: ct})
	if err != nil {
		return fmt.Errorf("upload %s: %w", file, err)
	}
	return nil
}
