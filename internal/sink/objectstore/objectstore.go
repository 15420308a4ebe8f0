// Package objectstore archives finalized sessions as JSON objects in an
// S3-compatible bucket.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/waabox/pakdeck/internal/domain"
)

// Config holds the bucket location and credentials.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	Prefix    string
}

// Validate checks that the required settings are present.
func (c Config) Validate() error {
	switch {
	case c.Endpoint == "":
		return errors.New("objectstore endpoint is required")
	case c.Bucket == "":
		return errors.New("objectstore bucket is required")
	case c.AccessKey == "" || c.SecretKey == "":
		return errors.New("objectstore access and secret keys are required")
	}
	return nil
}

// NewMinIOClient creates a client for cfg.
func NewMinIOClient(cfg Config) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
}

// EnsureBucket creates the bucket when it does not exist.
func EnsureBucket(ctx context.Context, client *minio.Client, cfg Config) error {
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return fmt.Errorf("bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
		return fmt.Errorf("make bucket: %w", err)
	}
	return nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

// Uploader is the part of *minio.Client the sink needs.
type Uploader interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Sink uploads each finalized session to <prefix>sessions/<package>/<id>.json.
type Sink struct {
	client  Uploader
	bucket  string
	prefix  string
	timeout time.Duration
}

// NewSink creates an archiving sink.
func NewSink(client Uploader, bucket, prefix string) *Sink {
	return &Sink{client: client, bucket: bucket, prefix: prefix, timeout: 30 * time.Second}
}

// Name implements sink.Sink.
func (s *Sink) Name() string { return "objectstore" }

// ObjectName returns the key a session is archived under.
func (s *Sink) ObjectName(sess domain.Session) string {
	return s.prefix + path.Join("sessions", url.PathEscape(sess.Package), sess.ID+".json")
}

// Emit implements sink.Sink. Only session.finalized events are archived.
func (s *Sink) Emit(ctx context.Context, e domain.Event) error {
	if e.Type != domain.EventSessionFinalized || e.Session == nil {
		return nil
	}
	data, err := json.MarshalIndent(e.Session, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err = s.client.PutObject(ctx, s.bucket, s.ObjectName(*e.Session), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"package": e.Session.Package,
			"version": e.Session.Version,
			"status":  string(e.Session.Status),
		},
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", s.ObjectName(*e.Session), err)
	}
	return nil
}
