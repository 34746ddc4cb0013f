package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNotConfigured is returned by NoopUploader.
var ErrNotConfigured = errors.New("s3: attachment storage is not configured")

// Uploader stores chat attachments and returns their public URL.
type Uploader interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (publicURL string, err error)
}

// Client stores attachments in one bucket under chat/<room>/ and serves them
// from PublicBaseURL.
type Client struct {
	bucket  string
	baseURL string
	minio   *minio.Client
	logger  *slog.Logger

	initOnce sync.Once
	initErr  error
}

type Options struct {
	Endpoint      string
	UseSSL        bool
	AccessKey     string
	SecretKey     string
	Bucket        string
	PublicBaseURL string
}

func NewClient(opts Options, logger *slog.Logger) (*Client, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	bucket := strings.TrimSpace(opts.Bucket)
	switch {
	case endpoint == "":
		return nil, errors.New("s3: endpoint is required")
	case bucket == "":
		return nil, errors.New("s3: bucket is required")
	}
	mc, err := minio.New(hostOf(endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(opts.AccessKey), strings.TrimSpace(opts.SecretKey), ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	base := strings.TrimSpace(opts.PublicBaseURL)
	if base == "" {
		base = endpoint
	}
	return &Client{
		bucket:  bucket,
		baseURL: strings.TrimRight(base, "/"),
		minio:   mc,
		logger:  logger,
	}, nil
}

// Upload stores one attachment. size may be unknown (<= 0).
func (c *Client) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	if reader == nil {
		return "", errors.New("s3: reader is required")
	}
	key = strings.Trim(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("s3: object key is required")
	}
	if err := c.ensureBucket(ctx); err != nil {
		return "", err
	}
	if size <= 0 {
		size = -1
	}
	info, err := c.minio.PutObject(ctx, c.bucket, key, reader, size, putOptions(key, contentType))
	if err != nil {
		return "", fmt.Errorf("s3: put %s: %w", key, err)
	}
	c.logger.Info("attachment stored", "key", key, "bytes", info.Size)
	return c.objectURL(key), nil
}

func putOptions(key, contentType string) minio.PutObjectOptions {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	opts := minio.PutObjectOptions{ContentType: contentType, CacheControl: "private, max-age=86400"}
	if parts := strings.Split(key, "/"); len(parts) == 3 && parts[0] == "chat" {
		opts.UserMetadata = map[string]string{"room-id": parts[1]}
	}
	return opts
}

// Ping reports whether the bucket is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.minio.BucketExists(ctx, c.bucket); err != nil {
		return fmt.Errorf("s3: check bucket: %w", err)
	}
	return nil
}

// NoopUploader fails fast when S3 is unavailable.
type NoopUploader struct{}

func (NoopUploader) Upload(context.Context, string, io.Reader, int64, string) (string, error) {
	return "", ErrNotConfigured
}

// AttachmentKey builds the object key under the room prefix, keeping the
// file extension. With a correlation id the key is derived from
// (room, sender, correlation) so a retried upload lands on the same object;
// without one every call gets a fresh key.
func AttachmentKey(roomID, senderID, correlationID, filename string) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(filename, "\\", "/"))))
	if len(ext) > 10 {
		ext = ""
	}
	name := uuid.NewString()
	if correlationID != "" {
		name = uuid.NewSHA1(attachmentSpace, []byte(roomID+"/"+senderID+"/"+correlationID)).String()
	}
	return path.Join("chat", roomID, name+ext)
}

var attachmentSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("petchat:attachments"))

func (c *Client) ensureBucket(ctx context.Context) error {
	c.initOnce.Do(func() {
		exists, err := c.minio.BucketExists(ctx, c.bucket)
		if err != nil {
			c.initErr = fmt.Errorf("s3: check bucket: %w", err)
			return
		}
		if exists {
			return
		}
		if err := c.minio.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			c.initErr = fmt.Errorf("s3: create bucket: %w", err)
			return
		}
		policy := fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/chat/*"]}]}`, c.bucket)
		if err := c.minio.SetBucketPolicy(ctx, c.bucket, policy); err != nil {
			c.initErr = fmt.Errorf("s3: set bucket policy: %w", err)
		}
	})
	return c.initErr
}

func (c *Client) objectURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, c.bucket, strings.TrimLeft(key, "/"))
}

func hostOf(endpoint string) string {
	if parsed, err := url.Parse(endpoint); err == nil && parsed.Host != "" {
		return parsed.Host
	}
	return endpoint
}

var (
	_ Uploader = (*Client)(nil)
	_ Uploader = NoopUploader{}
)
