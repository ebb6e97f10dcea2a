package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/facturaIA/textscan-service/internal/imaging"
)

// recentFrames bounds the cycle-to-object index kept for presigning.
const recentFrames = 100

// Config holds MinIO connection settings.
type Config struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	Bucket       string
	UseSSL       bool
	Prefix       string
	CreateBucket bool
	URLExpiry    time.Duration
}

// FrameArchive uploads captured frames as PNG objects.
type FrameArchive struct {
	client *minio.Client
	bucket string
	prefix string
	expiry time.Duration
	now    func() time.Time

	mu      sync.Mutex
	objects map[string]string
	order   []string
}

// New connects to MinIO and verifies (or creates) the bucket.
func New(ctx context.Context, cfg Config) (*FrameArchive, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("MinIO endpoint not configured")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "scan-frames"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "frames"
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = 24 * time.Hour
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	// Verify bucket exists
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if !cfg.CreateBucket {
			return nil, fmt.Errorf("bucket %s does not exist", cfg.Bucket)
		}
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &FrameArchive{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		expiry:  cfg.URLExpiry,
		now:     time.Now,
		objects: make(map[string]string),
	}, nil
}

// ObjectName builds the key for a cycle's frame.
// Path format: {prefix}/YYYY/MM/{cycleID}.png
func ObjectName(prefix, cycleID string, t time.Time) string {
	return fmt.Sprintf("%s/%d/%02d/%s.png", prefix, t.Year(), t.Month(), cycleID)
}

// Archive encodes buf losslessly and uploads it under the cycle ID.
func (a *FrameArchive) Archive(ctx context.Context, cycleID string, buf *imaging.PixelBuffer) error {
	data, err := imaging.EncodePNG(buf)
	if err != nil {
		return err
	}
	objectName := ObjectName(a.prefix, cycleID, a.now())
	_, err = a.client.PutObject(ctx, a.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "image/png",
		UserMetadata: map[string]string{
			"cycle-id": cycleID,
			"width":    fmt.Sprint(buf.Width),
			"height":   fmt.Sprint(buf.Height),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload frame: %w", err)
	}
	a.remember(cycleID, objectName)
	return nil
}

func (a *FrameArchive) remember(cycleID, objectName string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.objects[cycleID]; !ok {
		a.order = append(a.order, cycleID)
	}
	a.objects[cycleID] = objectName
	for len(a.order) > recentFrames {
		delete(a.objects, a.order[0])
		a.order = a.order[1:]
	}
}

// PresignedURL returns a temporary GET URL for a recently archived cycle.
func (a *FrameArchive) PresignedURL(ctx context.Context, cycleID string) (string, error) {
	a.mu.Lock()
	objectName, ok := a.objects[cycleID]
	a.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("no archived frame for cycle %s", cycleID)
	}

	url, err := a.client.PresignedGetObject(ctx, a.bucket, objectName, a.expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return url.String(), nil
}

// Check verifies the bucket is reachable, for health reporting.
func (a *FrameArchive) Check(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", a.bucket)
	}
	return nil
}

// Bucket returns the configured bucket name.
func (a *FrameArchive) Bucket() string { return a.bucket }
