package s3

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStorageClient uploads screenshots and hands back a URL they can be fetched from.
type ObjectStorageClient interface {
	Connect(endpoint, accessKeyID, secretAccessKey string, useSSL bool) error
	UploadObject(ctx context.Context, bucketName, objectName string, content io.Reader, size int64, contentType string) (UploadInfo, error)
}

// UploadInfo describes a stored object.
type UploadInfo struct {
	URL        string
	ObjectName string
	Size       int64
}

// Options tunes how buckets are created and how URLs are produced.
type Options struct {
	Region        string        // Region used when the bucket has to be created
	URLExpiry     time.Duration // Lifetime of presigned GET URLs
	PublicBaseURL string        // When set, URLs are built as PublicBaseURL/bucket/object instead of presigned
}

// ObjectStorage holds the minio client instance.
type ObjectStorage struct {
	Conn *minio.Client

	opts    Options
	mu      sync.Mutex
	buckets map[string]bool
}

// NewObjectStorage initialization
func NewObjectStorage(opts Options) *ObjectStorage {
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	if opts.URLExpiry <= 0 {
		opts.URLExpiry = time.Hour * 24 * 7
	}
	return &ObjectStorage{
		opts:    opts,
		buckets: make(map[string]bool),
	}
}

// Connect establishes the object storage connection using client
func (o *ObjectStorage) Connect(endpoint, accessKeyID, secretAccessKey string, useSSL bool) error {
	var err error
	o.Conn, err = minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Check connection by listing buckets
	if _, err = o.Conn.ListBuckets(ctx); err != nil {
		return fmt.Errorf("failed to establish minio connection: %w", err)
	}

	return nil
}

// UploadObject stores content under objectName and returns a URL for it.
func (o *ObjectStorage) UploadObject(ctx context.Context, bucketName, objectName string, content io.Reader, size int64, contentType string) (UploadInfo, error) {
	if o.Conn == nil {
		return UploadInfo{}, fmt.Errorf("object storage is not connected")
	}

	if err := o.ensureBucket(ctx, bucketName); err != nil {
		return UploadInfo{}, err
	}

	info, err := o.Conn.PutObject(ctx, bucketName, objectName, content, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return UploadInfo{}, fmt.Errorf("failed to put object %s: %w", objectName, err)
	}

	objectURL, err := o.objectURL(ctx, bucketName, objectName)
	if err != nil {
		return UploadInfo{}, err
	}

	return UploadInfo{URL: objectURL, ObjectName: objectName, Size: info.Size}, nil
}

func (o *ObjectStorage) ensureBucket(ctx context.Context, bucketName string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.buckets[bucketName] {
		return nil
	}

	err := o.Conn.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{Region: o.opts.Region})
	if err != nil {
		exists, errBucketExists := o.Conn.BucketExists(ctx, bucketName)
		if !(errBucketExists == nil && exists) {
			return fmt.Errorf("failed to create bucket %s: %w", bucketName, err)
		}
	}

	o.buckets[bucketName] = true
	return nil
}

func (o *ObjectStorage) objectURL(ctx context.Context, bucketName, objectName string) (string, error) {
	if o.opts.PublicBaseURL != "" {
		return PublicObjectURL(o.opts.PublicBaseURL, bucketName, objectName), nil
	}

	presignedURL, err := o.Conn.PresignedGetObject(ctx, bucketName, objectName, o.opts.URLExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", objectName, err)
	}
	return presignedURL.String(), nil
}

// PublicObjectURL joins a public base URL, bucket and object name, escaping each path segment.
func PublicObjectURL(baseURL, bucketName, objectName string) string {
	segments := strings.Split(objectName, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(baseURL, "/") + "/" + url.PathEscape(bucketName) + "/" + strings.Join(segments, "/")
}
