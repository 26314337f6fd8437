// Package archive copies committed assets into an S3 compatible bucket.
package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"golang.org/x/sync/errgroup"

	"locker/internal/assets"
)

// DefaultConcurrency bounds parallel object uploads.
const DefaultConcurrency = 4

// Client is the subset of *minio.Client used here.
type Client interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

var _ Client = (*minio.Client)(nil)

// EnsureBucket checks if a bucket exists, and creates it if it does not.
func EnsureBucket(ctx context.Context, client Client, bucket string, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return fmt.Errorf("failed to create bucket %q: %w", bucket, err)
		}
		slog.Info("Created archive bucket", "bucket", bucket)
	}
	return nil
}

// Archiver uploads the committed assets of an entity. Object keys are the
// relative paths, so a bucket mirrors the storage layout.
type Archiver struct {
	Store       *assets.Store
	Client      Client
	Bucket      string
	Concurrency int
}

// Entity archives every asset owned by ref and returns how many objects
// were written. The first failure cancels the remaining uploads.
func (a *Archiver) Entity(ctx context.Context, ref assets.EntityRef) (int, error) {
	list, err := a.Store.List(ref)
	if err != nil {
		return 0, err
	}

	limit := a.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)

	for _, asset := range list {
		eg.Go(func() error {
			return a.put(ctx, asset)
		})
	}

	if err := eg.Wait(); err != nil {
		return 0, err
	}
	return len(list), nil
}

func (a *Archiver) put(ctx context.Context, asset assets.CommittedAsset) error {
	f, info, err := a.Store.Open(asset.RelativePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", asset.RelativePath, err)
	}
	defer f.Close()

	_, err = a.Client.PutObject(ctx, a.Bucket, asset.RelativePath, f, info.Size(), minio.PutObjectOptions{
		ContentType: assets.ContentTypeFor(info.Name()),
		UserMetadata: map[string]string{
			"original-name": asset.OriginalName,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %q to bucket %q: %w", asset.RelativePath, a.Bucket, err)
	}

	slog.Info("Archived asset", "object", asset.RelativePath, "bucket", a.Bucket, "size", info.Size())
	return nil
}
