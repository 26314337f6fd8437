package archive_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/require"

	"locker/internal/archive"
	"locker/internal/assets"
)

type object struct {
	data        []byte
	contentType string
	meta        map[string]string
}

type fakeClient struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string]object
	failOn  string
}

func newFakeClient() *fakeClient {
	return &fakeClient{buckets: map[string]bool{}, objects: map[string]object{}}
}

func (c *fakeClient) BucketExists(_ context.Context, bucket string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buckets[bucket], nil
}

func (c *fakeClient) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buckets[bucket] = true
	return nil
}

func (c *fakeClient) PutObject(_ context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if key == c.failOn {
		return minio.UploadInfo{}, errors.New("boom")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if int64(len(data)) != size {
		return minio.UploadInfo{}, errors.New("short read")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[bucket+"/"+key] = object{data: data, contentType: opts.ContentType, meta: opts.UserMetadata}
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: size}, nil
}

func commit(t *testing.T, store *assets.Store, c assets.Category, name, mime string, data []byte, ref assets.EntityRef) *assets.CommittedAsset {
	t.Helper()
	staged, err := store.Stage(context.Background(), assets.Upload{
		Category:     c,
		OriginalName: name,
		MimeType:     mime,
		Size:         int64(len(data)),
		Body:         bytes.NewReader(data),
	})
	require.NoError(t, err)
	committed, err := store.Commit(staged, ref)
	require.NoError(t, err)
	return committed
}

func TestEnsureBucket(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	require.NoError(t, archive.EnsureBucket(context.Background(), client, "locker-archive", "us-east-1"))
	require.True(t, client.buckets["locker-archive"])

	// Existing bucket is left alone.
	require.NoError(t, archive.EnsureBucket(context.Background(), client, "locker-archive", "us-east-1"))
}

func TestArchiveEntity(t *testing.T) {
	t.Parallel()

	store, err := assets.New(t.TempDir(), "/uploads")
	require.NoError(t, err)

	team := assets.EntityRef{Kind: assets.EntityTeam, ID: "42"}
	logo := commit(t, store, assets.CategoryLogo, "crest.png", "image/png", []byte("png-bytes"), team)
	doc := commit(t, store, assets.CategoryDocument, "Rules.pdf", "application/pdf", []byte("%PDF-1.4"), team)
	commit(t, store, assets.CategoryLogo, "other.png", "image/png", []byte("other"), assets.EntityRef{Kind: assets.EntityTeam, ID: "7"})

	client := newFakeClient()
	a := &archive.Archiver{Store: store, Client: client, Bucket: "locker-archive", Concurrency: 2}

	n, err := a.Entity(context.Background(), team)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Len(t, client.objects, 2)

	got := client.objects["locker-archive/"+logo.RelativePath]
	require.Equal(t, []byte("png-bytes"), got.data)
	require.Equal(t, "image/png", got.contentType)
	require.Equal(t, "crest.png", got.meta["original-name"])

	got = client.objects["locker-archive/"+doc.RelativePath]
	require.Equal(t, "application/pdf", got.contentType)
}

func TestArchiveEntityWithoutAssets(t *testing.T) {
	t.Parallel()

	store, err := assets.New(t.TempDir(), "/uploads")
	require.NoError(t, err)

	a := &archive.Archiver{Store: store, Client: newFakeClient(), Bucket: "b"}
	n, err := a.Entity(context.Background(), assets.EntityRef{Kind: assets.EntityPlayer, ID: "nobody"})
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestArchiveEntityFailure(t *testing.T) {
	t.Parallel()

	store, err := assets.New(t.TempDir(), "/uploads")
	require.NoError(t, err)

	ref := assets.EntityRef{Kind: assets.EntityPlayer, ID: "9"}
	photo := commit(t, store, assets.CategoryPhoto, "me.jpg", "image/jpeg", []byte("jpeg"), ref)

	client := newFakeClient()
	client.failOn = photo.RelativePath

	a := &archive.Archiver{Store: store, Client: client, Bucket: "b"}
	_, err = a.Entity(context.Background(), ref)
	require.ErrorContains(t, err, photo.RelativePath)
}

func TestArchiveEntityRejectsBadRef(t *testing.T) {
	t.Parallel()

	store, err := assets.New(t.TempDir(), "/uploads")
	require.NoError(t, err)

	a := &archive.Archiver{Store: store, Client: newFakeClient(), Bucket: "b"}
	_, err = a.Entity(context.Background(), assets.EntityRef{Kind: "stadium", ID: "1"})
	require.ErrorIs(t, err, assets.ErrValidation)
}
