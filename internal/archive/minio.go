package archive

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DraftArchive stores local drafts that were discarded during conflict
// resolution, so users can recover work a remote save overrode. Only the
// rejected draft snapshot is kept; live document bodies never land here.
type DraftArchive struct {
	client *minio.Client
	bucket string
}

// NewDraftArchive creates the archive client and ensures the bucket exists.
func NewDraftArchive(cfg *Config) (*DraftArchive, error) {
	if cfg == nil || !cfg.Enabled() {
		return nil, fmt.Errorf("archive endpoint not configured")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	a := &DraftArchive{client: mc, bucket: cfg.Bucket}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		// ignore "already exists" style errors
		exist, xerr := mc.BucketExists(ctx, a.bucket)
		if xerr != nil || !exist {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return a, nil
}

// SaveDraft uploads the discarded draft body and returns its object key.
func (a *DraftArchive) SaveDraft(ctx context.Context, documentID, userID, body string) (string, error) {
	key := fmt.Sprintf("drafts/%s/%s/%d.md", documentID, userID, time.Now().UnixNano())
	r := strings.NewReader(body)
	_, err := a.client.PutObject(ctx, a.bucket, key, r, int64(len(body)), minio.PutObjectOptions{ContentType: "text/markdown"})
	if err != nil {
		return "", fmt.Errorf("archive draft: %w", err)
	}
	return key, nil
}

// LoadDraft returns a ReadCloser for an archived draft.
func (a *DraftArchive) LoadDraft(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, err
	}
	return obj, nil
}

// PresignedURL returns a presigned GET URL for an archived draft.
func (a *DraftArchive) PresignedURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	presigned, err := a.client.PresignedGetObject(ctx, a.bucket, key, expires, url.Values{})
	if err != nil {
		return "", err
	}
	return presigned.String(), nil
}
