package storage

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/sirupsen/logrus"
)

// OSS is a Gateway backed by Aliyun Object Storage Service.
type OSS struct {
	opts Options
	log  *logrus.Entry
	now  func() time.Time

	mu     sync.Mutex
	bucket *oss.Bucket
}

func NewOSS(opts Options) *OSS {
	opts = withDefaults(opts, "oss")
	return &OSS{opts: opts, log: opts.Log, now: time.Now}
}

func (g *OSS) open() (*oss.Bucket, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.bucket != nil {
		return g.bucket, nil
	}
	client, err := oss.New(g.opts.Endpoint, g.opts.AccessKeyID, g.opts.AccessKeySecret)
	if err != nil {
		return nil, err
	}
	bucket, err := client.Bucket(g.opts.Bucket)
	if err != nil {
		return nil, err
	}
	g.bucket = bucket
	return bucket, nil
}

func (g *OSS) Upload(ctx context.Context, localPath string) (string, string, error) {
	if err := CheckCredentials(g.opts); err != nil {
		return "", "", &StorageError{Op: "upload", Err: err}
	}
	if _, err := os.Stat(localPath); err != nil {
		return "", "", &StorageError{Op: "upload", Err: err}
	}
	bucket, err := g.open()
	if err != nil {
		return "", "", &StorageError{Op: "connect", Err: err}
	}

	key := ObjectKey(g.opts.Prefix, g.now(), localPath)
	log := g.log.WithField("key", key)
	log.Info("uploading to oss")
	err = bucket.PutObjectFromFile(key, localPath,
		oss.Progress(&progressLogger{log: log}),
		oss.WithContext(ctx),
	)
	if err != nil {
		return "", "", &StorageError{Op: "upload", Key: key, Err: err}
	}

	signed, err := bucket.SignURL(key, oss.HTTPGet, int64(g.opts.URLExpiry/time.Second))
	if err != nil {
		// The object exists; remove it since the caller never learns the key.
		g.Delete(ctx, key)
		return "", "", &StorageError{Op: "sign", Key: key, Err: err}
	}
	return signed, key, nil
}

func (g *OSS) Delete(ctx context.Context, key string) {
	if key == "" {
		return
	}
	bucket, err := g.open()
	if err != nil {
		g.log.WithField("key", key).WithField("error", err.Error()).Error("failed to delete oss object")
		return
	}
	g.log.WithField("key", key).Info("cleaning up oss object")
	if err := bucket.DeleteObject(key, oss.WithContext(ctx)); err != nil {
		g.log.WithField("key", key).WithField("error", err.Error()).Error("failed to delete oss object, remove it manually")
	}
}

// progressLogger reports upload progress in 25% steps.
type progressLogger struct {
	log  *logrus.Entry
	next int64
}

func (p *progressLogger) ProgressChanged(event *oss.ProgressEvent) {
	switch event.EventType {
	case oss.TransferDataEvent:
		if event.TotalBytes <= 0 {
			return
		}
		rate := event.ConsumedBytes * 100 / event.TotalBytes
		if rate >= p.next {
			p.log.WithField("progress", rate).Debug("upload progress")
			p.next = rate - rate%25 + 25
		}
	case oss.TransferCompletedEvent:
		p.log.WithField("bytes", event.ConsumedBytes).Info("upload complete")
	case oss.TransferFailedEvent:
		p.log.WithField("bytes", event.ConsumedBytes).Warn("upload interrupted")
	}
}
