package storage

import (
	"context"
	"mime"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/sirupsen/logrus"
)

// S3 is a Gateway backed by any S3-compatible store. A custom endpoint
// switches to path-style addressing.
type S3 struct {
	opts Options
	log  *logrus.Entry
	now  func() time.Time

	mu  sync.Mutex
	svc *s3.S3
}

func NewS3(opts Options) *S3 {
	opts = withDefaults(opts, "s3")
	return &S3{opts: opts, log: opts.Log, now: time.Now}
}

func (g *S3) client() (*s3.S3, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.svc != nil {
		return g.svc, nil
	}
	cfg := &aws.Config{
		Region:      aws.String(g.opts.Region),
		Credentials: credentials.NewStaticCredentials(g.opts.AccessKeyID, g.opts.AccessKeySecret, ""),
	}
	if g.opts.Endpoint != "" {
		cfg.Endpoint = aws.String(g.opts.Endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, err
	}
	g.svc = s3.New(sess)
	return g.svc, nil
}

func (g *S3) Upload(ctx context.Context, localPath string) (string, string, error) {
	if err := CheckCredentials(g.opts); err != nil {
		return "", "", &StorageError{Op: "upload", Err: err}
	}
	f, err := os.Open(localPath)
	if err != nil {
		return "", "", &StorageError{Op: "upload", Err: err}
	}
	defer f.Close()
	svc, err := g.client()
	if err != nil {
		return "", "", &StorageError{Op: "connect", Err: err}
	}

	key := ObjectKey(g.opts.Prefix, g.now(), localPath)
	contentType := mime.TypeByExtension(filepath.Ext(localPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	g.log.WithField("key", key).Info("uploading to s3")
	_, err = svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(g.opts.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", "", &StorageError{Op: "upload", Key: key, Err: err}
	}

	req, _ := svc.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(g.opts.Bucket),
		Key:    aws.String(key),
	})
	signed, err := req.Presign(g.opts.URLExpiry)
	if err != nil {
		g.Delete(ctx, key)
		return "", "", &StorageError{Op: "sign", Key: key, Err: err}
	}
	return signed, key, nil
}

func (g *S3) Delete(ctx context.Context, key string) {
	if key == "" {
		return
	}
	svc, err := g.client()
	if err != nil {
		g.log.WithField("key", key).WithField("error", err.Error()).Error("failed to delete s3 object")
		return
	}
	g.log.WithField("key", key).Info("cleaning up s3 object")
	_, err = svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(g.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		g.log.WithField("key", key).WithField("error", err.Error()).Error("failed to delete s3 object, remove it manually")
	}
}
