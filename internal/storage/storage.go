package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrNotConfigured is wrapped by StorageError when credentials are missing or
// still hold template placeholders. It is detected before any network call.
var ErrNotConfigured = errors.New("storage is not configured")

// Gateway uploads media to a temporary remote location the recognition service
// can read, and removes it afterwards.
type Gateway interface {
	// Upload stores localPath and returns a signed GET URL and the object key.
	Upload(ctx context.Context, localPath string) (signedURL, key string, err error)
	// Delete removes key. Failures are logged, never returned.
	Delete(ctx context.Context, key string)
}

// StorageError wraps a failed storage operation.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

type Options struct {
	Provider        string
	AccessKeyID     string
	AccessKeySecret string
	Endpoint        string
	Bucket          string
	Region          string
	Prefix          string
	URLExpiry       time.Duration
	Log             *logrus.Entry
}

// New returns the gateway for opts.Provider. Credentials are not checked here
// so that runs which never upload do not need them.
func New(opts Options) (Gateway, error) {
	switch strings.ToLower(opts.Provider) {
	case "", "oss":
		return NewOSS(opts), nil
	case "s3":
		return NewS3(opts), nil
	default:
		return nil, fmt.Errorf("unknown storage provider %q", opts.Provider)
	}
}

func withDefaults(opts Options, provider string) Options {
	if opts.URLExpiry <= 0 {
		opts.URLExpiry = time.Hour
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	opts.Log = opts.Log.WithField("module", "storage").WithField("provider", provider)
	return opts
}

// CheckCredentials rejects empty or placeholder credentials.
func CheckCredentials(opts Options) error {
	switch {
	case opts.AccessKeyID == "" || opts.AccessKeySecret == "":
		return fmt.Errorf("%w: access key id and secret are required", ErrNotConfigured)
	case strings.Contains(opts.AccessKeyID, "*****"):
		return fmt.Errorf("%w: access key id is a placeholder", ErrNotConfigured)
	case opts.Bucket == "" || strings.Contains(opts.Bucket, "your-bucket-name"):
		return fmt.Errorf("%w: bucket name is missing or a placeholder", ErrNotConfigured)
	}
	return nil
}

// ObjectKey namespaces a local file under prefix with a timestamp and a short
// random token, so repeated runs of the same file name never share a key.
func ObjectKey(prefix string, now time.Time, localPath string) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	name := fmt.Sprintf("%s_%s_%s", now.Format("20060102_150405"), token, filepath.Base(localPath))
	if prefix == "" {
		return name
	}
	return path.Join(strings.Trim(prefix, "/"), name)
}
