package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	videoPageBase = "https://www.bilibili.com/video/"
	userAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

// AcquisitionError means the media could not be fetched or extracted.
type AcquisitionError struct {
	Source string
	Stderr string
	Err    error
}

func (e *AcquisitionError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("download %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("download %s: %v: %s", e.Source, e.Err, e.Stderr)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

type execRunner struct{}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

type Options struct {
	DownloadDir string
	YtDlpPath   string
	FFmpegPath  string
	Log         *logrus.Entry
}

// Downloader fetches the audio track of a video page with yt-dlp and converts it to mp3.
type Downloader struct {
	dir      string
	ytdlp    string
	ffmpeg   string
	runner   commandRunner
	mkdirAll func(path string, perm os.FileMode) error
	stat     func(name string) (os.FileInfo, error)
	log      *logrus.Entry
}

func New(opts Options) *Downloader {
	d := &Downloader{
		dir:      opts.DownloadDir,
		ytdlp:    opts.YtDlpPath,
		ffmpeg:   opts.FFmpegPath,
		runner:   &execRunner{},
		mkdirAll: os.MkdirAll,
		stat:     os.Stat,
		log:      opts.Log,
	}
	if d.dir == "" {
		d.dir = "downloads"
	}
	if d.ytdlp == "" {
		d.ytdlp = "yt-dlp"
	}
	if d.log == nil {
		d.log = logrus.NewEntry(logrus.StandardLogger())
	}
	d.log = d.log.WithField("module", "downloader")
	return d
}

// NormalizeURL turns a bare video identifier into its page URL.
func NormalizeURL(source string) string {
	source = strings.TrimSpace(source)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return source
	}
	return videoPageBase + source
}

// Acquire downloads source (URL or identifier) and returns the local mp3 path.
func (d *Downloader) Acquire(ctx context.Context, source string) (string, error) {
	target := NormalizeURL(source)
	log := d.log.WithField("target", target)
	log.Info("downloading media")

	if err := d.mkdirAll(d.dir, 0o755); err != nil {
		return "", &AcquisitionError{Source: target, Err: fmt.Errorf("create download dir: %w", err)}
	}

	args := []string{
		"-f", "bestaudio/best",
		"-x", "--audio-format", "mp3", "--audio-quality", "192K",
		"-o", filepath.Join(d.dir, "%(title)s.%(ext)s"),
		"--print", "after_move:filepath",
		"--no-progress", "--no-playlist",
		"--user-agent", userAgent,
	}
	if d.ffmpeg != "" {
		args = append(args, "--ffmpeg-location", d.ffmpeg)
	}
	args = append(args, target)

	res, err := d.runner.Run(ctx, d.ytdlp, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		log.WithField("exit_code", res.ExitCode).WithField("error", err.Error()).Error("download failed")
		return "", &AcquisitionError{Source: target, Stderr: tail(res.Stderr, 500), Err: err}
	}

	path := lastLine(res.Stdout)
	if path == "" {
		return "", &AcquisitionError{Source: target, Stderr: tail(res.Stderr, 500), Err: errors.New("yt-dlp did not report an output file")}
	}
	if _, err := d.stat(path); err != nil {
		return "", &AcquisitionError{Source: target, Err: fmt.Errorf("downloaded file missing: %w", err)}
	}
	log.WithField("file", path).Info("download complete")
	return path, nil
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
