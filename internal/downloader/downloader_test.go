package downloader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"media-digest-go/internal/logger"
)

// fakeRunner simulates yt-dlp.
type fakeRunner struct {
	run func(ctx context.Context, name string, args ...string) (commandResult, error)
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	return f.run(ctx, name, args...)
}

func newTestDownloader(t *testing.T, dir string, runner commandRunner) *Downloader {
	t.Helper()
	d := New(Options{DownloadDir: dir, YtDlpPath: "yt-dlp-custom", FFmpegPath: "/opt/ffmpeg", Log: logger.Discard()})
	d.runner = runner
	return d
}

func TestNormalizeURL(t *testing.T) {
	cases := map[string]string{
		"BV1xx411c7mD":                      "https://www.bilibili.com/video/BV1xx411c7mD",
		" bv1xx411c7mD ":                    "https://www.bilibili.com/video/bv1xx411c7mD",
		"https://www.youtube.com/watch?v=x": "https://www.youtube.com/watch?v=x",
	}
	for in, want := range cases {
		if got := NormalizeURL(in); got != want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestAcquireReturnsReportedFile checks argument wiring and output parsing.
func TestAcquireReturnsReportedFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "downloads")
	var gotName string
	var gotArgs []string
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		gotName, gotArgs = name, append([]string{}, args...)
		out := filepath.Join(dir, "Some Talk.mp3")
		if err := os.WriteFile(out, []byte("mp3"), 0o644); err != nil {
			t.Fatal(err)
		}
		return commandResult{Stdout: "[info] noise\n" + out + "\n\n"}, nil
	}}

	path, err := newTestDownloader(t, dir, runner).Acquire(context.Background(), "BV1xx411c7mD")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if path != filepath.Join(dir, "Some Talk.mp3") {
		t.Fatalf("path = %q", path)
	}
	if gotName != "yt-dlp-custom" {
		t.Fatalf("command = %q", gotName)
	}
	joined := strings.Join(gotArgs, " ")
	for _, want := range []string{"--audio-format mp3", "--ffmpeg-location /opt/ffmpeg", "after_move:filepath"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
	if gotArgs[len(gotArgs)-1] != "https://www.bilibili.com/video/BV1xx411c7mD" {
		t.Fatalf("target = %q", gotArgs[len(gotArgs)-1])
	}
}

// TestAcquireFailure wraps process errors with stderr context.
func TestAcquireFailure(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		return commandResult{Stderr: "ERROR: Video unavailable", ExitCode: 1}, errors.New("exit status 1")
	}}

	_, err := newTestDownloader(t, t.TempDir(), runner).Acquire(context.Background(), "BVmissing")
	var acqErr *AcquisitionError
	if !errors.As(err, &acqErr) {
		t.Fatalf("err = %v, want *AcquisitionError", err)
	}
	if !strings.Contains(acqErr.Error(), "Video unavailable") {
		t.Fatalf("error = %q, want stderr tail", acqErr.Error())
	}
}

// TestAcquireMissingOutput rejects a run that printed no file.
func TestAcquireMissingOutput(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		return commandResult{Stdout: "\n"}, nil
	}}
	_, err := newTestDownloader(t, t.TempDir(), runner).Acquire(context.Background(), "https://example.com/v/1")
	var acqErr *AcquisitionError
	if !errors.As(err, &acqErr) {
		t.Fatalf("err = %v, want *AcquisitionError", err)
	}
}
