package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"media-digest-go/internal/logger"
	"media-digest-go/internal/types"
)

type fakeAcquirer struct {
	path  string
	err   error
	calls []string
}

func (f *fakeAcquirer) Acquire(ctx context.Context, source string) (string, error) {
	f.calls = append(f.calls, source)
	return f.path, f.err
}

type fakeGateway struct {
	mu        sync.Mutex
	uploadErr error
	uploads   []string
	deletes   []string
	// deleteErr is the context error observed during Delete.
	deleteErr error
}

func (f *fakeGateway) Upload(ctx context.Context, localPath string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, localPath)
	if f.uploadErr != nil {
		return "", "", f.uploadErr
	}
	return "https://bucket.example.com/tmp/key.mp3?sig=1", "tmp/key.mp3", nil
}

func (f *fakeGateway) Delete(ctx context.Context, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, key)
	f.deleteErr = ctx.Err()
}

func (f *fakeGateway) deleteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deletes)
}

type fakeTranscriber struct {
	submitErr error
	pollErr   error
	text      string
	block     bool
	submitted []string
}

func (f *fakeTranscriber) Submit(ctx context.Context, fileURL string) (string, error) {
	f.submitted = append(f.submitted, fileURL)
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "task-1", nil
}

func (f *fakeTranscriber) Poll(ctx context.Context, taskID string) (string, error) {
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.pollErr != nil {
		return "", f.pollErr
	}
	return f.text, nil
}

type fakeSummarizer struct {
	err     error
	presets []string
}

func (f *fakeSummarizer) Summarize(ctx context.Context, text, presetName, customPrompt string) (string, error) {
	f.presets = append(f.presets, presetName)
	if f.err != nil {
		return "", f.err
	}
	return "summary of " + text, nil
}

type harness struct {
	acq  *fakeAcquirer
	gw   *fakeGateway
	tr   *fakeTranscriber
	sum  *fakeSummarizer
	out  string
	pipe *Pipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	media := filepath.Join(dir, "talk.mp3")
	if err := os.WriteFile(media, []byte("mp3"), 0o644); err != nil {
		t.Fatal(err)
	}
	h := &harness{
		acq: &fakeAcquirer{path: media},
		gw:  &fakeGateway{},
		tr:  &fakeTranscriber{text: "[00:00:00] hello\n"},
		sum: &fakeSummarizer{},
		out: filepath.Join(dir, "output"),
	}
	h.pipe = New(h.acq, h.gw, h.tr, h.sum, Options{OutputDir: h.out, Log: logger.Discard()})
	return h
}

// TestRunSuccessDeletesOnce walks the happy path for a platform identifier.
func TestRunSuccessDeletesOnce(t *testing.T) {
	h := newHarness(t)
	var stages []types.Stage
	res, err := h.pipe.Run(context.Background(), Request{
		Source:     "BV1xx411c7mD",
		PresetName: "bilibili_summary",
		OnStage:    func(s types.Stage) { stages = append(stages, s) },
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []types.Stage{
		types.StageResolving, types.StageAcquiring, types.StageUploading, types.StageTranscribing,
		types.StagePersistingTranscript, types.StageSummarizing, types.StagePersistingSummary, types.StageDone,
	}
	if !reflect.DeepEqual(stages, want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
	if got := h.gw.deleteCount(); got != 1 {
		t.Fatalf("deletes = %d, want 1", got)
	}
	if h.tr.submitted[0] != "https://bucket.example.com/tmp/key.mp3?sig=1" {
		t.Fatalf("submitted %q, want signed url", h.tr.submitted[0])
	}
	if res.Files.Transcript != filepath.Join(h.out, "talk.txt") || res.Files.Summary != filepath.Join(h.out, "talk_summary.txt") {
		t.Fatalf("files = %+v", res.Files)
	}
	data, err := os.ReadFile(res.Files.Summary)
	if err != nil || string(data) != "summary of [00:00:00] hello\n" {
		t.Fatalf("summary file = %q, %v", data, err)
	}
	if h.sum.presets[0] != "bilibili_summary" {
		t.Fatalf("preset = %q", h.sum.presets[0])
	}
}

// TestRunFailureDeletesOnce fails each stage after upload and checks cleanup
// and that no partial result escapes.
func TestRunFailureDeletesOnce(t *testing.T) {
	boom := errors.New("boom")
	cases := []struct {
		name  string
		setup func(h *harness)
		stage types.Stage
	}{
		{"submit", func(h *harness) { h.tr.submitErr = boom }, types.StageTranscribing},
		{"poll", func(h *harness) { h.tr.pollErr = boom }, types.StageTranscribing},
		{"summarize", func(h *harness) { h.sum.err = boom }, types.StageSummarizing},
		{"persist", func(h *harness) {
			// a regular file where the output directory should be
			if err := os.WriteFile(h.out, []byte("x"), 0o644); err != nil {
				t.Fatal(err)
			}
		}, types.StagePersistingTranscript},
		{"persist summary", func(h *harness) {
			// a directory where the summary file should be
			if err := os.MkdirAll(filepath.Join(h.out, "talk_summary.txt"), 0o755); err != nil {
				t.Fatal(err)
			}
		}, types.StagePersistingSummary},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			tc.setup(h)
			var last types.Stage
			res, err := h.pipe.Run(context.Background(), Request{
				Source:  h.acq.path,
				OnStage: func(s types.Stage) { last = s },
			})
			var stageErr *StageError
			if !errors.As(err, &stageErr) {
				t.Fatalf("err = %v, want *StageError", err)
			}
			if stageErr.Stage != tc.stage {
				t.Fatalf("stage = %s, want %s", stageErr.Stage, tc.stage)
			}
			if res != (types.Result{}) {
				t.Fatalf("failed run returned result %+v, want empty", res)
			}
			if last != types.StageFailed {
				t.Fatalf("last stage = %s, want failed", last)
			}
			if got := h.gw.deleteCount(); got != 1 {
				t.Fatalf("deletes = %d, want 1", got)
			}
		})
	}
}

// TestRunFailureBeforeUpload never deletes anything.
func TestRunFailureBeforeUpload(t *testing.T) {
	h := newHarness(t)
	h.acq.err = errors.New("yt-dlp exploded")
	if _, err := h.pipe.Run(context.Background(), Request{Source: "https://www.bilibili.com/video/BV1xx411c7mD"}); err == nil {
		t.Fatal("expected error")
	}
	if got := h.gw.deleteCount(); got != 0 {
		t.Fatalf("deletes = %d, want 0", got)
	}

	h = newHarness(t)
	h.gw.uploadErr = errors.New("denied")
	if _, err := h.pipe.Run(context.Background(), Request{Source: h.acq.path}); err == nil {
		t.Fatal("expected error")
	}
	if got := h.gw.deleteCount(); got != 0 {
		t.Fatalf("deletes after failed upload = %d, want 0", got)
	}
}

// TestRunCancellationStillDeletes cancels while polling.
func TestRunCancellationStillDeletes(t *testing.T) {
	h := newHarness(t)
	h.tr.block = true
	ctx, cancel := context.WithCancel(context.Background())
	_, err := h.pipe.Run(ctx, Request{
		Source: h.acq.path,
		OnStage: func(s types.Stage) {
			if s == types.StageTranscribing {
				cancel()
			}
		},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if got := h.gw.deleteCount(); got != 1 {
		t.Fatalf("deletes = %d, want 1", got)
	}
	h.gw.mu.Lock()
	defer h.gw.mu.Unlock()
	if h.gw.deleteErr != nil {
		t.Fatalf("delete ran with a cancelled context: %v", h.gw.deleteErr)
	}
}

// TestRunDirectURLSkipsStorage passes audio URLs straight to recognition.
func TestRunDirectURLSkipsStorage(t *testing.T) {
	for _, req := range []Request{
		{Source: "https://cdn.example.com/audio/episode-7.mp3?token=abc"},
		{Source: "oss://bucket/audio/episode-7.wav"},
		{Source: "https://cdn.example.com/audio/episode-7", SkipDownload: true},
	} {
		h := newHarness(t)
		res, err := h.pipe.Run(context.Background(), req)
		if err != nil {
			t.Fatalf("Run(%q) error = %v", req.Source, err)
		}
		if len(h.acq.calls) != 0 || len(h.gw.uploads) != 0 || h.gw.deleteCount() != 0 {
			t.Fatalf("%q: acquire=%d upload=%d delete=%d, want none", req.Source, len(h.acq.calls), len(h.gw.uploads), h.gw.deleteCount())
		}
		if h.tr.submitted[0] != req.Source {
			t.Fatalf("submitted %q, want %q", h.tr.submitted[0], req.Source)
		}
		if filepath.Base(res.Files.Transcript) != "episode-7.txt" {
			t.Fatalf("transcript file = %q", res.Files.Transcript)
		}
	}
}

func TestResolve(t *testing.T) {
	h := newHarness(t)
	cases := []struct {
		req     Request
		kind    types.SourceKind
		acquire bool
	}{
		{Request{Source: "BV1xx411c7mD"}, types.SourcePlatform, true},
		{Request{Source: "https://www.bilibili.com/video/BV1xx411c7mD"}, types.SourcePlatform, true},
		{Request{Source: "https://x.example.com/a.M4A"}, types.SourceRemote, false},
		{Request{Source: "  " + h.acq.path + "  "}, types.SourceLocal, false},
	}
	for _, tc := range cases {
		got, err := h.pipe.resolve(tc.req)
		if err != nil {
			t.Fatalf("resolve(%q) error = %v", tc.req.Source, err)
		}
		if got.kind != tc.kind || got.acquire != tc.acquire {
			t.Errorf("resolve(%q) = %+v", tc.req.Source, got)
		}
	}

	for _, bad := range []Request{
		{Source: "   "},
		{Source: "/definitely/not/here.mp3"},
		{Source: "BV1xx411c7mD", SkipDownload: true},
	} {
		_, err := h.pipe.resolve(bad)
		if !errors.Is(err, ErrInvalidSource) {
			t.Errorf("resolve(%q) err = %v, want ErrInvalidSource", bad.Source, err)
		}
	}
}

// TestRunInvalidSource fails in resolving without touching components.
func TestRunInvalidSource(t *testing.T) {
	h := newHarness(t)
	_, err := h.pipe.Run(context.Background(), Request{Source: ""})
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != types.StageResolving {
		t.Fatalf("err = %v, want resolving StageError", err)
	}
	var invalid *InvalidSourceError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want *InvalidSourceError", err)
	}
	if len(h.tr.submitted) != 0 {
		t.Fatal("transcriber called for invalid source")
	}
}
