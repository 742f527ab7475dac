package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"media-digest-go/internal/types"
)

// Acquirer fetches a platform page or identifier to a local media file.
type Acquirer interface {
	Acquire(ctx context.Context, source string) (string, error)
}

// Gateway stages a local file where the recognition service can read it.
type Gateway interface {
	Upload(ctx context.Context, localPath string) (signedURL, key string, err error)
	Delete(ctx context.Context, key string)
}

// Transcriber is the asynchronous recognition job client.
type Transcriber interface {
	Submit(ctx context.Context, fileURL string) (string, error)
	Poll(ctx context.Context, taskID string) (string, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, text, presetName, customPrompt string) (string, error)
}

// Request is one pipeline invocation.
type Request struct {
	Source       string
	SkipDownload bool
	PresetName   string
	CustomPrompt string
	// OnStage observes every state transition, including failed and done.
	OnStage func(types.Stage)
}

type Options struct {
	OutputDir string
	// CleanupTimeout bounds deletion of the temporary object after the run
	// context is gone.
	CleanupTimeout time.Duration
	Log            *logrus.Entry
}

// Pipeline drives one source through acquisition, upload, transcription and
// summarization. Runs share no state and may execute concurrently.
type Pipeline struct {
	acquirer    Acquirer
	gateway     Gateway
	transcriber Transcriber
	summarizer  Summarizer
	outputDir   string
	cleanup     time.Duration
	log         *logrus.Entry
}

func New(acq Acquirer, gw Gateway, tr Transcriber, sum Summarizer, opts Options) *Pipeline {
	p := &Pipeline{
		acquirer:    acq,
		gateway:     gw,
		transcriber: tr,
		summarizer:  sum,
		outputDir:   opts.OutputDir,
		cleanup:     opts.CleanupTimeout,
		log:         opts.Log,
	}
	if p.outputDir == "" {
		p.outputDir = "output"
	}
	if p.cleanup <= 0 {
		p.cleanup = 30 * time.Second
	}
	if p.log == nil {
		p.log = logrus.NewEntry(logrus.StandardLogger())
	}
	p.log = p.log.WithField("module", "pipeline")
	return p
}

// tempObject is an uploaded object that must be removed once the run ends.
type tempObject struct {
	URL string
	Key string

	gateway Gateway
	timeout time.Duration
	log     *logrus.Entry
	once    sync.Once
}

// release deletes the object at most once. It uses a context detached from the
// run so cancellation does not skip cleanup.
func (o *tempObject) release(ctx context.Context) {
	if o == nil {
		return
	}
	o.once.Do(func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
		defer cancel()
		o.log.WithField("key", o.Key).Info("removing temporary object")
		o.gateway.Delete(cctx, o.Key)
	})
}

type source struct {
	kind  types.SourceKind
	value string
	// acquire is set for platform pages and identifiers.
	acquire bool
}

// Run executes the pipeline. The temporary upload, if any, is deleted on
// every exit path including errors and cancellation.
func (p *Pipeline) Run(ctx context.Context, req Request) (res types.Result, err error) {
	stage := types.StageResolving
	enter := func(s types.Stage) {
		stage = s
		if req.OnStage != nil {
			req.OnStage(s)
		}
	}
	log := p.log.WithField("source", req.Source)
	start := time.Now()

	var temp *tempObject
	defer func() {
		temp.release(ctx)
		if err != nil {
			err = &StageError{Stage: stage, Err: err}
			res = types.Result{}
			enter(types.StageFailed)
			log.WithField("stage", string(stage)).WithField("error", err.Error()).Error("pipeline failed")
			return
		}
		enter(types.StageDone)
		log.WithField("elapsed", time.Since(start).Truncate(time.Millisecond).String()).Info("pipeline finished")
	}()

	enter(types.StageResolving)
	src, err := p.resolve(req)
	if err != nil {
		return res, err
	}
	log = log.WithField("kind", string(src.kind))

	localPath := src.value
	if src.acquire {
		enter(types.StageAcquiring)
		if localPath, err = p.acquirer.Acquire(ctx, src.value); err != nil {
			return res, err
		}
	}

	fileURL := src.value
	if src.kind != types.SourceRemote {
		enter(types.StageUploading)
		signed, key, uerr := p.gateway.Upload(ctx, localPath)
		if uerr != nil {
			return res, uerr
		}
		temp = &tempObject{URL: signed, Key: key, gateway: p.gateway, timeout: p.cleanup, log: log}
		fileURL = temp.URL
	}

	enter(types.StageTranscribing)
	taskID, err := p.transcriber.Submit(ctx, fileURL)
	if err != nil {
		return res, err
	}
	log.WithField("task_id", taskID).Info("transcription submitted")
	transcript, err := p.transcriber.Poll(ctx, taskID)
	if err != nil {
		return res, err
	}

	base := baseName(localPath)
	enter(types.StagePersistingTranscript)
	if res.Files.Transcript, err = p.write(base+".txt", transcript); err != nil {
		return res, err
	}
	res.Transcript = transcript

	enter(types.StageSummarizing)
	summary, err := p.summarizer.Summarize(ctx, transcript, req.PresetName, req.CustomPrompt)
	if err != nil {
		return res, err
	}

	enter(types.StagePersistingSummary)
	if res.Files.Summary, err = p.write(base+"_summary.txt", summary); err != nil {
		return res, err
	}
	res.Summary = summary
	return res, nil
}

var (
	videoIDPattern = regexp.MustCompile(`^[Bb][Vv][0-9A-Za-z]{10}$`)
	mediaExts      = map[string]bool{
		".mp3": true, ".wav": true, ".m4a": true, ".aac": true, ".flac": true, ".ogg": true,
		".opus": true, ".wma": true, ".amr": true, ".mp4": true, ".mov": true, ".mkv": true,
		".webm": true, ".avi": true, ".flv": true,
	}
)

// resolve classifies the source once.
func (p *Pipeline) resolve(req Request) (source, error) {
	s := strings.TrimSpace(req.Source)
	if s == "" {
		return source{}, &InvalidSourceError{Source: req.Source, Reason: "empty source"}
	}

	if u, ok := parseURL(s); ok {
		if req.SkipDownload || u.Scheme == "oss" || mediaExts[strings.ToLower(path.Ext(u.Path))] {
			return source{kind: types.SourceRemote, value: s}, nil
		}
		return source{kind: types.SourcePlatform, value: s, acquire: true}, nil
	}

	if videoIDPattern.MatchString(s) && !req.SkipDownload {
		return source{kind: types.SourcePlatform, value: s, acquire: true}, nil
	}

	info, err := os.Stat(s)
	if err == nil && !info.IsDir() {
		return source{kind: types.SourceLocal, value: s}, nil
	}
	return source{}, &InvalidSourceError{Source: s, Reason: "not a URL, video id or existing file"}
}

func parseURL(s string) (*url.URL, bool) {
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") && !strings.HasPrefix(lower, "oss://") {
		return nil, false
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return nil, false
	}
	u.Scheme = strings.ToLower(u.Scheme)
	return u, true
}

// baseName derives the artifact name from a local path or URL.
func baseName(src string) string {
	var name string
	if u, ok := parseURL(src); ok {
		name = path.Base(u.Path)
	} else {
		name = filepath.Base(src)
	}
	name = strings.TrimSuffix(name, path.Ext(name))
	if name == "" || name == "." || name == "/" {
		return "transcript"
	}
	return name
}

func (p *Pipeline) write(name, content string) (string, error) {
	if err := os.MkdirAll(p.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	out := filepath.Join(p.outputDir, name)
	if err := os.WriteFile(out, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", out, err)
	}
	p.log.WithField("file", out).Info("saved")
	return out, nil
}

// ErrInvalidSource is matched by every InvalidSourceError.
var ErrInvalidSource = errors.New("invalid source")

type InvalidSourceError struct {
	Source string
	Reason string
}

func (e *InvalidSourceError) Error() string {
	return fmt.Sprintf("invalid source %q: %s", e.Source, e.Reason)
}

func (e *InvalidSourceError) Unwrap() error { return ErrInvalidSource }

// StageError records the state a run failed in.
type StageError struct {
	Stage types.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
