package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"media-digest-go/internal/config"
	"media-digest-go/internal/downloader"
	"media-digest-go/internal/logger"
	"media-digest-go/internal/pipeline"
	"media-digest-go/internal/prompts"
	"media-digest-go/internal/storage"
	"media-digest-go/internal/summary"
	"media-digest-go/internal/transcription"
)

// App holds the components shared by the CLI and the server.
type App struct {
	Config   *config.Config
	Log      *logger.Logger
	Presets  *prompts.Set
	Pipeline *pipeline.Pipeline
}

// NewLogger builds the process logger from the logging config.
func NewLogger(cfg *config.Config) *logger.Logger {
	return logger.NewWithOptions(logger.Options{
		Environment: cfg.Log.Environment,
		Level:       cfg.Log.Level,
	})
}

// Build wires every pipeline component from cfg.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	presets := prompts.Load(cfg.Paths.PresetsPath, log.Module("prompts"))

	gateway, err := storage.New(storage.Options{
		Provider:        cfg.Storage.Provider,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		AccessKeySecret: cfg.Storage.AccessKeySecret,
		Endpoint:        cfg.Storage.Endpoint,
		Bucket:          cfg.Storage.Bucket,
		Region:          cfg.Storage.Region,
		Prefix:          cfg.Storage.Prefix,
		URLExpiry:       cfg.Storage.URLExpiry,
		Log:             log.Entry,
	})
	if err != nil {
		return nil, err
	}

	asr := transcription.New(transcription.Options{
		APIKey:       cfg.DashScope.APIKey,
		BaseURL:      cfg.DashScope.BaseURL,
		Model:        cfg.DashScope.Model,
		PollInterval: cfg.Poll.Interval,
		PollTimeout:  cfg.Poll.Timeout,
		MaxAttempts:  cfg.Poll.MaxAttempts,
		HTTPClient:   &http.Client{Timeout: cfg.DashScope.HTTPTimeout},
		Log:          log.Entry,
	})

	summarizer, err := summary.New(ctx, summary.Options{
		BaseURL: cfg.DashScope.CompatBaseURL,
		APIKey:  cfg.DashScope.APIKey,
		Model:   cfg.DashScope.SummaryModel,
		Timeout: cfg.DashScope.HTTPTimeout * 4,
		Presets: presets,
		Log:     log.Entry,
	})
	if err != nil {
		return nil, fmt.Errorf("summary client: %w", err)
	}

	dl := downloader.New(downloader.Options{
		DownloadDir: cfg.Paths.DownloadDir,
		YtDlpPath:   cfg.Paths.YtDlpPath,
		FFmpegPath:  cfg.Paths.FFmpegPath,
		Log:         log.Entry,
	})

	pipe := pipeline.New(dl, gateway, asr, summarizer, pipeline.Options{
		OutputDir: cfg.Paths.OutputDir,
		Log:       log.Entry,
	})

	return &App{Config: cfg, Log: log, Presets: presets, Pipeline: pipe}, nil
}
