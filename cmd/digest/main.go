package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"media-digest-go/internal/aggregator"
	"media-digest-go/internal/batch"
	"media-digest-go/internal/bootstrap"
	"media-digest-go/internal/config"
	"media-digest-go/internal/dataset"
	"media-digest-go/internal/logger"
	"media-digest-go/internal/pipeline"
)

type options struct {
	SkipDownload bool   `long:"skip-download" description:"Treat the source as already local or directly reachable"`
	Preset       string `long:"preset" description:"Prompt preset name"`
	Prompt       string `long:"prompt" description:"Custom system prompt; overrides --preset"`
	Batch        string `long:"batch" description:"xlsx sheet with one source per row"`
	Report       string `long:"report" description:"Write a batch report xlsx here"`
}

func main() {
	os.Exit(run())
}

func run() int {
	var opts options
	cfg, args, err := config.Load(os.Args[1:], &opts)
	if err != nil {
		if config.IsHelp(err) {
			fmt.Println(err)
			return 0
		}
		logger.New().WithError(err).Error("invalid configuration")
		return 2
	}
	if opts.Batch == "" && len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: digest [options] <file | url | BV id>  or  digest --batch sources.xlsx")
		return 2
	}

	log := bootstrap.NewLogger(cfg)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Error("startup failed")
		return 1
	}

	if opts.Batch != "" {
		return runBatch(ctx, app, opts)
	}

	res, err := app.Pipeline.Run(ctx, pipeline.Request{
		Source:       args[0],
		SkipDownload: opts.SkipDownload,
		PresetName:   opts.Preset,
		CustomPrompt: opts.Prompt,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("interrupted")
		}
		log.WithError(err).Error("processing failed")
		return 1
	}

	fmt.Printf("transcript: %s\nsummary:    %s\n\n%s\n", res.Files.Transcript, res.Files.Summary, res.Summary)
	return 0
}

func runBatch(ctx context.Context, app *bootstrap.App, opts options) int {
	log := app.Log
	items, err := dataset.Load(opts.Batch)
	if err != nil {
		log.WithError(err).Error("failed to load batch sheet")
		return 1
	}
	for i := range items {
		if opts.SkipDownload {
			items[i].SkipDownload = true
		}
		if items[i].PresetName == "" {
			items[i].PresetName = opts.Preset
		}
		if items[i].CustomPrompt == "" {
			items[i].CustomPrompt = opts.Prompt
		}
	}
	log.WithField("items", len(items)).WithField("sheet", opts.Batch).Info("batch loaded")

	outcomes := batch.Run(ctx, app.Pipeline, items, log.Entry)
	stats := aggregator.Aggregate(outcomes)
	log.WithField("total", stats.Total).
		WithField("succeeded", stats.Succeeded).
		WithField("failed", stats.Failed).
		Info("batch finished")

	if opts.Report != "" {
		if err := dataset.WriteReport(opts.Report, outcomes, stats); err != nil {
			log.WithError(err).Error("failed to write report")
			return 1
		}
		log.WithField("report", opts.Report).Info("report written")
	}
	for _, o := range outcomes {
		if o.Succeeded() {
			fmt.Printf("ok      %s  %s\n", o.Source, o.Result.Files.Summary)
		} else {
			fmt.Printf("failed  %s  %s\n", o.Source, o.Error)
		}
	}
	if stats.Failed > 0 || len(outcomes) < len(items) {
		return 1
	}
	return 0
}
