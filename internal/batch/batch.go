package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"media-digest-go/internal/aggregator"
	"media-digest-go/internal/dataset"
	"media-digest-go/internal/pipeline"
	"media-digest-go/internal/types"
)

type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (types.Result, error)
}

// Run processes items one after another. A failing item is recorded and the
// batch continues; cancellation stops before the next item.
func Run(ctx context.Context, runner Runner, items []dataset.Item, log *logrus.Entry) []aggregator.Outcome {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("module", "batch")

	outcomes := make([]aggregator.Outcome, 0, len(items))
	for i, item := range items {
		if ctx.Err() != nil {
			log.WithField("remaining", len(items)-i).Warn("batch cancelled")
			break
		}
		itemLog := log.WithFields(logrus.Fields{"row": item.Row, "id": item.ID, "source": item.Source})
		itemLog.WithField("progress", progress(i+1, len(items))).Info("processing batch item")

		start := time.Now()
		res, err := runner.Run(ctx, pipeline.Request{
			Source:       item.Source,
			SkipDownload: item.SkipDownload,
			PresetName:   item.PresetName,
			CustomPrompt: item.CustomPrompt,
		})
		o := aggregator.Outcome{
			Row:      item.Row,
			ID:       item.ID,
			Source:   item.Source,
			Stage:    types.StageDone,
			Result:   res,
			Duration: time.Since(start),
		}
		if err != nil {
			o.Error = err.Error()
			o.Stage = types.StageFailed
			var stageErr *pipeline.StageError
			if errors.As(err, &stageErr) {
				o.Stage = stageErr.Stage
			}
			itemLog.WithField("error", err.Error()).Warn("batch item failed")
		}
		outcomes = append(outcomes, o)
	}
	return outcomes
}

func progress(n, total int) string {
	return fmt.Sprintf("%d/%d", n, total)
}
