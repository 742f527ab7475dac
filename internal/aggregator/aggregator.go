package aggregator

import (
	"sort"
	"time"

	"media-digest-go/internal/types"
)

// Outcome is the result of one batch item.
type Outcome struct {
	Row      int
	ID       string
	Source   string
	// Stage is done on success, otherwise the stage the run failed in.
	Stage    types.Stage
	Result   types.Result
	Error    string
	Duration time.Duration
}

func (o Outcome) Succeeded() bool { return o.Error == "" }

// Stats summarizes a batch.
type Stats struct {
	Total           int            `json:"total"`
	Succeeded       int            `json:"succeeded"`
	Failed          int            `json:"failed"`
	SuccessRate     float64        `json:"success_rate"`
	FailuresByStage map[string]int `json:"failures_by_stage"`
	TotalDuration   time.Duration  `json:"total_duration"`
	AvgDuration     time.Duration  `json:"avg_duration"`
}

func Aggregate(outcomes []Outcome) Stats {
	s := Stats{Total: len(outcomes), FailuresByStage: map[string]int{}}
	for _, o := range outcomes {
		s.TotalDuration += o.Duration
		if o.Succeeded() {
			s.Succeeded++
			continue
		}
		s.Failed++
		stage := string(o.Stage)
		if stage == "" {
			stage = "unknown"
		}
		s.FailuresByStage[stage]++
	}
	if s.Total > 0 {
		s.SuccessRate = float64(s.Succeeded) / float64(s.Total)
		s.AvgDuration = s.TotalDuration / time.Duration(s.Total)
	}
	return s
}

// FailureStages returns stage names ordered by failure count, most first.
func (s Stats) FailureStages() []string {
	out := make([]string, 0, len(s.FailuresByStage))
	for k := range s.FailuresByStage {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := s.FailuresByStage[out[i]], s.FailuresByStage[out[j]]
		if a != b {
			return a > b
		}
		return out[i] < out[j]
	})
	return out
}
