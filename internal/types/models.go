package types

import "time"

// SourceKind is how a job source was classified before processing.
type SourceKind string

const (
	SourceRemote   SourceKind = "remote"
	SourceLocal    SourceKind = "local"
	SourcePlatform SourceKind = "platform"
)

// Stage names the pipeline state a run is in.
type Stage string

const (
	StageResolving            Stage = "resolving"
	StageAcquiring            Stage = "acquiring"
	StageUploading            Stage = "uploading"
	StageTranscribing         Stage = "transcribing"
	StagePersistingTranscript Stage = "persisting_transcript"
	StageSummarizing          Stage = "summarizing"
	StagePersistingSummary    Stage = "persisting_summary"
	StageDone                 Stage = "done"
	StageFailed               Stage = "failed"
)

// ProcessRequest is one invocation of the pipeline, shared by the CLI and the HTTP API.
type ProcessRequest struct {
	Source       string `json:"source"`
	SkipDownload bool   `json:"skip_download"`
	PresetName   string `json:"preset_name,omitempty"`
	CustomPrompt string `json:"custom_prompt,omitempty"`
}

type OutputFiles struct {
	Transcript string `json:"transcript"`
	Summary    string `json:"summary"`
}

// Result is what a successful run produces.
type Result struct {
	Transcript string      `json:"transcript"`
	Summary    string      `json:"summary"`
	Files      OutputFiles `json:"files"`
}

// TaskStatus is the status of a registry task as seen by API clients.
type TaskStatus string

const (
	TaskQueued    TaskStatus = "queued"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
)

// Terminal reports whether no further transition can happen.
func (s TaskStatus) Terminal() bool {
	return s == TaskSucceeded || s == TaskFailed
}

// Task is a registry entry for an asynchronous pipeline run.
type Task struct {
	ID        string         `json:"task_id"`
	Status    TaskStatus     `json:"status"`
	Stage     Stage          `json:"stage,omitempty"`
	Request   ProcessRequest `json:"request"`
	Result    *Result        `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Preset steers summary generation. UserTemplate carries a {content} placeholder.
type Preset struct {
	Label        string `json:"label,omitempty" yaml:"label,omitempty"`
	System       string `json:"system" yaml:"system"`
	UserTemplate string `json:"user_template" yaml:"user_template"`
}

// PresetInfo is the public listing entry for a preset.
type PresetInfo struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}
