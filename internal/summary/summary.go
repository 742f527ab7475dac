package summary

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"media-digest-go/internal/prompts"
)

const (
	// customUserPrefix wraps the transcript when the caller supplies its own system prompt.
	customUserPrefix = "以下是转录内容：\n\n"
	fallbackSystem   = "You are a helpful assistant."
)

// SummaryError means the chat completion did not produce a summary.
type SummaryError struct {
	Model string
	Err   error
}

func (e *SummaryError) Error() string {
	return fmt.Sprintf("summary generation with %s failed: %v", e.Model, e.Err)
}

func (e *SummaryError) Unwrap() error { return e.Err }

// generator is the slice of an eino chat model this package needs.
type generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

type Options struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Presets *prompts.Set
	Log     *logrus.Entry
}

// Client produces summaries through an OpenAI-compatible chat completion endpoint.
type Client struct {
	chat    generator
	model   string
	presets *prompts.Set
	log     *logrus.Entry
}

func New(ctx context.Context, opts Options) (*Client, error) {
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: opts.BaseURL,
		APIKey:  opts.APIKey,
		Model:   opts.Model,
		Timeout: opts.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init chat model: %w", err)
	}
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{
		chat:    cm,
		model:   opts.Model,
		presets: opts.Presets,
		log:     log.WithField("module", "summary"),
	}, nil
}

// BuildMessages picks the system and user prompt. Resolution order: custom
// prompt, named preset, the meeting_summary preset, then a generic assistant.
func (c *Client) BuildMessages(text, presetName, customPrompt string) (system, user string) {
	if strings.TrimSpace(customPrompt) != "" {
		return customPrompt, customUserPrefix + text
	}
	if p, ok := c.presets.Get(presetName); ok {
		return p.System, prompts.Render(p.UserTemplate, text)
	}
	if p, ok := c.presets.Get(prompts.DefaultPreset); ok {
		return p.System, prompts.Render(p.UserTemplate, text)
	}
	return fallbackSystem, text
}

// Summarize sends one chat completion request. There are no retries.
func (c *Client) Summarize(ctx context.Context, text, presetName, customPrompt string) (string, error) {
	system, user := c.BuildMessages(text, presetName, customPrompt)
	c.log.WithFields(logrus.Fields{
		"model":  c.model,
		"preset": presetName,
		"custom": strings.TrimSpace(customPrompt) != "",
	}).Info("generating summary")

	out, err := c.chat.Generate(ctx, []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	})
	if err != nil {
		return "", &SummaryError{Model: c.model, Err: err}
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return "", &SummaryError{Model: c.model, Err: fmt.Errorf("response has no completion content")}
	}
	return out.Content, nil
}
