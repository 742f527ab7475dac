package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Provider task statuses. Only SUCCEEDED and FAILED are terminal.
const (
	StatusPending   = "PENDING"
	StatusRunning   = "RUNNING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
)

const (
	submitPath    = "/api/v1/services/audio/asr/transcription"
	tasksPath     = "/api/v1/tasks/"
	progressEvery = 10 * time.Second
)

type Options struct {
	APIKey  string
	BaseURL string
	Model   string

	// PollInterval is the fixed wait between status checks.
	PollInterval time.Duration
	// PollTimeout and MaxAttempts bound the poll loop; zero means unbounded.
	PollTimeout time.Duration
	MaxAttempts int
	// ResultRetryElapsed caps retries of the result document download.
	ResultRetryElapsed time.Duration

	HTTPClient *http.Client
	Log        *logrus.Entry
}

// Client talks to the DashScope asynchronous file transcription API.
type Client struct {
	apiKey        string
	baseURL       string
	model         string
	interval      time.Duration
	timeout       time.Duration
	maxAttempts   int
	resultElapsed time.Duration
	httpClient    *http.Client
	log           *logrus.Entry
}

func New(opts Options) *Client {
	c := &Client{
		apiKey:        opts.APIKey,
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		model:         opts.Model,
		interval:      opts.PollInterval,
		timeout:       opts.PollTimeout,
		maxAttempts:   opts.MaxAttempts,
		resultElapsed: opts.ResultRetryElapsed,
		httpClient:    opts.HTTPClient,
		log:           opts.Log,
	}
	if c.interval <= 0 {
		c.interval = 3 * time.Second
	}
	if c.resultElapsed <= 0 {
		c.resultElapsed = 12 * time.Second
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.log == nil {
		c.log = logrus.NewEntry(logrus.StandardLogger())
	}
	c.log = c.log.WithField("module", "transcription")
	return c
}

type submitRequest struct {
	Model      string          `json:"model"`
	Input      submitInput     `json:"input"`
	Parameters submitParameter `json:"parameters"`
}

type submitInput struct {
	FileURL string `json:"file_url"`
}

type submitParameter struct {
	EnableITN bool `json:"enable_itn"`
}

type submitResponse struct {
	RequestID string `json:"request_id"`
	Output    struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
	} `json:"output"`
}

type taskResponse struct {
	RequestID string `json:"request_id"`
	Output    struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
		Code       string `json:"code"`
		Message    string `json:"message"`
		Result     struct {
			TranscriptionURL string `json:"transcription_url"`
		} `json:"result"`
	} `json:"output"`

	raw []byte
}

// Submit asks the service to transcribe fileURL asynchronously and returns the task id.
func (c *Client) Submit(ctx context.Context, fileURL string) (string, error) {
	payload, err := json.Marshal(submitRequest{
		Model:      c.model,
		Input:      submitInput{FileURL: fileURL},
		Parameters: submitParameter{EnableITN: false},
	})
	if err != nil {
		return "", &SubmissionError{Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+submitPath, bytes.NewReader(payload))
	if err != nil {
		return "", &SubmissionError{Err: err}
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-DashScope-Async", "enable")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &SubmissionError{Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &SubmissionError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		c.log.WithField("status", resp.StatusCode).WithField("body", string(body)).Error("asr submit failed")
		return "", &SubmissionError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	var out submitResponse
	if err := json.Unmarshal(body, &out); err != nil || out.Output.TaskID == "" {
		return "", &SubmissionError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	c.log.WithFields(logrus.Fields{
		"task_id":    out.Output.TaskID,
		"request_id": out.RequestID,
		"model":      c.model,
	}).Info("asr task submitted")
	return out.Output.TaskID, nil
}

// errPending marks a non-terminal status; the poll loop waits and checks again.
type errPending struct{ status string }

func (e errPending) Error() string { return "task status " + e.status }

// Poll checks the task every interval until SUCCEEDED or FAILED and returns the
// transcript. Transport failures while polling are logged and the check is
// repeated; they never count as task failure.
func (c *Client) Poll(ctx context.Context, taskID string) (string, error) {
	parent := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(c.interval)
	if c.maxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(c.maxAttempts-1))
	}
	b = backoff.WithContext(b, ctx)

	log := c.log.WithField("task_id", taskID)
	start := time.Now()
	lastReport := time.Duration(0)
	checks := 0

	check := func() (*taskResponse, error) {
		checks++
		st, err := c.status(ctx, taskID)
		if err != nil {
			return nil, err
		}
		switch st.Output.TaskStatus {
		case StatusSucceeded:
			return st, nil
		case StatusFailed:
			return nil, backoff.Permanent(&TaskFailedError{
				TaskID:  taskID,
				Code:    st.Output.Code,
				Message: st.Output.Message,
			})
		default:
			return nil, errPending{status: st.Output.TaskStatus}
		}
	}
	notify := func(err error, wait time.Duration) {
		var pending errPending
		if !errors.As(err, &pending) {
			log.WithError(err).Warn("poll check failed, retrying")
			return
		}
		elapsed := time.Since(start)
		if elapsed-lastReport >= progressEvery || checks == 1 {
			lastReport = elapsed
			log.WithFields(logrus.Fields{
				"status":  pending.status,
				"elapsed": elapsed.Truncate(time.Second).String(),
			}).Info("polling transcription")
			return
		}
		log.WithField("status", pending.status).Debug("polling transcription")
	}

	st, err := backoff.RetryNotifyWithData(check, b, notify)
	if err != nil {
		var failed *TaskFailedError
		if errors.As(err, &failed) {
			log.WithField("code", failed.Code).WithField("message", failed.Message).Error("asr task failed")
			return "", failed
		}
		if perr := parent.Err(); perr != nil {
			return "", perr
		}
		return "", fmt.Errorf("%w: task %s after %d checks (%s): %v", ErrPollTimeout, taskID, checks, time.Since(start).Truncate(time.Millisecond), err)
	}

	log.WithField("checks", checks).Info("asr task succeeded")
	return c.result(ctx, st), nil
}

// status performs one status check. Any error here is transient.
func (c *Client) status(ctx context.Context, taskID string) (*taskResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+tasksPath+taskID, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read status response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status check returned %d: %s", resp.StatusCode, string(body))
	}
	var st taskResponse
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("json decode error: %v body=%s", err, string(body))
	}
	st.raw = body
	return &st, nil
}

// result turns a SUCCEEDED payload into transcript text. A missing or
// unreachable result document degrades to the raw payload.
func (c *Client) result(ctx context.Context, st *taskResponse) string {
	docURL := st.Output.Result.TranscriptionURL
	if docURL == "" {
		c.log.WithField("task_id", st.Output.TaskID).Warn("no transcription_url in result, using raw payload")
		return rawText(st.raw)
	}
	body, err := c.download(ctx, docURL)
	if err != nil {
		c.log.WithError(err).Warn("result document unavailable, using raw payload")
		return rawText(st.raw)
	}
	text, ok, err := reshapeDocument(body)
	if err != nil {
		rerr := &ResultRetrievalError{URL: docURL, Err: err}
		c.log.WithError(rerr).Warn("result document unreadable, using raw payload")
		return rawText(st.raw)
	}
	if !ok {
		return rawText(body)
	}
	return text
}

// download fetches the result document, retrying server errors with
// exponential backoff.
func (c *Client) download(ctx context.Context, docURL string) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.resultElapsed

	var lastErr error
	op := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			return nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			lastErr = fmt.Errorf("read result document: %w", err)
			return nil, lastErr
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: %s", string(body))
			return nil, lastErr
		}
		if resp.StatusCode >= 300 {
			lastErr = fmt.Errorf("download failed: status=%d body=%s", resp.StatusCode, string(body))
			return nil, backoff.Permanent(lastErr)
		}
		return body, nil
	}
	body, err := backoff.RetryWithData(op, backoff.WithContext(bo, ctx))
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return nil, &ResultRetrievalError{URL: docURL, Err: lastErr}
	}
	return body, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}
