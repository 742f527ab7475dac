package transcription

import (
	"errors"
	"fmt"
)

// ErrPollTimeout is returned when a configured poll timeout or attempt cap is
// reached before the task hits a terminal status.
var ErrPollTimeout = errors.New("transcription: task did not reach a terminal status in time")

// SubmissionError means the recognition service did not accept the job.
type SubmissionError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *SubmissionError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("transcription submit failed: %v", e.Err)
	case e.StatusCode != 0 && e.StatusCode != 200:
		return fmt.Sprintf("transcription submit failed: status=%d body=%s", e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("transcription submit failed: no task_id in response: %s", e.Body)
	}
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// TaskFailedError carries the provider's terminal failure code and message.
type TaskFailedError struct {
	TaskID  string
	Code    string
	Message string
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("transcription task %s failed: %s - %s", e.TaskID, e.Code, e.Message)
}

// ResultRetrievalError means the result document could not be fetched or
// decoded. The client degrades to the raw terminal payload when it sees one.
type ResultRetrievalError struct {
	URL string
	Err error
}

func (e *ResultRetrievalError) Error() string {
	return fmt.Sprintf("fetch transcription result %s: %v", e.URL, e.Err)
}

func (e *ResultRetrievalError) Unwrap() error { return e.Err }
