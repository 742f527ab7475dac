package transcription

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FormatMilliseconds renders a millisecond offset as HH:MM:SS, flooring to whole
// seconds. Hours keep counting past 24.
func FormatMilliseconds(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	secs := ms / 1000
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs/60%60, secs%60)
}

// reshapeDocument turns a result document into timestamped lines. ok is false
// when the document has no transcripts array; callers fall back to raw JSON.
func reshapeDocument(body []byte) (text string, ok bool, err error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", false, err
	}
	items, ok := doc["transcripts"].([]any)
	if !ok {
		return "", false, nil
	}

	var b strings.Builder
	for _, raw := range items {
		item, isMap := raw.(map[string]any)
		if !isMap {
			continue
		}
		if sentences, has := item["sentences"]; has {
			list, _ := sentences.([]any)
			for _, s := range list {
				sent, isMap := s.(map[string]any)
				if !isMap {
					continue
				}
				begin, _ := sent["begin_time"].(float64)
				fmt.Fprintf(&b, "[%s] %s\n", FormatMilliseconds(int64(begin)), stringField(sent["text"]))
			}
		} else if t, has := item["text"]; has {
			b.WriteString(stringField(t))
			b.WriteString("\n")
		}
	}
	return b.String(), true, nil
}

func stringField(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

// rawText is the degraded transcript: the payload itself, indented.
func rawText(body []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		return string(body)
	}
	return buf.String()
}
