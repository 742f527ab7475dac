package dataset

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Item is one row of a batch sheet.
type Item struct {
	Row          int
	ID           string
	Source       string
	SkipDownload bool
	PresetName   string
	CustomPrompt string
}

// Load reads the first sheet of an xlsx file. Columns are detected by header
// heuristics; without a recognizable source header the first column is used.
// Rows with an empty source are skipped.
func Load(path string) ([]Item, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, fmt.Errorf("no data rows")
	}

	header := rows[0]
	sourceIdx := -1
	idIdx := -1
	skipIdx := -1
	presetIdx := -1
	promptIdx := -1
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(l, "skip"):
			if skipIdx == -1 {
				skipIdx = i
			}
		case strings.Contains(l, "preset") || strings.Contains(l, "mode"):
			if presetIdx == -1 {
				presetIdx = i
			}
		case strings.Contains(l, "prompt"):
			if promptIdx == -1 {
				promptIdx = i
			}
		case strings.Contains(l, "source") || strings.Contains(l, "url") || strings.Contains(l, "link") ||
			strings.Contains(l, "audio") || strings.Contains(l, "file") || l == "bv" || strings.Contains(l, "video"):
			if sourceIdx == -1 {
				sourceIdx = i
			}
		case l == "id" || strings.Contains(l, "name") || strings.HasSuffix(l, " id"):
			if idIdx == -1 {
				idIdx = i
			}
		}
	}
	if sourceIdx == -1 {
		sourceIdx = 0
	}

	cell := func(r []string, idx int) string {
		if idx >= 0 && idx < len(r) {
			return strings.TrimSpace(r[idx])
		}
		return ""
	}

	var out []Item
	for i, r := range rows {
		if i == 0 {
			continue
		}
		item := Item{
			Row:          i + 1,
			ID:           cell(r, idIdx),
			Source:       cell(r, sourceIdx),
			PresetName:   cell(r, presetIdx),
			CustomPrompt: cell(r, promptIdx),
			SkipDownload: parseBool(cell(r, skipIdx)),
		}
		if item.Source == "" {
			continue
		}
		if item.ID == "" {
			item.ID = strconv.Itoa(item.Row)
		}
		out = append(out, item)
	}
	return out, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y", "是":
		return true
	}
	return false
}
