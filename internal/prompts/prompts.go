package prompts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"media-digest-go/internal/types"
)

// DefaultPreset is the preset used when a requested name is unknown.
const DefaultPreset = "meeting_summary"

// Set is a read-only collection of named presets, loaded once per process.
type Set struct {
	presets map[string]types.Preset
}

// NewSet wraps an in-memory preset map.
func NewSet(presets map[string]types.Preset) *Set {
	cp := make(map[string]types.Preset, len(presets))
	for k, v := range presets {
		cp[k] = v
	}
	return &Set{presets: cp}
}

// Load reads presets from a .json, .yaml or .yml file. A missing or broken file
// is logged and yields an empty set; summaries then use the generic prompt.
func Load(path string, log *logrus.Entry) *Set {
	presets, err := ReadFile(path)
	if err != nil {
		log.WithField("path", path).WithField("error", err.Error()).Warn("could not load presets")
		return NewSet(nil)
	}
	log.WithField("path", path).WithField("count", len(presets)).Info("presets loaded")
	return NewSet(presets)
}

// ReadFile decodes a preset file, choosing the format from its extension.
func ReadFile(path string) (map[string]types.Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	presets := map[string]types.Preset{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &presets)
	default:
		err = json.Unmarshal(data, &presets)
	}
	if err != nil {
		return nil, fmt.Errorf("decode presets %s: %w", path, err)
	}
	return presets, nil
}

// Get returns the named preset.
func (s *Set) Get(name string) (types.Preset, bool) {
	if s == nil {
		return types.Preset{}, false
	}
	p, ok := s.presets[name]
	return p, ok
}

// Len is the number of loaded presets.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.presets)
}

// List returns key/label pairs sorted by key. Label falls back to the key.
func (s *Set) List() []types.PresetInfo {
	out := make([]types.PresetInfo, 0, s.Len())
	if s == nil {
		return out
	}
	for k, p := range s.presets {
		label := p.Label
		if label == "" {
			label = k
		}
		out = append(out, types.PresetInfo{Key: k, Label: label})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

var templateEscapes = strings.NewReplacer("{{", "{", "}}", "}")

// Render fills the {content} placeholder of a user template.
func Render(template, content string) string {
	parts := strings.Split(template, "{content}")
	for i := range parts {
		parts[i] = templateEscapes.Replace(parts[i])
	}
	return strings.Join(parts, content)
}
