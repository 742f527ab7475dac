package config

import (
	"testing"
	"time"
)

// TestLoadDefaults checks that env-only configuration picks up defaults.
func TestLoadDefaults(t *testing.T) {
	t.Setenv("DASHSCOPE_API_KEY", "sk-test")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://www.bilibili.com,http://localhost:3000")

	cfg, rest, err := Load([]string{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("rest = %v, want empty", rest)
	}
	if cfg.DashScope.Model != "qwen3-asr-flash-filetrans" {
		t.Fatalf("model = %q", cfg.DashScope.Model)
	}
	if cfg.DashScope.SummaryModel != "qwen-long" {
		t.Fatalf("summary model = %q", cfg.DashScope.SummaryModel)
	}
	if cfg.Poll.Interval != 3*time.Second {
		t.Fatalf("poll interval = %s, want 3s", cfg.Poll.Interval)
	}
	if cfg.Poll.Timeout != 0 || cfg.Poll.MaxAttempts != 0 {
		t.Fatalf("poll should be unbounded by default, got timeout=%s attempts=%d", cfg.Poll.Timeout, cfg.Poll.MaxAttempts)
	}
	if cfg.Storage.URLExpiry != time.Hour {
		t.Fatalf("url expiry = %s, want 1h", cfg.Storage.URLExpiry)
	}
	if cfg.Storage.Prefix != "mp3_to_txt_temp" {
		t.Fatalf("prefix = %q", cfg.Storage.Prefix)
	}
	if len(cfg.Server.AllowedOrigins) != 2 {
		t.Fatalf("origins = %v", cfg.Server.AllowedOrigins)
	}
}

// TestLoadFlagsOverrideEnv verifies flag precedence and positional passthrough.
func TestLoadFlagsOverrideEnv(t *testing.T) {
	t.Setenv("DASHSCOPE_API_KEY", "sk-test")
	t.Setenv("OUTPUT_DIR", "from-env")

	var extra struct {
		Preset string `long:"preset" default:"meeting_summary"`
	}
	cfg, rest, err := Load([]string{"--output-dir", "from-flag", "--poll-interval", "250ms", "--preset", "translation", "BV1xx411c7mD"}, &extra)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Paths.OutputDir != "from-flag" {
		t.Fatalf("output dir = %q, want from-flag", cfg.Paths.OutputDir)
	}
	if cfg.Poll.Interval != 250*time.Millisecond {
		t.Fatalf("poll interval = %s", cfg.Poll.Interval)
	}
	if extra.Preset != "translation" {
		t.Fatalf("preset = %q", extra.Preset)
	}
	if len(rest) != 1 || rest[0] != "BV1xx411c7mD" {
		t.Fatalf("rest = %v", rest)
	}
}

// TestLoadRequiresAPIKey rejects a config without DashScope credentials.
func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("DASHSCOPE_API_KEY", "")
	if _, _, err := Load([]string{}); err == nil {
		t.Fatal("expected missing api key error")
	}
}

// TestLoadHelp surfaces the help request as a recognisable error.
func TestLoadHelp(t *testing.T) {
	t.Setenv("DASHSCOPE_API_KEY", "sk-test")
	_, _, err := Load([]string{"--help"})
	if !IsHelp(err) {
		t.Fatalf("err = %v, want help error", err)
	}
}

func TestValidateRejectsBadPoll(t *testing.T) {
	cfg := &Config{}
	cfg.DashScope.APIKey = "k"
	cfg.Paths.OutputDir = "out"
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero poll interval should be rejected")
	}
	cfg.Poll.Interval = time.Second
	cfg.Poll.MaxAttempts = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative attempts should be rejected")
	}
}
