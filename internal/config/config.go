package config

import (
	"errors"
	"fmt"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Config is the process configuration. It is built once in main and handed to
// each component constructor; nothing reads the environment after Load.
type Config struct {
	DashScope DashScopeConfig `group:"DashScope"`
	Storage   StorageConfig   `group:"Storage"`
	Poll      PollConfig      `group:"Polling"`
	Paths     PathsConfig     `group:"Paths"`
	Server    ServerConfig    `group:"Server"`
	Log       LogConfig       `group:"Logging"`
}

type DashScopeConfig struct {
	APIKey        string        `long:"dashscope-api-key" env:"DASHSCOPE_API_KEY" description:"API key for DashScope ASR and chat completion"`
	BaseURL       string        `long:"dashscope-base-url" env:"DASHSCOPE_BASE_URL" default:"https://dashscope.aliyuncs.com" description:"DashScope native API base URL"`
	Model         string        `long:"asr-model" env:"DASHSCOPE_MODEL" default:"qwen3-asr-flash-filetrans" description:"Speech recognition model"`
	CompatBaseURL string        `long:"chat-base-url" env:"DASHSCOPE_COMPAT_BASE_URL" default:"https://dashscope.aliyuncs.com/compatible-mode/v1" description:"OpenAI-compatible chat completion base URL"`
	SummaryModel  string        `long:"summary-model" env:"DASHSCOPE_SUMMARY_MODEL" default:"qwen-long" description:"Chat model used for summaries"`
	HTTPTimeout   time.Duration `long:"http-timeout" env:"DASHSCOPE_HTTP_TIMEOUT" default:"30s" description:"Per-request HTTP timeout"`
}

type StorageConfig struct {
	Provider        string        `long:"storage-provider" env:"STORAGE_PROVIDER" default:"oss" choice:"oss" choice:"s3" description:"Object storage backend"`
	AccessKeyID     string        `long:"storage-access-key-id" env:"OSS_ACCESS_KEY_ID" description:"Storage access key id"`
	AccessKeySecret string        `long:"storage-access-key-secret" env:"OSS_ACCESS_KEY_SECRET" description:"Storage access key secret"`
	Endpoint        string        `long:"storage-endpoint" env:"OSS_ENDPOINT" description:"Storage endpoint"`
	Bucket          string        `long:"storage-bucket" env:"OSS_BUCKET_NAME" description:"Storage bucket"`
	Region          string        `long:"storage-region" env:"STORAGE_REGION" default:"us-east-1" description:"Region (s3 only)"`
	Prefix          string        `long:"storage-prefix" env:"STORAGE_PREFIX" default:"mp3_to_txt_temp" description:"Key prefix for temporary uploads"`
	URLExpiry       time.Duration `long:"storage-url-expiry" env:"STORAGE_URL_EXPIRY" default:"1h" description:"Lifetime of signed URLs"`
}

type PollConfig struct {
	Interval    time.Duration `long:"poll-interval" env:"POLL_INTERVAL" default:"3s" description:"Wait between transcription status checks"`
	Timeout     time.Duration `long:"poll-timeout" env:"POLL_TIMEOUT" default:"0s" description:"Give up polling after this long (0 = wait forever)"`
	MaxAttempts int           `long:"poll-max-attempts" env:"POLL_MAX_ATTEMPTS" default:"0" description:"Give up polling after this many checks (0 = unlimited)"`
}

type PathsConfig struct {
	DownloadDir string `long:"download-dir" env:"DOWNLOAD_DIR" default:"downloads" description:"Where downloaded media is stored"`
	OutputDir   string `long:"output-dir" env:"OUTPUT_DIR" default:"output" description:"Where transcripts and summaries are written"`
	PresetsPath string `long:"presets" env:"PRESETS_PATH" default:"prompts/presets.json" description:"Prompt preset file (json or yaml)"`
	YtDlpPath   string `long:"yt-dlp" env:"YTDLP_PATH" default:"yt-dlp" description:"yt-dlp executable"`
	FFmpegPath  string `long:"ffmpeg" env:"FFMPEG_PATH" description:"ffmpeg location passed to yt-dlp"`
}

type ServerConfig struct {
	Port           string   `long:"port" env:"PORT" default:"8000" description:"HTTP listen port"`
	AllowedOrigins []string `long:"cors-origin" env:"CORS_ALLOWED_ORIGINS" env-delim:"," description:"Allowed CORS origins"`
}

type LogConfig struct {
	Environment string `long:"environment" env:"ENVIRONMENT" default:"local" description:"local = text logs, anything else = JSON"`
	Level       string `long:"log-level" env:"LOG_LEVEL" default:"info" description:"debug, info, warn or error"`
}

// Load reads .env (if present), then parses args and the environment into a
// Config. Extra option structs (command specific flags) share the parser.
// The returned slice holds the positional arguments.
func Load(args []string, extra ...any) (*Config, []string, error) {
	_ = godotenv.Load() // loads .env

	cfg := &Config{}
	parser := flags.NewParser(cfg, flags.HelpFlag|flags.PassDoubleDash)
	for _, e := range extra {
		if _, err := parser.AddGroup("Command", "", e); err != nil {
			return nil, nil, fmt.Errorf("register options: %w", err)
		}
	}
	rest, err := parser.ParseArgs(args)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, rest, nil
}

// IsHelp reports whether err is the go-flags help request.
func IsHelp(err error) bool {
	var fe *flags.Error
	return errors.As(err, &fe) && fe.Type == flags.ErrHelp
}

// Validate checks the values that no component can run without.
func (c *Config) Validate() error {
	if c.DashScope.APIKey == "" {
		return errors.New("DASHSCOPE_API_KEY must be configured")
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.Poll.Interval)
	}
	if c.Poll.Timeout < 0 || c.Poll.MaxAttempts < 0 {
		return errors.New("poll timeout and max attempts must not be negative")
	}
	if c.Paths.OutputDir == "" {
		return errors.New("output directory must be configured")
	}
	return nil
}
