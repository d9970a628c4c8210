// Package config loads the workflow's tuning parameters from the
// environment. Every field is optional except OpenAIAPIKey.
package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds every tunable named in the environment-variable table. Field
// names mirror the originating variable so cross-referencing the two is
// mechanical.
type Config struct {
	// Store
	DBPath       string  `env:"DB_PATH" env-default:"/data/video_db.sqlite"`
	DBTimeout    int     `env:"DB_TIMEOUT" env-default:"30"`
	DBMaxRetries int     `env:"DB_MAX_RETRIES" env-default:"3"`
	DBRetryDelay float64 `env:"DB_RETRY_DELAY" env-default:"0.1"`

	// Scanner
	VideoDir     string `env:"VIDEO_DIR" env-default:"/video-input"`
	OutputDir    string `env:"OUTPUT_DIR" env-default:"/video-output"`
	ScanInterval int    `env:"SCAN_INTERVAL" env-default:"30"`

	// Approver
	ConfirmInterval    int  `env:"CONFIRM_INTERVAL" env-default:"60"`
	ConfirmBatchSize   int  `env:"CONFIRM_BATCH_SIZE" env-default:"10"`
	AutoConfirmed      bool `env:"AUTO_CONFIRMED" env-default:"false"`
	AutoAccept         bool `env:"AUTO_ACCEPT" env-default:"false"`

	// Command Synthesizer
	AIInterval  int    `env:"AI_INTERVAL" env-default:"10"`
	AIBatchSize int    `env:"AI_BATCH_SIZE" env-default:"3"`
	AIModel     string `env:"AI_MODEL" env-default:"gpt-4o-mini"`
	OpenAIAPIKey string `env:"OPENAI_API_KEY" env-required:"true"`

	// Host capability overrides
	HostOS        string `env:"HOST_OS"`
	HostOSVersion string `env:"HOST_OS_VERSION"`
	HostCPUModel  string `env:"HOST_CPU_MODEL"`
	HostTotalRAM  string `env:"HOST_TOTAL_RAM"`
	HostGPUModel  string `env:"HOST_GPU_MODEL"`

	PromptOverridePath string `env:"PROMPT_OVERRIDE_PATH" env-default:"/data/prompt.txt"`

	// Transcoder
	ProcessRetryDelay   int     `env:"PROCESS_RETRY_DELAY" env-default:"30"`
	MaxConsecutiveErrors int    `env:"MAX_CONSECUTIVE_ERRORS" env-default:"3"`
	MinReductionRatio   float64 `env:"MIN_REDUCTION_RATIO" env-default:"0.20"`
	SleepInterval       int     `env:"SLEEP_INTERVAL" env-default:"10"`
	MaxRetryDelay       int     `env:"MAX_RETRY_DELAY" env-default:"300"`

	// Mover
	ReplaceBatchSize int `env:"REPLACE_BATCH_SIZE" env-default:"5"`
	ReplaceInterval  int `env:"REPLACE_INTERVAL" env-default:"10"`

	// Ambient
	LogLevel        string `env:"LOG_LEVEL" env-default:"info"`
	FFmpegPath      string `env:"FFMPEG_PATH" env-default:"ffmpeg"`
	FFprobePath     string `env:"FFPROBE_PATH" env-default:"ffprobe"`
	HistoryEnabled  bool   `env:"HISTORY_ENABLED" env-default:"true"`
}

// Load reads Config from the process environment, applying defaults for
// anything unset. Returns an error if OPENAI_API_KEY is absent.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}
