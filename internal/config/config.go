// Package config loads process configuration from the environment,
// following the env-struct-tag convention of the snapshot2stream example.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

// Config holds every environment variable spec.md §6 names, plus
// defaults for fields the spec leaves implicit.
type Config struct {
	MilestoneServerURL string `env:"MILESTONE_SERVER_URL,required"`
	MilestoneUsername  string `env:"MILESTONE_USERNAME,required"`
	MilestonePassword  string `env:"MILESTONE_PASSWORD,required"`
	TLSVerify          bool   `env:"TLS_VERIFY" envDefault:"true"`
	PipelineDepth      int    `env:"PIPELINE_DEPTH" envDefault:"8"`
	ExportDir          string `env:"EXPORT_DIR" envDefault:"./exports"`

	HTTPPort            int    `env:"HTTP_PORT" envDefault:"8080"`
	ConnectTimeoutSec   int    `env:"CONNECT_TIMEOUT_SECONDS" envDefault:"30"`
	ReadTimeoutSec      int    `env:"READ_TIMEOUT_SECONDS" envDefault:"30"`
	ApiTimeoutSec       int    `env:"API_TIMEOUT_SECONDS" envDefault:"10"`
	EncoderBinary       string `env:"ENCODER_BINARY" envDefault:"ffmpeg"`
	JpegFramerate       int    `env:"JPEG_FALLBACK_FPS" envDefault:"15"`
	MaxRangeSeconds     int    `env:"MAX_RANGE_SECONDS" envDefault:"600"`
	Debug               bool   `env:"DEBUG" envDefault:"false"`
	LogFile             string `env:"LOG_FILE" envDefault:""`
}

// Load reads a .env file if present (development convenience, mirrors
// godotenv's use in snapshot2stream) and then parses the process
// environment into a Config.
func Load() (Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return Config{}, fmt.Errorf("loading .env: %w", err)
		}
	}
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.PipelineDepth < 1 {
		cfg.PipelineDepth = 1
	}
	if cfg.PipelineDepth > 32 {
		cfg.PipelineDepth = 32
	}
	return cfg, nil
}
