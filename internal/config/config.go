// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config for the cratedocs server. Defaults can be loaded via envdecode;
// CLI flags override individual fields after loading.
type Config struct {
	// HTTPAddr is the listen address of the HTTP transport. ENV: CRATEDOCS_HTTP_ADDR
	HTTPAddr string `env:"CRATEDOCS_HTTP_ADDR,default=127.0.0.1:8080"`
	// FetchTimeout bounds one upstream documentation fetch. ENV: CRATEDOCS_FETCH_TIMEOUT
	FetchTimeout time.Duration `env:"CRATEDOCS_FETCH_TIMEOUT,default=30s"`
	// LogLevel is one of debug, info, warn, error. ENV: CRATEDOCS_LOG_LEVEL
	LogLevel string `env:"CRATEDOCS_LOG_LEVEL,default=info"`
	// LogFile is where the stdio server writes its log; empty selects a
	// per-process file under logs/. ENV: CRATEDOCS_LOG_FILE
	LogFile string `env:"CRATEDOCS_LOG_FILE"`
	// MaxFrameSize bounds one inbound frame or request body in bytes.
	// ENV: CRATEDOCS_MAX_FRAME_SIZE
	MaxFrameSize int `env:"CRATEDOCS_MAX_FRAME_SIZE,default=4194304"`
}

// FromEnv populates a Config using envdecode struct-tag defaults.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	return cfg, nil
}
