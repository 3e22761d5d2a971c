package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/franz/music-pipeline/internal/broker"
	"github.com/franz/music-pipeline/internal/logger"
	"github.com/franz/music-pipeline/internal/meta"
	"github.com/franz/music-pipeline/internal/scan"
	"github.com/franz/music-pipeline/internal/store"
	"github.com/franz/music-pipeline/internal/util"
	"github.com/franz/music-pipeline/internal/worker"
)

// Config is the resolved runtime configuration, with precedence:
// 1. Command-line flag (if set)
// 2. Environment variable (MPIPE_*, or DATABASE_URL / AMQP_URL)
// 3. Config file
// 4. Default value
type Config struct {
	DatabaseURL string
	AMQPURL     string
	LogMode     string
	Verbose     bool
	Quiet       bool

	Prefetch    int
	JobTimeout  time.Duration
	ScanTimeout time.Duration
	ToolTimeout time.Duration
	Retry       util.RetryConfig

	Fpcalc     string
	Extensions []string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_url", "mpipe.db")
	v.SetDefault("log_mode", "dev")
	v.SetDefault("prefetch", 4)
	v.SetDefault("job_timeout", "10m")
	v.SetDefault("scan_timeout", "2m")
	v.SetDefault("tool_timeout", "2m")
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.initial_wait", "5s")
	v.SetDefault("retry.max_wait", "5m")
	v.SetDefault("fpcalc", meta.DefaultFpcalc)
}

// loadConfig reads and validates the configuration from v.
func loadConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DatabaseURL: strings.TrimSpace(v.GetString("database_url")),
		AMQPURL:     strings.TrimSpace(v.GetString("amqp_url")),
		LogMode:     v.GetString("log_mode"),
		Verbose:     v.GetBool("verbose"),
		Quiet:       v.GetBool("quiet"),
		Prefetch:    v.GetInt("prefetch"),
		JobTimeout:  v.GetDuration("job_timeout"),
		ScanTimeout: v.GetDuration("scan_timeout"),
		ToolTimeout: v.GetDuration("tool_timeout"),
		Retry: util.RetryConfig{
			MaxAttempts: v.GetInt("retry.max_attempts"),
			InitialWait: v.GetDuration("retry.initial_wait"),
			MaxWait:     v.GetDuration("retry.max_wait"),
		},
		Fpcalc:     v.GetString("fpcalc"),
		Extensions: v.GetStringSlice("extensions"),
	}

	switch {
	case cfg.DatabaseURL == "":
		return nil, fmt.Errorf("database_url is required: %w", util.ErrInvalidConfig)
	case cfg.Prefetch < 1:
		return nil, fmt.Errorf("prefetch must be at least 1, got %d: %w", cfg.Prefetch, util.ErrInvalidConfig)
	case cfg.Retry.MaxAttempts < 1:
		return nil, fmt.Errorf("retry.max_attempts must be at least 1: %w", util.ErrInvalidConfig)
	case cfg.Retry.InitialWait <= 0:
		return nil, fmt.Errorf("retry.initial_wait must be positive: %w", util.ErrInvalidConfig)
	case cfg.Retry.MaxWait < cfg.Retry.InitialWait:
		return nil, fmt.Errorf("retry.max_wait must not be below retry.initial_wait: %w", util.ErrInvalidConfig)
	}
	return cfg, nil
}

func (c *Config) requireBroker() error {
	if c.AMQPURL == "" {
		return fmt.Errorf("amqp_url is required: %w", util.ErrInvalidConfig)
	}
	return nil
}

func (c *Config) newLogger() (*logger.Logger, error) {
	return logger.New(c.LogMode, logger.LevelFromFlags(c.Verbose, c.Quiet))
}

func (c *Config) openStore(ctx context.Context, log *logger.Logger) (*store.Store, error) {
	cfg := util.StartupRetryConfig()
	cfg.Notify = func(attempt int, wait time.Duration, err error) {
		log.Warn("database not reachable, retrying", "attempt", attempt, "wait", wait, "error", err)
	}
	st, err := util.RetryWithBackoff(ctx, cfg, func() (*store.Store, error) {
		return store.OpenWithOptions(c.DatabaseURL, &store.OpenOptions{
			// one connection per in-flight job of each default stage
			MaxOpenConns:    c.Prefetch * 2,
			ConnMaxLifetime: 30 * time.Minute,
		})
	}, "open database")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return st, nil
}

func (c *Config) dialBroker(ctx context.Context, log *logger.Logger) (*broker.Conn, error) {
	if err := c.requireBroker(); err != nil {
		return nil, err
	}
	return broker.Dial(ctx, c.AMQPURL, log)
}

func (c *Config) newScanner(log *logger.Logger) *scan.Scanner {
	return scan.New(&scan.Config{
		AdditionalExts: c.Extensions,
		Timeout:        c.ScanTimeout,
		Logger:         log,
	})
}

func (c *Config) runtimeConfig() worker.Config {
	retry := c.Retry
	return worker.Config{
		Prefetch:   c.Prefetch,
		JobTimeout: c.JobTimeout,
		Retry:      &retry,
	}
}
