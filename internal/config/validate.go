package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mgpai22/bilingo/internal/subtitle"
)

const maxConcurrency = 4

var validTiers = map[string]bool{
	"tiny": true, "base": true, "small": true, "medium": true, "large": true,
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return err
	}
	if c.Paths.LogFile, err = expandPath(c.Paths.LogFile); err != nil {
		return err
	}
	if c.Store.Driver == "sqlite" && c.Store.DSN != ":memory:" && !strings.HasPrefix(c.Store.DSN, "file:") {
		if c.Store.DSN, err = expandPath(c.Store.DSN); err != nil {
			return err
		}
	}

	c.Transcribe.Provider = strings.ToLower(strings.TrimSpace(c.Transcribe.Provider))
	c.Transcribe.Tier = strings.ToLower(strings.TrimSpace(c.Transcribe.Tier))
	c.Translate.Provider = strings.ToLower(strings.TrimSpace(c.Translate.Provider))
	c.Translate.Mode = strings.ToLower(strings.TrimSpace(c.Translate.Mode))
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	c.Cache.Driver = strings.ToLower(strings.TrimSpace(c.Cache.Driver))

	if c.Transcribe.Language, err = subtitle.CanonicalTag(c.Transcribe.Language); err != nil {
		return fmt.Errorf("transcribe.language: %w", err)
	}
	if c.Translate.TargetLanguage, err = subtitle.CanonicalTag(c.Translate.TargetLanguage); err != nil {
		return fmt.Errorf("translate.target_language: %w", err)
	}
	return nil
}

// Finalize expands paths, canonicalizes language tags and validates. Callers
// that override fields after Load (CLI flags) call it again.
func (c *Config) Finalize() error {
	if err := c.normalize(); err != nil {
		return err
	}
	return c.Validate()
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTranscribe(); err != nil {
		return err
	}
	if err := c.validateDurations(); err != nil {
		return err
	}
	if err := c.validateTranslate(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	return c.validatePublish()
}

func (c *Config) validateTranscribe() error {
	switch c.Transcribe.Provider {
	case "whisper", "openai", "gemini":
	default:
		return fmt.Errorf("transcribe.provider %q is not supported (whisper, openai, gemini)", c.Transcribe.Provider)
	}
	if !validTiers[c.Transcribe.Tier] {
		return fmt.Errorf("transcribe.tier %q must be one of tiny, base, small, medium, large", c.Transcribe.Tier)
	}
	return nil
}

func (c *Config) validateDurations() error {
	if c.Normalize.MinDurationMS <= 0 {
		return errors.New("normalize.min_duration_ms must be positive")
	}
	if c.Segment.MinDurationMS <= 0 {
		return errors.New("segment.min_duration_ms must be positive")
	}
	if c.Segment.MinDurationMS >= c.Segment.MaxDurationMS {
		return errors.New("segment.min_duration_ms must be less than segment.max_duration_ms")
	}
	return nil
}

func (c *Config) validateTranslate() error {
	switch c.Translate.Provider {
	case "openai", "gemini", "anthropic", "echo":
	default:
		return fmt.Errorf("translate.provider %q is not supported (openai, gemini, anthropic, echo)", c.Translate.Provider)
	}
	switch c.Translate.Mode {
	case "per_cue", "batch":
	default:
		return fmt.Errorf("translate.mode %q must be per_cue or batch", c.Translate.Mode)
	}
	if c.Translate.TargetLanguage == "" {
		return errors.New("translate.target_language must be set")
	}
	if c.Translate.BatchSize < 1 {
		return errors.New("translate.batch_size must be at least 1")
	}
	if c.Translate.DelayMS < 0 {
		return errors.New("translate.delay_ms must not be negative")
	}
	if c.Translate.Concurrency < 1 || c.Translate.Concurrency > maxConcurrency {
		return fmt.Errorf("translate.concurrency must be between 1 and %d", maxConcurrency)
	}
	if c.Translate.MaxAttempts < 1 {
		return errors.New("translate.max_attempts must be at least 1")
	}
	if c.Translate.BackoffBaseMS < 0 {
		return errors.New("translate.backoff_base_ms must not be negative")
	}
	if c.Translate.CallTimeoutSeconds <= 0 || c.Translate.RunTimeoutMinutes <= 0 {
		return errors.New("translate timeouts must be positive")
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case "none":
		return nil
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("store.driver %q must be sqlite, mysql or none", c.Store.Driver)
	}
	if strings.TrimSpace(c.Store.DSN) == "" {
		return errors.New("store.dsn must be set")
	}
	if c.Store.TimeoutSeconds <= 0 {
		return errors.New("store.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.MaxEntries < 1 {
		return errors.New("cache.max_entries must be at least 1")
	}
	switch c.Cache.Driver {
	case "none", "memory":
		return nil
	case "redis":
		if strings.TrimSpace(c.Cache.RedisAddr) == "" {
			return errors.New("cache.redis_addr must be set for the redis cache")
		}
		return nil
	default:
		return fmt.Errorf("cache.driver %q must be memory, redis or none", c.Cache.Driver)
	}
}

func (c *Config) validatePublish() error {
	if !c.Publish.Enabled {
		return nil
	}
	if c.Publish.Endpoint == "" || c.Publish.Bucket == "" {
		return errors.New("publish.endpoint and publish.bucket are required when publishing is enabled")
	}
	if c.Publish.AccessKey == "" || c.Publish.SecretKey == "" {
		return errors.New("publish credentials are required when publishing is enabled")
	}
	return nil
}
