package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and log file locations.
type Paths struct {
	WorkDir string `toml:"work_dir"`
	LogFile string `toml:"log_file"`
}

// Transcribe selects the speech-to-text backend.
type Transcribe struct {
	Provider string `toml:"provider"`
	Tier     string `toml:"tier"`
	Language string `toml:"language"`
	// Model overrides the tier mapping for hosted providers.
	Model string `toml:"model"`
	// WhisperBinary is the local whisper CLI used by the "whisper" provider.
	WhisperBinary string `toml:"whisper_binary"`
}

// Normalize configures transcript cleanup.
type Normalize struct {
	Continuous    bool  `toml:"continuous"`
	MinDurationMS int64 `toml:"min_duration_ms"`
}

// Segment bounds sentence cue durations.
type Segment struct {
	MinDurationMS int64 `toml:"min_duration_ms"`
	MaxDurationMS int64 `toml:"max_duration_ms"`
}

// Translate configures the translation engine.
type Translate struct {
	Provider           string `toml:"provider"`
	Model              string `toml:"model"`
	TargetLanguage     string `toml:"target_language"`
	Mode               string `toml:"mode"`
	BatchSize          int    `toml:"batch_size"`
	DelayMS            int    `toml:"delay_ms"`
	Concurrency        int    `toml:"concurrency"`
	MaxAttempts        int    `toml:"max_attempts"`
	BackoffBaseMS      int    `toml:"backoff_base_ms"`
	CallTimeoutSeconds int    `toml:"call_timeout_seconds"`
	RunTimeoutMinutes  int    `toml:"run_timeout_minutes"`
	Prompt             string `toml:"prompt"`
}

// Store configures the subtitle_cues database.
type Store struct {
	// Driver is "sqlite", "mysql" or "none".
	Driver         string `toml:"driver"`
	DSN            string `toml:"dsn"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Cache configures the translation cache.
type Cache struct {
	// Driver is "memory", "redis" or "none".
	Driver        string `toml:"driver"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	TTLHours      int    `toml:"ttl_hours"`
	// MaxEntries bounds the memory cache; least recently used entries go first.
	MaxEntries    int    `toml:"max_entries"`
}

// Publish configures upload of finished tracks to S3-compatible storage.
type Publish struct {
	Enabled   bool   `toml:"enabled"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	UseSSL    bool   `toml:"use_ssl"`
	Prefix    string `toml:"prefix"`
}

// Logging contains configuration for log output.
type Logging struct {
	Verbose    bool `toml:"verbose"`
	JSON       bool `toml:"json"`
	MaxSizeMB  int  `toml:"max_size_mb"`
	MaxBackups int  `toml:"max_backups"`
	MaxAgeDays int  `toml:"max_age_days"`
	Compress   bool `toml:"compress"`
}

// APIKeys holds provider credentials.
type APIKeys struct {
	OpenAI    string `toml:"openai"`
	Gemini    string `toml:"gemini"`
	Anthropic string `toml:"anthropic"`
}

// Config encapsulates all configuration values for bilingo.
//
// Configuration sections by subsystem:
//   - Paths: work directory and log file
//   - Transcribe, Normalize, Segment, Translate: per-stage settings
//   - Store: subtitle_cues database
//   - Cache: translation cache
//   - Publish: object storage upload of finished tracks
//   - Logging: console and file log output
//   - APIKeys: provider credentials
type Config struct {
	Paths      Paths      `toml:"paths"`
	Transcribe Transcribe `toml:"transcribe"`
	Normalize  Normalize  `toml:"normalize"`
	Segment    Segment    `toml:"segment"`
	Translate  Translate  `toml:"translate"`
	Store      Store      `toml:"store"`
	Cache      Cache      `toml:"cache"`
	Publish    Publish    `toml:"publish"`
	Logging    Logging    `toml:"logging"`
	APIKeys    APIKeys    `toml:"api_keys"`
}

// Load reads defaults, then the TOML file, then .env, then the process
// environment. The returned config is normalized and validated. It also
// reports the resolved config path and whether that file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	dotenv, err := readDotEnv(".env")
	if err != nil {
		return nil, "", false, err
	}
	if err := cfg.applyEnv(envLookup(dotenv)); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Finalize(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", false, fmt.Errorf("config file %s does not exist", expanded)
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	projectPath, err := filepath.Abs("bilingo.toml")
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	return defaultPath, false, nil
}

// values from .env never override variables already set in the process
func readDotEnv(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return values, nil
}

func envLookup(dotenv map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("OPENAI_API_KEY", &c.APIKeys.OpenAI)
	str("GEMINI_API_KEY", &c.APIKeys.Gemini)
	str("ANTHROPIC_API_KEY", &c.APIKeys.Anthropic)

	str("BILINGO_WORK_DIR", &c.Paths.WorkDir)
	str("BILINGO_LOG_FILE", &c.Paths.LogFile)
	str("BILINGO_TRANSCRIBE_PROVIDER", &c.Transcribe.Provider)
	str("BILINGO_TRANSCRIBE_TIER", &c.Transcribe.Tier)
	str("BILINGO_TRANSLATE_PROVIDER", &c.Translate.Provider)
	str("BILINGO_TRANSLATE_MODEL", &c.Translate.Model)
	str("BILINGO_TRANSLATE_MODE", &c.Translate.Mode)
	str("BILINGO_TARGET_LANGUAGE", &c.Translate.TargetLanguage)
	str("BILINGO_STORE_DRIVER", &c.Store.Driver)
	str("BILINGO_STORE_DSN", &c.Store.DSN)
	str("BILINGO_CACHE_DRIVER", &c.Cache.Driver)
	str("BILINGO_REDIS_ADDR", &c.Cache.RedisAddr)
	str("BILINGO_REDIS_PASSWORD", &c.Cache.RedisPassword)
	str("BILINGO_S3_ENDPOINT", &c.Publish.Endpoint)
	str("BILINGO_S3_ACCESS_KEY", &c.Publish.AccessKey)
	str("BILINGO_S3_SECRET_KEY", &c.Publish.SecretKey)
	str("BILINGO_S3_BUCKET", &c.Publish.Bucket)

	if err := integer("BILINGO_TRANSLATE_CONCURRENCY", &c.Translate.Concurrency); err != nil {
		return err
	}
	if err := integer("BILINGO_TRANSLATE_BATCH_SIZE", &c.Translate.BatchSize); err != nil {
		return err
	}
	if err := integer("BILINGO_TRANSLATE_DELAY_MS", &c.Translate.DelayMS); err != nil {
		return err
	}
	return nil
}

// APIKey returns the credential for a provider name.
func (c *Config) APIKey(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return c.APIKeys.OpenAI
	case "gemini":
		return c.APIKeys.Gemini
	case "anthropic":
		return c.APIKeys.Anthropic
	default:
		return ""
	}
}

// StoreTimeout returns the per-operation database timeout.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.Store.TimeoutSeconds) * time.Second
}

// CallTimeout returns the per-call translator timeout.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Translate.CallTimeoutSeconds) * time.Second
}

// RunTimeout returns the per-run translator deadline.
func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.Translate.RunTimeoutMinutes) * time.Minute
}

// Delay returns the shared inter-call translator delay.
func (c *Config) Delay() time.Duration {
	return time.Duration(c.Translate.DelayMS) * time.Millisecond
}

// CacheTTL returns how long cached translations live; zero means forever.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// DefaultConfigPath returns the expanded per-user configuration location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
