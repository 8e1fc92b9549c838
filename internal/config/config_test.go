package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mgpai22/bilingo/internal/config"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	for _, key := range []string{
		"BILINGO_WORK_DIR", "BILINGO_TRANSLATE_PROVIDER", "BILINGO_TRANSLATE_MODE",
		"BILINGO_TRANSLATE_CONCURRENCY", "BILINGO_STORE_DRIVER", "BILINGO_TARGET_LANGUAGE",
		"OPENAI_API_KEY", "GEMINI_API_KEY",
	} {
		t.Setenv(key, "")
	}
	t.Chdir(dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	home := isolate(t)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatalf("expected no config file, resolved %q", resolved)
	}

	wantWork := filepath.Join(home, ".local", "share", "bilingo", "work")
	if cfg.Paths.WorkDir != wantWork {
		t.Fatalf("unexpected work dir: got %q want %q", cfg.Paths.WorkDir, wantWork)
	}
	if cfg.Translate.TargetLanguage != "zh-TW" {
		t.Fatalf("unexpected target language %q", cfg.Translate.TargetLanguage)
	}
	if cfg.Translate.BatchSize != 5 || cfg.Translate.Concurrency != 1 {
		t.Fatalf("unexpected translate defaults: %+v", cfg.Translate)
	}
	if cfg.Delay() != 500*time.Millisecond {
		t.Fatalf("unexpected delay %v", cfg.Delay())
	}
	if cfg.CallTimeout() != 20*time.Second || cfg.RunTimeout() != 15*time.Minute {
		t.Fatalf("unexpected translator timeouts %v %v", cfg.CallTimeout(), cfg.RunTimeout())
	}
	if cfg.StoreTimeout() != 10*time.Second {
		t.Fatalf("unexpected store timeout %v", cfg.StoreTimeout())
	}
	if cfg.Segment.MinDurationMS != 800 || cfg.Segment.MaxDurationMS != 6000 {
		t.Fatalf("unexpected segment defaults: %+v", cfg.Segment)
	}
}

func TestLoadLayering(t *testing.T) {
	dir := isolate(t)

	toml := `
[translate]
provider = "gemini"
mode = "per_cue"
concurrency = 2
target_language = "zh_tw"

[store]
driver = "none"
`
	if err := os.WriteFile(filepath.Join(dir, "bilingo.toml"), []byte(toml), 0o644); err != nil {
		t.Fatal(err)
	}
	dotenv := "BILINGO_TRANSLATE_CONCURRENCY=3\nGEMINI_API_KEY=from-dotenv\nBILINGO_TRANSLATE_MODE=batch\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(dotenv), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BILINGO_TRANSLATE_MODE", "per_cue")

	cfg, _, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected project config to be found")
	}
	if cfg.Translate.Provider != "gemini" {
		t.Errorf("provider from TOML not applied: %q", cfg.Translate.Provider)
	}
	if cfg.Translate.TargetLanguage != "zh-TW" {
		t.Errorf("target language not canonicalized: %q", cfg.Translate.TargetLanguage)
	}
	if cfg.Translate.Concurrency != 3 {
		t.Errorf(".env should override TOML, got concurrency %d", cfg.Translate.Concurrency)
	}
	if cfg.Translate.Mode != "per_cue" {
		t.Errorf("process env should win over .env, got mode %q", cfg.Translate.Mode)
	}
	if cfg.APIKey("gemini") != "from-dotenv" {
		t.Errorf("unexpected gemini key %q", cfg.APIKey("gemini"))
	}
	if cfg.Store.Driver != "none" {
		t.Errorf("unexpected store driver %q", cfg.Store.Driver)
	}
}

func TestLoadMissingExplicitPath(t *testing.T) {
	isolate(t)
	if _, _, _, err := config.Load("missing.toml"); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"defaults", func(*config.Config) {}, ""},
		{"concurrency too high", func(c *config.Config) { c.Translate.Concurrency = 5 }, "concurrency"},
		{"concurrency zero", func(c *config.Config) { c.Translate.Concurrency = 0 }, "concurrency"},
		{"batch size", func(c *config.Config) { c.Translate.BatchSize = 0 }, "batch_size"},
		{"mode", func(c *config.Config) { c.Translate.Mode = "stream" }, "mode"},
		{"tier", func(c *config.Config) { c.Transcribe.Tier = "huge" }, "tier"},
		{"segment window", func(c *config.Config) { c.Segment.MinDurationMS = 6000 }, "segment"},
		{"store driver", func(c *config.Config) { c.Store.Driver = "postgres" }, "store.driver"},
		{"redis addr", func(c *config.Config) { c.Cache.Driver = "redis"; c.Cache.RedisAddr = "" }, "redis_addr"},
		{"cache size", func(c *config.Config) { c.Cache.MaxEntries = 0 }, "max_entries"},
		{"publish bucket", func(c *config.Config) { c.Publish.Enabled = true }, "publish"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCreateSampleLoads(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "conf", "bilingo.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution %q exists=%v", resolved, exists)
	}
	if cfg.Translate.Mode != "batch" {
		t.Errorf("unexpected mode %q", cfg.Translate.Mode)
	}
}
