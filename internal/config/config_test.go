package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if len(cfg.Sources.Feeds) == 0 {
		t.Error("expected feeds to be populated")
	}

	var withFallback int
	for _, f := range cfg.Sources.Feeds {
		if f.Fallback != nil {
			withFallback++
			if f.Fallback.Item == "" {
				t.Errorf("feed %s: fallback without item selector", f.Name)
			}
		}
	}
	if withFallback != 2 {
		t.Errorf("expected 2 feeds with HTML fallback, got %d", withFallback)
	}

	if cfg.LLM.Provider != "openai" {
		t.Errorf("expected provider 'openai', got %q", cfg.LLM.Provider)
	}
	if cfg.Sources.GNews.Window != time.Hour {
		t.Errorf("expected gnews window 1h, got %v", cfg.Sources.GNews.Window)
	}
	if cfg.Sources.NewsAPI.Window != 2*time.Hour {
		t.Errorf("expected newsapi window 2h, got %v", cfg.Sources.NewsAPI.Window)
	}
	if cfg.Schedule.Run != "0 */2 * * *" {
		t.Errorf("unexpected run schedule %q", cfg.Schedule.Run)
	}
	if cfg.Retention.Days != 7 {
		t.Errorf("expected retention 7 days, got %d", cfg.Retention.Days)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
llm:
  provider: ollama
  model: qwen2.5:7b
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.LLM.Provider != "ollama" {
		t.Errorf("expected provider 'ollama', got %q", cfg.LLM.Provider)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	// Defaults should still be set for unspecified fields
	if cfg.LLM.OllamaURL != "http://localhost:11434" {
		t.Errorf("expected default ollama_url, got %q", cfg.LLM.OllamaURL)
	}
	if cfg.Pipeline.Concurrency != 3 {
		t.Errorf("expected default concurrency 3, got %d", cfg.Pipeline.Concurrency)
	}
	if cfg.TTS.MaxChars != 512 {
		t.Errorf("expected default tts max chars 512, got %d", cfg.TTS.MaxChars)
	}
}

func TestParseRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"provider":    "llm:\n  provider: gpt\n",
		"backend":     "storage:\n  backend: ftp\n",
		"concurrency": "pipeline:\n  concurrency: 0\n",
		"retention":   "retention:\n  days: 0\n",
		"time zone":   "server:\n  time_zone: Mars/Olympus\n",
	}
	for name, data := range cases {
		if _, err := parse([]byte(data)); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestLoadSecretsFromEnvironment(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	lookuper := envconfig.MapLookuper(map[string]string{
		"LLM_API_KEY":      "sk-test",
		"MINIMAX_GROUP_ID": "group-1",
		"GNEWS_API_KEY":    "gnews",
	})
	if err := loadSecrets(context.Background(), cfg, lookuper); err != nil {
		t.Fatalf("loadSecrets: %v", err)
	}

	if cfg.Secrets.LLMAPIKey != "sk-test" {
		t.Errorf("expected LLM key, got %q", cfg.Secrets.LLMAPIKey)
	}
	if cfg.Secrets.MiniMaxGroupID != "group-1" {
		t.Errorf("expected group id, got %q", cfg.Secrets.MiniMaxGroupID)
	}
	if cfg.Secrets.NewsAPIKey != "" {
		t.Errorf("expected empty NewsAPI key, got %q", cfg.Secrets.NewsAPIKey)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	t.Setenv("OSS_ACCESS_KEY_ID", "ak")
	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if len(cfg.Sources.Feeds) == 0 {
		t.Error("expected feeds to be populated from file")
	}
	if cfg.Secrets.OSSAccessKeyID != "ak" {
		t.Errorf("expected access key from env, got %q", cfg.Secrets.OSSAccessKeyID)
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
	if cfg.GetScratchDir() != filepath.Join("/custom/path", "scratch") {
		t.Errorf("unexpected scratch dir %q", cfg.GetScratchDir())
	}
	if cfg.GetStorageDir() != filepath.Join("/custom/path", "objects") {
		t.Errorf("unexpected storage dir %q", cfg.GetStorageDir())
	}
}
