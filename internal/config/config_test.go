package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func clearProviderKeys(t *testing.T) {
	t.Helper()
	for _, env := range []string{"GROQ_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "LLM_API_KEY", "LLM_PROVIDER"} {
		t.Setenv(env, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearProviderKeys(t)

	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Ranking.ExplainThreshold != 0.6 {
		t.Fatalf("expected threshold 0.6, got %v", cfg.Ranking.ExplainThreshold)
	}
	if cfg.Ranking.MaxScan != 200 {
		t.Fatalf("expected max scan 200, got %d", cfg.Ranking.MaxScan)
	}
	if cfg.Ranking.ExplainTop != 3 {
		t.Fatalf("expected explain top 3, got %d", cfg.Ranking.ExplainTop)
	}
	if cfg.Index.Dimension != 384 {
		t.Fatalf("expected dimension 384, got %d", cfg.Index.Dimension)
	}
	if cfg.Embedding.Timeout != 30*time.Second {
		t.Fatalf("unexpected embedding timeout %v", cfg.Embedding.Timeout)
	}
	if cfg.LLM.Provider != "none" {
		t.Fatalf("expected provider none without keys, got %q", cfg.LLM.Provider)
	}
	if cfg.ExplanationsEnabled() {
		t.Fatalf("expected explanations disabled by default")
	}
}

func TestLoadInfersProviderFromKey(t *testing.T) {
	cases := []struct {
		env      string
		provider string
	}{
		{env: "GROQ_API_KEY", provider: "groq"},
		{env: "OPENAI_API_KEY", provider: "openai"},
		{env: "ANTHROPIC_API_KEY", provider: "anthropic"},
		{env: "GEMINI_API_KEY", provider: "gemini"},
	}

	for _, tc := range cases {
		t.Run(tc.provider, func(t *testing.T) {
			clearProviderKeys(t)
			t.Setenv(tc.env, "key-"+tc.provider)

			cfg, err := Load(viper.New(), "")
			if err != nil {
				t.Fatalf("Load error: %v", err)
			}
			if cfg.LLM.Provider != tc.provider {
				t.Fatalf("expected provider %q, got %q", tc.provider, cfg.LLM.Provider)
			}
			if cfg.LLM.APIKey != "key-"+tc.provider {
				t.Fatalf("expected key from %s, got %q", tc.env, cfg.LLM.APIKey)
			}
			if !cfg.ExplanationsEnabled() {
				t.Fatalf("expected explanations enabled with %s", tc.env)
			}
		})
	}
}

func TestLoadExplicitProviderWins(t *testing.T) {
	clearProviderKeys(t)
	t.Setenv("GROQ_API_KEY", "gsk-test")
	t.Setenv("LLM_PROVIDER", "none")

	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.LLM.Provider != "none" || cfg.ExplanationsEnabled() {
		t.Fatalf("expected explicit none to disable explanations, got %q", cfg.LLM.Provider)
	}
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "matcher.yaml")
	content := []byte("ranking:\n  explain_threshold: 0.75\n  max_scan: 50\nllm:\n  provider: groq\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("GROQ_API_KEY", "gsk-test")
	t.Setenv("UPLOADS_DIR", "/tmp/resumes")

	cfg, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Ranking.ExplainThreshold != 0.75 {
		t.Fatalf("expected threshold 0.75, got %v", cfg.Ranking.ExplainThreshold)
	}
	if cfg.Ranking.MaxScan != 50 {
		t.Fatalf("expected max scan 50, got %d", cfg.Ranking.MaxScan)
	}
	if cfg.LLM.APIKey != "gsk-test" {
		t.Fatalf("expected groq key from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.Upload.Root != "/tmp/resumes" {
		t.Fatalf("expected upload root from UPLOADS_DIR, got %q", cfg.Upload.Root)
	}
	if !cfg.ExplanationsEnabled() {
		t.Fatalf("expected explanations enabled")
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg, err := Load(viper.New(), "")
		if err != nil {
			t.Fatalf("Load error: %v", err)
		}
		return *cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "threshold too high", mutate: func(c *Config) { c.Ranking.ExplainThreshold = 1.5 }},
		{name: "zero scan", mutate: func(c *Config) { c.Ranking.MaxScan = 0 }},
		{name: "unknown backend", mutate: func(c *Config) { c.Index.Backend = "qdrant" }},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Index.Backend = "postgres"; c.Index.PostgresDSN = "" }},
		{name: "unknown embedder", mutate: func(c *Config) { c.Embedding.Provider = "bert" }},
		{name: "unknown llm", mutate: func(c *Config) { c.LLM.Provider = "cohere" }},
		{name: "zero explain top", mutate: func(c *Config) { c.Ranking.ExplainTop = 0 }},
		{name: "explain top past three", mutate: func(c *Config) { c.Ranking.ExplainTop = 10 }},
	}

	for _, tc := range cases {
		cfg := base()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}
