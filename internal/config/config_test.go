package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/insightdelivered/statement-processor/internal/models"
)

const sampleConfig = `
log_level: debug
default_category: Other
categories:
  - pattern: "WOOLWORTHS|COLES"
    category: Groceries
  - pattern: "NETFLIX"
    category: Subscriptions
parsers:
  CBA:
    method: AI
    provider: anthropic
  anz:
    method: content
ai_providers:
  anthropic:
    api_key_env: TEST_ANTHROPIC_KEY
    model: claude-test
    requests_per_minute: 30
    timeout: 45s
  llamacpp:
    base_url: http://localhost:8081/v1
    supports_documents: true
server:
  addr: ":9090"
  cache_ttl: 5m
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("SERVER_ADDR", "")

	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("log level: got %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.DefaultCategory != "Other" {
		t.Errorf("default category: got %q, want %q", cfg.DefaultCategory, "Other")
	}
	if len(cfg.Categories) != 2 || cfg.Categories[0].Category != "Groceries" {
		t.Errorf("categories: got %+v", cfg.Categories)
	}
	if p := cfg.Parsers["cba"]; p.Method != MethodAI || p.Provider != "anthropic" {
		t.Errorf("cba parser: got %+v", p)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("server addr: got %q", cfg.Server.Addr)
	}
	if cfg.CacheTTL() != 5*time.Minute {
		t.Errorf("cache ttl: got %v", cfg.CacheTTL())
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("SERVER_ADDR", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DefaultCategory != "Uncategorised" {
		t.Errorf("default category: got %q", cfg.DefaultCategory)
	}
	if cfg.Parsers["cba"].Method != MethodContent || cfg.Parsers["anz"].Method != MethodContent {
		t.Errorf("parsers: got %+v", cfg.Parsers)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("SERVER_ADDR", ":7000")

	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LogLevel != "warn" || cfg.Server.Addr != ":7000" {
		t.Errorf("got log level %q addr %q", cfg.LogLevel, cfg.Server.Addr)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown method", "parsers:\n  cba:\n    method: magic\n", "unknown method"},
		{"ai without provider", "parsers:\n  cba:\n    method: ai\n", "requires a provider"},
		{"unconfigured provider", "parsers:\n  cba:\n    method: ai\n    provider: gemini\n", "not configured"},
		{"bad timeout", "ai_providers:\n  gemini:\n    timeout: soon\n", "invalid timeout"},
		{"bad yaml", "parsers: [", "parse config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestAIRoutes(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	env := map[string]string{"TEST_ANTHROPIC_KEY": "sk-test"}
	routes, err := cfg.AIRoutes(func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(routes) != 1 {
		t.Fatalf("routes: got %d, want 1", len(routes))
	}
	pc, ok := routes[models.InstitutionCBA]
	if !ok {
		t.Fatalf("no route for cba: %+v", routes)
	}
	if pc.Provider != "anthropic" || pc.APIKey != "sk-test" || pc.Model != "claude-test" {
		t.Errorf("provider config: got %+v", pc)
	}
	if pc.RequestsPerMinute != 30 || pc.Timeout != 45*time.Second {
		t.Errorf("limits: got rpm %d timeout %v", pc.RequestsPerMinute, pc.Timeout)
	}
}

func TestProvider_DocumentsOverride(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pc, err := cfg.Provider("llamacpp", func(string) string { return "" })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pc.SupportsDocuments == nil || !*pc.SupportsDocuments {
		t.Errorf("supports_documents: got %v", pc.SupportsDocuments)
	}
	if pc.BaseURL != "http://localhost:8081/v1" {
		t.Errorf("base url: got %q", pc.BaseURL)
	}

	if _, err := cfg.Provider("missing", nil); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("STATEMENT_TEST_VAR=hello\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("STATEMENT_TEST_VAR", "")
	os.Unsetenv("STATEMENT_TEST_VAR")

	if err := LoadEnv(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("STATEMENT_TEST_VAR"); got != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}

	if err := LoadEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing file should be ignored, got %v", err)
	}
}
