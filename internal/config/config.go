package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/insightdelivered/statement-processor/internal/ai"
	"github.com/insightdelivered/statement-processor/internal/categorizer"
	"github.com/insightdelivered/statement-processor/internal/models"
)

// Extraction methods accepted in the parsers section.
const (
	MethodContent = "content"
	MethodAI      = "ai"
)

// Config is the application configuration.
type Config struct {
	LogLevel        string                      `yaml:"log_level"`
	DefaultCategory string                      `yaml:"default_category"`
	Categories      []categorizer.RuleSpec      `yaml:"categories"`
	Parsers         map[string]ParserConfig     `yaml:"parsers"`
	AIProviders     map[string]ProviderSettings `yaml:"ai_providers"`
	Server          ServerConfig                `yaml:"server"`
}

// ParserConfig selects the extraction method for one institution.
type ParserConfig struct {
	Method   string `yaml:"method"`
	Provider string `yaml:"provider"`
}

// ProviderSettings describes one AI provider. The API key itself is read
// from the environment variable named by APIKeyEnv.
type ProviderSettings struct {
	APIKeyEnv         string `yaml:"api_key_env"`
	BaseURL           string `yaml:"base_url"`
	Model             string `yaml:"model"`
	SupportsDocuments *bool  `yaml:"supports_documents"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	Timeout           string `yaml:"timeout"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
	CacheTTL    string `yaml:"cache_ttl"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel:        "info",
		DefaultCategory: categorizer.DefaultCategory,
		Parsers: map[string]ParserConfig{
			string(models.InstitutionCBA): {Method: MethodContent},
			string(models.InstitutionANZ): {Method: MethodContent},
		},
		AIProviders: map[string]ProviderSettings{},
		Server: ServerConfig{
			Addr:        ":8080",
			MaxUploadMB: 20,
			CacheTTL:    "10m",
		},
	}
}

// LoadEnv loads variables from .env files into the process environment.
// Missing files are not an error.
func LoadEnv(files ...string) error {
	err := godotenv.Load(files...)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Load reads a YAML configuration file. Sections missing from the file keep
// their defaults; an empty path returns the defaults. LOG_LEVEL and
// SERVER_ADDR override the file.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	cfg.applyDefaults()
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.Server.Addr = getEnv("SERVER_ADDR", cfg.Server.Addr)
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.DefaultCategory == "" {
		c.DefaultCategory = def.DefaultCategory
	}
	if c.Parsers == nil {
		c.Parsers = def.Parsers
	}
	if c.AIProviders == nil {
		c.AIProviders = def.AIProviders
	}
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.Server.MaxUploadMB <= 0 {
		c.Server.MaxUploadMB = def.Server.MaxUploadMB
	}
	if c.Server.CacheTTL == "" {
		c.Server.CacheTTL = def.Server.CacheTTL
	}
}

func (c *Config) normalize() {
	parsers := make(map[string]ParserConfig, len(c.Parsers))
	for k, v := range c.Parsers {
		v.Method = strings.ToLower(strings.TrimSpace(v.Method))
		if v.Method == "" {
			v.Method = MethodContent
		}
		v.Provider = strings.ToLower(strings.TrimSpace(v.Provider))
		parsers[strings.ToLower(strings.TrimSpace(k))] = v
	}
	c.Parsers = parsers

	providers := make(map[string]ProviderSettings, len(c.AIProviders))
	for k, v := range c.AIProviders {
		providers[strings.ToLower(strings.TrimSpace(k))] = v
	}
	c.AIProviders = providers
}

// Validate checks parser methods and AI provider references.
func (c *Config) Validate() error {
	var problems []string

	for _, name := range sortedKeys(c.Parsers) {
		p := c.Parsers[name]
		switch p.Method {
		case MethodContent:
		case MethodAI:
			if p.Provider == "" {
				problems = append(problems, fmt.Sprintf("parsers.%s: method ai requires a provider", name))
			} else if _, ok := c.AIProviders[p.Provider]; !ok {
				problems = append(problems, fmt.Sprintf("parsers.%s: provider %q is not configured in ai_providers", name, p.Provider))
			}
		default:
			problems = append(problems, fmt.Sprintf("parsers.%s: unknown method %q (want %q or %q)", name, p.Method, MethodContent, MethodAI))
		}
	}

	for _, name := range sortedKeys(c.AIProviders) {
		if t := c.AIProviders[name].Timeout; t != "" {
			if _, err := time.ParseDuration(t); err != nil {
				problems = append(problems, fmt.Sprintf("ai_providers.%s: invalid timeout %q", name, t))
			}
		}
	}

	if c.Server.CacheTTL != "" {
		if _, err := time.ParseDuration(c.Server.CacheTTL); err != nil {
			problems = append(problems, fmt.Sprintf("server.cache_ttl: invalid duration %q", c.Server.CacheTTL))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Provider resolves the named provider settings into an ai.ProviderConfig,
// reading the credential with getenv.
func (c *Config) Provider(name string, getenv func(string) string) (ai.ProviderConfig, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	s, ok := c.AIProviders[name]
	if !ok {
		return ai.ProviderConfig{}, fmt.Errorf("AI provider %q is not configured", name)
	}
	if getenv == nil {
		getenv = os.Getenv
	}

	pc := ai.ProviderConfig{
		Provider:          name,
		Model:             s.Model,
		BaseURL:           s.BaseURL,
		SupportsDocuments: s.SupportsDocuments,
		RequestsPerMinute: s.RequestsPerMinute,
	}
	if s.APIKeyEnv != "" {
		pc.APIKey = getenv(s.APIKeyEnv)
	}
	if s.Timeout != "" {
		d, err := time.ParseDuration(s.Timeout)
		if err != nil {
			return ai.ProviderConfig{}, fmt.Errorf("AI provider %q: invalid timeout: %w", name, err)
		}
		pc.Timeout = d
	}
	return pc, nil
}

// AIRoutes returns the provider configuration for every institution whose
// parser method is ai.
func (c *Config) AIRoutes(getenv func(string) string) (map[models.Institution]ai.ProviderConfig, error) {
	routes := make(map[models.Institution]ai.ProviderConfig)
	for _, name := range sortedKeys(c.Parsers) {
		p := c.Parsers[name]
		if p.Method != MethodAI {
			continue
		}
		pc, err := c.Provider(p.Provider, getenv)
		if err != nil {
			return nil, fmt.Errorf("parsers.%s: %w", name, err)
		}
		routes[models.Institution(name)] = pc
	}
	return routes, nil
}

// CacheTTL returns the API outcome cache lifetime.
func (c *Config) CacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Server.CacheTTL)
	if err != nil || c.Server.CacheTTL == "" {
		return 10 * time.Minute
	}
	return d
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
