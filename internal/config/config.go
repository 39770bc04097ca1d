// Package config loads VibeOps settings from an optional YAML file, VIBE_
// prefixed environment variables and the legacy flat variables older
// deployment scripts export.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix         = "VIBE_"
	DefaultConfigFile = "config.yaml"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	GCP       GCPConfig       `koanf:"gcp"`
	LLM       LLMConfig       `koanf:"llm"`
	Terraform TerraformConfig `koanf:"terraform"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Storage   StorageConfig   `koanf:"storage"`
	Inventory InventoryConfig `koanf:"inventory"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	CORSOrigins    []string      `koanf:"cors_origins"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type GCPConfig struct {
	ProjectID string `koanf:"project_id"`
	Region    string `koanf:"region"`
}

// LLMConfig selects the completion backend used by the requirements,
// architecture and IaC stages.
type LLMConfig struct {
	Provider    string        `koanf:"provider"` // openai, anthropic
	Model       string        `koanf:"model"`
	APIKey      string        `koanf:"api_key"`
	BaseURL     string        `koanf:"base_url"`
	MaxTokens   int           `koanf:"max_tokens"`
	Temperature float32       `koanf:"temperature"`
	Timeout     time.Duration `koanf:"timeout"`
	JSONMode    bool          `koanf:"json_mode"`
}

type TerraformConfig struct {
	Binary        string            `koanf:"binary"`
	WorkspaceRoot string            `koanf:"workspace_root"`
	PhaseTimeout  time.Duration     `koanf:"phase_timeout"`
	Env           map[string]string `koanf:"env"`
}

type PipelineConfig struct {
	StageRetries  int  `koanf:"stage_retries"`
	DryRun        bool `koanf:"dry_run"`
	HistoryTurns  int  `koanf:"history_turns"`
	HistoryTokens int  `koanf:"history_tokens"`
}

// StorageConfig configures run history persistence.
type StorageConfig struct {
	Type string `koanf:"type"` // sqlite, postgres, memory, none
	DSN  string `koanf:"dsn"`
}

type InventoryConfig struct {
	Enabled         bool   `koanf:"enabled"`
	StorageEndpoint string `koanf:"storage_endpoint"`
	AccessKey       string `koanf:"access_key"`
	SecretKey       string `koanf:"secret_key"`
	ComputeEndpoint string `koanf:"compute_endpoint"`
}

type TelemetryConfig struct {
	Tracing     bool   `koanf:"tracing"`
	ServiceName string `koanf:"service_name"`
}

var defaults = map[string]any{
	"server.port":                8000,
	"server.cors_origins":        []string{"http://localhost:5173"},
	"server.request_timeout":     "60s",
	"gcp.region":                 "us-central1",
	"llm.provider":               "openai",
	"llm.model":                  "gpt-4o-mini",
	"llm.max_tokens":             2048,
	"llm.temperature":            0.7,
	"llm.timeout":                "120s",
	"llm.json_mode":              true,
	"terraform.binary":           "terraform",
	"terraform.workspace_root":   "./terraform/outputs",
	"terraform.phase_timeout":    "15m",
	"pipeline.history_turns":     5,
	"pipeline.history_tokens":    4000,
	"storage.type":               "sqlite",
	"storage.dsn":                "vibeops.db",
	"inventory.storage_endpoint": "storage.googleapis.com",
	"inventory.compute_endpoint": "https://compute.googleapis.com/compute/v1",
	"telemetry.service_name":     "vibeops",
}

// legacyEnv maps the legacy flat variables onto keys.
// They only apply when neither the file nor a VIBE_ variable set the key.
var legacyEnv = map[string]string{
	"GCP_PROJECT_ID": "gcp.project_id",
	"GCP_REGION":     "gcp.region",
	"PORT":           "server.port",
	"CORS_ORIGINS":   "server.cors_origins",
	"OPENAI_API_KEY": "llm.api_key",
	"TERRAFORM_BIN":  "terraform.binary",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads config.yaml from the working directory.
func Load() (*Config, error) {
	return LoadFile(DefaultConfigFile)
}

// LoadFile reads the given YAML file, tolerating its absence.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	for name, key := range legacyEnv {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" || k.Exists(key) {
			continue
		}
		if key == "server.cors_origins" {
			k.Set(key, splitList(v))
			continue
		}
		k.Set(key, v)
	}

	// A VIBE_SERVER__CORS_ORIGINS value arrives as a single string.
	if s, ok := k.Get("server.cors_origins").(string); ok {
		k.Set("server.cors_origins", splitList(s))
	}

	for key, v := range defaults {
		if !k.Exists(key) {
			k.Set(key, v)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.LLM.APIKey = substituteEnvVars(cfg.LLM.APIKey)
	cfg.Storage.DSN = substituteEnvVars(cfg.Storage.DSN)
	cfg.Inventory.AccessKey = substituteEnvVars(cfg.Inventory.AccessKey)
	cfg.Inventory.SecretKey = substituteEnvVars(cfg.Inventory.SecretKey)
	for name, v := range cfg.Terraform.Env {
		cfg.Terraform.Env[name] = substituteEnvVars(v)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late, mid-pipeline.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unsupported llm.provider %q", c.LLM.Provider)
	}
	switch c.Storage.Type {
	case "sqlite", "postgres", "memory", "none":
	default:
		return fmt.Errorf("unsupported storage.type %q", c.Storage.Type)
	}
	if c.Pipeline.StageRetries < 0 {
		return fmt.Errorf("pipeline.stage_retries must not be negative")
	}
	if c.Terraform.PhaseTimeout <= 0 {
		return fmt.Errorf("terraform.phase_timeout must be positive")
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
