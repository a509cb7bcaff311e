package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Router  RouterConfig  `yaml:"router"`
	Capture CaptureConfig `yaml:"capture"`
	LLM     LLMConfig     `yaml:"llm"`
	Storage StorageConfig `yaml:"storage"`
	Monitor MonitorConfig `yaml:"monitor"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AuthToken      string   `yaml:"auth_token"`
}

type RouterConfig struct {
	HandlerTimeout time.Duration `yaml:"handler_timeout"`
}

type CaptureConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	ContextURL string `yaml:"context_url"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

type StorageConfig struct {
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

type MonitorConfig struct {
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

// Default returns the built-in configuration used when no file is
// present or the file cannot be parsed.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8090,
			Host: "127.0.0.1",
		},
		Router: RouterConfig{
			HandlerTimeout: 30 * time.Second,
		},
		Capture: CaptureConfig{
			Enabled:    true,
			SampleRate: 16000,
			Channels:   1,
			ContextURL: "copilot://offscreen/audio",
		},
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
		},
		Storage: StorageConfig{
			Path:      "copilot.db",
			Namespace: "copilot",
		},
		Monitor: MonitorConfig{
			SnapshotInterval: 5 * time.Second,
		},
	}
}

// Load reads the config file at path on top of the defaults. A missing
// or unparseable file is not fatal: the defaults are returned along with
// the error so the caller can log the degradation and keep running.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return Default(), err
	}

	return cfg, nil
}
