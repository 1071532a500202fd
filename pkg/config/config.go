// Package config provides unified configuration for the plauder server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (PLAUDER_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import (
	"time"

	"github.com/plauder-dev/plauder/pkg/api"
)

// Config holds all configuration for the plauder server.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Provider      ProviderConfig      `yaml:"provider"`
	Engine        EngineConfig        `yaml:"engine"`
	Seed          SeedConfig          `yaml:"seed"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // default: 8080
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 0 (streaming)
	MaxBodySize  int64         `yaml:"max_body_size"` // default: 1 MB
}

// ProviderConfig holds fallback credentials for bots that carry no
// credentials of their own, and the provider call timeout.
type ProviderConfig struct {
	FallbackBaseURL string `yaml:"fallback_base_url"`
	FallbackAPIKey  string `yaml:"fallback_api_key"`
	APIKeyFile      string `yaml:"fallback_api_key_file"` // _file variant for fallback_api_key
	TimeoutMS       int    `yaml:"timeout_ms"`            // default: 120000

	// CredentialFallback selects how fallback credentials are scoped:
	// "global" uses the pair above for every namespace, "namespace"
	// requires a per-namespace entry below.
	CredentialFallback string                         `yaml:"credential_fallback"` // default: "global"
	Namespaces         map[string]NamespaceCredential `yaml:"namespaces"`
}

// NamespaceCredential holds per-namespace fallback credentials.
type NamespaceCredential struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	APIKeyFile string `yaml:"api_key_file"` // _file variant for api_key
}

// EngineConfig holds turn loop settings.
type EngineConfig struct {
	MaxTurns int `yaml:"max_turns"` // default: 10
}

// SeedConfig holds the bots and tool servers registered at startup.
// Bots and tool servers seed every namespace; free bots are visible in
// all namespaces unless shadowed by a namespace bot with the same model.
type SeedConfig struct {
	Bots        []BotSeed        `yaml:"bots"`
	FreeBots    []BotSeed        `yaml:"free_bots"`
	ToolServers []ToolServerSeed `yaml:"tool_servers"`
}

// BotSeed is a bot definition with an optional file-based API key.
type BotSeed struct {
	api.BotConfig `yaml:",inline"`
	APIKeyFile    string `yaml:"api_key_file"` // _file variant for api_key
}

// ToolServerSeed is a tool server definition with an optional
// file-based bearer token.
type ToolServerSeed struct {
	api.ToolServerConfig `yaml:",inline"`
	TokenFile            string `yaml:"token_file"` // _file variant for token
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        8080,
			ReadTimeout: 30 * time.Second,
			MaxBodySize: 1 << 20,
		},
		Provider: ProviderConfig{
			TimeoutMS:          120000,
			CredentialFallback: "global",
		},
		Engine: EngineConfig{
			MaxTurns: 10,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// SeedBots returns the namespace bot seeds as plain bot configs.
func (c *Config) SeedBots() []api.BotConfig {
	return botConfigs(c.Seed.Bots)
}

// SeedFreeBots returns the free bot seeds as plain bot configs.
func (c *Config) SeedFreeBots() []api.BotConfig {
	return botConfigs(c.Seed.FreeBots)
}

// SeedToolServers returns the tool server seeds as plain configs.
func (c *Config) SeedToolServers() []api.ToolServerConfig {
	servers := make([]api.ToolServerConfig, 0, len(c.Seed.ToolServers))
	for _, s := range c.Seed.ToolServers {
		servers = append(servers, s.ToolServerConfig)
	}
	return servers
}

func botConfigs(seeds []BotSeed) []api.BotConfig {
	bots := make([]api.BotConfig, 0, len(seeds))
	for _, b := range seeds {
		bots = append(bots, b.BotConfig)
	}
	return bots
}
