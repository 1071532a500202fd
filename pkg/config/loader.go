package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, PLAUDER_CONFIG env, ./config.yaml, /etc/plauder/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. PLAUDER_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/plauder/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("PLAUDER_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/plauder/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps PLAUDER_* environment variables to config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PLAUDER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PLAUDER_FALLBACK_BASE_URL"); v != "" {
		cfg.Provider.FallbackBaseURL = v
	}
	if v := os.Getenv("PLAUDER_FALLBACK_API_KEY"); v != "" {
		cfg.Provider.FallbackAPIKey = v
	}
	if v := os.Getenv("PLAUDER_PROVIDER_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Provider.TimeoutMS = ms
		}
	}
	if v := os.Getenv("PLAUDER_CREDENTIAL_FALLBACK"); v != "" {
		cfg.Provider.CredentialFallback = v
	}
	if v := os.Getenv("PLAUDER_MAX_TURNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.MaxTurns = n
		}
	}
	if v := os.Getenv("PLAUDER_METRICS_PATH"); v != "" {
		cfg.Observability.Metrics.Path = v
	}
}

// resolveFileReferences reads _file fields and populates the
// corresponding value fields. A _file field is only consulted when the
// value field itself is empty.
func resolveFileReferences(cfg *Config) error {
	if cfg.Provider.APIKeyFile != "" && cfg.Provider.FallbackAPIKey == "" {
		val, err := readSecretFile(cfg.Provider.APIKeyFile)
		if err != nil {
			return fmt.Errorf("provider.fallback_api_key_file: %w", err)
		}
		cfg.Provider.FallbackAPIKey = val
	}

	for name, cred := range cfg.Provider.Namespaces {
		if cred.APIKeyFile != "" && cred.APIKey == "" {
			val, err := readSecretFile(cred.APIKeyFile)
			if err != nil {
				return fmt.Errorf("provider.namespaces[%s].api_key_file: %w", name, err)
			}
			cred.APIKey = val
			cfg.Provider.Namespaces[name] = cred
		}
	}

	for i := range cfg.Seed.Bots {
		if err := resolveBotKey(&cfg.Seed.Bots[i], fmt.Sprintf("seed.bots[%d]", i)); err != nil {
			return err
		}
	}
	for i := range cfg.Seed.FreeBots {
		if err := resolveBotKey(&cfg.Seed.FreeBots[i], fmt.Sprintf("seed.free_bots[%d]", i)); err != nil {
			return err
		}
	}

	for i := range cfg.Seed.ToolServers {
		s := &cfg.Seed.ToolServers[i]
		if s.TokenFile != "" && s.Token == "" {
			val, err := readSecretFile(s.TokenFile)
			if err != nil {
				return fmt.Errorf("seed.tool_servers[%d].token_file: %w", i, err)
			}
			s.Token = val
		}
	}

	return nil
}

func resolveBotKey(b *BotSeed, path string) error {
	if b.APIKeyFile == "" || b.APIKey != "" {
		return nil
	}
	val, err := readSecretFile(b.APIKeyFile)
	if err != nil {
		return fmt.Errorf("%s.api_key_file: %w", path, err)
	}
	b.APIKey = val
	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
