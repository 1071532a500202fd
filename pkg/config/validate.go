package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	if c.Provider.TimeoutMS < 0 {
		errs = append(errs, fmt.Errorf("provider.timeout_ms must be >= 0, got %d", c.Provider.TimeoutMS))
	}

	switch c.Provider.CredentialFallback {
	case "global", "namespace", "":
		// valid
	default:
		errs = append(errs, fmt.Errorf("provider.credential_fallback must be \"global\" or \"namespace\", got %q", c.Provider.CredentialFallback))
	}

	if c.Engine.MaxTurns < 0 {
		errs = append(errs, fmt.Errorf("engine.max_turns must be >= 0, got %d", c.Engine.MaxTurns))
	}

	seen := make(map[string]bool, len(c.Seed.Bots))
	for i, b := range c.Seed.Bots {
		if b.Name == "" {
			errs = append(errs, fmt.Errorf("seed.bots[%d].name is required", i))
			continue
		}
		if b.Model == "" {
			errs = append(errs, fmt.Errorf("seed.bots[%d].model is required", i))
		}
		if seen[b.Name] {
			errs = append(errs, fmt.Errorf("seed.bots[%d]: duplicate bot name %q", i, b.Name))
		}
		seen[b.Name] = true
	}
	for i, b := range c.Seed.FreeBots {
		if b.Model == "" {
			errs = append(errs, fmt.Errorf("seed.free_bots[%d].model is required", i))
		}
	}

	seenServers := make(map[string]bool, len(c.Seed.ToolServers))
	for i, s := range c.Seed.ToolServers {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("seed.tool_servers[%d].name is required", i))
			continue
		}
		if s.URL == "" {
			errs = append(errs, fmt.Errorf("seed.tool_servers[%d].url is required", i))
		}
		if seenServers[s.Name] {
			errs = append(errs, fmt.Errorf("seed.tool_servers[%d]: duplicate server name %q", i, s.Name))
		}
		seenServers[s.Name] = true
	}

	return errors.Join(errs...)
}
