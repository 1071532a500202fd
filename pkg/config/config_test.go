package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTemp(t *testing.T, pattern, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), strings.ReplaceAll(pattern, "*", "x"))
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != 8080 {
		t.Errorf("default server.port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("default server.read_timeout = %v, want 30s", cfg.Server.ReadTimeout)
	}
	if cfg.Provider.TimeoutMS != 120000 {
		t.Errorf("default provider.timeout_ms = %d, want 120000", cfg.Provider.TimeoutMS)
	}
	if cfg.Provider.CredentialFallback != "global" {
		t.Errorf("default provider.credential_fallback = %q, want \"global\"", cfg.Provider.CredentialFallback)
	}
	if cfg.Engine.MaxTurns != 10 {
		t.Errorf("default engine.max_turns = %d, want 10", cfg.Engine.MaxTurns)
	}
	if !cfg.Observability.Metrics.Enabled || cfg.Observability.Metrics.Path != "/metrics" {
		t.Errorf("default metrics = %+v, want enabled at /metrics", cfg.Observability.Metrics)
	}
}

func TestLoadFromYAML(t *testing.T) {
	yamlContent := `
server:
  port: 9090
  read_timeout: 60s
provider:
  fallback_base_url: https://api.example.com
  fallback_api_key: sk-test-key
  timeout_ms: 30000
  credential_fallback: namespace
  namespaces:
    alice:
      base_url: https://alice.example.com
      api_key: sk-alice
engine:
  max_turns: 5
seed:
  bots:
    - name: assistant
      model: gpt-4
      mcp_servers: [files]
      max_tokens: 2048
      reasoning_effort: low
      timeout_ms: 60000
  free_bots:
    - name: community
      model: llama-3
  tool_servers:
    - name: files
      url: http://localhost:3000/mcp
      token: tok-123
      need_confirm: [delete_file]
observability:
  metrics:
    enabled: true
    path: /internal/metrics
`

	tmpFile := writeTemp(t, "config-*.yaml", yamlContent)

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("server.port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 60*time.Second {
		t.Errorf("server.read_timeout = %v, want 60s", cfg.Server.ReadTimeout)
	}
	if cfg.Provider.FallbackBaseURL != "https://api.example.com" {
		t.Errorf("provider.fallback_base_url = %q", cfg.Provider.FallbackBaseURL)
	}
	if cfg.Provider.CredentialFallback != "namespace" {
		t.Errorf("provider.credential_fallback = %q, want \"namespace\"", cfg.Provider.CredentialFallback)
	}
	if cred, ok := cfg.Provider.Namespaces["alice"]; !ok || cred.APIKey != "sk-alice" {
		t.Errorf("provider.namespaces[alice] = %+v", cred)
	}
	if cfg.Engine.MaxTurns != 5 {
		t.Errorf("engine.max_turns = %d, want 5", cfg.Engine.MaxTurns)
	}

	bots := cfg.SeedBots()
	if len(bots) != 1 {
		t.Fatalf("seed bots = %d, want 1", len(bots))
	}
	b := bots[0]
	if b.Name != "assistant" || b.Model != "gpt-4" || b.MaxTokens != 2048 ||
		b.ReasoningEffort != "low" || b.TimeoutMS != 60000 {
		t.Errorf("seed bot = %+v", b)
	}
	if len(b.MCPServers) != 1 || b.MCPServers[0] != "files" {
		t.Errorf("seed bot mcp_servers = %v, want [files]", b.MCPServers)
	}

	free := cfg.SeedFreeBots()
	if len(free) != 1 || free[0].Model != "llama-3" {
		t.Errorf("seed free bots = %+v", free)
	}

	servers := cfg.SeedToolServers()
	if len(servers) != 1 {
		t.Fatalf("seed tool servers = %d, want 1", len(servers))
	}
	if servers[0].Name != "files" || servers[0].Token != "tok-123" || !servers[0].RequiresConfirmation("delete_file") {
		t.Errorf("seed tool server = %+v", servers[0])
	}

	if cfg.Observability.Metrics.Path != "/internal/metrics" {
		t.Errorf("metrics.path = %q", cfg.Observability.Metrics.Path)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Engine.MaxTurns != 10 {
		t.Errorf("got %+v, want defaults", cfg)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PLAUDER_PORT", "7070")
	t.Setenv("PLAUDER_FALLBACK_BASE_URL", "https://env.example.com")
	t.Setenv("PLAUDER_FALLBACK_API_KEY", "sk-env")
	t.Setenv("PLAUDER_MAX_TURNS", "3")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("server.port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Provider.FallbackBaseURL != "https://env.example.com" {
		t.Errorf("provider.fallback_base_url = %q", cfg.Provider.FallbackBaseURL)
	}
	if cfg.Provider.FallbackAPIKey != "sk-env" {
		t.Errorf("provider.fallback_api_key = %q", cfg.Provider.FallbackAPIKey)
	}
	if cfg.Engine.MaxTurns != 3 {
		t.Errorf("engine.max_turns = %d, want 3", cfg.Engine.MaxTurns)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	yamlContent := `
server:
  port: 9090
`
	tmpFile := writeTemp(t, "config-*.yaml", yamlContent)
	t.Setenv("PLAUDER_PORT", "7070")

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("server.port = %d, env should win over file", cfg.Server.Port)
	}
}

func TestConfigDiscoveryViaEnv(t *testing.T) {
	tmpFile := writeTemp(t, "config-*.yaml", "server:\n  port: 6060\n")
	t.Setenv("PLAUDER_CONFIG", tmpFile)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 6060 {
		t.Errorf("server.port = %d, want 6060 from discovered file", cfg.Server.Port)
	}
}

func TestFileReferenceResolution(t *testing.T) {
	keyFile := writeTemp(t, "key-*", "sk-secret\n")
	tokenFile := writeTemp(t, "token-*", "  tok-secret  ")

	yamlContent := `
provider:
  fallback_api_key_file: ` + keyFile + `
seed:
  bots:
    - name: assistant
      model: gpt-4
      api_key_file: ` + keyFile + `
  tool_servers:
    - name: files
      url: http://localhost:3000/mcp
      token_file: ` + tokenFile + `
`
	tmpFile := writeTemp(t, "config-*.yaml", yamlContent)

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Provider.FallbackAPIKey != "sk-secret" {
		t.Errorf("fallback_api_key = %q, want sk-secret", cfg.Provider.FallbackAPIKey)
	}
	if cfg.Seed.Bots[0].APIKey != "sk-secret" {
		t.Errorf("bot api_key = %q, want sk-secret", cfg.Seed.Bots[0].APIKey)
	}
	if cfg.Seed.ToolServers[0].Token != "tok-secret" {
		t.Errorf("server token = %q, want trimmed tok-secret", cfg.Seed.ToolServers[0].Token)
	}
}

func TestFileReferenceDoesNotOverrideValue(t *testing.T) {
	keyFile := writeTemp(t, "key-*", "sk-from-file")
	yamlContent := `
provider:
  fallback_api_key: sk-inline
  fallback_api_key_file: ` + keyFile + `
`
	tmpFile := writeTemp(t, "config-*.yaml", yamlContent)

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Provider.FallbackAPIKey != "sk-inline" {
		t.Errorf("fallback_api_key = %q, inline value should win", cfg.Provider.FallbackAPIKey)
	}
}

func TestFileReferenceMissingFile(t *testing.T) {
	yamlContent := `
provider:
  fallback_api_key_file: /nonexistent/key
`
	tmpFile := writeTemp(t, "config-*.yaml", yamlContent)

	if _, err := Load(tmpFile); err == nil {
		t.Fatal("Load() should fail on unreadable key file")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad fallback scope", func(c *Config) { c.Provider.CredentialFallback = "tenant" }},
		{"negative max turns", func(c *Config) { c.Engine.MaxTurns = -1 }},
		{"bot without name", func(c *Config) {
			c.Seed.Bots = append(c.Seed.Bots, BotSeed{})
		}},
		{"bot without model", func(c *Config) {
			b := BotSeed{}
			b.Name = "assistant"
			c.Seed.Bots = append(c.Seed.Bots, b)
		}},
		{"duplicate bot", func(c *Config) {
			b := BotSeed{}
			b.Name, b.Model = "assistant", "gpt-4"
			c.Seed.Bots = append(c.Seed.Bots, b, b)
		}},
		{"server without url", func(c *Config) {
			s := ToolServerSeed{}
			s.Name = "files"
			c.Seed.ToolServers = append(c.Seed.ToolServers, s)
		}},
		{"duplicate server", func(c *Config) {
			s := ToolServerSeed{}
			s.Name, s.URL = "files", "http://localhost:3000/mcp"
			c.Seed.ToolServers = append(c.Seed.ToolServers, s, s)
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}

	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults: %v", err)
	}
}
