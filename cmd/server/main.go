// Command server runs the plauder chat gateway.
//
// Configuration is loaded from a YAML file (see pkg/config for the
// discovery order) with PLAUDER_* environment overrides. The most
// useful variables:
//
//	PLAUDER_CONFIG            - Path to the config file
//	PLAUDER_PORT              - Listen port (default: 8080)
//	PLAUDER_FALLBACK_BASE_URL - Provider URL for bots without credentials
//	PLAUDER_FALLBACK_API_KEY  - Matching API key
//	PLAUDER_DEBUG             - Debug categories, e.g. "engine,tools"
//	PLAUDER_LOG_LEVEL         - Log level (default: INFO)
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/plauder-dev/plauder/pkg/config"
	"github.com/plauder-dev/plauder/pkg/debug"
	"github.com/plauder-dev/plauder/pkg/engine"
	"github.com/plauder-dev/plauder/pkg/provider"
	"github.com/plauder-dev/plauder/pkg/store"
	"github.com/plauder-dev/plauder/pkg/tools"
	"github.com/plauder-dev/plauder/pkg/transport"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	debug.Init("", "")
	logger := slog.Default()

	chats := store.NewChatStore()
	bots := store.NewBotStore(cfg.SeedBots(), cfg.SeedFreeBots())
	servers := store.NewToolServerStore(cfg.SeedToolServers())

	providers := provider.NewFactory(provider.Defaults{
		BaseURL:    cfg.Provider.FallbackBaseURL,
		APIKey:     cfg.Provider.FallbackAPIKey,
		Timeout:    time.Duration(cfg.Provider.TimeoutMS) * time.Millisecond,
		Scope:      provider.FallbackScope(cfg.Provider.CredentialFallback),
		Namespaces: namespaceCredentials(cfg),
	})
	defer providers.Close()

	gateway := tools.NewMCPGateway(servers)
	defer gateway.Close()

	eng, err := engine.New(chats, bots, tools.NewConfirmationGate(servers), gateway, providers, engine.Config{
		MaxTurns: cfg.Engine.MaxTurns,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	metricsPath := ""
	if cfg.Observability.Metrics.Enabled {
		metricsPath = cfg.Observability.Metrics.Path
	}

	srv := transport.NewServer(eng, chats,
		transport.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transport.WithMaxBodySize(cfg.Server.MaxBodySize),
		transport.WithMetricsPath(metricsPath),
		transport.WithLogger(logger),
	)

	logger.Info("configuration loaded",
		"port", cfg.Server.Port,
		"bots", len(cfg.Seed.Bots),
		"free_bots", len(cfg.Seed.FreeBots),
		"tool_servers", len(cfg.Seed.ToolServers),
		"max_turns", cfg.Engine.MaxTurns)

	return srv.ListenAndServe()
}

func namespaceCredentials(cfg *config.Config) map[string]provider.Credentials {
	if len(cfg.Provider.Namespaces) == 0 {
		return nil
	}
	creds := make(map[string]provider.Credentials, len(cfg.Provider.Namespaces))
	for name, c := range cfg.Provider.Namespaces {
		creds[name] = provider.Credentials{BaseURL: c.BaseURL, APIKey: c.APIKey}
	}
	return creds
}
