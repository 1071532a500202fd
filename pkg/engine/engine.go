package engine

import (
	"errors"
	"fmt"

	"github.com/plauder-dev/plauder/pkg/api"
	"github.com/plauder-dev/plauder/pkg/provider"
	"github.com/plauder-dev/plauder/pkg/store"
	"github.com/plauder-dev/plauder/pkg/tools"
	"github.com/plauder-dev/plauder/pkg/transport"
)

// Ensure Engine implements transport.TurnRunner at compile time.
var _ transport.TurnRunner = (*Engine)(nil)

// ChatStore is the transcript access the engine needs. Implemented by
// store.ChatStore.
type ChatStore interface {
	GetOrCreate(namespace, id string) (api.Chat, error)
	Append(namespace, id string, msgs ...api.Message) (api.Chat, error)
	BeginTurn(namespace, id string) error
	EndTurn(namespace, id string)
}

// BotResolver resolves bot configurations by namespace and name.
// Implemented by store.BotStore.
type BotResolver interface {
	Get(namespace, name string) (api.BotConfig, error)
}

// ProviderFactory resolves the inference backend for a bot.
type ProviderFactory interface {
	ForBot(namespace string, bot *api.BotConfig) (provider.Provider, error)
}

// Gate decides which tool calls must wait for explicit approval.
type Gate interface {
	RequiresConfirmation(namespace, server, tool string) bool
}

// Config holds configuration for the turn engine.
type Config struct {
	// MaxTurns is the maximum number of provider rounds one turn may
	// take before failing with turn_limit_exceeded. Zero or negative
	// means the default of 10.
	MaxTurns int
}

// maxTurns returns the effective round bound, defaulting to 10.
func (c Config) maxTurns() int {
	if c.MaxTurns <= 0 {
		return 10
	}
	return c.MaxTurns
}

// Engine runs conversational turns against the stores, the provider
// factory, and the tool gateway.
type Engine struct {
	chats     ChatStore
	bots      BotResolver
	gate      Gate
	gateway   tools.Gateway
	providers ProviderFactory
	cfg       Config
}

// New creates an engine. All collaborators must be non-nil.
func New(chats ChatStore, bots BotResolver, gate Gate, gateway tools.Gateway, providers ProviderFactory, cfg Config) (*Engine, error) {
	if chats == nil || bots == nil || gate == nil || gateway == nil || providers == nil {
		return nil, fmt.Errorf("engine: all collaborators must be non-nil")
	}
	return &Engine{
		chats:     chats,
		bots:      bots,
		gate:      gate,
		gateway:   gateway,
		providers: providers,
		cfg:       cfg,
	}, nil
}

// resolveBot looks up the bot, mapping the store's sentinel to the
// client-facing error.
func (e *Engine) resolveBot(namespace, name string) (api.BotConfig, error) {
	bot, err := e.bots.Get(namespace, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return api.BotConfig{}, api.NewBotNotFoundError(name)
		}
		return api.BotConfig{}, api.NewServerError(err.Error())
	}
	return bot, nil
}
