package store

import (
	"sync"

	"github.com/plauder-dev/plauder/pkg/api"
)

// BotStore holds per-namespace bot configurations. Each namespace is
// seeded from the configured defaults on first touch; the free bots are
// merged into every listing so a namespace always has at least one
// usable bot.
type BotStore struct {
	mu       sync.Mutex
	defaults []api.BotConfig
	free     []api.BotConfig
	byNS     map[string][]api.BotConfig
}

// NewBotStore creates a bot store seeded with defaults. Free bots are
// zero-credential bots merged into every namespace's list unless a bot
// with the same model already exists there.
func NewBotStore(defaults, free []api.BotConfig) *BotStore {
	return &BotStore{
		defaults: defaults,
		free:     free,
		byNS:     make(map[string][]api.BotConfig),
	}
}

// namespaceBots returns the namespace's slice, seeding from defaults on
// first touch. Caller must hold the write lock.
func (s *BotStore) namespaceBots(namespace string) []api.BotConfig {
	bots, ok := s.byNS[namespace]
	if !ok {
		bots = make([]api.BotConfig, len(s.defaults))
		copy(bots, s.defaults)
		s.byNS[namespace] = bots
	}
	return bots
}

// List returns the namespace's bots with the free bots merged in.
func (s *BotStore) List(namespace string) []api.BotConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	bots := s.namespaceBots(namespace)
	out := make([]api.BotConfig, len(bots))
	copy(out, bots)

	for _, fb := range s.free {
		found := false
		for _, b := range out {
			if b.Model == fb.Model {
				found = true
				break
			}
		}
		if !found {
			out = append(out, fb)
		}
	}
	return out
}

// Get resolves a bot by name, including the merged free bots.
func (s *BotStore) Get(namespace, name string) (api.BotConfig, error) {
	for _, b := range s.List(namespace) {
		if b.Name == name {
			return b, nil
		}
	}
	return api.BotConfig{}, ErrNotFound
}

// Add stores a new bot in the namespace.
func (s *BotStore) Add(namespace string, bot api.BotConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bots := s.namespaceBots(namespace)
	for _, b := range bots {
		if b.Name == bot.Name {
			return ErrConflict
		}
	}
	s.byNS[namespace] = append(bots, bot)
	return nil
}

// Update replaces the named bot.
func (s *BotStore) Update(namespace, name string, bot api.BotConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bots := s.namespaceBots(namespace)
	for i, b := range bots {
		if b.Name == name {
			bots[i] = bot
			return nil
		}
	}
	return ErrNotFound
}

// Delete removes the named bot.
func (s *BotStore) Delete(namespace, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bots := s.namespaceBots(namespace)
	for i, b := range bots {
		if b.Name == name {
			s.byNS[namespace] = append(bots[:i], bots[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}
