package store

import (
	"sync"

	"github.com/plauder-dev/plauder/pkg/api"
)

// ToolServerStore holds per-namespace tool server configurations,
// seeded from the configured defaults on first touch.
type ToolServerStore struct {
	mu       sync.Mutex
	defaults []api.ToolServerConfig
	byNS     map[string][]api.ToolServerConfig
}

// NewToolServerStore creates a tool server store seeded with defaults.
func NewToolServerStore(defaults []api.ToolServerConfig) *ToolServerStore {
	return &ToolServerStore{
		defaults: defaults,
		byNS:     make(map[string][]api.ToolServerConfig),
	}
}

// namespaceServers returns the namespace's slice, seeding from defaults
// on first touch. Caller must hold the write lock.
func (s *ToolServerStore) namespaceServers(namespace string) []api.ToolServerConfig {
	servers, ok := s.byNS[namespace]
	if !ok {
		servers = make([]api.ToolServerConfig, len(s.defaults))
		copy(servers, s.defaults)
		s.byNS[namespace] = servers
	}
	return servers
}

// List returns the namespace's tool servers.
func (s *ToolServerStore) List(namespace string) []api.ToolServerConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	servers := s.namespaceServers(namespace)
	out := make([]api.ToolServerConfig, len(servers))
	copy(out, servers)
	return out
}

// GetServer resolves a tool server by name.
func (s *ToolServerStore) GetServer(namespace, name string) (api.ToolServerConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, srv := range s.namespaceServers(namespace) {
		if srv.Name == name {
			return srv, nil
		}
	}
	return api.ToolServerConfig{}, ErrNotFound
}

// Add stores a new tool server in the namespace.
func (s *ToolServerStore) Add(namespace string, server api.ToolServerConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	servers := s.namespaceServers(namespace)
	for _, srv := range servers {
		if srv.Name == server.Name {
			return ErrConflict
		}
	}
	s.byNS[namespace] = append(servers, server)
	return nil
}

// Update replaces the named tool server.
func (s *ToolServerStore) Update(namespace, name string, server api.ToolServerConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	servers := s.namespaceServers(namespace)
	for i, srv := range servers {
		if srv.Name == name {
			servers[i] = server
			return nil
		}
	}
	return ErrNotFound
}

// Delete removes the named tool server.
func (s *ToolServerStore) Delete(namespace, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	servers := s.namespaceServers(namespace)
	for i, srv := range servers {
		if srv.Name == name {
			s.byNS[namespace] = append(servers[:i], servers[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}
