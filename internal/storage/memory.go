package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/stko/zuul-ac/internal/access"
	"github.com/stko/zuul-ac/internal/common"
)

// MemoryStore is an ephemeral Store for tests and demos.
type MemoryStore struct {
	mu     sync.Mutex
	admins []string
	graph  *access.Graph
	config map[string]json.RawMessage

	// FailWrites makes graph persistence fail, for exercising the
	// swap-before-persist contract.
	FailWrites bool
	// GraphWrites counts WriteGraph calls.
	GraphWrites int
}

// NewMemoryStore returns an empty store rooted at the given admin ids.
func NewMemoryStore(admins ...string) *MemoryStore {
	return &MemoryStore{
		admins: admins,
		graph:  access.NewGraph(),
		config: make(map[string]json.RawMessage),
	}
}

func (s *MemoryStore) Graph(ctx context.Context) (*access.Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph, nil
}

func (s *MemoryStore) WriteGraph(ctx context.Context, g *access.Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GraphWrites++
	if s.FailWrites {
		return fmt.Errorf("memory store: writes disabled")
	}
	s.graph = g
	return nil
}

func (s *MemoryStore) AdminIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.admins))
	copy(ids, s.admins)
	return ids, nil
}

func (s *MemoryStore) SetAdmins(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins = append([]string(nil), ids...)
	return nil
}

func (s *MemoryStore) ReadConfigValue(ctx context.Context, key string, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.config[key]
	if !ok {
		return fmt.Errorf("config key %q: %w", key, common.ErrNotFound)
	}
	return json.Unmarshal(raw, out)
}

func (s *MemoryStore) WriteConfigValue(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshalling config value %q: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config[key] = raw
	return nil
}
