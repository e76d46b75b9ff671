package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/stko/zuul-ac/internal/access"
	"github.com/stko/zuul-ac/internal/common"
	"github.com/stko/zuul-ac/internal/logging"
)

// fileDoc is the on-disk shape of a FileStore: one JSON document holding
// the administrator ids, the delegation graph and the config space.
type fileDoc struct {
	Admins []string                   `json:"admins"`
	Graph  *access.Graph              `json:"graph"`
	Config map[string]json.RawMessage `json:"config"`
}

// FileStore persists everything in a single JSON file, rewritten
// atomically (temp file + rename) on every change.
type FileStore struct {
	mu   sync.Mutex
	path string
	doc  fileDoc
	log  logging.Logger
}

// NewFileStore loads or creates the store file at path.
func NewFileStore(path string, log logging.Logger) (*FileStore, error) {
	s := &FileStore{
		path: path,
		log:  log.With("module", "file_store", "path", path),
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// fresh deployment
	case err != nil:
		return nil, fmt.Errorf("reading store file: %w", err)
	default:
		if err := json.Unmarshal(data, &s.doc); err != nil {
			return nil, fmt.Errorf("parsing store file %s: %w", path, err)
		}
	}

	if s.doc.Graph == nil {
		s.doc.Graph = access.NewGraph()
	}
	if s.doc.Config == nil {
		s.doc.Config = make(map[string]json.RawMessage)
	}
	return s, nil
}

func (s *FileStore) Graph(ctx context.Context) (*access.Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Graph, nil
}

func (s *FileStore) WriteGraph(ctx context.Context, g *access.Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Graph = g
	return s.flush()
}

func (s *FileStore) AdminIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.doc.Admins))
	copy(ids, s.doc.Admins)
	return ids, nil
}

func (s *FileStore) SetAdmins(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Admins = append([]string(nil), ids...)
	return s.flush()
}

func (s *FileStore) ReadConfigValue(ctx context.Context, key string, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.doc.Config[key]
	if !ok {
		return fmt.Errorf("config key %q: %w", key, common.ErrNotFound)
	}
	return json.Unmarshal(raw, out)
}

func (s *FileStore) WriteConfigValue(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshalling config value %q: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Config[key] = raw
	return s.flush()
}

// flush rewrites the store file. Callers hold the lock.
func (s *FileStore) flush() error {
	data, err := json.MarshalIndent(&s.doc, "", "\t")
	if err != nil {
		return fmt.Errorf("marshalling store document: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, filepath.Clean(s.path)); err != nil {
		return fmt.Errorf("replacing %s: %w", s.path, err)
	}
	return nil
}
