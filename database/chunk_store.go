package database

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ChunkStoreFileName is the chunk text file inside an index directory.
const ChunkStoreFileName = "chunk_store.json"

// ChunkStore maps chunk ids to their original text so retrieval hits can be
// resolved back to full content.
type ChunkStore struct {
	mu     sync.RWMutex
	chunks map[string]string
}

func NewChunkStore() *ChunkStore {
	return &ChunkStore{chunks: make(map[string]string)}
}

func (s *ChunkStore) Put(id, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[id] = text
}

func (s *ChunkStore) Get(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.chunks[id]
	return text, ok
}

func (s *ChunkStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Save writes the store into dir as chunk_store.json.
func (s *ChunkStore) Save(dir string) error {
	s.mu.RLock()
	data, err := json.Marshal(s.chunks)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal chunk store: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ChunkStoreFileName), data, 0644); err != nil {
		return fmt.Errorf("failed to write chunk store: %w", err)
	}
	return nil
}

// LoadChunkStore reads a chunk_store.json previously written by Save.
func LoadChunkStore(dir string) (*ChunkStore, error) {
	data, err := os.ReadFile(filepath.Join(dir, ChunkStoreFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk store: %w", err)
	}
	chunks := make(map[string]string)
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("failed to parse chunk store: %w", err)
	}
	return &ChunkStore{chunks: chunks}, nil
}
