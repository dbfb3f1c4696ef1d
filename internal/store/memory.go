package store

import (
	"context"
	"sync"

	"github.com/zhouzirui/pymind/backend/internal/model/chat"
)

// MemoryStore keeps transcripts in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]chat.Transcript
}

// NewMemoryStore bootstraps an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]chat.Transcript)}
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (chat.Transcript, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tr, ok := s.records[sessionID]
	if !ok {
		return nil, false, nil
	}
	return cloneTranscript(tr), true, nil
}

func (s *MemoryStore) CreateIfAbsent(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrSessionRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[sessionID]; !ok {
		s.records[sessionID] = chat.Transcript{}
	}
	return nil
}

func (s *MemoryStore) Replace(_ context.Context, sessionID string, transcript chat.Transcript) error {
	if sessionID == "" {
		return ErrSessionRequired
	}

	s.mu.Lock()
	s.records[sessionID] = cloneTranscript(transcript)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
