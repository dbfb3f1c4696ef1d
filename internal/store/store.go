// Package store persists session transcripts keyed by session id.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/zhouzirui/pymind/backend/internal/model/chat"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionRequired = errors.New("session id is required")
)

// Store is the transcript persistence contract. Every mutation is a full
// replacement of the stored transcript; callers read, modify in memory and
// write back under the same id.
type Store interface {
	Get(ctx context.Context, sessionID string) (chat.Transcript, bool, error)
	CreateIfAbsent(ctx context.Context, sessionID string) error
	Replace(ctx context.Context, sessionID string, transcript chat.Transcript) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendDocFile = "docfile"
	BackendBolt    = "bolt"
	BackendMemory  = "memory"
)

// Open builds the store selected by backend.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", BackendDocFile:
		return OpenDocFile(path)
	case BackendBolt:
		return OpenBolt(path)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func cloneTranscript(tr chat.Transcript) chat.Transcript {
	out := make(chat.Transcript, len(tr))
	copy(out, tr)
	return out
}
