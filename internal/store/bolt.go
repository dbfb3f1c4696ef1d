package store

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/zhouzirui/pymind/backend/internal/model/chat"
)

var sessionsBucket = []byte("sessions")

// BoltStore keeps one {id, history} record per session in a bbolt bucket.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the bbolt file at path.
func OpenBolt(path string) (*BoltStore, error) {
	if path == "" {
		return nil, errors.New("bolt store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "create %s", filepath.Dir(path))
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create sessions bucket")
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Get(_ context.Context, sessionID string) (chat.Transcript, bool, error) {
	var (
		rec   chat.Record
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(sessionsBucket).Get([]byte(sessionID))
		if v == nil {
			return nil
		}
		found = true
		return sonic.ConfigStd.Unmarshal(v, &rec)
	})
	if err != nil {
		return nil, false, errors.Wrapf(err, "load session %s", sessionID)
	}
	if !found {
		return nil, false, nil
	}
	if rec.History == nil {
		rec.History = chat.Transcript{}
	}
	return rec.History, true, nil
}

func (s *BoltStore) CreateIfAbsent(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrSessionRequired
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		if b.Get([]byte(sessionID)) != nil {
			return nil
		}
		return putRecord(b, sessionID, chat.Transcript{})
	})
	return errors.Wrapf(err, "create session %s", sessionID)
}

func (s *BoltStore) Replace(_ context.Context, sessionID string, transcript chat.Transcript) error {
	if sessionID == "" {
		return ErrSessionRequired
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		return putRecord(tx.Bucket(sessionsBucket), sessionID, transcript)
	})
	return errors.Wrapf(err, "save session %s", sessionID)
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func putRecord(b *bolt.Bucket, sessionID string, transcript chat.Transcript) error {
	if transcript == nil {
		transcript = chat.Transcript{}
	}
	data, err := sonic.ConfigStd.Marshal(chat.Record{ID: sessionID, History: transcript})
	if err != nil {
		return err
	}
	return b.Put([]byte(sessionID), data)
}
