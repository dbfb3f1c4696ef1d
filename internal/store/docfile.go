package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"github.com/zhouzirui/pymind/backend/internal/model/chat"
)

// defaultTable is the table name used by TinyDB-compatible files.
const defaultTable = "_default"

// DocFileStore keeps every transcript in one JSON document file laid out as
// {"_default": {"<docid>": {"id": ..., "history": [...]}}}. Tables other than
// the default one are carried through untouched.
type DocFileStore struct {
	path string

	mu     sync.Mutex
	tables map[string]json.RawMessage
	docs   map[string]chat.Record
	index  map[string]string
	nextID int
}

// OpenDocFile loads path, creating an empty document when it does not exist.
func OpenDocFile(path string) (*DocFileStore, error) {
	if path == "" {
		return nil, errors.New("document store path is required")
	}

	s := &DocFileStore{
		path:   path,
		tables: make(map[string]json.RawMessage),
		docs:   make(map[string]chat.Record),
		index:  make(map[string]string),
		nextID: 1,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DocFileStore) load() error {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "read %s", s.path)
	}
	if len(raw) == 0 {
		return nil
	}

	if err := sonic.ConfigStd.Unmarshal(raw, &s.tables); err != nil {
		return errors.Wrapf(err, "decode %s", s.path)
	}

	table, ok := s.tables[defaultTable]
	if !ok {
		return nil
	}
	if err := sonic.ConfigStd.Unmarshal(table, &s.docs); err != nil {
		return errors.Wrapf(err, "decode table %s", defaultTable)
	}
	if s.docs == nil {
		s.docs = make(map[string]chat.Record)
	}

	for docID, rec := range s.docs {
		if n, err := strconv.Atoi(docID); err == nil && n >= s.nextID {
			s.nextID = n + 1
		}
		if _, dup := s.index[rec.ID]; !dup {
			s.index[rec.ID] = docID
		}
	}
	return nil
}

func (s *DocFileStore) Get(_ context.Context, sessionID string) (chat.Transcript, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docID, ok := s.index[sessionID]
	if !ok {
		return nil, false, nil
	}
	return cloneTranscript(s.docs[docID].History), true, nil
}

func (s *DocFileStore) CreateIfAbsent(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrSessionRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[sessionID]; ok {
		return nil
	}
	s.insert(sessionID, chat.Transcript{})
	return s.flush()
}

func (s *DocFileStore) Replace(_ context.Context, sessionID string, transcript chat.Transcript) error {
	if sessionID == "" {
		return ErrSessionRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history := cloneTranscript(transcript)
	if docID, ok := s.index[sessionID]; ok {
		s.docs[docID] = chat.Record{ID: sessionID, History: history}
	} else {
		s.insert(sessionID, history)
	}
	return s.flush()
}

func (s *DocFileStore) Close() error { return nil }

func (s *DocFileStore) insert(sessionID string, history chat.Transcript) {
	docID := strconv.Itoa(s.nextID)
	s.nextID++
	s.docs[docID] = chat.Record{ID: sessionID, History: history}
	s.index[sessionID] = docID
}

// flush rewrites the whole file through a temp file and rename.
func (s *DocFileStore) flush() error {
	table, err := sonic.ConfigStd.Marshal(s.docs)
	if err != nil {
		return errors.Wrap(err, "encode transcripts")
	}
	s.tables[defaultTable] = table

	data, err := sonic.ConfigStd.Marshal(s.tables)
	if err != nil {
		return errors.Wrap(err, "encode document")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(err, "write %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "close %s", tmpName)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "replace %s", s.path)
	}
	return nil
}
