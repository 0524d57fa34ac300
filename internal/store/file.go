package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tryxpath-cli/internal/faults"
	"github.com/xkilldash9x/tryxpath-cli/internal/protocol"
)

// FileStore keeps the snapshot as a JSON file.
type FileStore struct {
	path string
	log  *zap.Logger
	mu   sync.Mutex
}

// NewFileStore stores the snapshot at path. The directory is created on the
// first save.
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	return &FileStore{path: path, log: logger.Named("store.file")}
}

func (s *FileStore) Save(_ context.Context, state protocol.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := encodeState(state)
	if err != nil {
		return &faults.PersistenceError{Op: "save", Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return &faults.PersistenceError{Op: "save", Err: err}
	}

	// Write then rename so a crash never leaves half a snapshot behind.
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".popup_state-*")
	if err != nil {
		return &faults.PersistenceError{Op: "save", Err: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &faults.PersistenceError{Op: "save", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &faults.PersistenceError{Op: "save", Err: err}
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return &faults.PersistenceError{Op: "save", Err: err}
	}
	s.log.Debug("Popup state saved.", zap.String("path", s.path))
	return nil
}

func (s *FileStore) Take(_ context.Context) (*protocol.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &faults.PersistenceError{Op: "take", Err: err}
	}
	// The snapshot is consumed even when it turns out to be unreadable.
	if err := os.Remove(s.path); err != nil {
		return nil, &faults.PersistenceError{Op: "take", Err: err}
	}

	state, err := decodeState(data)
	if err != nil {
		return nil, &faults.PersistenceError{Op: "take", Err: fmt.Errorf("decoding %s: %w", s.path, err)}
	}
	return state, nil
}

func (s *FileStore) Close() error { return nil }
