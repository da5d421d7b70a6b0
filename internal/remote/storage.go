package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/prismworlds/portal/internal/model"
)

// SessionStorage はセッションの保存先。
// プロセス再起動後も既存セッションから起動できるようにする。
type SessionStorage interface {
	// Load は保存済みセッションを返す。存在しない場合はnilを返す。
	Load() (*model.Session, error)
	Save(session *model.Session) error
	Clear() error
}

// MemoryStorage はプロセス内だけでセッションを保持する。
type MemoryStorage struct {
	mu      sync.Mutex
	session *model.Session
}

// NewMemoryStorage はMemoryStorageを生成する。
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Load は保存済みセッションを返す。
func (m *MemoryStorage) Load() (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, nil
	}
	s := *m.session
	return &s, nil
}

// Save はセッションを保存する。
func (m *MemoryStorage) Save(session *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := *session
	m.session = &s
	return nil
}

// Clear は保存済みセッションを削除する。
func (m *MemoryStorage) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}

// FileStorage はJSONファイルにセッションを保存する。
// トークンを含むため、ファイルは0600で作成する。
type FileStorage struct {
	path string
}

// NewFileStorage はFileStorageを生成する。
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Load は保存済みセッションを返す。
func (f *FileStorage) Load() (*model.Session, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session file: %w", err)
	}
	if session.AccessToken == "" {
		return nil, nil
	}
	return &session, nil
}

// Save はセッションを一時ファイル経由で書き込む。
func (f *FileStorage) Save(session *model.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Clear はセッションファイルを削除する。
func (f *FileStorage) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
