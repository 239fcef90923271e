package configstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// fileDocument is the on-disk layout of a FileStore.
type fileDocument struct {
	Fields map[string]any `yaml:"fields"`
}

// FileStore persists fields in a single YAML document so operators can read
// and edit stored endpoints by hand. Writes go to a temp file that is renamed
// over the original.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu        sync.Mutex
	lastWrite [sha256.Size]byte
	closed    bool
}

// NewFileStore creates a store backed by the YAML file at path. The file is
// created on first write; its directory is created immediately.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, newStorageError("file", "open", errors.New("path is required"))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, newStorageError("file", "open", err)
	}
	return &FileStore{
		path:   path,
		logger: slog.Default().With("component", "configstore.file"),
	}, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// GetField implements Store.
func (s *FileStore) GetField(_ context.Context, name string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	doc, _, err := s.read()
	if err != nil {
		return nil, err
	}
	v, ok := doc.Fields[name]
	if !ok {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, newStorageError("file", "get", err)
	}
	return data, nil
}

// SetField implements Store.
func (s *FileStore) SetField(_ context.Context, name string, value json.RawMessage) error {
	if err := validValue("file", value); err != nil {
		return err
	}
	var decoded any
	if err := json.Unmarshal(value, &decoded); err != nil {
		return newStorageError("file", "set", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	doc, _, err := s.read()
	if err != nil {
		return err
	}
	doc.Fields[name] = decoded

	out, err := yaml.Marshal(doc)
	if err != nil {
		return newStorageError("file", "set", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".configstore-*.yaml")
	if err != nil {
		return newStorageError("file", "set", err)
	}
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return newStorageError("file", "set", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return newStorageError("file", "set", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return newStorageError("file", "set", err)
	}

	s.lastWrite = sha256.Sum256(out)
	return nil
}

// ChangedExternally reports whether the file content differs from what this
// store last wrote. The watcher uses it to ignore its own writes.
func (s *FileStore) ChangedExternally() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, sum, err := s.read()
	if err != nil {
		return true
	}
	return sum != s.lastWrite
}

// Ping implements Store.
func (s *FileStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	_, _, err := s.read()
	return err
}

// Close implements Store.
func (s *FileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// read loads the document. A missing file is an empty document.
func (s *FileStore) read() (*fileDocument, [sha256.Size]byte, error) {
	doc := &fileDocument{Fields: make(map[string]any)}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, [sha256.Size]byte{}, nil
	}
	if err != nil {
		return nil, [sha256.Size]byte{}, newStorageError("file", "read", err)
	}
	sum := sha256.Sum256(data)
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, sum, nil
	}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, sum, newStorageError("file", "read", fmt.Errorf("parse %s: %w", s.path, err))
	}
	if doc.Fields == nil {
		doc.Fields = make(map[string]any)
	}
	return doc, sum, nil
}
