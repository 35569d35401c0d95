package presets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Persistence stores preset documents by name.
type Persistence interface {
	Load(ctx context.Context) (map[string]json.RawMessage, error)
	Put(ctx context.Context, name string, doc json.RawMessage) error
	Delete(ctx context.Context, name string) error
}

// FilePersistence keeps every preset in one JSON file, keyed by name, and
// rewrites it atomically on every change.
type FilePersistence struct {
	path string

	mu   sync.Mutex
	docs map[string]json.RawMessage
}

func NewFilePersistence(path string) *FilePersistence {
	return &FilePersistence{path: path}
}

func (f *FilePersistence) Load(ctx context.Context) (map[string]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	docs := make(map[string]json.RawMessage)
	data, err := os.ReadFile(f.path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read presets file: %w", err)
	case len(data) > 0:
		if err := json.Unmarshal(data, &docs); err != nil {
			return nil, fmt.Errorf("failed to parse presets file %s: %w", f.path, err)
		}
	}

	f.docs = docs
	return copyDocs(docs), nil
}

func (f *FilePersistence) Put(ctx context.Context, name string, doc json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.docs == nil {
		f.docs = make(map[string]json.RawMessage)
	}
	prev, had := f.docs[name]
	f.docs[name] = doc
	if err := f.flush(); err != nil {
		if had {
			f.docs[name] = prev
		} else {
			delete(f.docs, name)
		}
		return err
	}
	return nil
}

func (f *FilePersistence) Delete(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, had := f.docs[name]
	if !had {
		return nil
	}
	delete(f.docs, name)
	if err := f.flush(); err != nil {
		f.docs[name] = prev
		return err
	}
	return nil
}

func (f *FilePersistence) flush() error {
	names := make([]string, 0, len(f.docs))
	for name := range f.docs {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]field, 0, len(names))
	for _, name := range names {
		fields = append(fields, field{key: name, value: f.docs[name]})
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create presets directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".presets-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(joinObject(fields)); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write presets: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write presets: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace presets file: %w", err)
	}
	return nil
}

// MemoryPersistence keeps presets for the lifetime of the process.
type MemoryPersistence struct {
	mu   sync.Mutex
	docs map[string]json.RawMessage
}

func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{docs: make(map[string]json.RawMessage)}
}

func (m *MemoryPersistence) Load(ctx context.Context) (map[string]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyDocs(m.docs), nil
}

func (m *MemoryPersistence) Put(ctx context.Context, name string, doc json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[name] = doc
	return nil
}

func (m *MemoryPersistence) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, name)
	return nil
}

func copyDocs(in map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(in))
	for k, v := range in {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}
