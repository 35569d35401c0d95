package schema

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var embedded embed.FS

// Loader reads schema documents from the search paths, falling back to the
// documents compiled into the binary.
type Loader struct {
	cache       sync.Map
	validator   *Validator
	searchPaths []string
}

func NewLoader(searchPaths []string) (*Loader, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &Loader{
		validator:   validator,
		searchPaths: searchPaths,
	}, nil
}

// Load returns the schema named e.g. "odrive-0.6".
func (l *Loader) Load(name string) (*Schema, error) {
	// Cache-Check
	if cached, ok := l.cache.Load(name); ok {
		return cached.(*Schema), nil
	}

	data, source, err := l.read(name)
	if err != nil {
		return nil, err
	}

	s, err := l.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid schema %s: %w", source, err)
	}

	actual, _ := l.cache.LoadOrStore(name, s)
	return actual.(*Schema), nil
}

// Parse validates and builds a schema from raw YAML.
func (l *Loader) Parse(data []byte) (*Schema, error) {
	if err := l.validator.ValidateDocument(data); err != nil {
		return nil, err
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}

	if err := CheckDocument(&doc); err != nil {
		return nil, fmt.Errorf("semantic check failed: %w", err)
	}

	return New(doc), nil
}

func (l *Loader) read(name string) ([]byte, string, error) {
	file := name + ".yaml"

	for _, searchPath := range l.searchPaths {
		fullPath := filepath.Join(searchPath, file)
		data, err := os.ReadFile(fullPath)
		if err == nil {
			return data, fullPath, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("failed to read %s: %w", fullPath, err)
		}
	}

	data, err := embedded.ReadFile("data/" + file)
	if err != nil {
		return nil, "", fmt.Errorf("schema not found: %s (searched in: %v and embedded)", name, l.searchPaths)
	}
	return data, "embedded:" + file, nil
}

func (l *Loader) ClearCache() {
	l.cache.Range(func(key, value interface{}) bool {
		l.cache.Delete(key)
		return true
	})
}

// Embedded lists the schema names compiled into the binary.
func Embedded() []string {
	entries, err := embedded.ReadDir("data")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".yaml"); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
