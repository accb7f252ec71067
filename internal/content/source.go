// Package content loads the frontend's static collections from disk.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/dbsmedya/contentsync/internal/record"
)

// ErrCollectionNotFound is returned when no content file exists for a collection.
var ErrCollectionNotFound = errors.New("collection content not found")

// Source provides the frontend copy of a collection.
type Source interface {
	Load(ctx context.Context, collection string) ([]record.Raw, error)
}

// extensions are tried in order when resolving a collection file.
var extensions = []string{".yaml", ".yml", ".json"}

// FileSource reads <dir>/<collection>.yaml|.yml|.json.
type FileSource struct {
	dir      string
	validate bool
}

// NewFileSource creates a FileSource. When validate is set, every load is checked
// against the collection schema.
func NewFileSource(dir string, validate bool) *FileSource {
	return &FileSource{dir: dir, validate: validate}
}

// Path returns the file that backs a collection.
func (s *FileSource) Path(collection string) (string, error) {
	for _, ext := range extensions {
		candidate := filepath.Join(s.dir, collection+ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s in %s", ErrCollectionNotFound, collection, s.dir)
}

// Load reads and decodes a collection. The file may hold a bare list, or a map with
// the list under "items" or under the collection's own name.
func (s *FileSource) Load(ctx context.Context, collection string) ([]record.Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.Path(collection)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var doc any
	if filepath.Ext(path) == ".json" {
		err = json.Unmarshal(data, &doc)
	} else {
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, &ShapeError{Collection: collection, Cause: fmt.Errorf("failed to decode %s: %w", path, err)}
	}

	records, err := extract(collection, doc)
	if err != nil {
		return nil, err
	}

	if s.validate {
		if err := ValidateShape(collection, records); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func extract(collection string, doc any) ([]record.Raw, error) {
	switch v := doc.(type) {
	case nil:
		return []record.Raw{}, nil
	case []any:
		return toRecords(collection, v)
	case map[string]any:
		for _, key := range []string{collection, "items"} {
			if list, ok := v[key].([]any); ok {
				return toRecords(collection, list)
			}
		}
	}
	return nil, &ShapeError{Collection: collection, Cause: fmt.Errorf("expected a list of records, got %T", doc)}
}

func toRecords(collection string, items []any) ([]record.Raw, error) {
	out := make([]record.Raw, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, &ShapeError{
				Collection: collection,
				Errors:     []FieldError{{Field: fmt.Sprintf("%d", i), Message: fmt.Sprintf("expected an object, got %T", item)}},
			}
		}
		out = append(out, record.Raw(obj))
	}
	return out, nil
}

// StaticSource serves collections held in memory.
type StaticSource struct {
	mu          sync.RWMutex
	collections map[string][]record.Raw
}

// NewStaticSource creates a StaticSource from the given collections.
func NewStaticSource(collections map[string][]record.Raw) *StaticSource {
	s := &StaticSource{collections: make(map[string][]record.Raw)}
	for name, records := range collections {
		s.collections[name] = records
	}
	return s
}

// Set replaces a collection.
func (s *StaticSource) Set(collection string, records []record.Raw) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collection] = records
}

func (s *StaticSource) Load(ctx context.Context, collection string) ([]record.Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	out := make([]record.Raw, len(records))
	copy(out, records)
	return out, nil
}
