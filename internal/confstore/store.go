// Package confstore is a small JSON-backed key/value store shared by the
// bot's features. Keys are dotted paths into one document; writers persist
// the whole document atomically so a crash never leaves a torn file.
package confstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/titanous/json5"
)

const envPathKey = "NB_CONFIG_JSON_PATH"

// DefaultPath resolves the store location: $NB_CONFIG_JSON_PATH when set,
// otherwise data/config.json under the working directory.
func DefaultPath() string {
	if v := os.Getenv(envPathKey); v != "" {
		return v
	}
	return filepath.Join("data", "config.json")
}

// PluginKey namespaces a per-feature setting under plugins.<plugin>.<key>.
func PluginKey(plugin, key string) string {
	return "plugins." + plugin + "." + key
}

// Store holds the shared settings document. All methods are safe for
// concurrent use.
type Store struct {
	mu   sync.RWMutex
	path string
	doc  map[string]interface{}
}

// Open loads the store at path. A missing or unreadable file yields an
// empty document; Open never fails.
func Open(path string) *Store {
	s := &Store{path: path, doc: map[string]interface{}{}}
	s.Reload()
	return s
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Reload replaces the in-memory document with the file contents. A corrupt
// file is logged and treated as empty.
func (s *Store) Reload() {
	doc := map[string]interface{}{}
	data, err := os.ReadFile(s.path)
	if err == nil {
		var parsed map[string]interface{}
		if jerr := json5.Unmarshal(data, &parsed); jerr != nil {
			slog.Warn("config store unreadable, starting empty", "path", s.path, "error", jerr)
		} else if parsed != nil {
			doc = parsed
		}
	}

	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
}

// Get walks the dotted key and returns the value, or def when any path
// component is missing or not an object.
func (s *Store) Get(key string, def interface{}) interface{} {
	if v, ok := s.lookup(key); ok {
		return v
	}
	return def
}

// GetBool returns the value at key coerced to a bool: false for zero
// numbers, empty strings, empty collections and null, true otherwise.
// Missing keys return def.
func (s *Store) GetBool(key string, def bool) bool {
	v, ok := s.lookup(key)
	if !ok {
		return def
	}
	return truthy(v)
}

func (s *Store) lookup(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cur := interface{}(s.doc)
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func truthy(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	case []interface{}:
		return len(x) > 0
	case map[string]interface{}:
		return len(x) > 0
	default:
		return true
	}
}

// Set writes value at the dotted key, creating intermediate objects as
// needed. A scalar sitting where an object is expected is overwritten.
// The change is in-memory only until Save.
func (s *Store) Set(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parts := strings.Split(key, ".")
	cur := s.doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

// Save persists the document: temp file in the target directory, fsync,
// then rename over the destination. Parent directories are created.
func (s *Store) Save() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.doc, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return err
	}
	tmpFile.Close()

	if err := os.Rename(tmpPath, s.path); err != nil {
		return err
	}
	cleanup = false
	return nil
}
