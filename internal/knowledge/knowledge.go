// Package knowledge manages the on-disk knowledge library: plain text,
// markdown, and JSON documents that can be activated into the system prompt.
package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var supportedExts = map[string]bool{
	".txt":  true,
	".md":   true,
	".json": true,
}

// Library indexes knowledge files under a directory.
type Library struct {
	mu  sync.RWMutex
	dir string
	// files maps logical name (filename without extension) to path.
	files map[string]string
	log   zerolog.Logger
}

// NewLibrary scans dir and returns the library. A missing directory is not
// an error; the library is just empty until a rescan finds it.
func NewLibrary(dir string, log zerolog.Logger) *Library {
	l := &Library{
		dir:   dir,
		files: make(map[string]string),
		log:   log,
	}
	l.Rescan()
	return l
}

// Rescan rebuilds the name index from the directory. Returns the names found.
func (l *Library) Rescan() []string {
	files := make(map[string]string)
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			l.log.Warn().Err(err).Str("dir", l.dir).Msg("knowledge scan failed")
		}
	} else {
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if !supportedExts[ext] {
				continue
			}
			name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
			files[name] = filepath.Join(l.dir, e.Name())
		}
	}

	l.mu.Lock()
	l.files = files
	l.mu.Unlock()

	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// List returns all known knowledge names, sorted.
func (l *Library) List() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, 0, len(l.files))
	for n := range l.files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Has reports whether a knowledge file with the given name exists.
func (l *Library) Has(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.files[name]
	return ok
}

// Load reads the named knowledge file. JSON documents are re-indented so the
// model sees stable, readable structure regardless of how the file was saved.
func (l *Library) Load(name string) (string, error) {
	l.mu.RLock()
	path, ok := l.files[name]
	l.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown knowledge file %q", name)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read knowledge %q: %w", name, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return "", fmt.Errorf("parse knowledge %q: %w", name, err)
		}
		pretty, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return "", fmt.Errorf("format knowledge %q: %w", name, err)
		}
		return string(pretty), nil
	}
	return string(data), nil
}

// LoadAll reads every file named in names, skipping ones that fail with a
// logged warning. The returned map is name -> body.
func (l *Library) LoadAll(names []string) map[string]string {
	out := make(map[string]string, len(names))
	for _, n := range names {
		body, err := l.Load(n)
		if err != nil {
			l.log.Warn().Err(err).Str("name", n).Msg("skipping knowledge file")
			continue
		}
		out[n] = body
	}
	return out
}
