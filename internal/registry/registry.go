// Package registry caches which index note owns each prefix in the vault.
//
// Entries are built by a full scan and then maintained incrementally as index
// notes appear or disappear. A cached path that no longer exists on disk is
// evicted the next time it is resolved.
package registry

import (
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"github.com/starford/mocsync/internal/models"
	"github.com/starford/mocsync/internal/moc"
	"github.com/starford/mocsync/internal/storage"
)

// Registry maps prefixes to absolute index-note paths.
// It is safe for concurrent use.
type Registry struct {
	store      storage.Provider
	classifier moc.Classifier
	logger     *slog.Logger

	rebuildMu sync.Mutex // serializes Rebuild

	mu      sync.RWMutex
	entries map[string]string
	// changes records mutations made while a rebuild is scanning, so they
	// can be applied on top of the scan result. Nil when no rebuild runs.
	changes []change
}

// change is one mutation. A removal drops entries pointing at path, only
// under prefix when prefix is set.
type change struct {
	prefix string
	path   string
	remove bool
}

func (c change) apply(entries map[string]string) {
	if !c.remove {
		entries[c.prefix] = c.path
		return
	}
	for prefix, p := range entries {
		if p == c.path && (c.prefix == "" || c.prefix == prefix) {
			delete(entries, prefix)
		}
	}
}

// record must be called with mu held.
func (r *Registry) record(c change) {
	if r.changes != nil {
		r.changes = append(r.changes, c)
	}
}

// New creates an empty registry over store.
func New(store storage.Provider, classifier moc.Classifier, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:      store,
		classifier: classifier,
		logger:     logger,
		entries:    make(map[string]string),
	}
}

// Rebuild clears the registry and rescans the whole vault. Later files with a
// duplicate prefix overwrite earlier ones.
func (r *Registry) Rebuild() error {
	r.rebuildMu.Lock()
	defer r.rebuildMu.Unlock()

	r.mu.Lock()
	r.changes = []change{}
	r.mu.Unlock()

	files, err := r.store.List("")
	if err != nil {
		r.mu.Lock()
		r.changes = nil
		r.mu.Unlock()
		return err
	}

	entries := make(map[string]string)
	for _, f := range files {
		c := r.classifier.Classify(moc.BaseName(f.AbsPath))
		if !c.Index || c.Prefix == "" {
			continue
		}
		entries[c.Prefix] = f.AbsPath
	}

	r.mu.Lock()
	for _, c := range r.changes {
		c.apply(entries)
	}
	replayed := len(r.changes)
	r.changes = nil
	r.entries = entries
	r.mu.Unlock()

	r.logger.Info("registry: rebuilt",
		slog.Int("files", len(files)),
		slog.Int("index_notes", len(entries)),
		slog.Int("replayed", replayed))
	return nil
}

// Upsert registers path when it is an index note with a non-empty prefix.
// It returns the prefix and whether an entry was written.
func (r *Registry) Upsert(path string) (string, bool) {
	c := r.classifier.Classify(moc.BaseName(path))
	if !c.Index || c.Prefix == "" {
		return "", false
	}
	abs := r.absPath(path)

	r.mu.Lock()
	r.entries[c.Prefix] = abs
	r.record(change{prefix: c.Prefix, path: abs})
	r.mu.Unlock()

	r.logger.Debug("registry: upsert", slog.String("prefix", c.Prefix), slog.String("path", abs))
	return c.Prefix, true
}

// Remove drops every entry pointing at path and returns how many were removed.
func (r *Registry) Remove(path string) int {
	abs := r.absPath(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.record(change{path: abs, remove: true})
	n := 0
	for prefix, p := range r.entries {
		if p == abs {
			delete(r.entries, prefix)
			n++
		}
	}
	if n > 0 {
		r.logger.Debug("registry: removed", slog.String("path", abs), slog.Int("entries", n))
	}
	return n
}

// Resolve returns the index note for prefix. A cached path that has vanished
// from disk is evicted and reported as a miss.
func (r *Registry) Resolve(prefix string) (string, bool) {
	r.mu.RLock()
	path, ok := r.entries[prefix]
	r.mu.RUnlock()
	if !ok {
		return "", false
	}
	if r.store.Exists(path) {
		return path, true
	}

	r.mu.Lock()
	// Only evict if nobody re-registered the prefix meanwhile.
	if r.entries[prefix] == path {
		delete(r.entries, prefix)
	}
	r.record(change{prefix: prefix, path: path, remove: true})
	r.mu.Unlock()

	r.logger.Info("registry: evicted stale entry", slog.String("prefix", prefix), slog.String("path", path))
	return "", false
}

// Entries returns a snapshot of the registry sorted by prefix.
func (r *Registry) Entries() []models.RegistryEntry {
	r.mu.RLock()
	out := make([]models.RegistryEntry, 0, len(r.entries))
	for prefix, path := range r.entries {
		out = append(out, models.RegistryEntry{Prefix: prefix, Path: path})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Prefix < out[j].Prefix })
	return out
}

// Len returns the number of cached entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) absPath(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(r.store.Root(), path)
}
