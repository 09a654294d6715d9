// Package mocservice exposes registry and synchronizer operations to the
// status API and the MCP server.
package mocservice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/mocsync/internal/apperr"
	"github.com/starford/mocsync/internal/checksum"
	"github.com/starford/mocsync/internal/journal"
	"github.com/starford/mocsync/internal/linksync"
	"github.com/starford/mocsync/internal/models"
	"github.com/starford/mocsync/internal/moc"
	"github.com/starford/mocsync/internal/parser"
	"github.com/starford/mocsync/internal/registry"
	"github.com/starford/mocsync/internal/storage"
)

// IndexDetail describes one index note and the notes it links to.
type IndexDetail struct {
	Prefix   string   `json:"prefix"`
	Path     string   `json:"path"`
	Title    string   `json:"title,omitempty"`
	Links    []string `json:"links"`
	Checksum string   `json:"checksum"`
}

// SyncResult reports the outcome of a manual sync request.
type SyncResult struct {
	Path    string `json:"path"`
	Outcome string `json:"outcome"`
	Prefix  string `json:"prefix,omitempty"`
}

// Service coordinates registry, storage, synchronizer, and journal.
type Service struct {
	store      storage.Provider
	reg        *registry.Registry
	sync       *linksync.Synchronizer
	classifier moc.Classifier
	journal    journal.Recorder
}

// NewService creates a new service. rec may be nil when the journal is disabled.
func NewService(store storage.Provider, reg *registry.Registry, sync *linksync.Synchronizer, classifier moc.Classifier, rec journal.Recorder) *Service {
	return &Service{store: store, reg: reg, sync: sync, classifier: classifier, journal: rec}
}

// Entries returns the registry contents sorted by prefix.
func (s *Service) Entries(_ context.Context) []models.RegistryEntry {
	return nonNilSlice(s.reg.Entries())
}

// Resolve returns the index note that owns prefix.
func (s *Service) Resolve(_ context.Context, prefix string) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("prefix is required: %w", apperr.ErrInvalid)
	}
	path, ok := s.reg.Resolve(prefix)
	if !ok {
		return "", apperr.ErrNotFound
	}
	return path, nil
}

// Index reads the index note for prefix and lists the notes it links to.
func (s *Service) Index(ctx context.Context, prefix string) (*IndexDetail, error) {
	path, err := s.Resolve(ctx, prefix)
	if err != nil {
		return nil, err
	}
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	return &IndexDetail{
		Prefix:   prefix,
		Path:     path,
		Title:    res.Title,
		Links:    nonNilSlice(res.Links),
		Checksum: checksum.Sum(data),
	}, nil
}

// Classify reports how name would be treated. A trailing .md is ignored.
func (s *Service) Classify(_ context.Context, name string) (moc.Classification, error) {
	if name == "" {
		return moc.Classification{}, fmt.Errorf("name is required: %w", apperr.ErrInvalid)
	}
	return s.classifier.Classify(noteName(name)), nil
}

// Rebuild rescans the vault and returns the new registry size.
func (s *Service) Rebuild(_ context.Context) (int, error) {
	if err := s.reg.Rebuild(); err != nil {
		return 0, err
	}
	return s.reg.Len(), nil
}

// SyncNote runs creation handling for an existing note: index notes are
// registered, ordinary notes are linked into their index note.
func (s *Service) SyncNote(_ context.Context, path string) (*SyncResult, error) {
	if !moc.IsNote(path) {
		return nil, fmt.Errorf("%s is not a note: %w", path, apperr.ErrInvalid)
	}
	if !s.store.Exists(path) {
		return nil, apperr.ErrNotFound
	}
	if s.classifier.IsIndex(moc.BaseName(path)) {
		prefix, _ := s.reg.Upsert(path)
		return &SyncResult{Path: path, Outcome: linksync.OutcomeIndexNote.String(), Prefix: prefix}, nil
	}
	out := s.sync.Insert(path)
	prefix, _ := moc.NotePrefix(moc.BaseName(path))
	return &SyncResult{Path: path, Outcome: out.String(), Prefix: prefix}, nil
}

// Activity returns the most recent journal entries.
func (s *Service) Activity(_ context.Context, limit int) ([]models.LinkEvent, error) {
	if s.journal == nil {
		return nil, fmt.Errorf("journal disabled: %w", apperr.ErrUnavailable)
	}
	events, err := s.journal.Recent(limit)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(events), nil
}

// NoteHistory returns every journal entry for one note.
func (s *Service) NoteHistory(_ context.Context, note string) ([]models.LinkEvent, error) {
	if s.journal == nil {
		return nil, fmt.Errorf("journal disabled: %w", apperr.ErrUnavailable)
	}
	events, err := s.journal.ForNote(noteName(note))
	if err != nil {
		return nil, err
	}
	return nonNilSlice(events), nil
}

// noteName strips a directory and a trailing .md from a user-supplied name.
func noteName(name string) string {
	return strings.TrimSuffix(filepath.Base(name), moc.NoteExt)
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
