// Package linksync keeps "- [[note]]" lines in index notes in step with the
// notes that share their prefix.
package linksync

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/starford/mocsync/internal/checksum"
	"github.com/starford/mocsync/internal/models"
	"github.com/starford/mocsync/internal/moc"
	"github.com/starford/mocsync/internal/storage"
)

// Outcome reports what a synchronisation call did.
type Outcome int

const (
	OutcomeAdded Outcome = iota
	OutcomeRemoved
	OutcomePresent   // link already in the index note
	OutcomeAbsent    // nothing to remove
	OutcomeIndexNote // the note is itself an index note
	OutcomeNoPrefix  // name has no separator
	OutcomeNoIndex   // no index note registered for the prefix
	OutcomeFailed    // I/O error, logged
)

// String returns a human-readable representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeAdded:
		return "added"
	case OutcomeRemoved:
		return "removed"
	case OutcomePresent:
		return "present"
	case OutcomeAbsent:
		return "absent"
	case OutcomeIndexNote:
		return "index_note"
	case OutcomeNoPrefix:
		return "no_prefix"
	case OutcomeNoIndex:
		return "no_index"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Resolver looks up the index note owning a prefix.
type Resolver interface {
	Resolve(prefix string) (string, bool)
}

// EventCallback is called after every change (or failed attempt) to an index note.
type EventCallback func(ev models.LinkEvent)

// Synchronizer inserts and removes link lines. Read-modify-write cycles on
// the same index note are serialised.
type Synchronizer struct {
	store      storage.Provider
	resolver   Resolver
	classifier moc.Classifier
	logger     *slog.Logger
	cb         EventCallback

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Synchronizer. cb may be nil.
func New(store storage.Provider, resolver Resolver, classifier moc.Classifier, logger *slog.Logger, cb EventCallback) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		store:      store,
		resolver:   resolver,
		classifier: classifier,
		logger:     logger,
		cb:         cb,
		locks:      make(map[string]*sync.Mutex),
	}
}

// Insert appends the link line for the note at path to its index note,
// unless the note is an index note itself or the link is already there.
func (s *Synchronizer) Insert(path string) Outcome {
	base := moc.BaseName(path)
	if s.classifier.IsIndex(base) {
		s.logger.Debug("linksync: skip index note", slog.String("note", base))
		return OutcomeIndexNote
	}

	prefix, ok := moc.NotePrefix(base)
	if !ok || prefix == "" {
		s.logger.Debug("linksync: no prefix", slog.String("note", base))
		return OutcomeNoPrefix
	}

	target, ok := s.resolver.Resolve(prefix)
	if !ok {
		s.logger.Info("linksync: no matching index", slog.String("note", base), slog.String("prefix", prefix))
		return OutcomeNoIndex
	}

	link := moc.LinkLine(base)

	unlock := s.lock(target)
	defer unlock()

	data, err := s.store.Read(target)
	if err != nil {
		return s.fail("insert", base, prefix, target, err)
	}
	content := string(data)
	if strings.Contains(content, link) ||
		strings.Contains(content, moc.LinkLine(strings.TrimSuffix(base, moc.NoteExt))) {
		s.logger.Debug("linksync: link already present", slog.String("note", base), slog.String("index", target))
		return OutcomePresent
	}

	var add strings.Builder
	if content != "" && !strings.HasSuffix(content, "\n") {
		add.WriteString("\n")
	}
	add.WriteString(link)

	if err := s.store.Append(target, []byte(add.String())); err != nil {
		return s.fail("insert", base, prefix, target, err)
	}

	sum := checksum.Sum([]byte(content + add.String()))
	s.logger.Info("linksync: link added",
		slog.String("note", base),
		slog.String("index", target),
		slog.String("checksum", checksum.Short(sum)))
	s.emit(models.LinkEvent{Kind: models.KindLinkAdded, Note: base, Prefix: prefix, IndexPath: target, Checksum: sum})
	return OutcomeAdded
}

// Remove deletes every line equal to the note's link line (ignoring
// surrounding whitespace) from the index note owning prefix. The file is
// only rewritten when something was removed.
func (s *Synchronizer) Remove(base, prefix string) Outcome {
	if prefix == "" {
		return OutcomeNoPrefix
	}

	target, ok := s.resolver.Resolve(prefix)
	if !ok {
		s.logger.Info("linksync: no matching index", slog.String("note", base), slog.String("prefix", prefix))
		return OutcomeNoIndex
	}

	link := moc.LinkLine(base)

	unlock := s.lock(target)
	defer unlock()

	data, err := s.store.Read(target)
	if err != nil {
		return s.fail("remove", base, prefix, target, err)
	}

	kept, removed := dropLines(string(data), link)
	if removed == 0 {
		s.logger.Debug("linksync: link not found", slog.String("note", base), slog.String("index", target))
		return OutcomeAbsent
	}

	if err := s.store.Write(target, []byte(kept)); err != nil {
		return s.fail("remove", base, prefix, target, err)
	}

	sum := checksum.Sum([]byte(kept))
	s.logger.Info("linksync: link removed",
		slog.String("note", base),
		slog.String("index", target),
		slog.Int("lines", removed),
		slog.String("checksum", checksum.Short(sum)))
	s.emit(models.LinkEvent{Kind: models.KindLinkRemoved, Note: base, Prefix: prefix, IndexPath: target, Checksum: sum})
	return OutcomeRemoved
}

// dropLines removes lines whose trimmed content equals link, keeping every
// other line with its original terminator.
func dropLines(content, link string) (string, int) {
	var b strings.Builder
	b.Grow(len(content))
	removed := 0
	for _, line := range strings.SplitAfter(content, "\n") {
		if line == "" {
			continue
		}
		if strings.TrimSpace(line) == link {
			removed++
			continue
		}
		b.WriteString(line)
	}
	return b.String(), removed
}

func (s *Synchronizer) fail(op, base, prefix, target string, err error) Outcome {
	s.logger.Error("linksync: "+op+" failed",
		slog.String("note", base),
		slog.String("index", target),
		slog.String("error", err.Error()))
	s.emit(models.LinkEvent{Kind: models.KindSyncFailed, Note: base, Prefix: prefix, IndexPath: target, Error: op + ": " + err.Error()})
	return OutcomeFailed
}

func (s *Synchronizer) emit(ev models.LinkEvent) {
	if s.cb == nil {
		return
	}
	ev.At = time.Now().UTC()
	s.cb(ev)
}

// lock serialises access to one index note and returns its unlock func.
func (s *Synchronizer) lock(path string) func() {
	s.mu.Lock()
	m, ok := s.locks[path]
	if !ok {
		m = &sync.Mutex{}
		s.locks[path] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}
