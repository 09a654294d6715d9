// Package dispatch routes note lifecycle events to the index registry and
// the link synchronizer.
package dispatch

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/starford/mocsync/internal/linksync"
	"github.com/starford/mocsync/internal/models"
	"github.com/starford/mocsync/internal/moc"
)

// Kind is the lifecycle event kind.
type Kind int

const (
	// KindOther covers directories, non-note files, and anything else that is ignored.
	KindOther Kind = iota
	// KindCreated indicates a new note.
	KindCreated
	// KindMoved indicates a note was renamed; Path is the destination.
	KindMoved
	// KindDeleted indicates a note was removed.
	KindDeleted
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindMoved:
		return "moved"
	case KindDeleted:
		return "deleted"
	default:
		return "other"
	}
}

// Event is a single filesystem lifecycle event.
type Event struct {
	Kind    Kind
	Path    string // created/deleted path, or move destination
	OldPath string // move source, empty otherwise
	IsDir   bool
}

// Registry is the subset of the index registry used by the dispatcher.
type Registry interface {
	Upsert(path string) (string, bool)
	Remove(path string) int
}

// Linker is the subset of the link synchronizer used by the dispatcher.
type Linker interface {
	Insert(path string) linksync.Outcome
	Remove(base, prefix string) linksync.Outcome
}

// Dispatcher applies lifecycle events one at a time.
type Dispatcher struct {
	classifier moc.Classifier
	registry   Registry
	linker     Linker
	logger     *slog.Logger
	cb         linksync.EventCallback
}

// New creates a Dispatcher. cb, if non-nil, is told about registry changes.
func New(classifier moc.Classifier, registry Registry, linker Linker, logger *slog.Logger, cb linksync.EventCallback) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		classifier: classifier,
		registry:   registry,
		linker:     linker,
		logger:     logger,
		cb:         cb,
	}
}

// Handle processes ev. It never panics: a failure while handling one event
// is logged and returned so the caller can carry on with the next one.
func (d *Dispatcher) Handle(ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch: %s %s: panic: %v", ev.Kind, ev.Path, r)
			d.logger.Error("dispatch: recovered panic",
				slog.String("kind", ev.Kind.String()),
				slog.String("path", ev.Path),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	if ev.IsDir || !moc.IsNote(ev.Path) {
		return nil
	}

	switch ev.Kind {
	case KindCreated:
		d.logger.Info("dispatch: note created", slog.String("path", ev.Path))
		d.upsert(ev.Path)
		d.linker.Insert(ev.Path)

	case KindMoved:
		d.logger.Info("dispatch: note moved", slog.String("from", ev.OldPath), slog.String("to", ev.Path))
		if ev.OldPath != "" && d.classifier.IsIndex(moc.BaseName(ev.OldPath)) {
			d.remove(ev.OldPath)
		}
		d.upsert(ev.Path)
		d.linker.Insert(ev.Path)

	case KindDeleted:
		d.logger.Info("dispatch: note deleted", slog.String("path", ev.Path))
		base := moc.BaseName(ev.Path)
		if d.classifier.IsIndex(base) {
			d.remove(ev.Path)
			return nil
		}
		if prefix, ok := moc.NotePrefix(base); ok {
			d.linker.Remove(base, prefix)
		}
	}
	return nil
}

func (d *Dispatcher) upsert(path string) {
	if !d.classifier.IsIndex(moc.BaseName(path)) {
		return
	}
	prefix, ok := d.registry.Upsert(path)
	if !ok {
		return
	}
	d.logger.Info("dispatch: index registered", slog.String("prefix", prefix), slog.String("path", path))
	d.emit(models.LinkEvent{Kind: models.KindIndexRegistered, Prefix: prefix, IndexPath: path})
}

func (d *Dispatcher) remove(path string) {
	if d.registry.Remove(path) == 0 {
		return
	}
	d.logger.Info("dispatch: index removed", slog.String("path", path))
	d.emit(models.LinkEvent{Kind: models.KindIndexRemoved, IndexPath: path})
}

func (d *Dispatcher) emit(ev models.LinkEvent) {
	if d.cb == nil {
		return
	}
	ev.At = time.Now().UTC()
	d.cb(ev)
}
