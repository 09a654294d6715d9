package dispatch

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/mocsync/internal/linksync"
	"github.com/starford/mocsync/internal/models"
	"github.com/starford/mocsync/internal/moc"
	"github.com/starford/mocsync/internal/registry"
	"github.com/starford/mocsync/internal/storage"
)

var quiet = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// recorder captures every call made by the dispatcher.
type recorder struct {
	calls []string
	panic bool
}

func (r *recorder) Upsert(path string) (string, bool) {
	r.calls = append(r.calls, "upsert:"+path)
	c := moc.Classifier{}.Classify(moc.BaseName(path))
	return c.Prefix, c.Index && c.Prefix != ""
}

func (r *recorder) Remove(path string) int {
	r.calls = append(r.calls, "remove:"+path)
	return 1
}

func (r *recorder) Insert(path string) linksync.Outcome {
	if r.panic {
		panic("boom")
	}
	r.calls = append(r.calls, "insert:"+path)
	return linksync.OutcomeAdded
}

func (r *recorder) LinkRemove(base, prefix string) linksync.Outcome {
	r.calls = append(r.calls, "unlink:"+base+"|"+prefix)
	return linksync.OutcomeRemoved
}

// linker adapts recorder to the Linker interface (Remove is taken by Registry).
type linker struct{ *recorder }

func (l linker) Remove(base, prefix string) linksync.Outcome { return l.LinkRemove(base, prefix) }

func newRecorded() (*Dispatcher, *recorder, *[]models.LinkEvent) {
	rec := &recorder{}
	var events []models.LinkEvent
	d := New(moc.Classifier{}, rec, linker{rec}, quiet, func(ev models.LinkEvent) { events = append(events, ev) })
	return d, rec, &events
}

func TestHandle_Routing(t *testing.T) {
	cases := []struct {
		name string
		ev   Event
		want []string
	}{
		{
			name: "created note",
			ev:   Event{Kind: KindCreated, Path: "/v/Projects - Plan.md"},
			want: []string{"insert:/v/Projects - Plan.md"},
		},
		{
			name: "created index note",
			ev:   Event{Kind: KindCreated, Path: "/v/Projects - MOC.md"},
			want: []string{"upsert:/v/Projects - MOC.md", "insert:/v/Projects - MOC.md"},
		},
		{
			name: "moved note uses destination",
			ev:   Event{Kind: KindMoved, OldPath: "/v/Draft.md", Path: "/v/Projects - Plan.md"},
			want: []string{"insert:/v/Projects - Plan.md"},
		},
		{
			name: "moved index note",
			ev:   Event{Kind: KindMoved, OldPath: "/v/Old - MOC.md", Path: "/v/New - MOC.md"},
			want: []string{"remove:/v/Old - MOC.md", "upsert:/v/New - MOC.md", "insert:/v/New - MOC.md"},
		},
		{
			name: "deleted note",
			ev:   Event{Kind: KindDeleted, Path: "/v/sub/Projects - Plan.md"},
			want: []string{"unlink:Projects - Plan|Projects"},
		},
		{
			name: "deleted note without prefix",
			ev:   Event{Kind: KindDeleted, Path: "/v/Groceries.md"},
			want: nil,
		},
		{
			name: "deleted index note",
			ev:   Event{Kind: KindDeleted, Path: "/v/Projects - MOC.md"},
			want: []string{"remove:/v/Projects - MOC.md"},
		},
		{
			name: "non-note ignored",
			ev:   Event{Kind: KindCreated, Path: "/v/Projects - Plan.txt"},
			want: nil,
		},
		{
			name: "directory ignored",
			ev:   Event{Kind: KindCreated, Path: "/v/Projects - dir.md", IsDir: true},
			want: nil,
		},
		{
			name: "other ignored",
			ev:   Event{Kind: KindOther, Path: "/v/Projects - Plan.md"},
			want: nil,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, rec, _ := newRecorded()
			if err := d.Handle(tc.ev); err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if strings.Join(rec.calls, ",") != strings.Join(tc.want, ",") {
				t.Errorf("calls = %q, want %q", rec.calls, tc.want)
			}
		})
	}
}

func TestHandle_RegistryEvents(t *testing.T) {
	d, _, events := newRecorded()
	_ = d.Handle(Event{Kind: KindCreated, Path: "/v/Projects - MOC.md"})
	_ = d.Handle(Event{Kind: KindDeleted, Path: "/v/Projects - MOC.md"})

	if len(*events) != 2 {
		t.Fatalf("events = %+v", *events)
	}
	if (*events)[0].Kind != models.KindIndexRegistered || (*events)[0].Prefix != "Projects" {
		t.Errorf("first event = %+v", (*events)[0])
	}
	if (*events)[1].Kind != models.KindIndexRemoved {
		t.Errorf("second event = %+v", (*events)[1])
	}
}

func TestHandle_RecoversPanic(t *testing.T) {
	d, rec, _ := newRecorded()
	rec.panic = true
	if err := d.Handle(Event{Kind: KindCreated, Path: "/v/Projects - Plan.md"}); err == nil {
		t.Fatal("expected error from panicking handler")
	}
	rec.panic = false
	if err := d.Handle(Event{Kind: KindCreated, Path: "/v/Projects - Next.md"}); err != nil {
		t.Fatalf("dispatcher should keep working: %v", err)
	}
}

func TestKindString(t *testing.T) {
	if KindMoved.String() != "moved" || Kind(42).String() != "other" {
		t.Error("unexpected kind names")
	}
}

// vault wires the real registry and synchronizer for end-to-end scenarios.
type vault struct {
	root string
	reg  *registry.Registry
	d    *Dispatcher
}

func newVault(t *testing.T) *vault {
	t.Helper()
	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	reg := registry.New(store, moc.Classifier{}, quiet)
	sync := linksync.New(store, reg, moc.Classifier{}, quiet, nil)
	return &vault{root: store.Root(), reg: reg, d: New(moc.Classifier{}, reg, sync, quiet, nil)}
}

func (v *vault) create(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(v.root, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := v.d.Handle(Event{Kind: KindCreated, Path: p}); err != nil {
		t.Fatal(err)
	}
	return p
}

func (v *vault) remove(t *testing.T, p string) {
	t.Helper()
	if err := os.Remove(p); err != nil {
		t.Fatal(err)
	}
	if err := v.d.Handle(Event{Kind: KindDeleted, Path: p}); err != nil {
		t.Fatal(err)
	}
}

func content(t *testing.T, p string) string {
	t.Helper()
	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestScenario_CreateThenDelete(t *testing.T) {
	v := newVault(t)
	mocPath := filepath.Join(v.root, "Projects - MOC.md")
	if err := os.WriteFile(mocPath, []byte("# Projects\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := v.reg.Rebuild(); err != nil {
		t.Fatal(err)
	}

	note := v.create(t, "Projects - Rewrite Plan.md", "")
	if got := content(t, mocPath); got != "# Projects\n- [[Projects - Rewrite Plan]]" {
		t.Fatalf("after create: %q", got)
	}

	// Duplicate notifications are harmless.
	_ = v.d.Handle(Event{Kind: KindCreated, Path: note})
	if n := strings.Count(content(t, mocPath), "[[Projects - Rewrite Plan]]"); n != 1 {
		t.Fatalf("link count = %d", n)
	}

	v.remove(t, note)
	if got := content(t, mocPath); got != "# Projects\n" {
		t.Errorf("after delete: %q", got)
	}

	// A second delete for the same note is a no-op.
	if err := v.d.Handle(Event{Kind: KindDeleted, Path: note}); err != nil {
		t.Fatal(err)
	}
}

func TestScenario_NoRetroactiveLinking(t *testing.T) {
	v := newVault(t)
	v.create(t, "Archive - Old Notes.md", "")
	mocPath := v.create(t, "Archive - MOC.md", "")

	if got := content(t, mocPath); got != "" {
		t.Errorf("index note = %q, want empty", got)
	}
	if _, ok := v.reg.Resolve("Archive"); !ok {
		t.Error("created index note should be registered")
	}
}

func TestScenario_LooseIndexNote(t *testing.T) {
	v := newVault(t)
	v.create(t, "Random - MOC.md", "")
	random := v.create(t, "Random MOC Thoughts.md", "")

	got, ok := v.reg.Resolve("Random Thoughts")
	if !ok || got != random {
		t.Errorf("Resolve = %q, %v; want %q", got, ok, random)
	}
	if c := content(t, filepath.Join(v.root, "Random - MOC.md")); c != "" {
		t.Errorf("loose index note was linked: %q", c)
	}
}

func TestScenario_IndexNoteDeleted(t *testing.T) {
	v := newVault(t)
	mocPath := v.create(t, "Projects - MOC.md", "")
	v.remove(t, mocPath)

	if _, ok := v.reg.Resolve("Projects"); ok {
		t.Error("deleted index note should be unregistered")
	}
}

func TestScenario_IndexNoteRenamed(t *testing.T) {
	v := newVault(t)
	oldPath := v.create(t, "Projects - MOC.md", "")
	newPath := filepath.Join(v.root, "Work - MOC.md")
	if err := os.Rename(oldPath, newPath); err != nil {
		t.Fatal(err)
	}
	if err := v.d.Handle(Event{Kind: KindMoved, OldPath: oldPath, Path: newPath}); err != nil {
		t.Fatal(err)
	}
	if _, ok := v.reg.Resolve("Projects"); ok {
		t.Error("old prefix should be gone")
	}
	v.create(t, "Work - Task.md", "")
	if got := content(t, newPath); got != "- [[Work - Task]]" {
		t.Errorf("renamed index note = %q", got)
	}
}
