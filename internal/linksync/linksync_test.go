package linksync

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/starford/mocsync/internal/models"
	"github.com/starford/mocsync/internal/moc"
	"github.com/starford/mocsync/internal/registry"
	"github.com/starford/mocsync/internal/storage"
)

var quiet = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

type env struct {
	root   string
	reg    *registry.Registry
	sync   *Synchronizer
	mu     sync.Mutex
	events []models.LinkEvent
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	e := &env{root: store.Root()}
	e.reg = registry.New(store, moc.Classifier{}, quiet)
	e.sync = New(store, e.reg, moc.Classifier{}, quiet, func(ev models.LinkEvent) {
		e.mu.Lock()
		e.events = append(e.events, ev)
		e.mu.Unlock()
	})
	return e
}

func (e *env) write(t *testing.T, rel, content string) string {
	t.Helper()
	p := filepath.Join(e.root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func (e *env) index(t *testing.T, rel, content string) string {
	t.Helper()
	p := e.write(t, rel, content)
	if _, ok := e.reg.Upsert(p); !ok {
		t.Fatalf("%s was not registered", rel)
	}
	return p
}

func read(t *testing.T, p string) string {
	t.Helper()
	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestInsert_AddsLinkToEmptyIndex(t *testing.T) {
	e := newEnv(t)
	mocPath := e.index(t, "Projects - MOC.md", "")
	note := e.write(t, "work/Projects - Rewrite Plan.md", "body")

	if got := e.sync.Insert(note); got != OutcomeAdded {
		t.Fatalf("Insert = %v, want added", got)
	}
	if got := read(t, mocPath); got != "- [[Projects - Rewrite Plan]]" {
		t.Errorf("index content = %q", got)
	}
	if len(e.events) != 1 || e.events[0].Kind != models.KindLinkAdded || e.events[0].Checksum == "" {
		t.Errorf("events = %+v", e.events)
	}
}

func TestInsert_AppendsAfterExistingContent(t *testing.T) {
	e := newEnv(t)
	mocPath := e.index(t, "Projects - MOC.md", "# Projects\n- [[Projects - Old]]")
	note := e.write(t, "Projects - New.md", "")

	e.sync.Insert(note)
	want := "# Projects\n- [[Projects - Old]]\n- [[Projects - New]]"
	if got := read(t, mocPath); got != want {
		t.Errorf("index content = %q, want %q", got, want)
	}
}

func TestInsert_Idempotent(t *testing.T) {
	e := newEnv(t)
	mocPath := e.index(t, "Projects - MOC.md", "# Projects\n")
	note := e.write(t, "Projects - Plan.md", "")

	if got := e.sync.Insert(note); got != OutcomeAdded {
		t.Fatalf("first Insert = %v", got)
	}
	if got := e.sync.Insert(note); got != OutcomePresent {
		t.Fatalf("second Insert = %v", got)
	}
	if n := strings.Count(read(t, mocPath), "- [[Projects - Plan]]"); n != 1 {
		t.Errorf("link occurs %d times, want 1", n)
	}
}

func TestInsert_RedundantExtension(t *testing.T) {
	e := newEnv(t)
	mocPath := e.index(t, "Projects - MOC.md", "- [[Projects - Plan]]\n")
	note := e.write(t, "Projects - Plan.md.md", "")

	if got := e.sync.Insert(note); got != OutcomePresent {
		t.Fatalf("Insert = %v, want present", got)
	}
	if got := read(t, mocPath); got != "- [[Projects - Plan]]\n" {
		t.Errorf("index modified: %q", got)
	}
}

func TestInsert_SkipsIndexNotes(t *testing.T) {
	e := newEnv(t)
	e.index(t, "Projects - MOC.md", "")
	loose := e.write(t, "Projects - MOC draft.md", "")

	if got := e.sync.Insert(loose); got != OutcomeIndexNote {
		t.Errorf("Insert = %v, want index_note", got)
	}
	if len(e.events) != 0 {
		t.Errorf("unexpected events: %+v", e.events)
	}
}

func TestInsert_NoPrefix(t *testing.T) {
	e := newEnv(t)
	if got := e.sync.Insert(e.write(t, "Groceries.md", "")); got != OutcomeNoPrefix {
		t.Errorf("Insert = %v, want no_prefix", got)
	}
	if got := e.sync.Insert(e.write(t, " - leading.md", "")); got != OutcomeNoPrefix {
		t.Errorf("Insert = %v, want no_prefix", got)
	}
}

func TestInsert_NoIndexThenNoRetroactiveLink(t *testing.T) {
	e := newEnv(t)
	note := e.write(t, "Archive - Old Notes.md", "")

	if got := e.sync.Insert(note); got != OutcomeNoIndex {
		t.Fatalf("Insert = %v, want no_index", got)
	}

	mocPath := e.index(t, "Archive - MOC.md", "")
	if got := read(t, mocPath); got != "" {
		t.Errorf("index note should stay empty, got %q", got)
	}
}

func TestRemove_DeletesOnlyMatchingLine(t *testing.T) {
	e := newEnv(t)
	content := "# Projects\r\n- [[Projects - Keep]]\r\n  - [[Projects - Rewrite Plan]]  \r\ntrailer"
	mocPath := e.index(t, "Projects - MOC.md", content)

	if got := e.sync.Remove("Projects - Rewrite Plan", "Projects"); got != OutcomeRemoved {
		t.Fatalf("Remove = %v, want removed", got)
	}
	want := "# Projects\r\n- [[Projects - Keep]]\r\ntrailer"
	if got := read(t, mocPath); got != want {
		t.Errorf("index content = %q, want %q", got, want)
	}
}

func TestRemove_AllDuplicates(t *testing.T) {
	e := newEnv(t)
	mocPath := e.index(t, "Projects - MOC.md", "- [[Projects - X]]\nmid\n- [[Projects - X]]\n")

	e.sync.Remove("Projects - X", "Projects")
	if got := read(t, mocPath); got != "mid\n" {
		t.Errorf("index content = %q", got)
	}
}

func TestRemove_NoMatchLeavesFileUntouched(t *testing.T) {
	e := newEnv(t)
	mocPath := e.index(t, "Projects - MOC.md", "- [[Projects - Other]]\n")
	info, err := os.Stat(mocPath)
	if err != nil {
		t.Fatal(err)
	}

	if got := e.sync.Remove("Projects - Gone", "Projects"); got != OutcomeAbsent {
		t.Fatalf("Remove = %v, want absent", got)
	}
	after, err := os.Stat(mocPath)
	if err != nil {
		t.Fatal(err)
	}
	if !os.SameFile(info, after) {
		t.Error("file was rewritten although nothing matched")
	}
	// Substring matches are not line matches.
	e.sync.Remove("Projects - Oth", "Projects")
	if got := read(t, mocPath); got != "- [[Projects - Other]]\n" {
		t.Errorf("index content = %q", got)
	}
}

func TestRemove_NoIndex(t *testing.T) {
	e := newEnv(t)
	if got := e.sync.Remove("Nothing - Here", "Nothing"); got != OutcomeNoIndex {
		t.Errorf("Remove = %v, want no_index", got)
	}
	if got := e.sync.Remove("x", ""); got != OutcomeNoPrefix {
		t.Errorf("Remove = %v, want no_prefix", got)
	}
}

func TestRoundTrip(t *testing.T) {
	cases := map[string]string{
		"empty":            "",
		"trailing newline": "# Projects\n- [[Projects - A]]\n",
		"no trailing":      "# Projects\n- [[Projects - A]]",
	}
	for name, original := range cases {
		t.Run(name, func(t *testing.T) {
			e := newEnv(t)
			mocPath := e.index(t, "Projects - MOC.md", original)
			note := e.write(t, "Projects - B.md", "")

			if got := e.sync.Insert(note); got != OutcomeAdded {
				t.Fatalf("Insert = %v", got)
			}
			if got := e.sync.Remove("Projects - B", "Projects"); got != OutcomeRemoved {
				t.Fatalf("Remove = %v", got)
			}
			if got, want := lines(read(t, mocPath)), lines(original); strings.Join(got, "|") != strings.Join(want, "|") {
				t.Errorf("lines = %q, want %q", got, want)
			}
		})
	}
}

func lines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

type fixedResolver string

func (f fixedResolver) Resolve(string) (string, bool) { return string(f), true }

func TestIOFailureIsReported(t *testing.T) {
	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	var got []models.LinkEvent
	missing := filepath.Join(store.Root(), "Projects - MOC.md")
	s := New(store, fixedResolver(missing), moc.Classifier{}, quiet, func(ev models.LinkEvent) { got = append(got, ev) })

	if out := s.Insert(filepath.Join(store.Root(), "Projects - A.md")); out != OutcomeFailed {
		t.Errorf("Insert = %v, want failed", out)
	}
	if out := s.Remove("Projects - A", "Projects"); out != OutcomeFailed {
		t.Errorf("Remove = %v, want failed", out)
	}
	if len(got) != 2 || got[0].Kind != models.KindSyncFailed || got[0].Error == "" {
		t.Errorf("events = %+v", got)
	}
}

func TestConcurrentInsertsSameIndex(t *testing.T) {
	e := newEnv(t)
	mocPath := e.index(t, "Projects - MOC.md", "")
	var notes []string
	for _, n := range []string{"A", "B", "C", "D", "E", "F"} {
		notes = append(notes, e.write(t, "Projects - "+n+".md", ""))
	}

	var wg sync.WaitGroup
	for _, n := range notes {
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(p string) {
				defer wg.Done()
				e.sync.Insert(p)
			}(n)
		}
	}
	wg.Wait()

	content := read(t, mocPath)
	for _, n := range []string{"A", "B", "C", "D", "E", "F"} {
		if c := strings.Count(content, "- [[Projects - "+n+"]]"); c != 1 {
			t.Errorf("link %s occurs %d times in %q", n, c, content)
		}
	}
}

func TestOutcomeString(t *testing.T) {
	if OutcomeAdded.String() != "added" || OutcomeFailed.String() != "failed" || Outcome(99).String() != "unknown" {
		t.Error("unexpected outcome names")
	}
}
