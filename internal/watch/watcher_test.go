package watch

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu       sync.Mutex
	events   []ChangeEvent
	notified chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notified: make(chan struct{}, 10)}
}

func (r *recorder) handle(ev ChangeEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	select {
	case r.notified <- struct{}{}:
	default:
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) all() []ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ChangeEvent(nil), r.events...)
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.notified:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a change event")
	}
}

func newTestWatcher(t *testing.T, dir string) (*Watcher, *recorder) {
	t.Helper()
	rec := newRecorder()
	w, err := New(rec.handle, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { w.Close() })
	w.SetDebounceDelay(30 * time.Millisecond)
	w.Start()
	if err := w.Add(dir); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	return w, rec
}

func TestWatcher_ReportsPayloadFiles(t *testing.T) {
	dir := t.TempDir()
	_, rec := newTestWatcher(t, dir)

	wf := filepath.Join(dir, "upscale.yaml")
	if err := os.WriteFile(wf, []byte("name: upscale\n"), 0644); err != nil {
		t.Fatal(err)
	}
	rec.wait(t)

	events := rec.all()
	last := events[len(events)-1]
	if len(last.Updated) != 1 || last.Updated[0] != wf {
		t.Errorf("Updated = %v, want [%s]", last.Updated, wf)
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	_, rec := newTestWatcher(t, dir)

	for _, name := range []string{"notes.md", ".hidden.json", "wf.json.tmp"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	time.Sleep(150 * time.Millisecond)
	if n := rec.count(); n != 0 {
		t.Errorf("got %d events for non-payload files", n)
	}
}

func TestWatcher_Debouncing(t *testing.T) {
	dir := t.TempDir()
	_, rec := newTestWatcher(t, dir)

	for i := 0; i < 5; i++ {
		name := filepath.Join(dir, "wf"+strconv.Itoa(i)+".json")
		if err := os.WriteFile(name, []byte("{}"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	rec.wait(t)
	time.Sleep(100 * time.Millisecond)

	count := rec.count()
	if count == 0 || count > 3 {
		t.Errorf("expected debouncing to batch changes, got %d events", count)
	}
	total := 0
	for _, ev := range rec.all() {
		total += len(ev.Updated)
	}
	if total < 5 {
		t.Errorf("expected all 5 files reported, got %d", total)
	}
}

func TestWatcher_ReportsRemovals(t *testing.T) {
	dir := t.TempDir()
	wf := filepath.Join(dir, "old.json")
	if err := os.WriteFile(wf, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	_, rec := newTestWatcher(t, dir)

	if err := os.Remove(wf); err != nil {
		t.Fatal(err)
	}
	rec.wait(t)

	last := rec.all()[rec.count()-1]
	if len(last.Removed) != 1 || last.Removed[0] != wf {
		t.Errorf("Removed = %v, want [%s]", last.Removed, wf)
	}
}

func TestWatcher_Add(t *testing.T) {
	dir := t.TempDir()
	w, _ := newTestWatcher(t, dir)

	// Adding again is a no-op.
	if err := w.Add(dir); err != nil {
		t.Errorf("second Add() error = %v", err)
	}
	if w.WatchedDirCount() != 1 {
		t.Errorf("WatchedDirCount() = %d, want 1", w.WatchedDirCount())
	}

	if err := w.Add(filepath.Join(dir, "missing")); err == nil {
		t.Error("Add() of a missing dir should fail")
	}
	file := filepath.Join(dir, "file.json")
	os.WriteFile(file, []byte("{}"), 0644)
	if err := w.Add(file); err == nil {
		t.Error("Add() of a file should fail")
	}
}

func TestWatcher_NoEventsAfterClose(t *testing.T) {
	dir := t.TempDir()
	rec := newRecorder()
	w, err := New(rec.handle, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	w.SetDebounceDelay(20 * time.Millisecond)
	w.Start()
	if err := w.Add(dir); err != nil {
		t.Fatal(err)
	}
	w.Close()

	os.WriteFile(filepath.Join(dir, "late.json"), []byte("{}"), 0644)
	time.Sleep(100 * time.Millisecond)
	if n := rec.count(); n != 0 {
		t.Errorf("got %d events after Close", n)
	}
}
