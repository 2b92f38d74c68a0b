package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"digital-dean/internal/rag"
)

func TestWatcher_Creation(t *testing.T) {
	watcher, err := NewWatcher([]string{".txt", ".pdf"})
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	defer watcher.Stop()
}

func TestWatcher_DefaultExtensions(t *testing.T) {
	watcher, _ := NewWatcher(nil)
	defer watcher.Stop()

	if len(watcher.extensions) != 4 {
		t.Errorf("expected 4 default extensions, got %d", len(watcher.extensions))
	}
}

func TestWatcher_ExtensionCase(t *testing.T) {
	watcher, _ := NewWatcher([]string{".PDF"})
	defer watcher.Stop()

	if !watcher.isWatchedExtension("/tmp/Notes.pdf") || !watcher.isWatchedExtension("/tmp/notes.PDF") {
		t.Error("extension match should ignore case")
	}
	if watcher.isWatchedExtension("/tmp/notes.txt") {
		t.Error("unexpected match for .txt")
	}
}

func TestWatcher_WatchDirectory(t *testing.T) {
	dir := t.TempDir()

	watcher, _ := NewWatcher([]string{".txt"})
	defer watcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := watcher.Watch(ctx, dir)
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		os.WriteFile(filepath.Join(dir, "test.txt"), []byte("hi"), 0644)
	}()

	select {
	case event := <-events:
		if event.Operation != FileCreated {
			t.Errorf("expected create event, got %v", event.Operation)
		}
	case <-ctx.Done():
		t.Error("timeout waiting for event")
	}
}

func TestWatcher_FiltersByExtension(t *testing.T) {
	dir := t.TempDir()

	watcher, _ := NewWatcher([]string{".txt"})
	defer watcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	events, _ := watcher.Watch(ctx, dir)

	os.WriteFile(filepath.Join(dir, "test.json"), []byte("{}"), 0644)

	select {
	case <-events:
		t.Error("should not receive event for .json")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_MissingDir(t *testing.T) {
	watcher, _ := NewWatcher(nil)
	defer watcher.Stop()

	if _, err := watcher.Watch(context.Background(), filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing directory")
	}
}

type recordingIngester struct {
	mu    sync.Mutex
	paths []string
}

func (r *recordingIngester) IngestDocument(_ context.Context, path string) (rag.IngestResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return rag.IngestResult{ChunksStored: 1}, nil
}

func TestIngest_CollapsesBursts(t *testing.T) {
	events := make(chan Event, 10)
	ing := &recordingIngester{}

	events <- Event{Path: "a.txt", Operation: FileCreated}
	events <- Event{Path: "a.txt", Operation: FileModified}
	events <- Event{Path: "a.txt", Operation: FileModified}
	events <- Event{Path: "b.txt", Operation: FileCreated}
	events <- Event{Path: "b.txt", Operation: FileDeleted}
	close(events)

	Ingest(context.Background(), events, ing, time.Hour)

	if len(ing.paths) != 1 || ing.paths[0] != "a.txt" {
		t.Errorf("expected a single ingestion of a.txt, got %v", ing.paths)
	}
}

func TestIngest_AfterSettle(t *testing.T) {
	events := make(chan Event)
	ing := &recordingIngester{}
	done := make(chan struct{})

	go func() {
		Ingest(context.Background(), events, ing, 10*time.Millisecond)
		close(done)
	}()

	events <- Event{Path: "a.txt", Operation: FileCreated}
	time.Sleep(100 * time.Millisecond)
	events <- Event{Path: "a.txt", Operation: FileModified}
	time.Sleep(100 * time.Millisecond)
	close(events)
	<-done

	if len(ing.paths) != 2 {
		t.Errorf("expected two ingestions after settling, got %v", ing.paths)
	}
}

func TestSettler_StaleTimerKeepsNewerEntry(t *testing.T) {
	var fired []string
	s := newSettler(time.Hour, func(path string) { fired = append(fired, path) })

	s.schedule("a.txt")
	first := s.pending["a.txt"]
	s.schedule("a.txt")
	second := s.pending["a.txt"]
	if first == second {
		t.Fatal("expected a new timer for the second event")
	}

	// the first timer firing late must not remove the second one
	if s.expire("a.txt", first) {
		t.Error("stale timer should not expire the path")
	}
	if s.pending["a.txt"] != second {
		t.Fatal("newer timer was dropped from pending")
	}

	if paths := s.stopAll(); len(paths) != 1 || paths[0] != "a.txt" {
		t.Errorf("expected a.txt to be flushed once, got %v", paths)
	}
	s.timers.Wait()
	if len(fired) != 0 {
		t.Errorf("no timer should have fired, got %v", fired)
	}
}

func TestSettler_ExpireCurrent(t *testing.T) {
	s := newSettler(time.Hour, func(string) {})
	s.schedule("a.txt")
	cur := s.pending["a.txt"]
	if !s.expire("a.txt", cur) {
		t.Error("current timer should expire the path")
	}
	if _, ok := s.pending["a.txt"]; ok {
		t.Error("path should be gone after expiring")
	}
	cur.Stop()
	s.timers.Done()
	s.timers.Wait()
}
