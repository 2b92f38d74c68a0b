// Package watcher ingests syllabus files as they appear in a directory.
package watcher

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"digital-dean/internal/rag"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Operation is the kind of change seen on a file
type Operation int

const (
	FileCreated Operation = iota
	FileModified
	FileDeleted
)

func (o Operation) String() string {
	switch o {
	case FileCreated:
		return "created"
	case FileModified:
		return "modified"
	case FileDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

type Event struct {
	Path      string
	Operation Operation
}

// Ingester is the part of the tutor the watcher feeds
type Ingester interface {
	IngestDocument(ctx context.Context, path string) (rag.IngestResult, error)
}

// DefaultSettle is how long a file must stay quiet before it is ingested
const DefaultSettle = 500 * time.Millisecond

type Watcher struct {
	watcher    *fsnotify.Watcher
	extensions []string
}

func NewWatcher(extensions []string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if len(extensions) == 0 {
		extensions = []string{".pdf", ".docx", ".txt", ".md"}
	}
	exts := make([]string, len(extensions))
	for i, e := range extensions {
		exts[i] = strings.ToLower(e)
	}

	return &Watcher{
		watcher:    w,
		extensions: exts,
	}, nil
}

// Watch starts monitoring dir. The channel closes when ctx is done or the watcher stops.
func (w *Watcher) Watch(ctx context.Context, dir string) (<-chan Event, error) {
	if err := w.watcher.Add(dir); err != nil {
		return nil, err
	}

	events := make(chan Event, 100)

	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !w.isWatchedExtension(event.Name) {
					continue
				}

				var op Operation
				switch {
				case event.Op.Has(fsnotify.Create):
					op = FileCreated
				case event.Op.Has(fsnotify.Write):
					op = FileModified
				case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
					op = FileDeleted
				default:
					continue
				}

				select {
				case events <- Event{Path: event.Name, Operation: op}:
				case <-ctx.Done():
					return
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Str("dir", dir).Msg("Watcher error")
			}
		}
	}()

	return events, nil
}

func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) isWatchedExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// settler holds one timer per file and calls ready once a file has been quiet for settle
type settler struct {
	mu      sync.Mutex
	pending map[string]*time.Timer
	timers  sync.WaitGroup
	settle  time.Duration
	ready   func(path string)
}

func newSettler(settle time.Duration, ready func(path string)) *settler {
	return &settler{pending: map[string]*time.Timer{}, settle: settle, ready: ready}
}

// schedule (re)starts the quiet period for path
func (s *settler) schedule(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(path)

	var t *time.Timer
	s.timers.Add(1)
	t = time.AfterFunc(s.settle, func() {
		defer s.timers.Done()
		if s.expire(path, t) {
			s.ready(path)
		}
	})
	s.pending[path] = t
}

// cancel drops any pending ingestion of path
func (s *settler) cancel(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(path)
}

func (s *settler) stopLocked(path string) {
	if t, ok := s.pending[path]; ok {
		if t.Stop() {
			s.timers.Done()
		}
		delete(s.pending, path)
	}
}

// expire removes path if t is still its current timer. A timer that fired while being
// replaced reports false, leaving the newer timer in charge.
func (s *settler) expire(path string, t *time.Timer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending[path] != t {
		return false
	}
	delete(s.pending, path)
	return true
}

// stopAll stops every pending timer and returns the paths that had not fired yet
func (s *settler) stopAll() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var paths []string
	for path, t := range s.pending {
		if t.Stop() {
			s.timers.Done()
			paths = append(paths, path)
		}
		delete(s.pending, path)
	}
	return paths
}

// Ingest feeds created and modified files to ing once they have been quiet for settle.
// Bursts of writes to one file collapse into a single ingestion. It returns when events closes.
func Ingest(ctx context.Context, events <-chan Event, ing Ingester, settle time.Duration) {
	if settle <= 0 {
		settle = DefaultSettle
	}

	ready := make(chan string, 100)
	var worker sync.WaitGroup
	worker.Add(1)
	go func() {
		defer worker.Done()
		for path := range ready {
			res, err := ing.IngestDocument(ctx, path)
			if err != nil {
				log.Error().Err(err).Str("path", path).Msg("Failed to ingest watched file")
				continue
			}
			log.Info().Str("path", path).Int("chunks", res.ChunksStored).Msg("Ingested watched file")
		}
	}()

	s := newSettler(settle, func(path string) {
		select {
		case ready <- path:
		case <-ctx.Done():
		}
	})

	for ev := range events {
		if ev.Operation == FileDeleted {
			s.cancel(ev.Path)
			continue
		}
		s.schedule(ev.Path)
	}

	// flush anything still settling so no file is silently dropped
	for _, path := range s.stopAll() {
		if ctx.Err() != nil {
			break
		}
		ready <- path
	}
	s.timers.Wait()
	close(ready)
	worker.Wait()
}
