package configstore

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// CoalesceDelay is the deferred-write delay after the last change
// before a dirty store is flushed to disk.
const CoalesceDelay = 3 * time.Second

// Store owns a Document backed by a file on disk, coalescing writes so
// that a burst of Mutate calls produces a single flush CoalesceDelay
// after the last one. This is the persistence layer behind the loco DB,
// turnout DB and the system/booster/protocol/network config sections.
type Store struct {
	path string
	log  *logrus.Logger

	mu  sync.Mutex
	doc *Document

	flushMu    sync.Mutex
	flushTimer *time.Timer
	dirty      bool

	watcher     *fsnotify.Watcher
	watcherStop chan struct{}
}

// Open loads path if it exists, or starts from an empty Document if it
// does not (a fresh install). A non-existence error is not fatal; any
// other read/parse error is.
func Open(path string, log *logrus.Logger) (*Store, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Store{path: path, log: log, doc: NewDocument()}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	defer f.Close()

	doc, err := Parse(f)
	if err != nil {
		return nil, err
	}
	s.doc = doc
	return s, nil
}

// Mutate runs fn with exclusive access to the document and schedules a
// coalesced flush. fn must not retain the *Document after returning.
func (s *Store) Mutate(fn func(*Document)) {
	s.mu.Lock()
	fn(s.doc)
	s.mu.Unlock()
	s.scheduleFlush()
}

// View runs fn with read access to the document. fn must not retain the
// *Document after returning, and must not call Mutate/View reentrantly.
func (s *Store) View(fn func(*Document)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.doc)
}

func (s *Store) scheduleFlush() {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	s.dirty = true
	if s.flushTimer != nil {
		s.flushTimer.Stop()
	}
	s.flushTimer = time.AfterFunc(CoalesceDelay, func() {
		if err := s.Flush(); err != nil {
			s.log.WithError(err).Warn("configstore: deferred flush failed, will retry on next mutation")
		}
	})
}

// Flush writes the current document to disk immediately, regardless of
// the coalescing timer. Safe to call even when nothing is dirty.
func (s *Store) Flush() error {
	s.flushMu.Lock()
	if !s.dirty {
		s.flushMu.Unlock()
		return nil
	}
	s.flushMu.Unlock()

	s.mu.Lock()
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	err = s.doc.Write(f)
	closeErr := f.Close()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if closeErr != nil {
		return closeErr
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}

	s.flushMu.Lock()
	s.dirty = false
	s.flushMu.Unlock()
	return nil
}

// Close flushes any pending write and stops the external-change watcher
// if one was started.
func (s *Store) Close() error {
	s.flushMu.Lock()
	if s.flushTimer != nil {
		s.flushTimer.Stop()
	}
	s.flushMu.Unlock()

	s.stopWatch()
	return s.Flush()
}

// WatchExternalChanges starts an fsnotify watch on the store's file so
// that edits made outside the process (an operator hand-editing the
// file, or a factory-reset deleting it) are picked up: onReload is
// called with the freshly re-parsed Document whenever the file changes
// on disk due to something other than our own Flush.
func (s *Store) WatchExternalChanges(onReload func(*Document)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return err
	}

	s.watcher = w
	s.watcherStop = make(chan struct{})

	go func() {
		for {
			select {
			case <-s.watcherStop:
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name != s.path {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
					continue
				}
				s.reloadFromDisk(onReload)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.WithError(err).Warn("configstore: watch error")
			}
		}
	}()
	return nil
}

func (s *Store) reloadFromDisk(onReload func(*Document)) {
	f, err := os.Open(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.WithError(err).Warn("configstore: external reload failed")
		}
		return
	}
	defer f.Close()

	doc, err := Parse(f)
	if err != nil {
		s.log.WithError(err).Warn("configstore: external file is malformed, keeping in-memory copy")
		return
	}

	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()

	if onReload != nil {
		onReload(doc)
	}
}

func (s *Store) stopWatch() {
	if s.watcher == nil {
		return
	}
	close(s.watcherStop)
	s.watcher.Close()
	s.watcher = nil
}
