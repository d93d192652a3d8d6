package fichiers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch keeps the index in step with files added or removed in the storage
// directory behind the API's back. It blocks until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	if s.index == nil {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(s.dir); err != nil {
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}
	s.log.Info("watching storage directory", zap.String("dir", s.dir))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			s.handleEvent(ctx, event)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("watcher error", zap.Error(err))
		}
	}
}

func (s *Store) handleEvent(ctx context.Context, event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if !ValidName(name) {
		return
	}

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		fi, err := os.Stat(event.Name)
		if err != nil || !fi.Mode().IsRegular() {
			return
		}
		if e, err := s.index.Get(ctx, name); err == nil && e.Size == fi.Size() {
			return
		}
		if _, err := s.indexFile(ctx, name, fi.Size()); err != nil {
			s.log.Warn("indexing file", zap.String("file", name), zap.Error(err))
			return
		}
		s.log.Debug("file indexed", zap.String("file", name))
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		if _, err := os.Stat(event.Name); err == nil {
			return
		}
		if err := s.index.Delete(ctx, name); err != nil {
			s.log.Warn("unindexing file", zap.String("file", name), zap.Error(err))
			return
		}
		s.log.Debug("file unindexed", zap.String("file", name))
	}
}
