package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay gives export tools time to finish writing a file after the
// create event fires.
const settleDelay = 2 * time.Second

// Watch follows the inbox directory and processes export files as they
// are dropped in. It blocks until the context is cancelled.
func (r *Runner) Watch(ctx context.Context) error {
	if r.cfg.Inbox == "" {
		return fmt.Errorf("no inbox directory configured")
	}
	if info, err := os.Stat(r.cfg.Inbox); err != nil || !info.IsDir() {
		return fmt.Errorf("inbox is not a directory: %s", r.cfg.Inbox)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(r.cfg.Inbox); err != nil {
		return fmt.Errorf("watch %s: %w", r.cfg.Inbox, err)
	}
	r.logger.Info("watching inbox", "dir", r.cfg.Inbox)

	exts := r.supportedExtensions()
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !exts[strings.ToLower(filepath.Ext(event.Name))] {
				continue
			}
			// Writes keep pushing the deadline forward until the file
			// settles.
			pending[event.Name] = time.Now().Add(settleDelay)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("watcher error", "error", err)

		case now := <-ticker.C:
			for path, deadline := range pending {
				if now.Before(deadline) {
					continue
				}
				delete(pending, path)
				if _, err := r.ProcessFile(ctx, path); err != nil {
					r.logger.Warn("failed to process dropped file", "path", path, "error", err)
				}
			}
		}
	}
}
