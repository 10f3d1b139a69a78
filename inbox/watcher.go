// Package inbox submits audio files dropped into a watched directory through
// the same pipeline as a spoken turn.
package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bosley/parley/audio"
	"github.com/fsnotify/fsnotify"
)

// Handler receives the contents of each dropped WAV file.
type Handler func(ctx context.Context, capture *audio.CaptureResult)

// Watcher monitors a drop directory for new recordings.
type Watcher struct {
	dir     string
	watcher *fsnotify.Watcher
	handler Handler
}

func New(dir string, handler Handler) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create inbox directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		dir:     dir,
		watcher: watcher,
		handler: handler,
	}, nil
}

// Run watches until the context ends.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	if err := w.watcher.Add(w.dir); err != nil {
		slog.Error("Failed to watch inbox directory",
			"error", err,
			"path", w.dir)
		return
	}
	slog.Info("Watching inbox directory", "path", w.dir)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if err := w.handleFSEvent(ctx, event); err != nil {
				slog.Error("Failed to handle inbox event",
					"error", err,
					"event", event)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Inbox watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleFSEvent(ctx context.Context, event fsnotify.Event) error {
	// Skip temporary files and non-create events
	if strings.HasSuffix(event.Name, ".tmp") || event.Op != fsnotify.Create {
		return nil
	}
	if !strings.HasSuffix(strings.ToLower(event.Name), ".wav") {
		return nil
	}

	// Give the writer a moment to finish; drop folders are typically fed
	// by whole-file moves, but a slow copy would otherwise truncate.
	time.Sleep(100 * time.Millisecond)

	data, err := os.ReadFile(event.Name)
	if err != nil {
		return fmt.Errorf("failed to read dropped file: %w", err)
	}
	if len(data) <= 44 { // header only
		slog.Warn("Skipping empty WAV drop", "file", filepath.Base(event.Name))
		return nil
	}

	slog.Info("Submitting dropped recording",
		"file", filepath.Base(event.Name),
		"bytes", len(data))

	w.handler(ctx, &audio.CaptureResult{
		WAV:     data,
		Samples: (len(data) - 44) / 2,
	})
	return nil
}
