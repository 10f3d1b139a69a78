// Package recognition provides the advisory live transcript shown while a
// recording is in progress. Its output is feedback only; the authoritative
// transcript always comes from the transcription service.
package recognition

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Segment is one update from the platform recognition facility. Interim
// segments are provisional and may be revised; final segments are settled.
type Segment struct {
	Text  string
	Final bool
}

// Recognizer abstracts the platform speech-recognition facility so desktop,
// mobile, and test backends can be substituted.
type Recognizer interface {
	// Listen starts recognition and streams segments until the context is
	// cancelled. The returned channel is closed on teardown.
	Listen(ctx context.Context) (<-chan Segment, error)
}

// Overlay accumulates final recognition segments for display. Interim
// segments are held transiently and replaced by the next update, never
// appended. Recognition failures are swallowed; the overlay must never block
// the authoritative path.
type Overlay struct {
	recognizer Recognizer

	// OnUpdate, when set, fires with the current snapshot after each segment.
	OnUpdate func(string)

	mu        sync.Mutex
	committed []string
	interim   string
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewOverlay(recognizer Recognizer) *Overlay {
	return &Overlay{recognizer: recognizer}
}

// Start begins consuming recognition segments. It runs only for the duration
// of a capture; call Stop when the recording ends.
func (o *Overlay) Start(ctx context.Context) {
	o.mu.Lock()
	if o.cancel != nil {
		o.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	o.cancel = cancel
	o.done = done
	o.committed = o.committed[:0]
	o.interim = ""
	o.mu.Unlock()

	go func() {
		defer close(done)
		segments, err := o.recognizer.Listen(ctx)
		if err != nil {
			slog.Debug("Live recognition unavailable", "error", err)
			return
		}
		for segment := range segments {
			o.apply(segment)
		}
	}()
}

// Stop tears the overlay down and discards its state. Segments still in
// flight are dropped; the overlay makes no flush guarantee.
func (o *Overlay) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	done := o.done
	o.cancel = nil
	o.done = nil
	o.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	o.mu.Lock()
	o.committed = nil
	o.interim = ""
	o.mu.Unlock()
}

// Snapshot returns the committed transcript followed by the current interim
// tail, for display.
func (o *Overlay) Snapshot() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	parts := o.committed
	if o.interim != "" {
		parts = append(parts[:len(parts):len(parts)], o.interim)
	}
	return strings.Join(parts, " ")
}

func (o *Overlay) apply(segment Segment) {
	o.mu.Lock()
	if segment.Final {
		if text := strings.TrimSpace(segment.Text); text != "" {
			o.committed = append(o.committed, text)
		}
		o.interim = ""
	} else {
		o.interim = strings.TrimSpace(segment.Text)
	}
	update := o.OnUpdate
	o.mu.Unlock()

	if update != nil {
		update(o.Snapshot())
	}
}
