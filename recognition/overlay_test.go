package recognition

import (
	"context"
	"testing"
	"time"
)

type scriptedRecognizer struct {
	segments []Segment
	hold     chan struct{} // if set, the channel stays open after the script
}

func (r *scriptedRecognizer) Listen(ctx context.Context) (<-chan Segment, error) {
	out := make(chan Segment)
	go func() {
		defer close(out)
		for _, s := range r.segments {
			select {
			case out <- s:
			case <-ctx.Done():
				return
			}
		}
		if r.hold != nil {
			select {
			case <-r.hold:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

func waitForSnapshot(t *testing.T, o *Overlay, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if o.Snapshot() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("snapshot = %q, want %q", o.Snapshot(), want)
}

func TestOverlayAccumulatesFinalSegments(t *testing.T) {
	recognizer := &scriptedRecognizer{segments: []Segment{
		{Text: "hello", Final: true},
		{Text: "there", Final: true},
	}, hold: make(chan struct{})}
	overlay := NewOverlay(recognizer)
	overlay.Start(context.Background())
	defer overlay.Stop()

	waitForSnapshot(t, overlay, "hello there")
}

func TestOverlayInterimIsTransient(t *testing.T) {
	recognizer := &scriptedRecognizer{segments: []Segment{
		{Text: "hel", Final: false},
		{Text: "hello", Final: true},
		{Text: "wor", Final: false},
		{Text: "nevermind", Final: false},
	}, hold: make(chan struct{})}
	overlay := NewOverlay(recognizer)
	overlay.Start(context.Background())
	defer overlay.Stop()

	// Interim text never joins the committed transcript; each interim
	// replaces the previous one.
	waitForSnapshot(t, overlay, "hello nevermind")
}

func TestOverlayStopDiscardsState(t *testing.T) {
	recognizer := &scriptedRecognizer{segments: []Segment{
		{Text: "hello", Final: true},
	}, hold: make(chan struct{})}
	overlay := NewOverlay(recognizer)
	overlay.Start(context.Background())
	waitForSnapshot(t, overlay, "hello")

	overlay.Stop()
	if got := overlay.Snapshot(); got != "" {
		t.Fatalf("snapshot after Stop = %q, want empty", got)
	}
}

func TestOverlayUpdateCallback(t *testing.T) {
	recognizer := &scriptedRecognizer{segments: []Segment{
		{Text: "one", Final: true},
		{Text: "two", Final: true},
	}, hold: make(chan struct{})}
	overlay := NewOverlay(recognizer)

	updates := make(chan string, 4)
	overlay.OnUpdate = func(s string) { updates <- s }
	overlay.Start(context.Background())
	defer overlay.Stop()

	waitForSnapshot(t, overlay, "one two")
	if len(updates) < 2 {
		t.Fatalf("OnUpdate fired %d times, want at least 2", len(updates))
	}
}
