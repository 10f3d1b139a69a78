package inbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bosley/parley/audio"
)

func TestDroppedWavIsSubmitted(t *testing.T) {
	dir := t.TempDir()
	captures := make(chan *audio.CaptureResult, 1)

	watcher, err := New(dir, func(ctx context.Context, c *audio.CaptureResult) {
		captures <- c
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Run(ctx)

	// Let the watch registration land before dropping the file.
	time.Sleep(100 * time.Millisecond)

	data := audio.EncodeWAV([]int16{1, 2, 3, 4}, 8000)
	if err := os.WriteFile(filepath.Join(dir, "note.wav"), data, 0644); err != nil {
		t.Fatalf("write drop file: %v", err)
	}

	select {
	case capture := <-captures:
		if len(capture.WAV) != len(data) {
			t.Errorf("capture bytes = %d, want %d", len(capture.WAV), len(data))
		}
		if capture.Samples != 4 {
			t.Errorf("samples = %d, want 4", capture.Samples)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("dropped file was never submitted")
	}
}

func TestNonWavDropsIgnored(t *testing.T) {
	dir := t.TempDir()
	captures := make(chan *audio.CaptureResult, 1)

	watcher, err := New(dir, func(ctx context.Context, c *audio.CaptureResult) {
		captures <- c
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not audio"), 0644)
	os.WriteFile(filepath.Join(dir, "upload.wav.tmp"), []byte("partial"), 0644)
	// Header-only WAV carries no samples.
	os.WriteFile(filepath.Join(dir, "empty.wav"), audio.EncodeWAV(nil, 8000), 0644)

	select {
	case capture := <-captures:
		t.Fatalf("unexpected submission: %+v", capture)
	case <-time.After(500 * time.Millisecond):
	}
}
