package transcribe

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bosley/parley/audio"
)

func testCapture() *audio.CaptureResult {
	pcm := []int16{100, -100, 200, -200}
	return &audio.CaptureResult{
		WAV:      audio.EncodeWAV(pcm, 8000),
		Samples:  len(pcm),
		Duration: audio.Duration(len(pcm), 8000),
	}
}

func TestTranscribeSuccess(t *testing.T) {
	var gotAudio []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messaging/upload-audio/" {
			t.Errorf("path = %q", r.URL.Path)
		}
		file, _, err := r.FormFile("audio_file")
		if err != nil {
			t.Errorf("missing audio_file field: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		gotAudio, _ = io.ReadAll(file)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"transcription": "hello there"}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL, Token: "tok"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	capture := testCapture()
	transcript, err := client.Transcribe(context.Background(), capture)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if transcript.Text != "hello there" {
		t.Errorf("Text = %q, want %q", transcript.Text, "hello there")
	}
	if !bytes.Equal(transcript.SourceAudio, capture.WAV) {
		t.Error("SourceAudio does not match the uploaded capture")
	}
	if !bytes.Equal(gotAudio, capture.WAV) {
		t.Error("server did not receive the capture bytes")
	}
}

func TestTranscribeEmptyCapture(t *testing.T) {
	client, err := NewClient(Config{BaseURL: "http://localhost:1"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	for _, capture := range []*audio.CaptureResult{nil, {}} {
		if _, err := client.Transcribe(context.Background(), capture); !errors.Is(err, ErrEmptyCapture) {
			t.Errorf("Transcribe(%v) error = %v, want ErrEmptyCapture", capture, err)
		}
	}
}

func TestTranscribeServerRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad audio", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client, _ := NewClient(Config{BaseURL: server.URL})
	_, err := client.Transcribe(context.Background(), testCapture())
	if !errors.Is(err, ErrServerRejected) {
		t.Fatalf("Transcribe() error = %v, want ErrServerRejected", err)
	}
}

func TestTranscribeUploadFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse all connections

	client, _ := NewClient(Config{BaseURL: server.URL, Timeout: time.Second})
	_, err := client.Transcribe(context.Background(), testCapture())
	if !errors.Is(err, ErrUploadFailed) {
		t.Fatalf("Transcribe() error = %v, want ErrUploadFailed", err)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("NewClient with empty base URL succeeded")
	}
}
