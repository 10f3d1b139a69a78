// Package transcribe submits finalized capture buffers to the remote
// transcription endpoint and resolves the authoritative transcript.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/bosley/parley/audio"
)

const uploadPath = "/v1/messaging/upload-audio/"

var (
	ErrEmptyCapture   = errors.New("transcribe: capture buffer is empty")
	ErrUploadFailed   = errors.New("transcribe: audio upload failed")
	ErrServerRejected = errors.New("transcribe: server rejected audio")
)

// Transcript is the authoritative result for one capture. SourceAudio is a
// locally-playable reference to the original utterance; both fields are
// immutable once produced.
type Transcript struct {
	Text        string
	SourceAudio []byte
}

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type Client struct {
	config     Config
	httpClient *http.Client
}

func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// Transcribe uploads one capture result and returns its transcript. There is
// no retry: failures surface to the caller as a transient notice. The
// transcript never touches chat state here; appending the user entry is the
// assembler's job.
func (c *Client) Transcribe(ctx context.Context, capture *audio.CaptureResult) (*Transcript, error) {
	if capture == nil || capture.Samples == 0 || len(capture.WAV) == 0 {
		return nil, ErrEmptyCapture
	}

	body, contentType, err := buildUploadBody(capture.WAV)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+uploadPath, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUploadFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrServerRejected, resp.StatusCode, respBody)
	}

	var parsed struct {
		Transcription string `json:"transcription"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: invalid response JSON: %v", ErrServerRejected, err)
	}

	slog.Debug("Audio transcribed",
		"bytes", len(capture.WAV),
		"durationSeconds", capture.Duration.Seconds(),
		"elapsed", time.Since(start),
		"text", parsed.Transcription)

	return &Transcript{
		Text:        parsed.Transcription,
		SourceAudio: capture.WAV,
	}, nil
}

func buildUploadBody(wavData []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("audio_file", "capture.wav")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fileWriter.Write(wavData); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}
