package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrDeviceUnavailable = errors.New("audio: capture device unavailable")
	ErrAlreadyRecording  = errors.New("audio: capture already in progress")
)

// State is the capture session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateFinalizing:
		return "finalizing"
	}
	return "unknown"
}

// CaptureResult is the finalized output of one recording session. It is
// produced once on Stop and consumed exactly once by the transcription
// client; the WAV bytes double as the locally-playable reference for the
// speaker's own message.
type CaptureResult struct {
	WAV      []byte
	Samples  int
	Duration time.Duration
}

// CaptureSession owns the microphone device for the duration of a recording.
// Exactly one recording may be in progress; Toggle observes and flips the
// state under one lock so an external trigger cannot double-start.
type CaptureSession struct {
	mu     sync.Mutex
	state  State
	device Device
	chunks [][]int16

	// OnStart and OnStop fire on state transitions, outside the lock.
	OnStart func()
	OnStop  func()
}

func NewCaptureSession(device Device) *CaptureSession {
	return &CaptureSession{device: device}
}

func (s *CaptureSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start transitions Idle -> Recording and begins buffering device chunks.
func (s *CaptureSession) Start() error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyRecording
	}
	s.state = StateRecording
	s.chunks = s.chunks[:0]
	s.mu.Unlock()

	if err := s.device.Open(s.bufferChunk); err != nil {
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	slog.Debug("Capture started", "sampleRate", s.device.SampleRate())
	if s.OnStart != nil {
		s.OnStart()
	}
	return nil
}

// Stop transitions Recording -> Finalizing -> Idle, flushing buffered chunks
// into one contiguous result. Stop while Idle is a no-op. A capture that
// buffered no audio yields a nil result.
func (s *CaptureSession) Stop() (*CaptureResult, error) {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return nil, nil
	}
	s.state = StateFinalizing
	s.mu.Unlock()

	// The device close waits out the last callback; buffering stops the
	// moment the state left Recording.
	err := s.device.Close()

	s.mu.Lock()
	pcm := flatten(s.chunks)
	s.chunks = nil
	s.state = StateIdle
	s.mu.Unlock()

	if s.OnStop != nil {
		s.OnStop()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to release capture device: %w", err)
	}
	if len(pcm) == 0 {
		slog.Debug("Capture stopped with no audio buffered")
		return nil, nil
	}

	result := &CaptureResult{
		WAV:      EncodeWAV(pcm, s.device.SampleRate()),
		Samples:  len(pcm),
		Duration: Duration(len(pcm), s.device.SampleRate()),
	}
	slog.Info("Capture finalized",
		"samples", result.Samples,
		"durationSeconds", result.Duration.Seconds())
	return result, nil
}

// Toggle starts a recording when idle and stops it when recording. The
// returned bool reports whether a recording is now in progress. This is the
// hotkey entry point; the state observation and flip share one critical
// section.
func (s *CaptureSession) Toggle() (*CaptureResult, bool, error) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	switch state {
	case StateIdle:
		err := s.Start()
		return nil, err == nil, err
	case StateRecording:
		result, err := s.Stop()
		return result, false, err
	default:
		// A concurrent Stop is mid-flush; treat the toggle as a no-op.
		return nil, false, nil
	}
}

func (s *CaptureSession) bufferChunk(chunk []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRecording {
		return
	}
	s.chunks = append(s.chunks, chunk)
}

func flatten(chunks [][]int16) []int16 {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	pcm := make([]int16, 0, total)
	for _, c := range chunks {
		pcm = append(pcm, c...)
	}
	return pcm
}
