// Package player plays WAV audio buffers through the default output device.
package player

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/gordonklaus/portaudio"
	"github.com/youpy/go-wav"
)

const framesPerBuffer = 1024

// Player plays queued buffers one at a time on its own goroutine, so
// assistant replies never overlap.
type Player struct {
	queue chan []byte
	done  chan struct{}
}

func New() *Player {
	return &Player{
		queue: make(chan []byte, 8),
		done:  make(chan struct{}),
	}
}

// Start runs the playback loop until Stop.
func (p *Player) Start() {
	go func() {
		defer close(p.done)
		for buffer := range p.queue {
			if err := playBuffer(buffer); err != nil {
				slog.Error("Playback failed", "error", err, "bytes", len(buffer))
			}
		}
	}()
}

// Play enqueues a WAV buffer. Non-blocking: when the queue is full the
// buffer is dropped with a warning rather than stalling the pipeline.
func (p *Player) Play(buffer []byte) {
	if len(buffer) == 0 {
		return
	}
	select {
	case p.queue <- buffer:
	default:
		slog.Warn("Playback queue full, dropping audio", "bytes", len(buffer))
	}
}

// PlayFile reads a WAV file from disk and enqueues it.
func (p *Player) PlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read audio file: %w", err)
	}
	p.Play(data)
	return nil
}

// Stop drains no further audio and waits for the current playback to end.
func (p *Player) Stop() {
	close(p.queue)
	<-p.done
}

func playBuffer(buffer []byte) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	reader := wav.NewReader(bytes.NewReader(buffer))
	format, err := reader.Format()
	if err != nil {
		return fmt.Errorf("failed to read WAV format: %w", err)
	}

	finished := make(chan struct{})
	var closeOnce bool

	stream, err := portaudio.OpenDefaultStream(
		0,
		int(format.NumChannels),
		float64(format.SampleRate),
		framesPerBuffer,
		func(out []int16) {
			samples, err := reader.ReadSamples(uint32(len(out)))
			if err == io.EOF || len(samples) == 0 {
				for i := range out {
					out[i] = 0
				}
				if !closeOnce {
					closeOnce = true
					close(finished)
				}
				return
			}
			if err != nil {
				slog.Error("Error reading WAV samples", "error", err)
				return
			}

			for i := 0; i < len(samples) && i < len(out); i++ {
				out[i] = int16(samples[i].Values[0])
			}
			// Fill remaining buffer with silence if needed
			for i := len(samples); i < len(out); i++ {
				out[i] = 0
			}
		},
	)
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	<-finished
	return stream.Stop()
}
