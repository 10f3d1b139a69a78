package convo

import (
	"log/slog"

	"github.com/bosley/parley/metrics"
	"github.com/google/uuid"
)

// SpeechRequester issues synthesis requests for finished turns.
type SpeechRequester interface {
	RequestSpeech(turnID uuid.UUID, text string) error
}

// Bridge requests speech synthesis for finalized assistant entries and
// attaches returned audio to the right entry. Entries awaiting audio queue
// FIFO, matching the backend's synthesis order; when the backend echoes the
// turn id the bridge attaches by id instead, which survives out-of-order
// synthesis.
//
// Bridge methods run on the assembler's event loop and need no locking.
type Bridge struct {
	transcript *Transcript
	speech     SpeechRequester
	pipeline   *metrics.Pipeline

	// Play, when set, receives attached audio for playback.
	Play func([]byte)

	pending []uuid.UUID
}

func NewBridge(transcript *Transcript, speech SpeechRequester, pipeline *metrics.Pipeline) *Bridge {
	return &Bridge{
		transcript: transcript,
		speech:     speech,
		pipeline:   pipeline,
	}
}

// TurnFinalized requests synthesis for a finalized entry and queues it for
// audio attachment.
func (b *Bridge) TurnFinalized(e Entry) {
	if b.speech == nil {
		return
	}
	if err := b.speech.RequestSpeech(e.ID, e.Text); err != nil {
		// No synthesis will arrive for this turn; keeping it queued would
		// shift later audio onto the wrong entry.
		slog.Warn("Speech request failed", "entryID", e.ID, "error", err)
		return
	}
	b.pending = append(b.pending, e.ID)
	slog.Debug("Speech requested", "entryID", e.ID, "pendingAudio", len(b.pending))
}

// AudioReady attaches a synthesized audio buffer. With a correlation id the
// matching queued entry gets it; without one, the oldest entry still awaiting
// audio does. Audio with no eligible entry is dropped, never misattached.
func (b *Bridge) AudioReady(audio []byte, turnID uuid.UUID) {
	index := b.match(turnID)
	if index < 0 {
		slog.Warn("Discarding audio with no awaiting entry",
			"turnID", turnID,
			"bytes", len(audio))
		return
	}

	id := b.pending[index]
	b.pending = append(b.pending[:index], b.pending[index+1:]...)

	entry, ok := b.transcript.get(id)
	if !ok {
		// The entry was discarded (e.g. conversation reset) after the
		// request went out.
		slog.Debug("Audio arrived for a removed entry", "entryID", id)
		return
	}
	if !entry.Finalized || entry.HasAudio {
		slog.Warn("Audio arrived for an ineligible entry",
			"entryID", id,
			"finalized", entry.Finalized,
			"hasAudio", entry.HasAudio)
		return
	}

	entry.Audio = audio
	entry.HasAudio = true
	b.transcript.replace(entry)
	if b.pipeline != nil {
		b.pipeline.AudioAttached.Inc()
	}
	slog.Debug("Audio attached", "entryID", id, "bytes", len(audio))

	if b.Play != nil {
		b.Play(audio)
	}
}

// PendingAudio reports how many entries still await synthesis.
func (b *Bridge) PendingAudio() int { return len(b.pending) }

func (b *Bridge) match(turnID uuid.UUID) int {
	if turnID != uuid.Nil {
		for i, id := range b.pending {
			if id == turnID {
				return i
			}
		}
		return -1
	}
	if len(b.pending) == 0 {
		return -1
	}
	return 0
}
