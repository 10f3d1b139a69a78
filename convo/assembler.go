// Package convo holds the conversation transcript and the state machine that
// turns channel events into a consistent, ordered sequence of chat entries.
package convo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bosley/parley/channel"
	"github.com/bosley/parley/metrics"
	"github.com/bosley/parley/transcribe"
	"github.com/google/uuid"
)

var ErrStalledTurn = errors.New("convo: assistant reply stalled")

const (
	DefaultContextWindow = 6
	DefaultStallTimeout  = 30 * time.Second
)

// Phase is the assembler's conversation state.
type Phase int

const (
	PhaseAwaitingInput Phase = iota
	PhaseTurnSubmitted
	PhaseStreaming
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingInput:
		return "awaiting_input"
	case PhaseTurnSubmitted:
		return "turn_submitted"
	case PhaseStreaming:
		return "streaming"
	}
	return "unknown"
}

// Commander submits turns to the backend.
type Commander interface {
	SubmitTurn(channel.TurnRequest) error
}

type Config struct {
	Conversation  string
	ContextWindow int           // prior entries sent with each turn
	StallTimeout  time.Duration // idle window before a streaming turn is abandoned
}

// Assembler is the per-conversation state machine. All transcript mutation
// happens on its Run loop: user transcripts and channel events funnel into
// one serialized queue, so no two events for the conversation are ever
// processed concurrently.
type Assembler struct {
	config     Config
	transcript *Transcript
	commander  Commander
	bridge     *Bridge
	pipeline   *metrics.Pipeline

	// OnNotice surfaces non-fatal conditions (upload failures, quota,
	// stalls) to the user interface. Called from the Run loop.
	OnNotice func(string)

	userTurns chan *transcribe.Transcript

	phase  Phase
	openID uuid.UUID // open (unfinalized) assistant entry, Nil when none
	stall  *time.Timer
}

func NewAssembler(config Config, transcript *Transcript, commander Commander, bridge *Bridge, pipeline *metrics.Pipeline) *Assembler {
	if config.ContextWindow <= 0 {
		config.ContextWindow = DefaultContextWindow
	}
	if config.StallTimeout <= 0 {
		config.StallTimeout = DefaultStallTimeout
	}
	return &Assembler{
		config:     config,
		transcript: transcript,
		commander:  commander,
		bridge:     bridge,
		pipeline:   pipeline,
		userTurns:  make(chan *transcribe.Transcript, 4),
		phase:      PhaseAwaitingInput,
	}
}

func (a *Assembler) Phase() Phase { return a.phase }

func (a *Assembler) Transcript() *Transcript { return a.transcript }

// SubmitTranscript hands a resolved user transcript to the Run loop. Safe to
// call from capture/transcription goroutines.
func (a *Assembler) SubmitTranscript(ctx context.Context, t *transcribe.Transcript) error {
	select {
	case a.userTurns <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes events until the channel closes or the context ends. It may
// be called again with a fresh event stream after a reconnect; the transcript
// carries over, and any entry left open by the old stream was already
// discarded by the disconnect event.
func (a *Assembler) Run(ctx context.Context, events <-chan channel.Event) {
	for {
		var stallC <-chan time.Time
		if a.stall != nil {
			stallC = a.stall.C
		}

		select {
		case <-ctx.Done():
			a.disarmStall()
			return

		case t := <-a.userTurns:
			a.handleTranscript(t)

		case ev, ok := <-events:
			if !ok {
				a.disarmStall()
				return
			}
			a.handleEvent(ev)

		case <-stallC:
			a.stall = nil
			a.handleStall()
		}
	}
}

func (a *Assembler) handleTranscript(t *transcribe.Transcript) {
	window := a.contextWindow()

	entry := Entry{
		ID:        uuid.New(),
		Role:      RoleUser,
		Text:      t.Text,
		Audio:     t.SourceAudio,
		HasAudio:  len(t.SourceAudio) > 0,
		Finalized: true,
	}
	a.transcript.Append(entry)

	err := a.commander.SubmitTurn(channel.TurnRequest{
		Text:         t.Text,
		Context:      window,
		Conversation: a.config.Conversation,
	})
	if err != nil {
		slog.Error("Failed to submit turn", "error", err)
		a.notice(fmt.Sprintf("message could not be sent: %v", err))
		a.phase = PhaseAwaitingInput
		return
	}

	a.phase = PhaseTurnSubmitted
	if a.pipeline != nil {
		a.pipeline.TurnsSubmitted.Inc()
	}
	slog.Info("Turn submitted",
		"text", t.Text,
		"contextEntries", len(window))
}

func (a *Assembler) handleEvent(ev channel.Event) {
	switch ev.Kind {
	case channel.KindFragment:
		a.handleFragment(ev.Text)
	case channel.KindTurnComplete:
		a.handleTurnComplete(ev.Text)
	case channel.KindAudioReady:
		a.bridge.AudioReady(ev.Audio, ev.TurnID)
	case channel.KindBalanceExhausted:
		// Quota notices never mutate the transcript and the turn is not
		// retried automatically.
		slog.Warn("Balance exhausted", "reason", ev.Reason)
		a.notice("balance exhausted: " + ev.Reason)
	case channel.KindDisconnected:
		a.handleDisconnect(ev.Reason)
	}
}

// handleFragment appends a reply delta. A fragment with no open assistant
// entry opens one; this also covers late fragments arriving after their
// turn's completion, which open a fresh entry rather than reopening the
// finalized one.
func (a *Assembler) handleFragment(delta string) {
	if a.openID == uuid.Nil {
		entry := Entry{
			ID:   uuid.New(),
			Role: RoleAssistant,
			Text: delta,
		}
		a.transcript.Append(entry)
		a.openID = entry.ID
	} else {
		entry, ok := a.transcript.get(a.openID)
		if !ok {
			slog.Error("Open assistant entry missing from transcript", "entryID", a.openID)
			a.openID = uuid.Nil
			a.handleFragment(delta)
			return
		}
		entry.Text += delta
		a.transcript.replace(entry)
	}

	a.phase = PhaseStreaming
	a.armStall()
	if a.pipeline != nil {
		a.pipeline.FragmentsReceived.Inc()
	}
}

func (a *Assembler) handleTurnComplete(fullText string) {
	a.disarmStall()

	var entry Entry
	if a.openID != uuid.Nil {
		entry, _ = a.transcript.get(a.openID)
		entry.Finalized = true
		a.transcript.replace(entry)
		a.openID = uuid.Nil
	} else {
		// No fragments made it through (gap after a reconnect, or a
		// backend that skips streaming); recover the turn from the full
		// text.
		entry = Entry{
			ID:        uuid.New(),
			Role:      RoleAssistant,
			Text:      fullText,
			Finalized: true,
		}
		a.transcript.Append(entry)
	}

	if a.pipeline != nil {
		a.pipeline.TurnsCompleted.Inc()
	}
	slog.Info("Assistant turn complete", "entryID", entry.ID, "chars", len(entry.Text))

	a.bridge.TurnFinalized(entry)
	a.phase = PhaseAwaitingInput
}

// handleDisconnect discards any partially built assistant entry entirely; a
// stale partial must not linger in the transcript. The next fragment after a
// reconnect starts a brand-new entry.
func (a *Assembler) handleDisconnect(reason string) {
	a.disarmStall()
	if a.openID != uuid.Nil {
		a.transcript.remove(a.openID)
		a.openID = uuid.Nil
		if a.pipeline != nil {
			a.pipeline.TurnsDiscarded.Inc()
		}
		slog.Warn("Discarded partial assistant reply on disconnect")
	}
	a.phase = PhaseAwaitingInput
	a.notice("connection lost: " + reason)
}

func (a *Assembler) handleStall() {
	if a.phase != PhaseStreaming {
		return
	}
	if a.openID != uuid.Nil {
		a.transcript.remove(a.openID)
		a.openID = uuid.Nil
	}
	a.phase = PhaseAwaitingInput
	if a.pipeline != nil {
		a.pipeline.TurnsStalled.Inc()
	}
	slog.Error("Assistant reply stalled",
		"idleWindow", a.config.StallTimeout)
	a.notice(ErrStalledTurn.Error())
}

func (a *Assembler) contextWindow() []channel.ContextEntry {
	entries := a.transcript.Window(a.config.ContextWindow)
	window := make([]channel.ContextEntry, 0, len(entries))
	for _, e := range entries {
		window = append(window, channel.ContextEntry{
			Role: string(e.Role),
			Text: e.Text,
		})
	}
	return window
}

func (a *Assembler) armStall() {
	if a.stall == nil {
		a.stall = time.NewTimer(a.config.StallTimeout)
		return
	}
	if !a.stall.Stop() {
		select {
		case <-a.stall.C:
		default:
		}
	}
	a.stall.Reset(a.config.StallTimeout)
}

func (a *Assembler) disarmStall() {
	if a.stall == nil {
		return
	}
	if !a.stall.Stop() {
		select {
		case <-a.stall.C:
		default:
		}
	}
	a.stall = nil
}

func (a *Assembler) notice(text string) {
	if a.OnNotice != nil {
		a.OnNotice(text)
	}
}
