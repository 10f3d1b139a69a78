package convo

import (
	"sync"

	"github.com/google/uuid"
)

// Role identifies the author of a chat entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Entry is one message in the conversation transcript. Text is mutable while
// the entry streams and immutable once Finalized; Audio is attached at most
// once, after finalization.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Audio     []byte    `json:"-"`
	HasAudio  bool      `json:"hasAudio"`
	Finalized bool      `json:"finalized"`
}

// Transcript is the insertion-ordered sequence of chat entries for one
// conversation. Entries are owned exclusively by the assembler; all mutation
// goes through whole-entry replacement keyed by id so state transitions stay
// auditable and no caller aliases a live element.
type Transcript struct {
	mu      sync.RWMutex
	entries []Entry

	// OnChange, when set, fires after every append, replace, or removal
	// with a copy of the affected entry. Set before use; never mutated
	// concurrently with pipeline activity.
	OnChange func(Entry)
}

func NewTranscript() *Transcript {
	return &Transcript{}
}

// Entries returns a copy of the transcript in insertion order.
func (t *Transcript) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len reports the number of entries.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Window returns up to n trailing entries, for the bounded context sent with
// a turn submission.
func (t *Transcript) Window(n int) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n > len(t.entries) {
		n = len(t.entries)
	}
	out := make([]Entry, n)
	copy(out, t.entries[len(t.entries)-n:])
	return out
}

func (t *Transcript) get(id uuid.UUID) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, e := range t.entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Append adds an entry at the tail.
func (t *Transcript) Append(e Entry) {
	t.mu.Lock()
	t.entries = append(t.entries, e)
	t.mu.Unlock()
	t.notify(e)
}

// replace swaps the stored entry with the same id for the given value.
func (t *Transcript) replace(e Entry) bool {
	t.mu.Lock()
	replaced := false
	for i := range t.entries {
		if t.entries[i].ID == e.ID {
			t.entries[i] = e
			replaced = true
			break
		}
	}
	t.mu.Unlock()
	if replaced {
		t.notify(e)
	}
	return replaced
}

func (t *Transcript) remove(id uuid.UUID) (Entry, bool) {
	t.mu.Lock()
	var removed Entry
	found := false
	for i := range t.entries {
		if t.entries[i].ID == id {
			removed = t.entries[i]
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			found = true
			break
		}
	}
	t.mu.Unlock()
	if found {
		t.notify(removed)
	}
	return removed, found
}

func (t *Transcript) notify(e Entry) {
	if t.OnChange != nil {
		t.OnChange(e)
	}
}
