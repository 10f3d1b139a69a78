package convo

import (
	"testing"

	"github.com/google/uuid"
)

func TestTranscriptReplaceByID(t *testing.T) {
	transcript := NewTranscript()
	var changes []Entry
	transcript.OnChange = func(e Entry) { changes = append(changes, e) }

	entry := Entry{ID: uuid.New(), Role: RoleAssistant, Text: "partial"}
	transcript.Append(entry)

	entry.Text = "partial plus more"
	if !transcript.replace(entry) {
		t.Fatal("replace reported no match")
	}

	got, ok := transcript.get(entry.ID)
	if !ok || got.Text != "partial plus more" {
		t.Fatalf("entry after replace = %+v", got)
	}
	if len(changes) != 2 {
		t.Errorf("OnChange fired %d times, want 2", len(changes))
	}

	if transcript.replace(Entry{ID: uuid.New()}) {
		t.Error("replace matched a foreign id")
	}
}

func TestTranscriptRemove(t *testing.T) {
	transcript := NewTranscript()
	first := Entry{ID: uuid.New(), Role: RoleUser, Text: "keep"}
	second := Entry{ID: uuid.New(), Role: RoleAssistant, Text: "drop"}
	transcript.Append(first)
	transcript.Append(second)

	if _, ok := transcript.remove(second.ID); !ok {
		t.Fatal("remove reported no match")
	}
	entries := transcript.Entries()
	if len(entries) != 1 || entries[0].ID != first.ID {
		t.Fatalf("entries after remove = %+v", entries)
	}

	if _, ok := transcript.remove(second.ID); ok {
		t.Error("second remove of the same id succeeded")
	}
}

func TestTranscriptEntriesIsACopy(t *testing.T) {
	transcript := NewTranscript()
	transcript.Append(Entry{ID: uuid.New(), Role: RoleUser, Text: "original"})

	copied := transcript.Entries()
	copied[0].Text = "mutated by caller"

	if got := transcript.Entries()[0].Text; got != "original" {
		t.Fatalf("caller mutation leaked into transcript: %q", got)
	}
}

func TestTranscriptWindow(t *testing.T) {
	transcript := NewTranscript()
	for _, text := range []string{"a", "b", "c"} {
		transcript.Append(Entry{ID: uuid.New(), Role: RoleUser, Text: text})
	}

	window := transcript.Window(2)
	if len(window) != 2 || window[0].Text != "b" || window[1].Text != "c" {
		t.Fatalf("Window(2) = %+v", window)
	}
	if got := transcript.Window(10); len(got) != 3 {
		t.Fatalf("Window(10) = %d entries, want 3", len(got))
	}
}
