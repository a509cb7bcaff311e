package session

import (
	"sync"
	"testing"
	"time"
)

func TestCreateDefaults(t *testing.T) {
	r := NewRegistry()

	s := r.Create(Metadata{}, 0)
	if s.ID == "" {
		t.Fatal("Create returned empty id")
	}
	if s.CallType != CallInterview {
		t.Errorf("callType = %q, want interview", s.CallType)
	}
	if s.State != Active {
		t.Errorf("state = %v, want active", s.State)
	}
	if s.Conversation == nil || len(s.Conversation) != 0 {
		t.Errorf("conversation = %v, want empty slice", s.Conversation)
	}
	if s.Documents == nil || len(s.Documents) != 0 {
		t.Errorf("documents = %v, want empty slice", s.Documents)
	}
	if s.CreatedAt.IsZero() || s.LastUpdated.IsZero() {
		t.Error("timestamps not set")
	}
}

func TestCreateWithMetadata(t *testing.T) {
	r := NewRegistry()

	s := r.Create(Metadata{
		CallType: "meeting",
		Platform: "Google Meet",
		Context:  map[string]string{"role": "backend engineer"},
		Documents: []Document{
			{ID: "d1", Name: "resume.pdf", Kind: "resume"},
		},
	}, 42)

	if s.CallType != CallMeeting {
		t.Errorf("callType = %q, want meeting", s.CallType)
	}
	if s.Platform != "Google Meet" {
		t.Errorf("platform = %q", s.Platform)
	}
	if s.TabID != 42 {
		t.Errorf("tabId = %d, want 42", s.TabID)
	}
	if s.Metrics.DocumentsProcessed != 1 {
		t.Errorf("documentsProcessed = %d, want 1", s.Metrics.DocumentsProcessed)
	}
}

func TestCreateUnknownCallTypeDefaultsToInterview(t *testing.T) {
	r := NewRegistry()
	s := r.Create(Metadata{CallType: "webinar"}, 0)
	if s.CallType != CallInterview {
		t.Errorf("callType = %q, want interview", s.CallType)
	}
}

func TestIDUniqueness(t *testing.T) {
	r := NewRegistry()
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		s := r.Create(Metadata{}, 0)
		if seen[s.ID] {
			t.Fatalf("duplicate session id %s", s.ID)
		}
		seen[s.ID] = true
	}
	if got := r.ActiveCount(); got != 200 {
		t.Errorf("ActiveCount = %d, want 200", got)
	}
}

func TestGetMissing(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get("nope"); ok {
		t.Error("Get for missing id returned ok=true")
	}
}

func TestGetReturnsClone(t *testing.T) {
	r := NewRegistry()
	s := r.Create(Metadata{Context: map[string]string{"k": "v"}}, 0)

	got, _ := r.Get(s.ID)
	got.Platform = "mutated"
	got.Context["k"] = "mutated"

	again, _ := r.Get(s.ID)
	if again.Platform == "mutated" || again.Context["k"] == "mutated" {
		t.Error("mutation of returned session leaked into registry")
	}
}

func TestAppendTurn(t *testing.T) {
	r := NewRegistry()
	s := r.Create(Metadata{}, 0)

	got, err := r.AppendTurn(s.ID, Turn{Speaker: "interviewer", Text: "Tell me about yourself"})
	if err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if len(got.Conversation) != 1 {
		t.Fatalf("conversation length = %d, want 1", len(got.Conversation))
	}
	if got.Conversation[0].Timestamp.IsZero() {
		t.Error("turn timestamp not defaulted")
	}
}

func TestAppendTurnMissingSession(t *testing.T) {
	r := NewRegistry()
	if _, err := r.AppendTurn("ghost", Turn{Text: "hi"}); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if r.ActiveCount() != 0 {
		t.Error("AppendTurn on missing id created a session")
	}
}

func TestMergeContext(t *testing.T) {
	r := NewRegistry()
	s := r.Create(Metadata{Context: map[string]string{"a": "1", "b": "2"}}, 0)

	got, err := r.MergeContext(s.ID, map[string]string{"b": "3", "c": "4"})
	if err != nil {
		t.Fatalf("MergeContext: %v", err)
	}
	want := map[string]string{"a": "1", "b": "3", "c": "4"}
	for k, v := range want {
		if got.Context[k] != v {
			t.Errorf("context[%s] = %q, want %q", k, got.Context[k], v)
		}
	}
}

func TestSetState(t *testing.T) {
	r := NewRegistry()
	s := r.Create(Metadata{}, 0)

	if err := r.SetState(s.ID, Paused); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	got, _ := r.Get(s.ID)
	if got.State != Paused {
		t.Errorf("state = %v, want paused", got.State)
	}
	if err := r.SetState("ghost", Paused); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestEndIdempotency(t *testing.T) {
	r := NewRegistry()
	s := r.Create(Metadata{}, 0)

	first := r.End(s.ID)
	if first.FinalState != "ENDED" {
		t.Fatalf("first End finalState = %q, want ENDED", first.FinalState)
	}
	if first.Error != "" {
		t.Errorf("first End error = %q, want empty", first.Error)
	}

	sizeBefore := r.ActiveCount()
	second := r.End(s.ID)
	if second.FinalState == "ENDED" {
		t.Error("second End returned ENDED")
	}
	if second.Error == "" {
		t.Error("second End has no error string")
	}
	if r.ActiveCount() != sizeBefore {
		t.Error("second End changed registry size")
	}
}

func TestActiveCountExcludesNothing(t *testing.T) {
	r := NewRegistry()
	a := r.Create(Metadata{}, 0)
	r.Create(Metadata{}, 0)
	r.SetState(a.ID, Paused)

	// Paused sessions are alive; only ended sessions leave the count.
	if got := r.ActiveCount(); got != 2 {
		t.Errorf("ActiveCount = %d, want 2", got)
	}
}

func TestRecordSuggestionAfterConcurrentMerge(t *testing.T) {
	r := NewRegistry()
	s := r.Create(Metadata{}, 0)

	// Simulate a handler suspended on a slow responder while another
	// command mutates the same session. Neither update may be lost.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.MergeContext(s.ID, map[string]string{"topic": "goroutines"})
	}()
	go func() {
		defer wg.Done()
		r.RecordSuggestion(s.ID, 120*time.Millisecond)
	}()
	wg.Wait()

	got, _ := r.Get(s.ID)
	if got.Context["topic"] != "goroutines" {
		t.Error("context merge lost")
	}
	if got.Metrics.SuggestionsProvided != 1 {
		t.Errorf("suggestionsProvided = %d, want 1", got.Metrics.SuggestionsProvided)
	}
}

func TestSnapshotRestore(t *testing.T) {
	r := NewRegistry()
	a := r.Create(Metadata{Platform: "Zoom"}, 0)
	r.Create(Metadata{}, 0)

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot length = %d, want 2", len(snap))
	}

	// Restart simulation: a fresh registry holds nothing until an
	// explicit restore.
	fresh := NewRegistry()
	if fresh.ActiveCount() != 0 {
		t.Fatal("fresh registry not empty")
	}

	fresh.Restore(snap)
	if fresh.ActiveCount() != 2 {
		t.Errorf("restored ActiveCount = %d, want 2", fresh.ActiveCount())
	}
	got, ok := fresh.Get(a.ID)
	if !ok || got.Platform != "Zoom" {
		t.Errorf("restored session = %+v, ok=%v", got, ok)
	}
}

func TestRestoreDoesNotOverwriteLive(t *testing.T) {
	r := NewRegistry()
	s := r.Create(Metadata{}, 0)
	r.MergeContext(s.ID, map[string]string{"live": "yes"})

	stale := s.Clone()
	stale.Context = map[string]string{"live": "no"}
	r.Restore([]*Session{stale})

	got, _ := r.Get(s.ID)
	if got.Context["live"] != "yes" {
		t.Error("Restore overwrote a live session with a snapshot")
	}
}

func TestRestoreSkipsEnded(t *testing.T) {
	r := NewRegistry()
	ended := &Session{ID: "old", State: Ended}
	r.Restore([]*Session{ended, nil, {ID: ""}})
	if r.ActiveCount() != 0 {
		t.Error("Restore resurrected an ended or invalid session")
	}
}
