package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is the business error for lookups of unknown session ids.
// After an orchestrator restart the registry is empty, so "not found"
// is an expected outcome, not an exceptional one.
var ErrNotFound = errors.New("session not found")

// Metadata is the caller-supplied part of a new session. Every field is
// optional; Create fills defaults for anything missing.
type Metadata struct {
	CallType  string            `json:"callType"`
	Platform  string            `json:"platform"`
	Context   map[string]string `json:"context"`
	Documents []Document        `json:"documents"`
}

// EndResult reports the outcome of ending a session. Callers test
// FinalState == "ENDED", not a boolean; this contract is load-bearing
// for existing UI surfaces.
type EndResult struct {
	FinalState string `json:"finalState"`
	Error      string `json:"error,omitempty"`
}

// Registry is the authoritative in-memory store of live sessions. It is
// a cache: it does not survive a process restart and is rebuilt only
// from what was explicitly persisted.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Create builds a fully-defaulted session from partial metadata and
// stores it. It always succeeds: id collisions are the only failure
// mode and uuids make them practically impossible.
func (r *Registry) Create(meta Metadata, tabID int) *Session {
	now := time.Now()
	s := &Session{
		ID:           uuid.NewString(),
		CallType:     NormalizeCallType(meta.CallType),
		Platform:     meta.Platform,
		State:        Active,
		CreatedAt:    now,
		LastUpdated:  now,
		TabID:        tabID,
		Context:      meta.Context,
		Conversation: []Turn{},
		Documents:    meta.Documents,
	}
	if s.Documents == nil {
		s.Documents = []Document{}
	}
	s.Metrics.DocumentsProcessed = len(s.Documents)

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	return s.Clone()
}

// Get returns a clone of the session, or false if it does not exist.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// SetState moves the session to the given state. Ended sessions cannot
// be revived.
func (r *Registry) SetState(id string, state State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if s.State == Ended {
		return fmt.Errorf("session %s already ended", id)
	}
	s.State = state
	s.LastUpdated = time.Now()
	return nil
}

// AppendTurn appends one conversation turn and returns the updated
// session. Missing sessions are a business error; a turn must never
// implicitly create a session.
func (r *Registry) AppendTurn(id string, turn Turn) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	s.Conversation = append(s.Conversation, turn)
	s.LastUpdated = time.Now()
	return s.Clone(), nil
}

// MergeContext merges fields into the session's context map, last
// writer wins per key.
func (r *Registry) MergeContext(id string, fields map[string]string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if s.Context == nil {
		s.Context = make(map[string]string, len(fields))
	}
	for k, v := range fields {
		s.Context[k] = v
	}
	s.LastUpdated = time.Now()
	return s.Clone(), nil
}

// RecordSuggestion bumps the suggestion counters after a contextual
// response was produced. It re-reads the session under the lock rather
// than writing back a value captured before the (potentially slow)
// response call, so concurrent mutations are never lost.
func (r *Registry) RecordSuggestion(id string, responseTime time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Metrics.SuggestionsProvided++
	s.Metrics.SuccessfulInteractions++
	s.Metrics.ResponseTimeMs = responseTime.Milliseconds()
	s.LastUpdated = time.Now()
	return nil
}

// End terminates the session and removes it from the registry. Ending
// an unknown id returns a non-ENDED final state with an error string;
// the registry is left unchanged.
func (r *Registry) End(id string) EndResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return EndResult{
			FinalState: "NOT_FOUND",
			Error:      ErrNotFound.Error(),
		}
	}
	s.State = Ended
	delete(r.sessions, id)
	return EndResult{FinalState: "ENDED"}
}

// ActiveCount returns the number of live (non-ended) sessions.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, s := range r.sessions {
		if !s.IsTerminal() {
			count++
		}
	}
	return count
}

// Snapshot returns clones of every registered session, for persistence
// at shutdown.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Clone())
	}
	return out
}

// Restore reinserts previously persisted sessions. Existing entries
// with the same id are not overwritten; live state wins over snapshots.
func (r *Registry) Restore(sessions []*Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range sessions {
		if s == nil || s.ID == "" || s.IsTerminal() {
			continue
		}
		if _, exists := r.sessions[s.ID]; exists {
			continue
		}
		r.sessions[s.ID] = s.Clone()
	}
}
