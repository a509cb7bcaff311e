package session

import (
	"encoding/json"
	"time"
)

// State is the lifecycle state of a session. Paused sessions are alive
// but degraded (audio capture unavailable); Ended is terminal.
type State int

const (
	Active State = iota
	Paused
	Ended
)

var stateNames = map[State]string{
	Active: "active",
	Paused: "paused",
	Ended:  "ended",
}

var stateFromName = map[string]State{
	"active": Active,
	"paused": Paused,
	"ended":  Ended,
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	if v, ok := stateFromName[name]; ok {
		*s = v
	}
	return nil
}

// CallType classifies what kind of call the session is assisting.
type CallType string

const (
	CallInterview CallType = "interview"
	CallMeeting   CallType = "meeting"
	CallOther     CallType = "other"
)

// NormalizeCallType maps arbitrary caller input onto a known call type,
// defaulting to interview.
func NormalizeCallType(s string) CallType {
	switch CallType(s) {
	case CallMeeting:
		return CallMeeting
	case CallOther:
		return CallOther
	default:
		return CallInterview
	}
}

// Turn is one utterance in the session's conversation.
type Turn struct {
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Document is a reference document attached to the session (resume,
// job description, notes). Extraction happens upstream; only metadata
// and extracted text reach the orchestrator.
type Document struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Kind    string    `json:"kind"`
	Text    string    `json:"text,omitempty"`
	AddedAt time.Time `json:"addedAt"`
}

// Metrics are the per-session performance counters.
type Metrics struct {
	ResponseTimeMs         int64 `json:"responseTime"`
	DocumentsProcessed     int   `json:"documentsProcessed"`
	SuggestionsProvided    int   `json:"suggestionsProvided"`
	SuccessfulInteractions int   `json:"successfulInteractions"`
}

// Session is one tracked interview attempt.
type Session struct {
	ID           string            `json:"sessionId"`
	CallType     CallType          `json:"callType"`
	Platform     string            `json:"platform"`
	State        State             `json:"state"`
	CreatedAt    time.Time         `json:"createdAt"`
	LastUpdated  time.Time         `json:"lastUpdated"`
	TabID        int               `json:"tabId,omitempty"`
	Context      map[string]string `json:"context,omitempty"`
	Conversation []Turn            `json:"conversation"`
	Documents    []Document        `json:"documents"`
	Metrics      Metrics           `json:"performanceMetrics"`
}

func (s *Session) IsTerminal() bool {
	return s.State == Ended
}

// Clone returns a deep copy so callers can never mutate registry state
// through a returned pointer.
func (s *Session) Clone() *Session {
	c := *s
	if s.Context != nil {
		c.Context = make(map[string]string, len(s.Context))
		for k, v := range s.Context {
			c.Context[k] = v
		}
	}
	if s.Conversation != nil {
		c.Conversation = make([]Turn, len(s.Conversation))
		copy(c.Conversation, s.Conversation)
	}
	if s.Documents != nil {
		c.Documents = make([]Document, len(s.Documents))
		copy(c.Documents, s.Documents)
	}
	return &c
}
