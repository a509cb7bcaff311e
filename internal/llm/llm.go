// Package llm defines the narrow interfaces through which the
// orchestrator consumes contextual-response generation, plus the two
// implementations it ships: an OpenAI-backed responder and a local
// deterministic fallback used when no provider is configured or the
// provider fails.
package llm

import (
	"context"

	"github.com/interview-copilot/backend/internal/session"
)

// ResponseMetadata describes how a contextual response was produced.
type ResponseMetadata struct {
	CallType     string `json:"callType"`
	ResponseType string `json:"responseType"`
	Priority     string `json:"priority"`
	TimingMs     int64  `json:"timing"`
	Length       int    `json:"length"`
}

// ContextualResponse is the structured suggestion surfaced to the UI
// for one transcript turn.
type ContextualResponse struct {
	Content           string           `json:"content"`
	Tone              string           `json:"tone"`
	Confidence        float64          `json:"confidence"`
	RelevantDocuments []string         `json:"relevantDocuments"`
	SupportingPoints  []string         `json:"supportingPoints"`
	FollowUpQuestions []string         `json:"followUpQuestions"`
	Metadata          ResponseMetadata `json:"metadata"`
}

// Responder produces a contextual response for the given transcript
// text within a session. Implementations receive a clone of the
// session and must not retain it.
type Responder interface {
	Respond(ctx context.Context, sess *session.Session, text string) (*ContextualResponse, error)
}

// Prober checks provider connectivity for diagnostic commands.
type Prober interface {
	Probe(ctx context.Context) error
}

// clampConfidence keeps confidence in [0, 1] no matter what a provider
// or heuristic produced.
func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
