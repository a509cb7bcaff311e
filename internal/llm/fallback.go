package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/interview-copilot/backend/internal/session"
)

// FallbackResponder produces canned but deterministic suggestions so
// the orchestrator keeps working with no provider configured (dev mode)
// or when the provider is down. The same question always yields the
// same suggestion, which keeps UI behavior reproducible.
type FallbackResponder struct{}

func NewFallbackResponder() *FallbackResponder {
	return &FallbackResponder{}
}

var fallbackTemplates = []string{
	"Structure your answer around a concrete example: situation, what you did, and the measurable result.",
	"Lead with your strongest relevant experience, then connect it back to what this role needs.",
	"Keep it concise: one headline claim, two supporting facts, and an offer to go deeper.",
	"Acknowledge the question directly, then pivot to a story that demonstrates the skill being probed.",
	"Quantify where you can: numbers make the answer memorable and verifiable.",
}

var fallbackFollowUps = []string{
	"Would you like me to walk through a specific example?",
	"Should I elaborate on the technical details?",
	"Is there a particular part of that you'd like me to expand on?",
}

func (f *FallbackResponder) Respond(_ context.Context, sess *session.Session, text string) (*ContextualResponse, error) {
	start := time.Now()

	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(text))))
	idx := int(h.Sum32()) % len(fallbackTemplates)
	if idx < 0 {
		idx = -idx
	}

	content := fallbackTemplates[idx]
	if text != "" {
		content = fmt.Sprintf("For %q: %s", text, content)
	}

	docNames := make([]string, 0, len(sess.Documents))
	for _, d := range sess.Documents {
		docNames = append(docNames, d.Name)
	}

	return &ContextualResponse{
		Content:           content,
		Tone:              "supportive",
		Confidence:        clampConfidence(0.6),
		RelevantDocuments: docNames,
		SupportingPoints:  []string{"offline suggestion; no provider configured"},
		FollowUpQuestions: []string{fallbackFollowUps[idx%len(fallbackFollowUps)]},
		Metadata: ResponseMetadata{
			CallType:     string(sess.CallType),
			ResponseType: "fallback",
			Priority:     "normal",
			TimingMs:     time.Since(start).Milliseconds(),
			Length:       len(content),
		},
	}, nil
}

// Probe always succeeds; there is nothing to connect to.
func (f *FallbackResponder) Probe(context.Context) error {
	return nil
}
