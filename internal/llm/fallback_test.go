package llm

import (
	"context"
	"testing"

	"github.com/interview-copilot/backend/internal/session"
)

func testSession() *session.Session {
	return &session.Session{
		ID:       "s1",
		CallType: session.CallInterview,
		Documents: []session.Document{
			{ID: "d1", Name: "resume.pdf", Kind: "resume"},
		},
	}
}

func TestFallbackRespond(t *testing.T) {
	f := NewFallbackResponder()

	resp, err := f.Respond(context.Background(), testSession(), "Tell me about yourself")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if resp.Content == "" {
		t.Error("content is empty")
	}
	if resp.Confidence < 0 || resp.Confidence > 1 {
		t.Errorf("confidence = %v, want [0,1]", resp.Confidence)
	}
	if len(resp.RelevantDocuments) != 1 || resp.RelevantDocuments[0] != "resume.pdf" {
		t.Errorf("relevantDocuments = %v", resp.RelevantDocuments)
	}
	if resp.Metadata.ResponseType != "fallback" {
		t.Errorf("responseType = %q", resp.Metadata.ResponseType)
	}
	if resp.Metadata.CallType != "interview" {
		t.Errorf("callType = %q", resp.Metadata.CallType)
	}
	if resp.Metadata.Length != len(resp.Content) {
		t.Errorf("length = %d, content is %d", resp.Metadata.Length, len(resp.Content))
	}
}

func TestFallbackDeterministic(t *testing.T) {
	f := NewFallbackResponder()
	ctx := context.Background()

	a, _ := f.Respond(ctx, testSession(), "What is your greatest weakness?")
	b, _ := f.Respond(ctx, testSession(), "What is your greatest weakness?")
	if a.Content != b.Content {
		t.Error("same question produced different suggestions")
	}
}

func TestFallbackProbe(t *testing.T) {
	if err := NewFallbackResponder().Probe(context.Background()); err != nil {
		t.Errorf("Probe: %v", err)
	}
}

func TestClampConfidence(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.7, 0.7},
		{1, 1},
		{3.2, 1},
	}
	for _, tt := range tests {
		if got := clampConfidence(tt.in); got != tt.want {
			t.Errorf("clampConfidence(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
