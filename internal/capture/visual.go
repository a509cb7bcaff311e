package capture

import (
	"context"
	"time"
)

// VisualReport is the result of a screen-analysis request.
type VisualReport struct {
	SessionID  string    `json:"sessionId"`
	CapturedAt time.Time `json:"capturedAt"`
	Summary    string    `json:"summary"`
	Elements   []string  `json:"elements"`
}

// VisualAnalyzer is the pluggable strategy behind the CAPTURE_VISUAL
// command. Deployments wire a real screen-analysis implementation; the
// default reports that none is configured without erroring, so the UI
// can show a graceful message instead of a failure.
type VisualAnalyzer interface {
	Analyze(ctx context.Context, sessionID string, options map[string]any) (*VisualReport, error)
}

type noopVisualAnalyzer struct{}

func NewNoopVisualAnalyzer() VisualAnalyzer {
	return noopVisualAnalyzer{}
}

func (noopVisualAnalyzer) Analyze(_ context.Context, sessionID string, _ map[string]any) (*VisualReport, error) {
	return &VisualReport{
		SessionID:  sessionID,
		CapturedAt: time.Now(),
		Summary:    "visual analysis is not configured",
		Elements:   []string{},
	}, nil
}
