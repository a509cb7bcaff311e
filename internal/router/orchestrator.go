package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/interview-copilot/backend/internal/capture"
	"github.com/interview-copilot/backend/internal/config"
	"github.com/interview-copilot/backend/internal/llm"
	"github.com/interview-copilot/backend/internal/perf"
	"github.com/interview-copilot/backend/internal/session"
	"github.com/interview-copilot/backend/internal/storage"
)

// Recognized one-shot commands.
const (
	CmdInitSession   = "INIT_INTERVIEW_SESSION"
	CmdTranscription = "PROCESS_TRANSCRIPTION"
	CmdEndSession    = "END_INTERVIEW_SESSION"
	CmdUpdateContext = "UPDATE_CONTEXT"
	CmdCaptureVisual = "CAPTURE_VISUAL"
	CmdAppState      = "GET_APP_STATE"
	CmdTestLLM       = "TEST_LLM_CONNECTION"
	CmdTestStorage   = "TEST_STORAGE"
	CmdPing          = "ping"
)

// Storage keys.
const (
	keyLastActiveSession = "lastActiveSessionId"
	keySessionSnapshots  = "sessionSnapshots"
	keySettings          = "settings"
)

// Notifier pushes a message to the long-lived channel of one tab, if
// connected. Implemented by the port registry.
type Notifier interface {
	NotifyTab(tabID int, command string, payload any) bool
}

type noopNotifier struct{}

func (noopNotifier) NotifyTab(int, string, any) bool { return false }

// Orchestrator owns session lifecycle and wires every command handler
// to its collaborators. It is constructed once at process start; all
// dependencies are injected.
type Orchestrator struct {
	cfg       *config.Config
	registry  *session.Registry
	store     *storage.Store
	capture   *capture.Provisioner
	visual    capture.VisualAnalyzer
	responder llm.Responder
	fallback  llm.Responder
	prober    llm.Prober
	notifier  Notifier
	perf      *perf.Analyzer
	log       *zap.Logger
	version   string
}

type OrchestratorDeps struct {
	Config    *config.Config
	Registry  *session.Registry
	Store     *storage.Store
	Capture   *capture.Provisioner
	Visual    capture.VisualAnalyzer
	Responder llm.Responder
	Fallback  llm.Responder
	Prober    llm.Prober
	Notifier  Notifier
	Perf      *perf.Analyzer
	Log       *zap.Logger
	Version   string
}

func NewOrchestrator(d OrchestratorDeps) *Orchestrator {
	o := &Orchestrator{
		cfg:       d.Config,
		registry:  d.Registry,
		store:     d.Store,
		capture:   d.Capture,
		visual:    d.Visual,
		responder: d.Responder,
		fallback:  d.Fallback,
		prober:    d.Prober,
		notifier:  d.Notifier,
		perf:      d.Perf,
		log:       d.Log,
		version:   d.Version,
	}
	if o.visual == nil {
		o.visual = capture.NewNoopVisualAnalyzer()
	}
	if o.fallback == nil {
		o.fallback = llm.NewFallbackResponder()
	}
	if o.responder == nil {
		o.responder = o.fallback
	}
	if o.prober == nil {
		o.prober = llm.NewFallbackResponder()
	}
	if o.notifier == nil {
		o.notifier = noopNotifier{}
	}
	return o
}

// Register installs every command handler into the router's table.
func (o *Orchestrator) Register(r *Router) {
	r.Handle(CmdInitSession, o.handleInitSession)
	r.Handle(CmdTranscription, o.handleTranscription)
	r.Handle(CmdEndSession, o.handleEndSession)
	r.Handle(CmdUpdateContext, o.handleUpdateContext)
	r.Handle(CmdCaptureVisual, o.handleCaptureVisual)
	r.Handle(CmdAppState, o.handleAppState)
	r.Handle(CmdTestLLM, o.handleTestLLM)
	r.Handle(CmdTestStorage, o.handleTestStorage)
	r.Handle(CmdPing, o.handlePing)
}

func (o *Orchestrator) handleInitSession(ctx context.Context, payload json.RawMessage, from Sender) (any, error) {
	var meta session.Metadata
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &meta); err != nil {
			return nil, fmt.Errorf("invalid payload: %w", err)
		}
	}

	sess := o.registry.Create(meta, from.TabID)

	// Audio capture is a side effect of creation, not a precondition:
	// failure leaves the session paused instead of failing the command.
	if err := o.capture.StartSession(ctx, sess.ID); err != nil {
		o.perf.RecordError("capture_start", err)
		if serr := o.registry.SetState(sess.ID, session.Paused); serr == nil {
			sess.State = session.Paused
		}
	}

	o.persistPointer(ctx, sess.ID)
	o.persistSnapshots(ctx)
	o.perf.RecordEvent("session_created", map[string]any{
		"sessionId": sess.ID,
		"callType":  string(sess.CallType),
		"platform":  sess.Platform,
		"state":     sess.State.String(),
	})

	return sess, nil
}

func (o *Orchestrator) handleTranscription(ctx context.Context, payload json.RawMessage, _ Sender) (any, error) {
	var p struct {
		SessionID string `json:"sessionId"`
		Text      string `json:"text"`
		Speaker   string `json:"speaker"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	if p.SessionID == "" {
		return nil, errors.New("sessionId is required")
	}
	if p.Speaker == "" {
		p.Speaker = "interviewer"
	}

	sess, err := o.registry.AppendTurn(p.SessionID, session.Turn{
		Speaker: p.Speaker,
		Text:    p.Text,
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, rerr := o.responder.Respond(ctx, sess, p.Text)
	if rerr != nil {
		o.perf.RecordError("responder", rerr)
		resp, rerr = o.fallback.Respond(ctx, sess, p.Text)
		if rerr != nil {
			return nil, rerr
		}
	}

	// The responder call was a suspension point; update metrics through
	// the registry (which re-reads under its lock) instead of writing
	// back the session value captured above. The session may have ended
	// while we waited; the response is still returned in that case.
	if err := o.registry.RecordSuggestion(p.SessionID, time.Since(start)); err != nil {
		o.log.Debug("session gone before metrics update",
			zap.String("sessionId", p.SessionID))
	}

	if sess.TabID != 0 {
		o.notifier.NotifyTab(sess.TabID, "suggestion", resp)
	}

	return resp, nil
}

func (o *Orchestrator) handleEndSession(ctx context.Context, payload json.RawMessage, _ Sender) (any, error) {
	var p struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}

	res := o.registry.End(p.SessionID)
	if res.FinalState == "ENDED" {
		if err := o.capture.StopSession(ctx, p.SessionID); err != nil {
			o.perf.RecordError("capture_stop", err)
		}
		o.clearPointer(ctx, p.SessionID)
		o.persistSnapshots(ctx)
		o.perf.RecordEvent("session_ended", map[string]any{"sessionId": p.SessionID})
	}

	// Callers check finalState, not the success flag; a missing session
	// still yields a successful envelope carrying the error inside.
	return res, nil
}

func (o *Orchestrator) handleUpdateContext(_ context.Context, payload json.RawMessage, _ Sender) (any, error) {
	var p struct {
		SessionID string            `json:"sessionId"`
		Context   map[string]string `json:"context"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	if p.SessionID == "" {
		return nil, errors.New("sessionId is required")
	}

	sess, err := o.registry.MergeContext(p.SessionID, p.Context)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (o *Orchestrator) handleCaptureVisual(ctx context.Context, payload json.RawMessage, _ Sender) (any, error) {
	var p struct {
		SessionID string         `json:"sessionId"`
		Options   map[string]any `json:"options"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	if _, ok := o.registry.Get(p.SessionID); !ok {
		return nil, session.ErrNotFound
	}
	return o.visual.Analyze(ctx, p.SessionID, p.Options)
}

func (o *Orchestrator) handleAppState(_ context.Context, _ json.RawMessage, _ Sender) (any, error) {
	snap := o.perf.Snapshot()
	return map[string]any{
		"activeSessions": o.registry.ActiveCount(),
		"version":        o.version,
		"uptimeMs":       snap.UptimeMs,
		"process":        perf.CollectProcessStats(),
		"performance":    snap,
	}, nil
}

func (o *Orchestrator) handleTestLLM(ctx context.Context, _ json.RawMessage, _ Sender) (any, error) {
	if err := o.prober.Probe(ctx); err != nil {
		return nil, err
	}
	return map[string]any{
		"provider": o.cfg.LLM.Provider,
		"model":    o.cfg.LLM.Model,
		"ok":       true,
	}, nil
}

func (o *Orchestrator) handleTestStorage(ctx context.Context, _ json.RawMessage, _ Sender) (any, error) {
	probe := fmt.Sprintf("%d", time.Now().UnixNano())
	if err := o.store.Set(ctx, map[string]any{"__healthcheck": probe}); err != nil {
		return nil, err
	}
	var got string
	if _, err := o.store.GetInto(ctx, "__healthcheck", &got); err != nil {
		return nil, err
	}
	if got != probe {
		return nil, fmt.Errorf("storage readback mismatch")
	}
	if err := o.store.Remove(ctx, "__healthcheck"); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

func (o *Orchestrator) handlePing(_ context.Context, _ json.RawMessage, _ Sender) (any, error) {
	return map[string]any{
		"pong":      true,
		"version":   o.version,
		"timestamp": time.Now().UnixMilli(),
	}, nil
}

// RestoreState rebuilds the registry from persisted snapshots after a
// restart. Every failure here is survivable: the orchestrator starts
// with an empty registry and sessions simply read as not found.
func (o *Orchestrator) RestoreState(ctx context.Context) error {
	var snapshots []*session.Session
	ok, err := o.store.GetInto(ctx, keySessionSnapshots, &snapshots)
	if err != nil {
		return fmt.Errorf("restore sessions: %w", err)
	}
	if ok {
		o.registry.Restore(snapshots)
	}

	var lastID string
	if ok, err := o.store.GetInto(ctx, keyLastActiveSession, &lastID); err == nil && ok && lastID != "" {
		if _, found := o.registry.Get(lastID); found {
			o.log.Info("resumed last active session", zap.String("sessionId", lastID))
		} else {
			o.log.Info("last active session not restorable", zap.String("sessionId", lastID))
		}
	}

	o.log.Info("state restored", zap.Int("activeSessions", o.registry.ActiveCount()))
	return nil
}

// PersistState writes the current session snapshots, typically at
// shutdown.
func (o *Orchestrator) PersistState(ctx context.Context) error {
	return o.store.Set(ctx, map[string]any{
		keySessionSnapshots: o.registry.Snapshot(),
	})
}

// InitializeDefaults seeds first-run settings without clobbering
// anything a previous run stored.
func (o *Orchestrator) InitializeDefaults(ctx context.Context) error {
	return o.store.Initialize(ctx, map[string]any{
		keySettings: map[string]any{
			"suggestionTone": "professional",
			"autoCapture":    o.cfg.Capture.Enabled,
		},
	})
}

func (o *Orchestrator) persistPointer(ctx context.Context, sessionID string) {
	if err := o.store.Set(ctx, map[string]any{keyLastActiveSession: sessionID}); err != nil {
		o.perf.RecordError("persist_pointer", err)
	}
}

func (o *Orchestrator) clearPointer(ctx context.Context, sessionID string) {
	var current string
	if ok, err := o.store.GetInto(ctx, keyLastActiveSession, &current); err != nil || !ok {
		return
	}
	if current != sessionID {
		return
	}
	if err := o.store.Remove(ctx, keyLastActiveSession); err != nil {
		o.perf.RecordError("clear_pointer", err)
	}
}

func (o *Orchestrator) persistSnapshots(ctx context.Context) {
	if err := o.PersistState(ctx); err != nil {
		o.perf.RecordError("persist_snapshots", err)
	}
}
