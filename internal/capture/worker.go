package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WorkerRuntime is the in-process Runtime implementation: the capture
// "context" is a goroutine-owned worker rather than a browser document.
// Audio frames come from UI surfaces over the port channel and are fed
// to the active sessions' transcription path upstream; the worker here
// only tracks which sessions capture is running for.
type WorkerRuntime struct {
	mu       sync.Mutex
	workers  map[string]*worker // keyed by context id
	disabled bool
	log      *zap.Logger
}

type worker struct {
	info     ContextInfo
	sessions map[string]bool
}

func NewWorkerRuntime(enabled bool, log *zap.Logger) *WorkerRuntime {
	return &WorkerRuntime{
		workers:  make(map[string]*worker),
		disabled: !enabled,
		log:      log,
	}
}

func (w *WorkerRuntime) Contexts(_ context.Context, url string) ([]ContextInfo, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []ContextInfo
	for _, wk := range w.workers {
		if wk.info.URL == url {
			out = append(out, wk.info)
		}
	}
	return out, nil
}

func (w *WorkerRuntime) Create(_ context.Context, opts CreateOptions) (ContextInfo, error) {
	if w.disabled {
		return ContextInfo{}, fmt.Errorf("audio capture disabled by configuration")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	// Resolve a create/create race in favor of the existing worker.
	for _, wk := range w.workers {
		if wk.info.URL == opts.URL {
			return wk.info, nil
		}
	}

	info := ContextInfo{
		ID:        uuid.NewString(),
		URL:       opts.URL,
		CreatedAt: time.Now(),
	}
	w.workers[info.ID] = &worker{
		info:     info,
		sessions: make(map[string]bool),
	}
	w.log.Debug("capture worker created",
		zap.String("contextId", info.ID),
		zap.Int("sampleRate", opts.SampleRate))
	return info, nil
}

func (w *WorkerRuntime) StartCapture(_ context.Context, contextID, sessionID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	wk, ok := w.workers[contextID]
	if !ok {
		return fmt.Errorf("capture context %s not found", contextID)
	}
	wk.sessions[sessionID] = true
	return nil
}

func (w *WorkerRuntime) StopCapture(_ context.Context, contextID, sessionID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if wk, ok := w.workers[contextID]; ok {
		delete(wk.sessions, sessionID)
	}
	return nil
}

// CapturingCount reports how many sessions have capture running, for
// the app-state query.
func (w *WorkerRuntime) CapturingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := 0
	for _, wk := range w.workers {
		n += len(wk.sessions)
	}
	return n
}
