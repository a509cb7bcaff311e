// Package capture owns the singleton audio-capture context, the
// counterpart of the browser extension's offscreen document. The
// Provisioner guarantees at most one context exists, creating it
// lazily and tolerating concurrent initialization attempts.
package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ContextInfo describes one capture context known to the runtime.
type ContextInfo struct {
	ID        string
	URL       string
	CreatedAt time.Time
}

// CreateOptions carries the justification the runtime requires before
// provisioning a capture context.
type CreateOptions struct {
	URL           string
	Reasons       []string
	Justification string
	SampleRate    int
	Channels      int
}

// Runtime is the narrow capability interface over the host that can
// list and create capture contexts. Implementations must treat Create
// as best-effort: a concurrent creator may win the race, in which case
// returning the existing context (not an error) is the correct outcome.
type Runtime interface {
	Contexts(ctx context.Context, url string) ([]ContextInfo, error)
	Create(ctx context.Context, opts CreateOptions) (ContextInfo, error)
	StartCapture(ctx context.Context, contextID, sessionID string) error
	StopCapture(ctx context.Context, contextID, sessionID string) error
}

// Provisioner ensures at most one capture context for its URL.
type Provisioner struct {
	mu   sync.Mutex
	rt   Runtime
	opts CreateOptions
	log  *zap.Logger
}

func NewProvisioner(rt Runtime, opts CreateOptions, log *zap.Logger) *Provisioner {
	if len(opts.Reasons) == 0 {
		opts.Reasons = []string{"USER_MEDIA", "AUDIO_PLAYBACK"}
	}
	if opts.Justification == "" {
		opts.Justification = "Live transcription of the active call"
	}
	return &Provisioner{rt: rt, opts: opts, log: log}
}

// Ensure returns the capture context, creating it only if none exists.
// The check and the create run under one lock so concurrent Ensure
// calls from interleaved handlers cannot double-create. Failures are
// returned, never fatal: callers degrade the dependent feature instead.
func (p *Provisioner) Ensure(ctx context.Context) (ContextInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	existing, err := p.rt.Contexts(ctx, p.opts.URL)
	if err != nil {
		return ContextInfo{}, fmt.Errorf("query capture contexts: %w", err)
	}
	if len(existing) > 0 {
		return existing[0], nil
	}

	info, err := p.rt.Create(ctx, p.opts)
	if err != nil {
		// The runtime may have raced us anyway; one more look before
		// reporting failure.
		if again, qerr := p.rt.Contexts(ctx, p.opts.URL); qerr == nil && len(again) > 0 {
			return again[0], nil
		}
		p.log.Warn("capture context creation failed", zap.Error(err))
		return ContextInfo{}, fmt.Errorf("create capture context: %w", err)
	}

	p.log.Info("capture context created", zap.String("contextId", info.ID))
	return info, nil
}

// StartSession provisions the context if needed and starts capture for
// the session. This is the side effect whose failure leaves a new
// session paused rather than failing its creation.
func (p *Provisioner) StartSession(ctx context.Context, sessionID string) error {
	info, err := p.Ensure(ctx)
	if err != nil {
		return err
	}
	if err := p.rt.StartCapture(ctx, info.ID, sessionID); err != nil {
		return fmt.Errorf("start capture for session %s: %w", sessionID, err)
	}
	return nil
}

// StopSession stops capture for the session. A missing context means
// there is nothing to stop; that is not an error.
func (p *Provisioner) StopSession(ctx context.Context, sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	existing, err := p.rt.Contexts(ctx, p.opts.URL)
	if err != nil || len(existing) == 0 {
		return nil
	}
	return p.rt.StopCapture(ctx, existing[0].ID, sessionID)
}
