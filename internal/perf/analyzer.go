// Package perf is the write-only timing/event/error sink for the
// orchestrator. Every command dispatch and lifecycle transition is
// recorded here; nothing in the hot path ever reads it back except the
// coarse Snapshot served by the app-state query.
package perf

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

type opStats struct {
	Count   int64 `json:"count"`
	Errors  int64 `json:"errors"`
	TotalMs int64 `json:"totalMs"`
}

// Snapshot is a point-in-time copy of the aggregate counters.
type Snapshot struct {
	Events   int64              `json:"events"`
	Errors   int64              `json:"errors"`
	Ops      map[string]opStats `json:"ops"`
	Uptime   time.Duration      `json:"-"`
	UptimeMs int64              `json:"uptimeMs"`
}

type Analyzer struct {
	log     *zap.Logger
	started time.Time

	mu     sync.Mutex
	events int64
	errors int64
	ops    map[string]*opStats
}

func NewAnalyzer(log *zap.Logger) *Analyzer {
	return &Analyzer{
		log:     log,
		started: time.Now(),
		ops:     make(map[string]*opStats),
	}
}

// StartTiming records the start of an operation and returns the
// function that records its end. The timing key includes the start
// timestamp so concurrent dispatches of the same command never collide.
func (a *Analyzer) StartTiming(op string) func(err error) {
	start := time.Now()
	key := fmt.Sprintf("%s@%d", op, start.UnixNano())
	a.log.Debug("op start", zap.String("key", key))

	return func(err error) {
		elapsed := time.Since(start)

		a.mu.Lock()
		st, ok := a.ops[op]
		if !ok {
			st = &opStats{}
			a.ops[op] = st
		}
		st.Count++
		st.TotalMs += elapsed.Milliseconds()
		if err != nil {
			st.Errors++
			a.errors++
		}
		a.mu.Unlock()

		if err != nil {
			a.log.Warn("op failed",
				zap.String("key", key),
				zap.Duration("elapsed", elapsed),
				zap.Error(err))
			return
		}
		a.log.Info("op done",
			zap.String("key", key),
			zap.Duration("elapsed", elapsed))
	}
}

// RecordEvent logs a named event with structured fields and bumps the
// event counter.
func (a *Analyzer) RecordEvent(name string, fields map[string]any) {
	a.mu.Lock()
	a.events++
	a.mu.Unlock()

	zf := make([]zap.Field, 0, len(fields)+1)
	zf = append(zf, zap.String("event", name))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	a.log.Info("event", zf...)
}

// RecordError logs a failure attributed to op without an associated
// timing span.
func (a *Analyzer) RecordError(op string, err error) {
	a.mu.Lock()
	a.errors++
	a.mu.Unlock()

	a.log.Error("error", zap.String("op", op), zap.Error(err))
}

func (a *Analyzer) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	ops := make(map[string]opStats, len(a.ops))
	for k, v := range a.ops {
		ops[k] = *v
	}

	uptime := time.Since(a.started)
	return Snapshot{
		Events:   a.events,
		Errors:   a.errors,
		Ops:      ops,
		Uptime:   uptime,
		UptimeMs: uptime.Milliseconds(),
	}
}
