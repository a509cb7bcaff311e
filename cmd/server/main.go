package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/interview-copilot/backend/internal/capture"
	"github.com/interview-copilot/backend/internal/config"
	"github.com/interview-copilot/backend/internal/llm"
	"github.com/interview-copilot/backend/internal/perf"
	"github.com/interview-copilot/backend/internal/router"
	"github.com/interview-copilot/backend/internal/session"
	"github.com/interview-copilot/backend/internal/storage"
	"github.com/interview-copilot/backend/internal/ws"
)

const version = "0.3.0"

// panelPortHandler answers panel-side port messages. Most panel
// traffic is push from the orchestrator; the inbound direction only
// carries liveness checks and panel state notices today.
type panelPortHandler struct {
	registry *ws.Registry
	log      *zap.Logger
}

func (h *panelPortHandler) HandlePortMessage(_ context.Context, tabID int, msg ws.InboundMessage) {
	switch msg.Command {
	case "ping":
		h.registry.NotifyTab(tabID, "pong", map[string]any{
			"timestamp": time.Now().UnixMilli(),
		})
	default:
		h.log.Debug("unhandled port message",
			zap.String("command", msg.Command),
			zap.Int("tabId", tabID))
	}
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	offline := flag.Bool("offline", false, "Use the local fallback responder instead of the LLM provider")
	dev := flag.Bool("dev", false, "Development mode (verbose console logging)")
	flag.Parse()

	var logger *zap.Logger
	var err error
	if *dev {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("config unavailable, running on defaults",
			zap.String("path", *configPath),
			zap.Error(err))
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	store, err := storage.Open(cfg.Storage.Path, cfg.Storage.Namespace)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer store.Close()

	analyzer := perf.NewAnalyzer(logger)
	registry := session.NewRegistry()

	captureRT := capture.NewWorkerRuntime(cfg.Capture.Enabled, logger)
	provisioner := capture.NewProvisioner(captureRT, capture.CreateOptions{
		URL:        cfg.Capture.ContextURL,
		SampleRate: cfg.Capture.SampleRate,
		Channels:   cfg.Capture.Channels,
	}, logger)

	var responder llm.Responder
	var prober llm.Prober
	if *offline || cfg.LLM.APIKey == "" {
		logger.Info("no LLM provider configured, using fallback responder")
		fb := llm.NewFallbackResponder()
		responder, prober = fb, fb
	} else {
		oa := llm.NewOpenAIResponder(cfg.LLM, logger)
		responder, prober = oa, oa
	}

	portHandler := &panelPortHandler{log: logger}
	wsRegistry := ws.NewRegistry(portHandler, version, logger)
	portHandler.registry = wsRegistry

	orch := router.NewOrchestrator(router.OrchestratorDeps{
		Config:    cfg,
		Registry:  registry,
		Store:     store,
		Capture:   provisioner,
		Responder: responder,
		Prober:    prober,
		Notifier:  wsRegistry,
		Perf:      analyzer,
		Log:       logger,
		Version:   version,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orch.InitializeDefaults(ctx); err != nil {
		logger.Warn("failed to seed default settings", zap.Error(err))
	}
	if err := orch.RestoreState(ctx); err != nil {
		logger.Warn("failed to restore persisted state", zap.Error(err))
	}
	if cfg.Capture.Enabled {
		if _, err := provisioner.Ensure(ctx); err != nil {
			logger.Warn("capture context unavailable at startup", zap.Error(err))
		}
	}

	// Periodic persistence narrows the window a hard kill can lose.
	go func() {
		ticker := time.NewTicker(cfg.Monitor.SnapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := orch.PersistState(ctx); err != nil {
					logger.Warn("periodic snapshot failed", zap.Error(err))
				}
			}
		}
	}()

	dispatcher := router.New(cfg.Router.HandlerTimeout, analyzer, logger)
	orch.Register(dispatcher)

	server := ws.NewServer(cfg.Server, wsRegistry, dispatcher.HTTPHandler(), logger)
	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := orch.PersistState(shutdownCtx); err != nil {
			logger.Error("failed to persist state at shutdown", zap.Error(err))
		}
		cancel()
		os.Exit(0)
	}()

	if err := ws.ListenAndServe(cfg.Server.Host, cfg.Server.Port, mux, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
