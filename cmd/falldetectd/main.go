// Command falldetectd runs the camera→pose→logic→save pipeline: one
// capture source, one pose estimator, one fall-detection FSM, one
// saver, per process.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/falldetect/internal/falldetect/capture"
	fdconfig "github.com/your-org/falldetect/internal/falldetect/config"
	"github.com/your-org/falldetect/internal/falldetect/collector"
	"github.com/your-org/falldetect/internal/falldetect/eventindex"
	"github.com/your-org/falldetect/internal/falldetect/notify"
	"github.com/your-org/falldetect/internal/falldetect/pose"
	"github.com/your-org/falldetect/internal/falldetect/saver"
	"github.com/your-org/falldetect/internal/hud"
	"github.com/your-org/falldetect/internal/observability"
	"github.com/your-org/falldetect/internal/statusapi"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to config YAML")
	display := flag.Bool("display", false, "enable the HUD viewer (debug)")
	flag.Parse()

	cfg, err := fdconfig.Load(*configPath)
	if err != nil {
		exampleCfg := "config.example.yaml"
		if _, statErr := os.Stat(exampleCfg); statErr == nil {
			cfg, err = fdconfig.Load(exampleCfg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "ERROR: failed to load fallback config %q: %v\n", exampleCfg, err)
				return 2
			}
			fmt.Fprintf(os.Stderr, "WARN: failed to load %q, using %q: %v\n", *configPath, exampleCfg, err)
		} else {
			fmt.Fprintf(os.Stderr, "ERROR: failed to load config %q: %v\n", *configPath, err)
			return 2
		}
	}

	if cfg.Logging.File != "" {
		observability.SetupLoggerToFile(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	} else {
		observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	}

	slog.Info("starting falldetectd", "version", collector.AppVersion, "config", *configPath)

	ringSeconds := cfg.Saver.PreSeconds + cfg.Saver.PostSeconds + 2
	captureThread := capture.NewThread(capture.Config{
		Source:      cfg.Camera.Source,
		Width:       cfg.Camera.Width,
		Height:      cfg.Camera.Height,
		FPS:         cfg.Camera.FPS,
		RingSeconds: ringSeconds,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := captureThread.Start(ctx); err != nil {
		slog.Error("camera open failed", "source", cfg.Camera.Source, "error", err)
		slog.Error("check camera.source in config (device index, RTSP URL, or video file)")
		return 3
	}

	if cfg.Model.Backend == "onnx" {
		ort.SetSharedLibraryPath(onnxLibPath())
		if err := ort.InitializeEnvironment(); err != nil {
			slog.Error("init onnx runtime", "error", err)
			return 101
		}
		defer ort.DestroyEnvironment()
	}

	estimator, err := pose.Build(pose.BackendConfig{
		Backend:    cfg.Model.Backend,
		ModelPath:  cfg.Model.ModelPath,
		NumThreads: cfg.Model.NumThreads,
	})
	if err != nil {
		slog.Error("model backend not implemented or failed to load", "backend", cfg.Model.Backend, "error", err)
		return 101
	}
	defer estimator.Close()

	var notifier saver.Notifier
	var publisher *notify.Publisher
	if cfg.NATS.Enabled && cfg.NATS.URL != "" {
		publisher, err = notify.Connect(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats notification disabled, connect failed", "error", err)
		} else {
			notifier = publisher
			defer publisher.Close()
		}
	}

	var eventStore *eventindex.Store
	if cfg.Postgres.Enabled {
		eventStore, err = eventindex.Connect(ctx, cfg.Postgres)
		if err != nil {
			slog.Warn("postgres event index disabled, connect failed", "error", err)
		} else {
			if err := eventStore.EnsureSchema(ctx); err != nil {
				slog.Warn("postgres event index schema setup failed", "error", err)
				eventStore.Close()
				eventStore = nil
			} else {
				defer eventStore.Close()
			}
		}
	}

	var indexer saver.Indexer
	if eventStore != nil {
		indexer = eventStore
	}
	saverWorker := saver.NewWorker(notifier, indexer)

	coll := collector.New(*cfg, captureThread, estimator, saverWorker, os.Getenv("GIT_COMMIT"))

	var hudHub *hud.Hub
	if *display || cfg.HUD.Enabled {
		hudHub = hud.NewHub()
		hudStop := make(chan struct{})
		go hudHub.Run(hudStop)
		defer close(hudStop)
		coll.SetSink(hudHub)

		mux := http.NewServeMux()
		mux.HandleFunc("/", hud.ServeViewer)
		mux.HandleFunc("/ws", hudHub.ServeWS)
		addr := fmt.Sprintf(":%d", cfg.HUD.Port)
		go func() {
			slog.Info("hud viewer listening", "addr", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				slog.Error("hud server error", "error", err)
			}
		}()
	}

	if cfg.Status.Enabled {
		startedAt := time.Now()
		src := statusapi.Func(func() statusapi.Status {
			st := coll.Status()
			return statusapi.Status{InferFPS: st.InferFPS, State: st.State, LastTriggered: st.LastTriggered}
		})
		router := statusapi.NewRouter(src, startedAt, cfg.Logging.ExportPrometheus)
		addr := fmt.Sprintf(":%d", cfg.Status.Port)
		go func() {
			slog.Info("status api listening", "addr", addr)
			if err := router.Run(addr); err != nil {
				slog.Error("status api error", "error", err)
			}
		}()
	}

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- coll.Run(ctx) }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		slog.Info("shutting down falldetectd...")
	case err := <-runErrCh:
		if err != nil && err != context.Canceled {
			slog.Error("collector loop exited", "error", err)
		}
	}

	cancel()
	saverWorker.Stop()
	captureThread.Stop()

	slog.Info("falldetectd stopped")
	return 0
}

// onnxLibPath returns the ONNX Runtime shared library path for the
// current OS.
func onnxLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return filepath.Join(".", "libonnxruntime.so")
	}
}
