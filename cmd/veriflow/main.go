// Package main is the entry point for the VeriFlow CLI.
// VeriFlow is a conversational front-end for exploring product data: ask a question,
// get a short summary and a chart, with an animated robot reacting along the way.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/normanking/veriflow/internal/analysis"
	"github.com/normanking/veriflow/internal/api"
	"github.com/normanking/veriflow/internal/avatar"
	"github.com/normanking/veriflow/internal/avatar3d"
	"github.com/normanking/veriflow/internal/bridge"
	"github.com/normanking/veriflow/internal/bus"
	"github.com/normanking/veriflow/internal/chat"
	"github.com/normanking/veriflow/internal/config"
	"github.com/normanking/veriflow/internal/dataset"
	"github.com/normanking/veriflow/internal/history"
	"github.com/normanking/veriflow/internal/logging"
	"github.com/normanking/veriflow/internal/metrics"
	"github.com/normanking/veriflow/internal/speech"
)

var (
	version = "0.1.0"
	cfgPath string
	verbose bool
	cfg     *config.Config
	log     *logging.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "veriflow",
		Short: "VeriFlow - conversational data analysis",
		Long: `VeriFlow answers questions about a product dataset with a summary and a chart.

Start the server:   veriflow serve
One-shot question:  veriflow ask "Show the 3 most expensive products"
Render a chart:     veriflow chart --out top.png "Stock by category"`,
		PersistentPreRunE:  initRuntime,
		PersistentPostRunE: closeRuntime,
		SilenceUsage:       true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.veriflow/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("VeriFlow v%s\n", version)
		},
	})
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(chartCmd())
	rootCmd.AddCommand(poseCmd())
	rootCmd.AddCommand(exportSceneCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initRuntime loads configuration and sets up logging for every command.
func initRuntime(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := logging.ParseLevel(cfg.Logging.Level)
	if verbose {
		level = logging.LevelDebug
	}
	// Only the server logs to the console; one-shot commands keep stdout clean.
	log, err = logging.New(&logging.Config{
		Dir:        cfg.Logging.Dir,
		Level:      level,
		MaxHistory: 500,
		Console:    cfg.Logging.Console && cmd.Name() == "serve",
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	return nil
}

func closeRuntime(cmd *cobra.Command, args []string) error {
	if log != nil {
		return log.Close()
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// SERVE
// ═══════════════════════════════════════════════════════════════════════════════

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server with the animated avatar",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func runServer(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	store, err := history.OpenSQLite(cfg.Storage.DataDir, cfg.Storage.HistoryKey)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	data, err := loadDataset(cfg.Dataset.Path)
	if err != nil {
		return err
	}

	mode, err := chat.ParseListeningMode(cfg.Speech.ListeningMode)
	if err != nil {
		return err
	}

	eb := bus.NewEventBus()
	hub := bridge.NewHub(log, bridge.WithConnCountHandler(func(n int) {
		m.ActiveSockets.Set(float64(n))
	}))
	ctrl := avatar.NewController(avatar.WithOverlayDurations(cfg.Avatar.ConfirmationDuration, cfg.Avatar.AnalysisCompleteDelay))
	sb := speech.NewBridge(hub.Recognizer(), hub.Synthesizer(), cfg.Speech.Language, log)

	orch, err := chat.New(ctx, chat.Deps{
		Store:    store,
		Analyzer: analysis.Instrumented(newAnalyzer(), m),
		Avatar:   ctrl,
		Speech:   sb,
		Bus:      eb,
		Logger:   log,
		Dataset:  data,
	}, chat.Settings{
		Enabled: cfg.Speech.Enabled,
		Rate:    cfg.Speech.Rate,
		VoiceID: cfg.Speech.VoiceID,
		Mode:    mode,
	})
	if err != nil {
		return fmt.Errorf("start chat: %w", err)
	}
	defer orch.Close()

	detach := m.Attach(eb)
	defer detach()

	if cfg.Dataset.Path != "" && cfg.Dataset.Watch {
		w, err := dataset.NewWatcher(cfg.Dataset.Path, func(name string, raw []byte) {
			if err := orch.UploadDataset(name, raw); err != nil {
				log.Warn("dataset", "Reload rejected", map[string]interface{}{"error": err.Error()})
			}
		}, log)
		if err != nil {
			return err
		}
		defer w.Close()
	}

	av := avatar3d.NewAvatar(ctrl, nil)
	go func() {
		err := av.Run(ctx, cfg.Avatar.FPS, func(p avatar3d.Pose) {
			eb.PublishSync(bus.Event{Type: bus.EventTypePose, Data: map[string]any{"pose": p}})
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("avatar", "Animation loop stopped", err, nil)
		}
	}()

	srv, err := api.NewServer(api.Config{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		AllowOrigins: cfg.Server.AllowOrigins,
	}, api.Deps{
		Orchestrator: orch,
		Avatar:       av,
		Hub:          hub,
		Bus:          eb,
		Metrics:      m,
		Gatherer:     reg,
		Logger:       log,
	})
	if err != nil {
		return err
	}

	log.Info("main", "VeriFlow started", map[string]interface{}{
		"version":  version,
		"addr":     cfg.Server.Addr,
		"analyzer": cfg.Analysis.Provider,
		"dataset":  data.Name,
	})
	return srv.Run(ctx)
}

// newAnalyzer builds the configured analysis backend. The offline-demo provider
// returns canned answers for demos without an API key.
func newAnalyzer() analysis.Analyzer {
	if cfg.Analysis.Provider == config.ProviderOfflineDemo {
		return analysis.Offline{}
	}
	return analysis.NewGemini(analysis.GeminiConfig{
		APIKey:   cfg.Analysis.APIKey,
		Endpoint: cfg.Analysis.Endpoint,
		Model:    cfg.Analysis.Model,
		Timeout:  cfg.Analysis.Timeout,
	})
}

// loadDataset reads the configured dataset file, or the built-in sample when path is empty.
func loadDataset(path string) (*dataset.Dataset, error) {
	if path == "" {
		return dataset.Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	data, warnings, err := dataset.Parse(filepath.Base(path), raw)
	if err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}
	for _, w := range warnings {
		log.Warn("dataset", w, map[string]interface{}{"path": path})
	}
	return data, nil
}
