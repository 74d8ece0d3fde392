package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mizuno-sec/vigil/internal/config"
	"github.com/mizuno-sec/vigil/internal/detect"
	vengine "github.com/mizuno-sec/vigil/internal/engine"
	"github.com/mizuno-sec/vigil/internal/feed"
	"github.com/mizuno-sec/vigil/internal/ipc"
	"github.com/mizuno-sec/vigil/internal/metrics"
	"github.com/mizuno-sec/vigil/internal/server"
	"github.com/mizuno-sec/vigil/internal/storage"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	var configPath string
	var sock string
	var dataDir string
	var metricsAddr string
	flag.StringVar(&configPath, "config", "", "path to vigild config yaml (optional)")
	flag.StringVar(&sock, "sock", "", "unix socket path (default: /run/vigil.sock; override: VIGIL_SOCK)")
	flag.StringVar(&dataDir, "data", "", "data directory (overrides config)")
	flag.StringVar(&metricsAddr, "metrics", "", "prometheus listen address (overrides config; empty disables)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	if sock != "" {
		cfg.Socket = sock
	}
	if cfg.Socket == "" {
		cfg.Socket = ipc.SockPath()
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}

	rules, err := loadRules(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rules: %v\n", err)
		return 1
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "data dir: %v\n", err)
		return 1
	}
	store, err := storage.Open(cfg.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("close store: %v", err)
		}
	}()

	met := metrics.New()
	hub := feed.NewHub(cfg.FeedBacklog)
	eng := vengine.New(cfg, store, detect.NewEngine(rules), hub, met)

	go func() {
		if err := met.Serve(ctx, cfg.MetricsAddr); err != nil {
			log.Printf("metrics: %v", err)
		}
	}()

	srv := server.New(cfg.Socket, eng, store, hub)
	go func() {
		if err := srv.ListenAndServe(ctx); err != nil {
			log.Printf("server: %v", err)
			cancel()
		}
	}()

	log.Printf("vigild started: data=%s sock=%s rules=%d", cfg.DataDir, cfg.Socket, len(rules))
	if err := eng.Run(ctx); err != nil {
		// Store write failures land here: surface loudly rather than keep
		// running without durability.
		if errors.Is(err, vengine.ErrStoreWrite) {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "engine: %v\n", err)
		}
		return 1
	}
	return 0
}

func loadRules(cfg config.Config) ([]detect.Rule, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	if cfg.RulesFile == "" {
		return detect.LoadDefaultRules(home)
	}
	b, err := os.ReadFile(cfg.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", cfg.RulesFile, err)
	}
	return detect.LoadRulesYAML(b, home)
}
