package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"hostwatch/config"
	"hostwatch/internal/alerts"
	"hostwatch/internal/collector"
	"hostwatch/internal/errpolicy"
	"hostwatch/internal/executor"
	"hostwatch/internal/graph"
	"hostwatch/internal/logger"
	"hostwatch/internal/metrics"
	"hostwatch/internal/output/alertredis"
	"hostwatch/internal/remote"
	"hostwatch/internal/scorer"
	"hostwatch/internal/storage"
	"hostwatch/internal/transform/rawmetrics"
	"hostwatch/pkg/models"
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat("hostwatch.yml"); err == nil {
		return "hostwatch.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, "hostwatch.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "hostwatch.yml"
}

func applyDefaults(cfg *config.Config) {
	if cfg.Hostwatch.Collection.Interval <= 0 {
		cfg.Hostwatch.Collection.Interval = collector.DefaultInterval
	}

	if cfg.Hostwatch.Executor.Timeout <= 0 {
		cfg.Hostwatch.Executor.Timeout = executor.DefaultTimeout
	}
	if len(cfg.Hostwatch.Executor.Whitelist) == 0 {
		cfg.Hostwatch.Executor.Whitelist = []string{
			"top", "free", "ps", "netstat", "journalctl", "tail",
			"wmic", "tasklist", "wevtutil",
		}
	}

	if cfg.Hostwatch.Scorer.ModelPath == "" {
		cfg.Hostwatch.Scorer.ModelPath = "model/weights.json"
	}

	if cfg.Hostwatch.Alerts.Threshold <= 0 {
		cfg.Hostwatch.Alerts.Threshold = 0.7
	}
	if cfg.Hostwatch.Alerts.Redis.Addr == "" {
		cfg.Hostwatch.Alerts.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.Hostwatch.Alerts.Redis.Key == "" {
		cfg.Hostwatch.Alerts.Redis.Key = "hostwatch:alerts"
	}

	if cfg.Hostwatch.Graph.DecayFactor <= 0 {
		cfg.Hostwatch.Graph.DecayFactor = graph.DefaultDecayFactor
	}

	if cfg.Hostwatch.Storage.Dir == "" {
		cfg.Hostwatch.Storage.Dir = "data"
	}
	if cfg.Hostwatch.Storage.HistoryFile == "" {
		cfg.Hostwatch.Storage.HistoryFile = "logs.json"
	}
	if cfg.Hostwatch.Storage.AlertsFile == "" {
		cfg.Hostwatch.Storage.AlertsFile = "alerts.json"
	}

	if cfg.Hostwatch.Metrics.ListenAddr == "" {
		cfg.Hostwatch.Metrics.ListenAddr = ":9201"
	}

	if cfg.Hostwatch.Logging.Level == "" {
		cfg.Hostwatch.Logging.Level = "info"
	}
}

func loadConfig(configArg string) *config.Config {
	configPath := findConfigFile(configArg)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		if configArg == "" && os.IsNotExist(err) {
			// No config anywhere: run on defaults.
			cfg = &config.Config{}
		} else {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	applyDefaults(cfg)

	if err := logger.Init(cfg.Hostwatch.Logging.Enabled, cfg.Hostwatch.Logging.Level, cfg.Hostwatch.Logging.File, cfg.Hostwatch.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger.Infof("Config loaded from: %s", configPath)
	return cfg
}

// buildCollector wires every pipeline component from the configuration.
// Startup failures here are unrecoverable and terminate the process.
func buildCollector(cfg *config.Config) (*collector.Collector, func()) {
	hw := cfg.Hostwatch

	osType, err := collector.DetectOS()
	if err != nil {
		errpolicy.Fatal("main", "cannot start collection", err)
	}

	runner, err := executor.New(hw.Executor.Whitelist, hw.Executor.Timeout)
	if err != nil {
		errpolicy.Fatal("main", "failed to build command executor", err)
	}

	parser, err := rawmetrics.NewParser(osType)
	if err != nil {
		errpolicy.Fatal("main", "failed to build metrics parser", err)
	}

	model, err := scorer.Load(hw.Scorer.ModelPath)
	if err != nil {
		errpolicy.Fatal("main", "scoring model unavailable", err)
	}

	alertEngine, err := alerts.NewEngine(hw.Alerts.Threshold)
	if err != nil {
		errpolicy.Fatal("main", "invalid alert threshold", err)
	}

	deps := collector.Deps{
		Runner: runner,
		Parser: parser,
		Scorer: model,
		Alerts: alertEngine,
		Graph:  graph.NewEngine(),
		Store:  storage.NewManager(hw.Storage.Dir, hw.Storage.HistoryFile, hw.Storage.AlertsFile),
	}

	if len(hw.Remote.Endpoints) > 0 {
		endpoints := make([]models.RemoteEndpoint, 0, len(hw.Remote.Endpoints))
		for _, ep := range hw.Remote.Endpoints {
			endpoints = append(endpoints, models.RemoteEndpoint{
				NodeID:    ep.NodeID,
				URL:       ep.URL,
				AuthType:  ep.AuthType,
				AuthToken: ep.AuthToken,
				Timeout:   ep.Timeout,
			})
		}
		deps.Remote = remote.NewCollector(endpoints)
		logger.Infof("Remote collection enabled for %d endpoints", len(endpoints))
	}

	cleanup := func() {}
	if hw.Alerts.Redis.Enabled {
		writer, err := alertredis.NewWriter(alertredis.Config{
			Addr:     hw.Alerts.Redis.Addr,
			Password: hw.Alerts.Redis.Password,
			DB:       hw.Alerts.Redis.DB,
			Key:      hw.Alerts.Redis.Key,
		})
		if err != nil {
			errpolicy.Fatal("main", "failed to connect alert redis sink", err)
		}
		deps.Publisher = writer
		cleanup = func() {
			if err := writer.Close(); err != nil {
				logger.Errorf("Error closing alert redis writer: %v", err)
			}
		}
	}

	c, err := collector.New(osType, hw.Collection.Interval, hw.Graph.DecayFactor, deps)
	if err != nil {
		errpolicy.Fatal("main", "failed to build collector", err)
	}
	return c, cleanup
}

func runStart(args []string) {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configArg := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configArg)
	c, cleanup := buildCollector(cfg)
	defer cleanup()

	if cfg.Hostwatch.Metrics.Enabled {
		metrics.Serve(cfg.Hostwatch.Metrics.ListenAddr)
	}

	logger.Infof("Hostwatch starting")
	c.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("Shutting down")
	c.Stop()
	logger.Infof("Hostwatch stopped")
}

func runCollectOnce(args []string) int {
	fs := flag.NewFlagSet("collect-once", flag.ExitOnError)
	configArg := fs.String("config", "", "Path to config file")
	graphOut := fs.String("o", "", "Optional path to export the attack graph after the cycle")
	fs.Parse(args)

	cfg := loadConfig(*configArg)
	c, cleanup := buildCollector(cfg)
	defer cleanup()

	snap := c.CollectOnce(context.Background())
	if snap == nil {
		fmt.Fprintln(os.Stderr, "collection cycle produced no local snapshot")
		return 1
	}

	fmt.Printf("node=%s cpu=%.1f%% memory=%.1f%% processes=%d connections=%d failed_logins=%d\n",
		snap.NodeID, snap.CPUUsage, snap.MemoryUsage,
		snap.ProcessCount, snap.NetworkConnections, snap.FailedLogins)

	if *graphOut != "" {
		if !c.ExportAttackGraph(*graphOut) {
			return 1
		}
		fmt.Printf("attack graph written to %s\n", *graphOut)
	}

	if path := c.HighestRiskPath(); len(path) > 0 {
		fmt.Printf("highest risk path: %s\n", strings.Join(path, " -> "))
	}
	return 0
}

func runExportGraph(args []string) int {
	fs := flag.NewFlagSet("export-graph", flag.ExitOnError)
	configArg := fs.String("config", "", "Path to config file")
	graphOut := fs.String("o", "output/attack_graph.json", "Attack graph output path")
	fs.Parse(args)

	cfg := loadConfig(*configArg)
	c, cleanup := buildCollector(cfg)
	defer cleanup()

	// The graph lives in memory only, so run one cycle to populate it
	// before exporting.
	c.CollectOnce(context.Background())

	if !c.ExportAttackGraph(*graphOut) {
		return 1
	}
	fmt.Printf("attack graph written to %s\n", *graphOut)
	return 0
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: hostwatch <command> [flags]

Commands:
  start         Run continuous collection until interrupted
  collect-once  Run a single collection cycle and print a summary
  export-graph  Run one cycle and export the attack graph to JSON
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "start":
		runStart(os.Args[2:])
	case "collect-once":
		os.Exit(runCollectOnce(os.Args[2:]))
	case "export-graph":
		os.Exit(runExportGraph(os.Args[2:]))
	default:
		usage()
		os.Exit(2)
	}
}
