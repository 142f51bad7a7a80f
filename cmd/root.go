// Package cmd is the flag-driven CLI entry point.
package cmd

import (
	"flag"
	"fmt"
	"os"

	"github.com/intellimaint/intellimaint/config"
)

// Version is set at build time via ldflags.
var Version = "0.3.0"

func printUsage() {
	fmt.Fprintf(os.Stderr, `intellimaint v%s — assessment & diagnostics engine for industrial telemetry

Usage:
  intellimaint [OPTIONS]

Modes:
  (default)         Run the engine: scheduler, broadcast hub, websocket stream
  -check-config     Validate the configuration file and exit
  -version          Print version and exit

Options:
  -config PATH      YAML configuration file (default: built-in defaults)
  -datadir PATH     Override the sqlite data directory (empty = in-memory)
  -listen ADDR      Override the websocket listen address
  -metrics ADDR     Override the self-metrics listen address (empty = off)

Examples:
  intellimaint -config /etc/intellimaint/engine.yaml
  intellimaint -datadir /var/lib/intellimaint
  intellimaint -check-config -config engine.yaml
`, Version)
}

// Run parses flags and starts the selected mode.
func Run() error {
	var (
		configPath  string
		dataDir     string
		listenAddr  string
		metricsAddr string
		checkOnly   bool
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "YAML configuration file")
	flag.StringVar(&dataDir, "datadir", "", "sqlite data directory (empty = in-memory)")
	flag.StringVar(&listenAddr, "listen", "", "websocket listen address")
	flag.StringVar(&metricsAddr, "metrics", "", "self-metrics listen address")
	flag.BoolVar(&checkOnly, "check-config", false, "validate the configuration and exit")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Usage = printUsage
	flag.Parse()

	if showVersion {
		fmt.Printf("intellimaint v%s\n", Version)
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}

	if checkOnly {
		fmt.Println("configuration OK")
		return nil
	}
	return serve(cfg)
}
