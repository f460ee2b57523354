// Command panelscribe-mcp serves saved interviews to MCP clients over stdio.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/jwulff/panelscribe/internal/config"
	"github.com/jwulff/panelscribe/internal/db"
	"github.com/jwulff/panelscribe/internal/history"
	"github.com/jwulff/panelscribe/internal/logging"
	"github.com/mark3labs/mcp-go/server"
)

var version = "dev"

func main() {
	var configFile, dbPath string
	flag.StringVar(&configFile, "config", "", "Config file (default: search ./config.yml and the user config dir)")
	flag.StringVar(&dbPath, "db", "", "Interview database path")
	flag.Parse()

	if err := run(configFile, dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "panelscribe-mcp: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile, dbPath string) error {
	// stdout carries the protocol, so logs go to stderr at most.
	opts := []config.Option{
		config.WithDefault("logging.level", "warn"),
	}
	if configFile != "" {
		opts = append(opts, config.WithConfigFile(configFile))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.Client.DBPath = dbPath
	}
	if cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}

	log, closer, err := logging.New(cfg.Logging, "panelscribe-mcp")
	if err != nil {
		return err
	}
	defer closer.Close()

	store, err := db.Open(cfg.Client.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	log.Info().Str("db", cfg.Client.DBPath).Msg("serving history over stdio")
	return server.ServeStdio(history.NewMCPServer(history.New(store), version))
}
