package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"dolex/internal/config"
	"dolex/internal/core"
	"dolex/internal/logging"
	"dolex/internal/server"
	"dolex/internal/source"

	// Connectors register themselves with the connect registry.
	_ "dolex/internal/connect/csv"
	_ "dolex/internal/connect/mysql"
	_ "dolex/internal/connect/sqlite"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dolex",
		Short: "Data-analysis MCP server over local CSV, SQLite, and MySQL sources",
	}

	var configPath string
	var registryPath string
	var addr string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server (stdio by default, SSE with --addr)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if registryPath != "" {
				cfg.RegistryPath = registryPath
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if err := checkRegistryPath(cfg.RegistryPath); err != nil {
				return err
			}

			log, err := logging.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			srv := server.New(cfg, log)
			if cfg.Addr != "" {
				log.Infow("serving SSE", "addr", cfg.Addr)
				return srv.ServeSSE(cfg.Addr)
			}
			return srv.ServeStdio()
		},
	}
	serveCmd.Flags().StringVar(&configPath, "config", "", "Path to a dolex.toml configuration file")
	serveCmd.Flags().StringVar(&registryPath, "registry", "", "Path to the source-registry JSON file")
	serveCmd.Flags().StringVar(&addr, "addr", "", "Serve SSE on this address instead of stdio")
	rootCmd.AddCommand(serveCmd)

	var inspectType string
	inspectCmd := &cobra.Command{
		Use:   "inspect <path-or-dsn>",
		Short: "Connect a source and print its introspected schema as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.Context(), args[0], inspectType)
		},
	}
	inspectCmd.Flags().StringVar(&inspectType, "type", "", "Source type: csv, sqlite, or mysql (inferred when omitted)")
	rootCmd.AddCommand(inspectCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// checkRegistryPath verifies the persistence location is usable before the
// server starts; an unwritable path is a fatal configuration error.
func checkRegistryPath(path string) error {
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("invalid registry path %s: directory does not exist", path)
	}
	probe, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("registry path is not writable: %w", err)
	}
	return probe.Close()
}

func runInspect(ctx context.Context, target, typ string) error {
	mgr := source.NewManager(source.Options{})
	defer mgr.Shutdown()

	srcType, cfg, err := inspectSource(target, typ)
	if err != nil {
		return err
	}
	name := filepath.Base(target)
	res, err := mgr.Add(ctx, name, srcType, cfg)
	if err != nil {
		return err
	}
	schema, err := mgr.Schema(ctx, res.Source.ID)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// inspectSource decides the source type for the inspect command: explicit
// flag first, then the path extension.
func inspectSource(target, typ string) (core.SourceType, core.SourceConfig, error) {
	switch strings.ToLower(typ) {
	case "mysql":
		return core.SourceMySQL, core.SourceConfig{DSN: target}, nil
	case "csv":
		return core.SourceCSV, core.SourceConfig{Path: target}, nil
	case "sqlite":
		return core.SourceSQLite, core.SourceConfig{Path: target}, nil
	case "":
	default:
		return "", core.SourceConfig{}, fmt.Errorf("unknown source type %q", typ)
	}

	if info, err := os.Stat(target); err == nil && info.IsDir() {
		return core.SourceCSV, core.SourceConfig{Path: target}, nil
	}
	switch strings.ToLower(filepath.Ext(target)) {
	case ".csv":
		return core.SourceCSV, core.SourceConfig{Path: target}, nil
	case ".sqlite", ".sqlite3", ".db":
		return core.SourceSQLite, core.SourceConfig{Path: target}, nil
	}
	return "", core.SourceConfig{}, fmt.Errorf("cannot infer source type for %s; pass --type", target)
}
