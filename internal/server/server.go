// Package server assembles the MCP server: process-wide state, tool
// registration, and the stdio and SSE transports.
package server

import (
	"fmt"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"dolex/internal/config"
	"dolex/internal/dsl"
	"dolex/internal/oplog"
	"dolex/internal/source"
	"dolex/internal/store"
	"dolex/internal/tools"
)

// Version is stamped into server_status responses.
const Version = "0.3.0"

// Server is the assembled process: the MCP endpoint plus the shared state
// whose lifecycle it owns.
type Server struct {
	mcp  *mcpserver.MCPServer
	deps *tools.Deps
}

// New builds the server from configuration: source manager, executor,
// bounded stores, operation log, and every tool.
func New(cfg config.Config, log *zap.SugaredLogger) *Server {
	mgr := source.NewManager(source.Options{
		PersistPath:   cfg.RegistryPath,
		SandboxPrefix: cfg.SandboxPrefix,
		RowCap:        cfg.RowCap,
		Logger:        log,
	})

	deps := &tools.Deps{
		Manager: mgr,
		Exec:    dsl.NewExecutor(mgr, cfg.RowCap),
		Results: store.New[tools.CachedResult]("qr", cfg.CacheCapacity),
		Specs:   store.New[tools.StoredSpec]("spec", cfg.CacheCapacity),
		Ops:     oplog.New(oplog.DefaultSize),
		Log:     log,
		Start:   time.Now(),
		Version: Version,
	}

	s := mcpserver.NewMCPServer("dolex", Version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)
	tools.Register(s, deps)

	return &Server{mcp: s, deps: deps}
}

// ServeStdio blocks serving the stdio transport until the client
// disconnects.
func (s *Server) ServeStdio() error {
	defer s.shutdown()
	return mcpserver.ServeStdio(s.mcp)
}

// ServeSSE blocks serving the SSE transport on addr. A bind failure is a
// fatal startup error for the caller to exit nonzero on.
func (s *Server) ServeSSE(addr string) error {
	defer s.shutdown()
	sse := mcpserver.NewSSEServer(s.mcp)
	if err := sse.Start(addr); err != nil {
		return fmt.Errorf("unable to bind transport on %s: %w", addr, err)
	}
	return nil
}

// shutdown drops process-wide state: live connections and both stores.
func (s *Server) shutdown() {
	s.deps.Manager.Shutdown()
	s.deps.Results.Clear()
	s.deps.Specs.Clear()
}
