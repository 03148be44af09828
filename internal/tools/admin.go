package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"dolex/internal/output"
)

func registerAdminTools(s *server.MCPServer, d *Deps) {
	s.AddTool(mcp.NewTool("clear_cache",
		mcp.WithDescription("Empty the result cache and the spec store."),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		d.Results.Clear()
		d.Specs.Clear()
		d.track("clear_cache", start, nil)
		return respond(map[string]any{"ok": true}), nil
	})

	s.AddTool(mcp.NewTool("server_status",
		mcp.WithDescription("Report server version, uptime, registered sources, cache fill, and the sanitized recent-operation log."),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		d.track("server_status", start, nil)
		return respond(output.StatusPayload{
			Version:       d.Version,
			UptimeSeconds: int64(time.Since(d.Start).Seconds()),
			Sources:       len(d.Manager.List()),
			Connected:     d.Manager.ConnectedCount(),
			ResultCache:   d.Results.Len(),
			SpecStore:     d.Specs.Len(),
			Operations:    d.Ops.Tail(),
		}), nil
	})
}
