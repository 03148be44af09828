// Package tools contains the MCP tool handlers: thin, stateless functions
// that validate arguments, call into the core, and shape JSON response
// payloads. All state lives behind the dependencies struct.
package tools

import (
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"dolex/internal/core"
	"dolex/internal/dsl"
	"dolex/internal/oplog"
	"dolex/internal/output"
	"dolex/internal/source"
	"dolex/internal/store"
)

// CachedResult is what the result cache stores per handle.
type CachedResult struct {
	Columns []string
	Rows    []core.Row
}

// StoredSpec is what the spec store holds per handle: the chosen spec plus
// the alternatives generated alongside it.
type StoredSpec struct {
	Spec         *core.VisualizationSpec
	Alternatives []*core.VisualizationSpec
}

// Deps bundles the process-wide state the handlers operate on.
type Deps struct {
	Manager *source.Manager
	Exec    *dsl.Executor
	Results *store.FIFO[CachedResult]
	Specs   *store.FIFO[StoredSpec]
	Ops     *oplog.Log
	Log     *zap.SugaredLogger
	Start   time.Time
	Version string
}

// Register installs every tool on the MCP server.
func Register(s *server.MCPServer, d *Deps) {
	registerSourceTools(s, d)
	registerQueryTools(s, d)
	registerTransformTools(s, d)
	registerVisualizeTools(s, d)
	registerAdminTools(s, d)
}

// respond wraps a payload as the single-text-content success shape.
func respond(payload any) *mcp.CallToolResult {
	return mcp.NewToolResultText(output.Marshal(payload))
}

// fail wraps an error as the structured error shape. Error text reaching
// the caller is the structured message only, never a stack trace.
func fail(err error) *mcp.CallToolResult {
	res := mcp.NewToolResultText(output.Marshal(output.ErrorPayload{Error: err.Error()}))
	res.IsError = true
	return res
}

// track records a sanitized operation-log entry and logs the outcome.
func (d *Deps) track(tool string, start time.Time, err error) {
	entry := oplog.Entry{Tool: tool, OK: err == nil, Duration: time.Since(start)}
	if err != nil {
		entry.Error = summarizeError(err)
		d.Log.Warnw("tool failed", "tool", tool, "err", err)
	}
	d.Ops.Record(entry)
}

// summarizeError keeps only the error's type shape for the operation log;
// full messages may embed user paths.
func summarizeError(err error) string {
	if ve, ok := err.(*core.ValidationError); ok {
		return fmt.Sprintf("validation: %s", ve.Entity)
	}
	return fmt.Sprintf("%T", err)
}
