// Package source implements the Source Manager: the registry of configured
// sources, their persistence, lazy connection management, and the safe SQL
// execution path.
package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"dolex/internal/columns"
	"dolex/internal/connect"
	"dolex/internal/core"
	"dolex/internal/transform"
)

// DefaultRowCap is the hard cap on returned query rows.
const DefaultRowCap = 10000

// conn bundles the live handle of a source with its session state.
type conn struct {
	src connect.ConnectedSource
	// meta holds the source's transform records; loaded from the manifest
	// on connect, working layer always starts empty.
	meta     *transform.Metadata
	manifest string
	// base maps table name to the physical columns present at connect,
	// before any transform ran.
	base map[string][]string
	// warnings collected during manifest replay.
	warnings []string
}

// Manager owns the source registry and every live connection.
type Manager struct {
	mu      sync.Mutex
	entries []*core.Source
	conns   map[string]*conn

	persistPath   string
	sandboxPrefix string
	rowCap        int
	log           *zap.SugaredLogger
}

// Options configure a Manager.
type Options struct {
	// PersistPath, when set, is the JSON file the registry round-trips
	// through. Loading tolerates a missing or corrupt file silently.
	PersistPath string
	// SandboxPrefix, when set, rejects source paths under it.
	SandboxPrefix string
	// RowCap overrides the row cap (default 10000).
	RowCap int
	Logger *zap.SugaredLogger
}

// NewManager constructs a Manager, reloading any persisted registry.
func NewManager(opts Options) *Manager {
	m := &Manager{
		conns:         make(map[string]*conn),
		persistPath:   opts.PersistPath,
		sandboxPrefix: opts.SandboxPrefix,
		rowCap:        opts.RowCap,
		log:           opts.Logger,
	}
	if m.rowCap <= 0 {
		m.rowCap = DefaultRowCap
	}
	if m.log == nil {
		m.log = zap.NewNop().Sugar()
	}
	m.load()
	return m
}

// SourceID derives the stable ID for a source name.
func SourceID(name string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(name))))
	return "src-" + hex.EncodeToString(sum[:])[:12]
}

// ExpandPath resolves a leading tilde against HOME.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// AddResult reports whether Add created a new entry or matched an existing
// one.
type AddResult struct {
	Source      *core.Source
	Reconnected bool
	ReplayNotes []string
}

// Add registers a source. Re-adding an existing name (or ID) returns the
// existing entry with Reconnected set, acting as a reconnect. New
// configurations are validated by the connector before the entry is kept.
func (m *Manager) Add(ctx context.Context, name string, typ core.SourceType, cfg core.SourceConfig) (*AddResult, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &core.ValidationError{Entity: "source", Message: "name is required"}
	}
	if !core.ValidSourceType(string(typ)) {
		return nil, &core.ValidationError{Entity: "source", Name: name, Message: fmt.Sprintf("unsupported type %q", typ)}
	}

	if cfg.Path != "" {
		cfg.Path = ExpandPath(cfg.Path)
		if m.sandboxPrefix != "" && strings.HasPrefix(cfg.Path, m.sandboxPrefix) {
			return nil, &core.ValidationError{
				Entity:  "source",
				Name:    name,
				Message: fmt.Sprintf("paths under %s are not accessible; copy the file elsewhere first", m.sandboxPrefix),
			}
		}
	}

	m.mu.Lock()
	existing := m.findEntryLocked(name)
	if existing == nil {
		existing = m.findEntryLocked(SourceID(name))
	}
	m.mu.Unlock()
	if existing != nil {
		c, err := m.ensure(ctx, existing)
		if err != nil {
			return nil, err
		}
		return &AddResult{Source: existing, Reconnected: true, ReplayNotes: c.warnings}, nil
	}

	connector, err := connect.New(typ)
	if err != nil {
		return nil, err
	}
	if err := connector.Test(ctx, cfg); err != nil {
		return nil, err
	}

	src := &core.Source{ID: SourceID(name), Name: name, Type: typ, Config: cfg}

	m.mu.Lock()
	m.entries = append(m.entries, src)
	m.mu.Unlock()
	m.persist()

	c, err := m.ensure(ctx, src)
	if err != nil {
		return nil, err
	}
	return &AddResult{Source: src, ReplayNotes: c.warnings}, nil
}

// List returns a snapshot of the registry.
func (m *Manager) List() []*core.Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*core.Source, len(m.entries))
	copy(out, m.entries)
	return out
}

// Find resolves a source by ID, case-insensitive name, or the ID derived
// from the name.
func (m *Manager) Find(idOrName string) (*core.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.findEntryLocked(idOrName); e != nil {
		return e, nil
	}
	if e := m.findEntryLocked(SourceID(idOrName)); e != nil {
		return e, nil
	}
	names := make([]string, len(m.entries))
	for i, e := range m.entries {
		names[i] = e.Name
	}
	return nil, &core.ValidationError{
		Entity:  "source",
		Name:    idOrName,
		Message: fmt.Sprintf("not found (registered: %s)", strings.Join(names, ", ")),
	}
}

func (m *Manager) findEntryLocked(idOrName string) *core.Source {
	for _, e := range m.entries {
		if e.ID == idOrName || strings.EqualFold(e.Name, idOrName) {
			return e
		}
	}
	return nil
}

// Remove closes any live connection and deletes the registry entry.
func (m *Manager) Remove(idOrName string) error {
	src, err := m.Find(idOrName)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if c, ok := m.conns[src.ID]; ok {
		if err := c.src.Close(); err != nil {
			m.log.Warnw("failed to close connection", "source", src.ID, "err", err)
		}
		delete(m.conns, src.ID)
	}
	for i, e := range m.entries {
		if e.ID == src.ID {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	m.persist()
	return nil
}

// Disconnect closes a live connection but keeps the registry entry.
func (m *Manager) Disconnect(idOrName string) error {
	src, err := m.Find(idOrName)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.conns[src.ID]; ok {
		delete(m.conns, src.ID)
		return c.src.Close()
	}
	return nil
}

// Shutdown closes every live connection.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.conns {
		if err := c.src.Close(); err != nil {
			m.log.Warnw("failed to close connection", "source", id, "err", err)
		}
		delete(m.conns, id)
	}
}

// ConnectedCount reports how many sources hold live connections.
func (m *Manager) ConnectedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// ensure lazily connects a source: open, load the manifest, replay derived
// columns, remember base columns.
func (m *Manager) ensure(ctx context.Context, src *core.Source) (*conn, error) {
	m.mu.Lock()
	if c, ok := m.conns[src.ID]; ok {
		m.mu.Unlock()
		return c, nil
	}
	m.mu.Unlock()

	connector, err := connect.New(src.Type)
	if err != nil {
		return nil, err
	}
	live, err := connector.Connect(ctx, src.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect source %s: %w", src.Name, err)
	}

	c := &conn{src: live, meta: transform.NewMetadata(), base: make(map[string][]string)}

	// Record the pre-transform column set of every table.
	schema, err := live.Schema(ctx)
	if err != nil {
		_ = live.Close()
		return nil, err
	}
	for _, t := range schema.Tables {
		c.base[t.Name] = t.ColumnNames()
	}

	// Manifest replay only applies to staged sources.
	if stager, ok := live.(connect.Stager); ok && src.Config.Path != "" {
		c.manifest = transform.ManifestPath(src.Config.Path)
		meta, err := transform.LoadManifest(c.manifest)
		if err != nil {
			c.warnings = append(c.warnings, fmt.Sprintf("manifest ignored: %v", err))
		} else {
			c.meta = meta
			for table := range c.base {
				p := transform.NewPipeline(columns.New(stager.StagingDB(), table), c.meta, table, c.manifest, c.base[table])
				c.warnings = append(c.warnings, p.Replay(ctx)...)
			}
			stager.InvalidateSchema()
		}
	}

	now := time.Now().UTC()
	src.ConnectedAt = &now

	m.mu.Lock()
	m.conns[src.ID] = c
	m.mu.Unlock()
	m.persist()

	for _, w := range c.warnings {
		m.log.Warnw("manifest replay", "source", src.ID, "note", w)
	}
	return c, nil
}

// Ensure resolves and lazily connects a source, returning it with any
// replay warnings.
func (m *Manager) Ensure(ctx context.Context, idOrName string) (*core.Source, []string, error) {
	src, err := m.Find(idOrName)
	if err != nil {
		return nil, nil, err
	}
	c, err := m.ensure(ctx, src)
	if err != nil {
		return nil, nil, err
	}
	return src, c.warnings, nil
}

// Schema returns the live schema of a source, connecting it if needed.
func (m *Manager) Schema(ctx context.Context, idOrName string) (*core.DataSchema, error) {
	src, err := m.Find(idOrName)
	if err != nil {
		return nil, err
	}
	c, err := m.ensure(ctx, src)
	if err != nil {
		return nil, err
	}
	return c.src.Schema(ctx)
}

// Sample returns up to n evenly spaced rows of a table.
func (m *Manager) Sample(ctx context.Context, idOrName, table string, n int) ([]core.Row, error) {
	src, err := m.Find(idOrName)
	if err != nil {
		return nil, err
	}
	c, err := m.ensure(ctx, src)
	if err != nil {
		return nil, err
	}
	schema, err := c.src.Schema(ctx)
	if err != nil {
		return nil, err
	}
	t := schema.FindTable(table)
	if t == nil {
		return nil, m.unknownTableError(table, schema)
	}
	return c.src.SampleRows(ctx, t.Name, n)
}

// Dialect reports the SQL dialect of a source, connecting it if needed.
func (m *Manager) Dialect(ctx context.Context, idOrName string) (core.Dialect, error) {
	src, err := m.Find(idOrName)
	if err != nil {
		return "", err
	}
	c, err := m.ensure(ctx, src)
	if err != nil {
		return "", err
	}
	return c.src.Dialect(), nil
}

// Pipeline assembles a transform pipeline for one table of a source. Only
// staged sources support transforms.
func (m *Manager) Pipeline(ctx context.Context, idOrName, table string) (*transform.Pipeline, *transform.Metadata, error) {
	src, err := m.Find(idOrName)
	if err != nil {
		return nil, nil, err
	}
	c, err := m.ensure(ctx, src)
	if err != nil {
		return nil, nil, err
	}
	stager, ok := c.src.(connect.Stager)
	if !ok {
		return nil, nil, &core.ValidationError{
			Entity:  "source",
			Name:    src.Name,
			Message: fmt.Sprintf("transforms require a staged source; %s sources are read-only", src.Type),
		}
	}
	schema, err := c.src.Schema(ctx)
	if err != nil {
		return nil, nil, err
	}
	t := schema.FindTable(table)
	if t == nil {
		return nil, nil, m.unknownTableError(table, schema)
	}
	p := transform.NewPipeline(columns.New(stager.StagingDB(), t.Name), c.meta, t.Name, c.manifest, c.base[t.Name])
	return p, c.meta, nil
}

// InvalidateSchema drops a staged source's cached schema after transforms
// changed its tables.
func (m *Manager) InvalidateSchema(idOrName string) {
	src, err := m.Find(idOrName)
	if err != nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.conns[src.ID]; ok {
		if stager, ok := c.src.(connect.Stager); ok {
			stager.InvalidateSchema()
		}
	}
}

func (m *Manager) unknownTableError(table string, schema *core.DataSchema) error {
	return &core.ValidationError{
		Entity:  "table",
		Name:    table,
		Message: fmt.Sprintf("not found (available: %s)", strings.Join(schema.TableNames(), ", ")),
	}
}

// registryFile is the persisted registry shape.
type registryFile struct {
	Version int            `json:"version"`
	Sources []*core.Source `json:"sources"`
}

// load reloads the persisted registry, silently tolerating missing or
// corrupt files.
func (m *Manager) load() {
	if m.persistPath == "" {
		return
	}
	data, err := os.ReadFile(m.persistPath)
	if err != nil {
		return
	}
	var rf registryFile
	if err := json.Unmarshal(data, &rf); err != nil {
		// Registries written before the version field was introduced are a
		// bare array.
		if err := json.Unmarshal(data, &rf.Sources); err != nil {
			m.log.Warnw("registry file ignored", "err", err)
			return
		}
	}
	m.entries = rf.Sources
}

// persist writes the registry. Failures are logged, never fatal.
func (m *Manager) persist() {
	if m.persistPath == "" {
		return
	}
	m.mu.Lock()
	rf := registryFile{Version: 1, Sources: m.entries}
	data, err := json.MarshalIndent(rf, "", "  ")
	m.mu.Unlock()
	if err != nil {
		m.log.Warnw("failed to encode registry", "err", err)
		return
	}
	if err := os.WriteFile(m.persistPath, append(data, '\n'), 0o644); err != nil {
		m.log.Warnw("failed to write registry", "err", err)
	}
}
