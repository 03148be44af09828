// Package transform implements derived columns: the record metadata with
// its dependency graph, the on-disk manifest, and the pipeline that
// validates, evaluates, writes, and records a transform with rollback.
package transform

import (
	"fmt"
	"sort"
	"strings"

	"dolex/internal/core"
	"dolex/internal/expr"
)

// Metadata holds the transform records of one source, keyed by
// (table, column, layer). The working layer is session-only by design: it
// starts empty on every open.
type Metadata struct {
	records   []*core.TransformRecord
	nextOrder int
}

// NewMetadata returns an empty metadata set.
func NewMetadata() *Metadata {
	return &Metadata{}
}

// Add inserts a record, assigning its insertion order. Adding a duplicate
// (table, column, layer) is an error; overwrite by removing first.
func (m *Metadata) Add(rec *core.TransformRecord) error {
	if m.Get(rec.Table, rec.Column, rec.Layer) != nil {
		return &core.ValidationError{
			Entity:  "transform",
			Name:    rec.Column,
			Message: fmt.Sprintf("record already exists in layer %s", rec.Layer),
		}
	}
	rec.Order = m.nextOrder
	m.nextOrder++
	m.records = append(m.records, rec)
	return nil
}

// Remove deletes a record. It returns the removed record or nil.
func (m *Metadata) Remove(table, column string, layer core.Layer) *core.TransformRecord {
	for i, r := range m.records {
		if r.Table == table && strings.EqualFold(r.Column, column) && r.Layer == layer {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return r
		}
	}
	return nil
}

// Get returns the record for (table, column, layer) or nil.
func (m *Metadata) Get(table, column string, layer core.Layer) *core.TransformRecord {
	for _, r := range m.records {
		if r.Table == table && strings.EqualFold(r.Column, column) && r.Layer == layer {
			return r
		}
	}
	return nil
}

// List returns the records of a table, optionally restricted to one layer,
// in insertion order. Pass "" to list both layers.
func (m *Metadata) List(table string, layer core.Layer) []*core.TransformRecord {
	var out []*core.TransformRecord
	for _, r := range m.records {
		if r.Table != table {
			continue
		}
		if layer != "" && r.Layer != layer {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Order < out[b].Order })
	return out
}

// ExtractColumnRefs parses an expression and returns the set of column
// names it references.
func ExtractColumnRefs(expression string) ([]string, error) {
	node, err := expr.Parse(expression)
	if err != nil {
		return nil, err
	}
	return expr.ColumnRefs(node), nil
}

// refsOf returns the parsed reference set of a record, tolerating records
// whose expression no longer parses (they contribute no edges).
func refsOf(rec *core.TransformRecord) []string {
	refs, err := ExtractColumnRefs(rec.Expr)
	if err != nil {
		return nil
	}
	return refs
}

// FindDependents returns the transitive closure of columns whose expression
// references column, directly or through other records of the same table.
func (m *Metadata) FindDependents(table, column string) []string {
	dependents := make(map[string]bool)
	changed := true
	for changed {
		changed = false
		for _, r := range m.records {
			if r.Table != table || dependents[strings.ToLower(r.Column)] {
				continue
			}
			for _, ref := range refsOf(r) {
				if strings.EqualFold(ref, column) || dependents[strings.ToLower(ref)] {
					dependents[strings.ToLower(r.Column)] = true
					changed = true
					break
				}
			}
		}
	}
	out := make([]string, 0, len(dependents))
	for _, r := range m.records {
		if r.Table == table && dependents[strings.ToLower(r.Column)] {
			out = append(out, r.Column)
		}
	}
	sort.Strings(out)
	return dedupe(out)
}

// CycleError reports a circular dependency, carrying the offending path.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular dependency: %s", strings.Join(e.Path, " -> "))
}

// CheckCircular reports whether hypothetically adding (table, newColumn)
// with the given references would create a cycle in the table's reference
// graph. The returned error is a *CycleError naming the path.
func (m *Metadata) CheckCircular(table, newColumn string, newRefs []string) error {
	// Edges: column -> referenced columns, over current records of the
	// table plus the hypothetical new record. A later record for an
	// existing column overwrites its edges, matching apply semantics.
	edges := make(map[string][]string)
	for _, r := range m.records {
		if r.Table == table {
			edges[strings.ToLower(r.Column)] = lowerAll(refsOf(r))
		}
	}
	edges[strings.ToLower(newColumn)] = lowerAll(newRefs)

	start := strings.ToLower(newColumn)
	path := []string{newColumn}
	if cyclePath := findCycle(edges, start, start, path, map[string]bool{start: true}); cyclePath != nil {
		return &CycleError{Path: cyclePath}
	}
	return nil
}

func findCycle(edges map[string][]string, start, current string, path []string, visiting map[string]bool) []string {
	for _, next := range edges[current] {
		if next == start {
			return append(append([]string(nil), path...), start)
		}
		if visiting[next] {
			continue
		}
		if _, hasEdges := edges[next]; !hasEdges {
			continue
		}
		visiting[next] = true
		if found := findCycle(edges, start, next, append(path, next), visiting); found != nil {
			return found
		}
	}
	return nil
}

// TopologicalSort orders records so every record appears after all records
// it references. Ties resolve by insertion order, keeping replay
// deterministic. It fails with a *CycleError when the graph has a cycle.
func TopologicalSort(records []*core.TransformRecord) ([]*core.TransformRecord, error) {
	byColumn := make(map[string]*core.TransformRecord, len(records))
	for _, r := range records {
		byColumn[strings.ToLower(r.Column)] = r
	}

	sorted := make([]*core.TransformRecord, 0, len(records))
	state := make(map[string]int) // 0 unvisited, 1 visiting, 2 done

	var visit func(r *core.TransformRecord, path []string) error
	visit = func(r *core.TransformRecord, path []string) error {
		key := strings.ToLower(r.Column)
		switch state[key] {
		case 2:
			return nil
		case 1:
			return &CycleError{Path: append(append([]string(nil), path...), r.Column)}
		}
		state[key] = 1
		for _, ref := range refsOf(r) {
			if dep, ok := byColumn[strings.ToLower(ref)]; ok {
				if err := visit(dep, append(path, r.Column)); err != nil {
					return err
				}
			}
		}
		state[key] = 2
		sorted = append(sorted, r)
		return nil
	}

	ordered := append([]*core.TransformRecord(nil), records...)
	sort.SliceStable(ordered, func(a, b int) bool { return ordered[a].Order < ordered[b].Order })
	for _, r := range ordered {
		if err := visit(r, nil); err != nil {
			return nil, err
		}
	}
	return sorted, nil
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

func dedupe(in []string) []string {
	out := in[:0]
	var last string
	for i, s := range in {
		if i == 0 || s != last {
			out = append(out, s)
		}
		last = s
	}
	return out
}
