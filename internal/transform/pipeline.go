package transform

import (
	"context"
	"fmt"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"dolex/internal/columns"
	"dolex/internal/core"
	"dolex/internal/eval"
	"dolex/internal/expr"
)

// Spec is one requested transform: create (or overwrite) column Create from
// Expr, optionally partitioned and row-filtered.
type Spec struct {
	Create      string        `json:"create"`
	Expr        string        `json:"expr"`
	PartitionBy string        `json:"partitionBy,omitempty"`
	Filter      []eval.Filter `json:"filter,omitempty"`
}

// ColumnResult reports one applied transform.
type ColumnResult struct {
	Column   string            `json:"column"`
	Type     core.SemanticType `json:"type"`
	Action   string            `json:"action"` // created | overwritten | shadowed
	Stats    eval.Stats        `json:"stats"`
	Warnings []string          `json:"warnings,omitempty"`
}

// DropResult reports the outcome of a drop operation.
type DropResult struct {
	Dropped  []string `json:"dropped"`
	Restored []string `json:"restored,omitempty"`
}

// Pipeline orchestrates transforms for one table of a connected source.
type Pipeline struct {
	cols         *columns.Manager
	meta         *Metadata
	table        string
	manifestPath string
	// baseColumns are the physical columns present before any transform;
	// they can never be overwritten or dropped.
	baseColumns []string
}

// NewPipeline assembles a pipeline over an already-connected table.
func NewPipeline(cols *columns.Manager, meta *Metadata, table, manifestPath string, baseColumns []string) *Pipeline {
	return &Pipeline{cols: cols, meta: meta, table: table, manifestPath: manifestPath, baseColumns: baseColumns}
}

func (p *Pipeline) isBaseColumn(name string) bool {
	for _, b := range p.baseColumns {
		if strings.EqualFold(b, name) {
			return true
		}
	}
	return false
}

// Apply runs a batch of transforms. On any failure the already-executed
// actions are rolled back in reverse order (best effort per action) and the
// first error is returned, leaving table and metadata as they were.
func (p *Pipeline) Apply(ctx context.Context, specs []Spec) ([]ColumnResult, error) {
	var rollback []func(context.Context)
	results := make([]ColumnResult, 0, len(specs))

	for _, spec := range specs {
		res, undo, err := p.applyOne(ctx, spec)
		if err != nil {
			for i := len(rollback) - 1; i >= 0; i-- {
				rollback[i](ctx)
			}
			return nil, err
		}
		rollback = append(rollback, undo...)
		results = append(results, *res)
	}
	return results, nil
}

func (p *Pipeline) applyOne(ctx context.Context, spec Spec) (*ColumnResult, []func(context.Context), error) {
	if err := core.ValidateColumnName(spec.Create); err != nil {
		return nil, nil, err
	}
	if p.isBaseColumn(spec.Create) {
		return nil, nil, &core.ValidationError{
			Entity:  "transform",
			Name:    spec.Create,
			Message: "name collides with a source column",
		}
	}

	node, err := expr.Parse(spec.Expr)
	if err != nil {
		return nil, nil, err
	}

	live, err := p.cols.Names(ctx)
	if err != nil {
		return nil, nil, err
	}
	refs := expr.ColumnRefs(node)
	for _, ref := range refs {
		if !containsFold(live, ref) {
			return nil, nil, UnknownColumnError(ref, live)
		}
	}
	if spec.PartitionBy != "" && !containsFold(live, spec.PartitionBy) {
		return nil, nil, UnknownColumnError(spec.PartitionBy, live)
	}
	for _, f := range spec.Filter {
		if !eval.ValidFilterOp(f.Op) {
			return nil, nil, &core.ValidationError{Entity: "filter", Name: f.Field, Message: fmt.Sprintf("unsupported operator %q", f.Op)}
		}
		if !containsFold(live, f.Field) {
			return nil, nil, UnknownColumnError(f.Field, live)
		}
	}

	if err := p.meta.CheckCircular(p.table, spec.Create, refs); err != nil {
		return nil, nil, err
	}

	rows, err := p.cols.ReadAll(ctx)
	if err != nil {
		return nil, nil, err
	}
	result, err := eval.Evaluate(ctx, node, rows, p.inputType(refs), eval.Options{
		PartitionBy: spec.PartitionBy,
		Filter:      spec.Filter,
	})
	if err != nil {
		return nil, nil, err
	}

	var undo []func(context.Context)
	working := p.meta.Get(p.table, spec.Create, core.LayerWorking)
	derived := p.meta.Get(p.table, spec.Create, core.LayerDerived)
	action := ""

	switch {
	case working == nil && derived == nil:
		action = "created"
		if err := p.cols.AddColumn(ctx, spec.Create, result.Values, result.Type); err != nil {
			return nil, nil, err
		}
		undo = append(undo, func(ctx context.Context) { _ = p.cols.DropColumn(ctx, spec.Create) })
		rec := &core.TransformRecord{
			Table: p.table, Column: spec.Create, Expr: spec.Expr,
			Type: result.Type, Layer: core.LayerWorking, PartitionBy: spec.PartitionBy,
		}
		if err := p.meta.Add(rec); err != nil {
			for i := len(undo) - 1; i >= 0; i-- {
				undo[i](ctx)
			}
			return nil, nil, err
		}
		undo = append(undo, func(context.Context) { p.meta.Remove(p.table, spec.Create, core.LayerWorking) })

	case working != nil:
		action = "overwritten"
		old, err := p.cols.ReadColumn(ctx, spec.Create)
		if err != nil {
			return nil, nil, err
		}
		oldRec := *working
		if err := p.cols.OverwriteColumn(ctx, spec.Create, result.Values); err != nil {
			return nil, nil, err
		}
		undo = append(undo, func(ctx context.Context) { _ = p.cols.OverwriteColumn(ctx, spec.Create, old) })
		working.Expr, working.Type, working.PartitionBy = spec.Expr, result.Type, spec.PartitionBy
		undo = append(undo, func(context.Context) { *working = oldRec })

	default: // derived only: shadow it with a working record.
		action = "shadowed"
		old, err := p.cols.ReadColumn(ctx, spec.Create)
		if err != nil {
			return nil, nil, err
		}
		if err := p.cols.OverwriteColumn(ctx, spec.Create, result.Values); err != nil {
			return nil, nil, err
		}
		undo = append(undo, func(ctx context.Context) { _ = p.cols.OverwriteColumn(ctx, spec.Create, old) })
		rec := &core.TransformRecord{
			Table: p.table, Column: spec.Create, Expr: spec.Expr,
			Type: result.Type, Layer: core.LayerWorking, PartitionBy: spec.PartitionBy,
		}
		if err := p.meta.Add(rec); err != nil {
			for i := len(undo) - 1; i >= 0; i-- {
				undo[i](ctx)
			}
			return nil, nil, err
		}
		undo = append(undo, func(context.Context) { p.meta.Remove(p.table, spec.Create, core.LayerWorking) })
	}

	return &ColumnResult{
		Column:   spec.Create,
		Type:     result.Type,
		Action:   action,
		Stats:    result.Stats,
		Warnings: result.Warnings,
	}, undo, nil
}

// inputType picks the semantic type carried through type-preserving
// expressions: the recorded type of the first referenced column when that
// column has a transform record (working first, then derived). Base columns
// carry no record and yield no type.
func (p *Pipeline) inputType(refs []string) core.SemanticType {
	if len(refs) == 0 {
		return ""
	}
	if rec := p.meta.Get(p.table, refs[0], core.LayerWorking); rec != nil {
		return rec.Type
	}
	if rec := p.meta.Get(p.table, refs[0], core.LayerDerived); rec != nil {
		return rec.Type
	}
	return ""
}

// Promote moves working records to the derived layer, overwriting any
// derived record of the same name, and rewrites the manifest.
func (p *Pipeline) Promote(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 1 && names[0] == "*" {
		names = nil
		for _, r := range p.meta.List(p.table, core.LayerWorking) {
			names = append(names, r.Column)
		}
	}
	promoted := make([]string, 0, len(names))
	for _, name := range names {
		working := p.meta.Get(p.table, name, core.LayerWorking)
		if working == nil {
			return nil, &core.ValidationError{Entity: "transform", Name: name, Message: "no working column to promote"}
		}
		p.meta.Remove(p.table, name, core.LayerDerived)
		p.meta.Remove(p.table, name, core.LayerWorking)
		rec := &core.TransformRecord{
			Table: p.table, Column: working.Column, Expr: working.Expr,
			Type: working.Type, Layer: core.LayerDerived, PartitionBy: working.PartitionBy,
		}
		if err := p.meta.Add(rec); err != nil {
			return nil, err
		}
		promoted = append(promoted, working.Column)
	}
	if err := WriteManifest(p.manifestPath, p.meta); err != nil {
		return nil, fmt.Errorf("promoted but failed to write manifest: %w", err)
	}
	return promoted, nil
}

// Drop removes columns from a layer. Source columns are rejected. Dropping
// a derived column with remaining dependents is rejected. Dropping a
// working column that shadows a derived one restores the derived values
// instead of removing the physical column.
func (p *Pipeline) Drop(ctx context.Context, names []string, layer core.Layer) (*DropResult, error) {
	if layer != core.LayerWorking && layer != core.LayerDerived {
		return nil, &core.ValidationError{Entity: "transform", Field: "layer", Message: fmt.Sprintf("unknown layer %q", layer)}
	}
	if len(names) == 1 && names[0] == "*" {
		names = nil
		for _, r := range p.meta.List(p.table, layer) {
			names = append(names, r.Column)
		}
	}

	res := &DropResult{}
	manifestDirty := false
	for _, name := range names {
		if p.isBaseColumn(name) {
			return nil, &core.ValidationError{Entity: "column", Name: name, Message: "source columns cannot be dropped"}
		}
		rec := p.meta.Get(p.table, name, layer)
		if rec == nil {
			return nil, &core.ValidationError{Entity: "transform", Name: name, Message: fmt.Sprintf("no %s column with this name", layer)}
		}

		switch layer {
		case core.LayerDerived:
			if deps := p.remainingDependents(name); len(deps) > 0 {
				return nil, &core.ValidationError{
					Entity:  "transform",
					Name:    name,
					Message: fmt.Sprintf("cannot drop: still referenced by %s", strings.Join(deps, ", ")),
				}
			}
			p.meta.Remove(p.table, name, core.LayerDerived)
			manifestDirty = true
			// If a working shadow exists the physical column keeps its
			// working values; otherwise the column goes away.
			if p.meta.Get(p.table, name, core.LayerWorking) == nil {
				if err := p.cols.DropColumn(ctx, name); err != nil {
					return nil, err
				}
			}
			res.Dropped = append(res.Dropped, name)

		case core.LayerWorking:
			derived := p.meta.Get(p.table, name, core.LayerDerived)
			if derived != nil {
				// Shadow drop: re-evaluate the derived expression to
				// restore its values.
				if err := p.restoreDerived(ctx, derived); err != nil {
					return nil, err
				}
				p.meta.Remove(p.table, name, core.LayerWorking)
				res.Dropped = append(res.Dropped, name)
				res.Restored = append(res.Restored, name)
			} else {
				if err := p.cols.DropColumn(ctx, name); err != nil {
					return nil, err
				}
				p.meta.Remove(p.table, name, core.LayerWorking)
				res.Dropped = append(res.Dropped, name)
			}
		}
	}

	if manifestDirty {
		if err := WriteManifest(p.manifestPath, p.meta); err != nil {
			return nil, fmt.Errorf("dropped but failed to write manifest: %w", err)
		}
	}
	return res, nil
}

// remainingDependents lists transitive dependents of column that would
// survive its removal.
func (p *Pipeline) remainingDependents(column string) []string {
	deps := p.meta.FindDependents(p.table, column)
	out := deps[:0]
	for _, d := range deps {
		if !strings.EqualFold(d, column) {
			out = append(out, d)
		}
	}
	return out
}

func (p *Pipeline) restoreDerived(ctx context.Context, rec *core.TransformRecord) error {
	node, err := expr.Parse(rec.Expr)
	if err != nil {
		return fmt.Errorf("derived expression no longer parses: %w", err)
	}
	rows, err := p.cols.ReadAll(ctx)
	if err != nil {
		return err
	}
	result, err := eval.Evaluate(ctx, node, rows, rec.Type, eval.Options{PartitionBy: rec.PartitionBy})
	if err != nil {
		return fmt.Errorf("failed to restore derived column %s: %w", rec.Column, err)
	}
	return p.cols.OverwriteColumn(ctx, rec.Column, result.Values)
}

// Replay re-evaluates every derived record of the table in dependency
// order, recreating the physical columns after a source is reopened.
// Failures are per-column warnings: the offending record and its dependents
// are skipped, never blocking the open.
func (p *Pipeline) Replay(ctx context.Context) []string {
	records := p.meta.List(p.table, core.LayerDerived)
	if len(records) == 0 {
		return nil
	}

	sorted, err := TopologicalSort(records)
	if err != nil {
		names := make([]string, len(records))
		for i, r := range records {
			names[i] = r.Column
		}
		p.removeRecords(names)
		return []string{fmt.Sprintf("manifest replay skipped: %v", err)}
	}

	var warnings []string
	skipped := make(map[string]bool)
	for _, rec := range sorted {
		if dependsOnSkipped(rec, skipped) {
			skipped[strings.ToLower(rec.Column)] = true
			p.removeRecords([]string{rec.Column})
			warnings = append(warnings, fmt.Sprintf("column %s skipped: depends on a skipped column", rec.Column))
			continue
		}
		if err := p.replayOne(ctx, rec); err != nil {
			skipped[strings.ToLower(rec.Column)] = true
			p.removeRecords([]string{rec.Column})
			warnings = append(warnings, fmt.Sprintf("column %s skipped: %v", rec.Column, err))
		}
	}
	return warnings
}

func (p *Pipeline) replayOne(ctx context.Context, rec *core.TransformRecord) error {
	node, err := expr.Parse(rec.Expr)
	if err != nil {
		return err
	}
	live, err := p.cols.Names(ctx)
	if err != nil {
		return err
	}
	for _, ref := range expr.ColumnRefs(node) {
		if !containsFold(live, ref) {
			return UnknownColumnError(ref, live)
		}
	}
	rows, err := p.cols.ReadAll(ctx)
	if err != nil {
		return err
	}
	result, err := eval.Evaluate(ctx, node, rows, rec.Type, eval.Options{PartitionBy: rec.PartitionBy})
	if err != nil {
		return err
	}
	return p.cols.AddColumn(ctx, rec.Column, result.Values, rec.Type)
}

func dependsOnSkipped(rec *core.TransformRecord, skipped map[string]bool) bool {
	for _, ref := range refsOf(rec) {
		if skipped[strings.ToLower(ref)] {
			return true
		}
	}
	return false
}

func (p *Pipeline) removeRecords(names []string) {
	for _, n := range names {
		p.meta.Remove(p.table, n, core.LayerDerived)
	}
}

// UnknownColumnError builds the user-facing error for a reference to a
// column that does not exist, with a bounded edit-distance suggestion.
func UnknownColumnError(name string, available []string) error {
	msg := fmt.Sprintf("does not exist (available: %s)", strings.Join(available, ", "))
	if suggestion := closestName(name, available); suggestion != "" {
		msg = fmt.Sprintf("does not exist - did you mean %q? (available: %s)", suggestion, strings.Join(available, ", "))
	}
	return &core.ValidationError{Entity: "column", Name: name, Message: msg}
}

// closestName returns the available name within edit distance 2 of name, or
// "".
func closestName(name string, available []string) string {
	best, bestDist := "", 3
	for _, cand := range available {
		d := levenshtein.DistanceForStrings(
			[]rune(strings.ToLower(name)), []rune(strings.ToLower(cand)), levenshtein.DefaultOptions)
		if d < bestDist {
			best, bestDist = cand, d
		}
	}
	return best
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}
