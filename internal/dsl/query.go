// Package dsl implements the declarative query language: the query value
// itself, a compiler that turns it into dialect-specific SQL, and a hybrid
// executor that pushes down what the backend supports and finishes the rest
// in-process.
package dsl

import (
	"encoding/json"
	"fmt"
	"strings"

	"dolex/internal/core"
	"dolex/internal/eval"
)

// Aggregates recognized by the compiler and the in-process executor.
var Aggregates = []string{"sum", "avg", "min", "max", "count", "count_distinct", "median", "stddev", "p25", "p75", "percentile"}

// Windows recognized by the compiler and the in-process executor.
var Windows = []string{"lag", "lead", "rank", "dense_rank", "row_number", "running_sum", "running_avg", "pct_of_total"}

// Buckets recognized for time bucketing on a date field.
var Buckets = []string{"day", "week", "month", "quarter", "year"}

// Join chains another table onto the base table.
type Join struct {
	Table string `json:"table"`
	On    JoinOn `json:"on"`
	// Type is "inner" (default) or "left".
	Type string `json:"type,omitempty"`
}

// JoinOn names the two join key fields; either side may be dotted to
// disambiguate.
type JoinOn struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// SelectItem is one projection: a bare field, an aggregate, or a window
// function.
type SelectItem struct {
	Field      string  `json:"field,omitempty"`
	Aggregate  string  `json:"aggregate,omitempty"`
	As         string  `json:"as,omitempty"`
	Percentile float64 `json:"percentile,omitempty"`

	Window      string `json:"window,omitempty"`
	PartitionBy string `json:"partitionBy,omitempty"`
	OrderBy     string `json:"orderBy,omitempty"`
	Offset      int    `json:"offset,omitempty"`
	Default     any    `json:"default,omitempty"`
}

// UnmarshalJSON accepts either a bare field name string or the object form.
func (s *SelectItem) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var field string
		if err := json.Unmarshal(data, &field); err != nil {
			return err
		}
		*s = SelectItem{Field: field}
		return nil
	}
	type alias SelectItem
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = SelectItem(a)
	return nil
}

// IsAggregate reports whether the item is an aggregate projection.
func (s *SelectItem) IsAggregate() bool { return s.Aggregate != "" }

// IsWindow reports whether the item is a window projection.
func (s *SelectItem) IsWindow() bool { return s.Window != "" }

// OutputName is the column name the item produces in the result.
func (s *SelectItem) OutputName() string {
	if s.As != "" {
		return s.As
	}
	switch {
	case s.IsAggregate():
		return s.Aggregate + "_" + baseName(s.Field)
	case s.IsWindow():
		if s.Field != "" {
			return s.Window + "_" + baseName(s.Field)
		}
		return s.Window
	}
	return baseName(s.Field)
}

// GroupItem is one grouping key: a bare field or a time bucket on a date
// field.
type GroupItem struct {
	Field  string `json:"field"`
	Bucket string `json:"bucket,omitempty"`
}

// UnmarshalJSON accepts either a bare field name string or the object form.
func (g *GroupItem) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var field string
		if err := json.Unmarshal(data, &field); err != nil {
			return err
		}
		*g = GroupItem{Field: field}
		return nil
	}
	type alias GroupItem
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*g = GroupItem(a)
	return nil
}

// OrderItem is one sort key of the final result.
type OrderItem struct {
	Field     string `json:"field"`
	Direction string `json:"direction,omitempty"`
}

// Query is the declarative query value.
type Query struct {
	Join    []Join        `json:"join,omitempty"`
	Select  []SelectItem  `json:"select"`
	GroupBy []GroupItem   `json:"groupBy,omitempty"`
	Filter  []eval.Filter `json:"filter,omitempty"`
	Having  []eval.Filter `json:"having,omitempty"`
	OrderBy []OrderItem   `json:"orderBy,omitempty"`
	Limit   int           `json:"limit,omitempty"`
}

// Validate checks structural validity: a non-empty select list, recognized
// aggregate/window/bucket names, and known operators.
func (q *Query) Validate() error {
	if len(q.Select) == 0 {
		return &core.ValidationError{Entity: "query", Field: "select", Message: "at least one select item is required"}
	}
	for _, s := range q.Select {
		if s.IsAggregate() && s.IsWindow() {
			return &core.ValidationError{Entity: "query", Name: s.OutputName(), Message: "select item cannot be both aggregate and window"}
		}
		if s.IsAggregate() && !contains(Aggregates, s.Aggregate) {
			return &core.ValidationError{Entity: "query", Name: s.Aggregate, Message: fmt.Sprintf("unknown aggregate (supported: %s)", strings.Join(Aggregates, ", "))}
		}
		if s.IsAggregate() && s.Aggregate != "count" && s.Field == "" {
			return &core.ValidationError{Entity: "query", Name: s.Aggregate, Message: "aggregate requires a field"}
		}
		if s.Aggregate == "percentile" && (s.Percentile <= 0 || s.Percentile >= 100) {
			return &core.ValidationError{Entity: "query", Name: s.OutputName(), Message: "percentile must be between 0 and 100 exclusive"}
		}
		if s.IsWindow() && !contains(Windows, s.Window) {
			return &core.ValidationError{Entity: "query", Name: s.Window, Message: fmt.Sprintf("unknown window function (supported: %s)", strings.Join(Windows, ", "))}
		}
		if s.IsWindow() && needsWindowField(s.Window) && s.Field == "" {
			return &core.ValidationError{Entity: "query", Name: s.Window, Message: "window function requires a field"}
		}
	}
	for _, g := range q.GroupBy {
		if g.Bucket != "" && !contains(Buckets, g.Bucket) {
			return &core.ValidationError{Entity: "query", Name: g.Field, Message: fmt.Sprintf("unknown bucket %q (supported: %s)", g.Bucket, strings.Join(Buckets, ", "))}
		}
	}
	for _, f := range append(append([]eval.Filter(nil), q.Filter...), q.Having...) {
		if !eval.ValidFilterOp(f.Op) {
			return &core.ValidationError{Entity: "query", Name: f.Field, Message: fmt.Sprintf("unsupported operator %q (supported: %s)", f.Op, strings.Join(eval.FilterOps, ", "))}
		}
	}
	for _, o := range q.OrderBy {
		if o.Direction != "" && o.Direction != "asc" && o.Direction != "desc" {
			return &core.ValidationError{Entity: "query", Name: o.Field, Message: fmt.Sprintf("direction must be asc or desc, got %q", o.Direction)}
		}
	}
	for _, j := range q.Join {
		if j.Type != "" && j.Type != "inner" && j.Type != "left" {
			return &core.ValidationError{Entity: "query", Name: j.Table, Message: fmt.Sprintf("join type must be inner or left, got %q", j.Type)}
		}
		if j.On.Left == "" || j.On.Right == "" {
			return &core.ValidationError{Entity: "query", Name: j.Table, Message: "join requires on.left and on.right"}
		}
	}
	if q.Limit < 0 {
		return &core.ValidationError{Entity: "query", Field: "limit", Message: "limit cannot be negative"}
	}
	return nil
}

// needsWindowField reports whether a window function consumes an input
// field (rank-family functions do not).
func needsWindowField(window string) bool {
	switch window {
	case "rank", "dense_rank", "row_number":
		return false
	}
	return true
}

// HasAggregation reports whether the query aggregates (explicitly or
// implicitly via groupBy).
func (q *Query) HasAggregation() bool {
	if len(q.GroupBy) > 0 {
		return true
	}
	for _, s := range q.Select {
		if s.IsAggregate() {
			return true
		}
	}
	return false
}

func baseName(field string) string {
	if i := strings.LastIndexByte(field, '.'); i >= 0 {
		return field[i+1:]
	}
	return field
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
