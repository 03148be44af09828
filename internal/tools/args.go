package tools

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// args wraps a tool request's argument map with typed accessors. Schema
// validation happens on the client side of the protocol; these helpers make
// the handler side defensive anyway.
type args struct {
	m map[string]any
}

func argsOf(req mcp.CallToolRequest) args {
	return args{m: req.GetArguments()}
}

func (a args) str(key string) string {
	if v, ok := a.m[key].(string); ok {
		return v
	}
	return ""
}

func (a args) requireStr(key string) (string, error) {
	v := a.str(key)
	if v == "" {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	return v, nil
}

func (a args) num(key string, def float64) float64 {
	switch v := a.m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return def
}

func (a args) boolean(key string) bool {
	v, _ := a.m[key].(bool)
	return v
}

func (a args) strings(key string) []string {
	raw, ok := a.m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// object decodes a nested argument into target via a JSON round-trip, which
// applies the target's custom unmarshalers.
func (a args) object(key string, target any) error {
	raw, ok := a.m[key]
	if !ok || raw == nil {
		return fmt.Errorf("missing required argument %q", key)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("invalid %q argument: %w", key, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("invalid %q argument: %w", key, err)
	}
	return nil
}

func (a args) has(key string) bool {
	_, ok := a.m[key]
	return ok
}
