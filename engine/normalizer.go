package engine

import (
	"sort"

	"github.com/lyzr/flowrunner/engine/resolver"
)

// primaryFallback is the order tried to pick a primary value from a mapping
// that does not carry an explicit "output" field.
var primaryFallback = []string{"text", "content", "response", "result", "value"}

// normMetadata are fields never chosen as an implicit primary.
var normMetadata = map[string]bool{
	"type": true, "status": true, "execution_time": true,
	"node_id": true, "node_name": true, "error": true, "input_raw": true,
	"usage": true, "model": true,
}

// NormalizeMeta carries the node identity attached to every normalized
// output.
type NormalizeMeta struct {
	NodeType string
	NodeName string
	// TypeField, when non-empty, is the declared I/O type field for
	// input-typed nodes (text, image, audio, file, json); it is
	// materialized equal to the primary value.
	TypeField string
}

// Normalize coerces a handler return value into a canonical NodeOutput:
// a primary value, the six alias fields, the node's type tag and name, and
// any handler-specific extras. Fields the handler supplied are never
// overwritten. Normalize is idempotent.
func Normalize(value interface{}, meta NormalizeMeta) *NodeOutput {
	out := NewNodeOutput()

	switch v := value.(type) {
	case *NodeOutput:
		if v != nil {
			for _, key := range v.Fields() {
				fv, _ := v.Get(key)
				out.Set(key, fv)
			}
		}
	case map[string]interface{}:
		copyOrdered(out, v)
	default:
		out.Set("output", value)
	}

	// Pick the primary when the handler did not supply one.
	if !out.Has("output") {
		primary, ok := pickPrimary(out)
		if !ok {
			primary = value
		}
		out.Set("output", primary)
	}

	// Materialize the alias fields without clobbering handler values.
	primary := out.Primary()
	for _, alias := range aliasFields {
		out.SetDefault(alias, primary)
	}

	if meta.TypeField != "" {
		out.SetDefault(meta.TypeField, primary)
	}
	out.SetDefault("type", meta.NodeType)
	out.SetDefault("node_name", meta.NodeName)

	return out
}

// copyOrdered writes a plain map into the record in a canonical order:
// "output" first, the remaining aliases in standard order, then the other
// keys sorted. This keeps "first non-metadata field" well-defined.
func copyOrdered(out *NodeOutput, m map[string]interface{}) {
	if v, ok := m["output"]; ok {
		out.Set("output", v)
	}
	for _, alias := range aliasFields {
		if v, ok := m[alias]; ok {
			out.SetDefault(alias, v)
		}
	}
	rest := make([]string, 0, len(m))
	for k := range m {
		if !out.Has(k) {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		out.Set(k, m[k])
	}
}

func pickPrimary(out *NodeOutput) (interface{}, bool) {
	for _, field := range primaryFallback {
		if v, ok := out.Get(field); ok {
			return v, true
		}
	}
	for _, key := range out.Fields() {
		if !normMetadata[key] {
			v, _ := out.Get(key)
			return v, true
		}
	}
	return nil, false
}

// coerceInputValue renders a raw run input into its stored form: strings
// pass through, structured values keep their shape, everything else is
// stringified the same way templates render values.
func coerceInputValue(value interface{}) interface{} {
	switch value.(type) {
	case nil:
		return ""
	case string, map[string]interface{}, []interface{}:
		return value
	default:
		return resolver.Stringify(value)
	}
}
