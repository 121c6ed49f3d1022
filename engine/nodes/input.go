// Package nodes provides the built-in node handlers: graph sources and
// sinks, control flow, data transforms, and the external AI and HTTP
// integrations.
package nodes

import (
	"context"
	"strings"

	"github.com/lyzr/flowrunner/engine"
	"github.com/lyzr/flowrunner/engine/resolver"
)

// typeFields maps a declared input type to the field the raw value is also
// published under.
var typeFields = map[string]string{
	"text":  "text",
	"image": "image",
	"audio": "audio",
	"file":  "file",
	"json":  "json",
}

// Input publishes the node's bound run input. The value is stringified into
// the primary field and additionally exposed under its type-specific field.
func Input(ctx context.Context, nc *engine.NodeContext) (interface{}, error) {
	raw, ok := nc.Inputs["input"]
	if !ok {
		raw = ""
	}

	inputType, _ := nc.Inputs["type"].(string)
	if inputType == "" {
		if t, ok := nc.Params["type"].(string); ok {
			inputType = t
		} else {
			inputType = "Text"
		}
	}
	typeField := typeFields[strings.ToLower(inputType)]
	if typeField == "" {
		typeField = "text"
	}

	str := resolver.Stringify(raw)

	out := engine.NewNodeOutput()
	out.Set("output", str)
	out.Set(typeField, str)
	out.Set("text", str)
	out.Set("content", str)
	out.Set("value", str)
	out.Set("type", inputType)
	out.Set("node_name", nc.NodeName)
	out.Set("input_raw", raw)
	return out, nil
}
