package nodes

import (
	"context"
	"strings"

	"github.com/lyzr/flowrunner/engine"
	"github.com/lyzr/flowrunner/engine/resolver"
)

// Output renders the terminal value of a branch. With an output/template
// param the resolved template string is the result; otherwise the upstream
// value passes through, lists joined line by line.
func Output(ctx context.Context, nc *engine.NodeContext) (interface{}, error) {
	template, _ := nc.Params["output"].(string)
	if template == "" {
		template, _ = nc.Params["template"].(string)
	}
	if template != "" {
		// Already resolved by the assembler.
		return template, nil
	}

	in, ok := nc.Inputs["input"]
	if !ok {
		return "", nil
	}
	if values, isList := in.([]interface{}); isList {
		parts := make([]string, 0, len(values))
		for _, v := range values {
			parts = append(parts, resolver.Stringify(v))
		}
		return strings.Join(parts, "\n"), nil
	}
	return in, nil
}
