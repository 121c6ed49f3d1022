package engine

import (
	"strings"

	"github.com/lyzr/flowrunner/engine/resolver"
	"github.com/lyzr/flowrunner/workflow"
)

// assembly is what the assembler hands to a handler: the resolved parameter
// mapping, the input bundle keyed by target handle, and any unresolved
// template warnings.
type assembly struct {
	Params   map[string]interface{}
	Inputs   map[string]interface{}
	Warnings []resolver.Warning
}

// assemble constructs the inputs and resolved params for a node about to
// run. liveIn holds the node's satisfied incoming edges in declaration
// order. Assembly is the only place template resolution happens.
func assemble(node *workflow.Node, liveIn []workflow.Edge, snap Snapshot, runInputs RunInputs) *assembly {
	inputs := make(map[string]interface{})

	// Group incoming edges by target handle; a single edge binds its value
	// directly, several bind a list in edge order.
	grouped := make(map[string][]interface{})
	var handleOrder []string
	for _, e := range liveIn {
		out, ok := snap[e.Source]
		if !ok {
			continue
		}
		handle := e.TargetHandle
		if handle == "" {
			handle = "input"
		}
		if _, seen := grouped[handle]; !seen {
			handleOrder = append(handleOrder, handle)
		}
		grouped[handle] = append(grouped[handle], sourceValue(out, e.SourceHandle))
	}
	for _, handle := range handleOrder {
		values := grouped[handle]
		if len(values) == 1 {
			inputs[handle] = values[0]
		} else {
			inputs[handle] = values
		}
	}

	if node.Type == "input" {
		bindRunInput(node, inputs, runInputs)
	}

	params, warnings := resolver.ResolveConfig(node.Params(), snap.ResolverTable())
	return &assembly{Params: params, Inputs: inputs, Warnings: warnings}
}

// sourceValue reads the edge-selected field from a source output, falling
// back to the primary value. A "text" handle on a node that published an
// explicit output follows the primary.
func sourceValue(out *NodeOutput, sourceHandle string) interface{} {
	if sourceHandle == "" || sourceHandle == "output" {
		return out.Primary()
	}
	if sourceHandle == "text" && out.Has("output") {
		return out.Primary()
	}
	if v, ok := out.Get(sourceHandle); ok {
		return v
	}
	return out.Primary()
}

// bindRunInput merges the ambient run input for an input-typed node. Edge
// values win over ambient inputs. Key precedence: "input", "input_<n>",
// the node's display name, the raw node id.
func bindRunInput(node *workflow.Node, inputs map[string]interface{}, runInputs RunInputs) {
	if _, bound := inputs["input"]; bound || len(runInputs) == 0 {
		return
	}

	keys := []string{"input", "input_" + inputIndex(node.ID)}
	if name := displayName(node); name != "" {
		keys = append(keys, name)
	}
	keys = append(keys, node.ID)

	for _, key := range keys {
		value, declaredType, ok := runInputs.Unwrap(key)
		if !ok {
			continue
		}
		inputs["input"] = coerceInputValue(value)
		if declaredType == "" {
			declaredType = node.StringParam("type", "Text")
		}
		inputs["type"] = declaredType
		return
	}
}

// inputIndex extracts the trailing index of an input node id: "input-2" and
// "input_2" both yield "2"; ids without an index yield "0".
func inputIndex(nodeID string) string {
	s := nodeID
	if i := strings.LastIndexAny(s, "-_"); i >= 0 {
		s = s[i+1:]
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "0"
		}
	}
	if s == "" {
		return "0"
	}
	return s
}

func displayName(node *workflow.Node) string {
	if name := node.StringParam("nodeName", ""); name != "" {
		return name
	}
	return node.StringParam("name", "")
}
