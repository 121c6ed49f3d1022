package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/flowrunner/workflow"
)

func outputWith(pairs ...interface{}) *NodeOutput {
	out := NewNodeOutput()
	for i := 0; i < len(pairs); i += 2 {
		out.Set(pairs[i].(string), pairs[i+1])
	}
	return out
}

func TestAssembleSingleEdge(t *testing.T) {
	node := &workflow.Node{ID: "b", Type: "text_processor"}
	edges := []workflow.Edge{{Source: "a", Target: "b"}}
	snap := Snapshot{"a": outputWith("output", "hello")}

	asm := assemble(node, edges, snap, nil)
	assert.Equal(t, "hello", asm.Inputs["input"])
}

func TestAssembleFanInBindsListInEdgeOrder(t *testing.T) {
	node := &workflow.Node{ID: "m", Type: "merge"}
	edges := []workflow.Edge{
		{Source: "a", Target: "m"},
		{Source: "b", Target: "m"},
	}
	snap := Snapshot{
		"a": outputWith("output", "first"),
		"b": outputWith("output", "second"),
	}

	asm := assemble(node, edges, snap, nil)
	require.IsType(t, []interface{}{}, asm.Inputs["input"])
	assert.Equal(t, []interface{}{"first", "second"}, asm.Inputs["input"])
}

func TestAssembleDistinctHandles(t *testing.T) {
	node := &workflow.Node{ID: "m", Type: "merge"}
	edges := []workflow.Edge{
		{Source: "a", Target: "m", TargetHandle: "left"},
		{Source: "b", Target: "m", TargetHandle: "right"},
	}
	snap := Snapshot{
		"a": outputWith("output", 1),
		"b": outputWith("output", 2),
	}

	asm := assemble(node, edges, snap, nil)
	assert.Equal(t, 1, asm.Inputs["left"])
	assert.Equal(t, 2, asm.Inputs["right"])
}

func TestAssembleSourceHandleSelectsField(t *testing.T) {
	node := &workflow.Node{ID: "b", Type: "output"}
	edges := []workflow.Edge{{Source: "a", Target: "b", SourceHandle: "status_code"}}
	snap := Snapshot{"a": outputWith("output", "body", "status_code", 200)}

	asm := assemble(node, edges, snap, nil)
	assert.Equal(t, 200, asm.Inputs["input"])
}

func TestAssembleTextHandleFollowsPrimary(t *testing.T) {
	// A "text" source handle on a node that published an explicit output
	// follows the primary, matching how editors wire default ports.
	node := &workflow.Node{ID: "b", Type: "output"}
	edges := []workflow.Edge{{Source: "a", Target: "b", SourceHandle: "text"}}
	snap := Snapshot{"a": outputWith("output", "primary", "text", "secondary")}

	asm := assemble(node, edges, snap, nil)
	assert.Equal(t, "primary", asm.Inputs["input"])
}

func TestAssembleUnknownSourceHandleFallsBack(t *testing.T) {
	node := &workflow.Node{ID: "b", Type: "output"}
	edges := []workflow.Edge{{Source: "a", Target: "b", SourceHandle: "ghost"}}
	snap := Snapshot{"a": outputWith("output", "primary")}

	asm := assemble(node, edges, snap, nil)
	assert.Equal(t, "primary", asm.Inputs["input"])
}

func TestAssembleResolvesParams(t *testing.T) {
	node := &workflow.Node{
		ID:   "b",
		Type: "output",
		Data: workflow.NodeData{Params: map[string]interface{}{
			"template": "got {{a.output}}",
		}},
	}
	snap := Snapshot{"a": outputWith("output", "42")}

	asm := assemble(node, nil, snap, nil)
	assert.Equal(t, "got 42", asm.Params["template"])
	assert.Empty(t, asm.Warnings)
}

func TestAssembleWarnsOnUnresolvedParam(t *testing.T) {
	node := &workflow.Node{
		ID:   "b",
		Type: "output",
		Data: workflow.NodeData{Params: map[string]interface{}{
			"template": "{{ghost.output}}",
		}},
	}

	asm := assemble(node, nil, Snapshot{}, nil)
	assert.Equal(t, "{{ghost.output}}", asm.Params["template"])
	require.Len(t, asm.Warnings, 1)
}

func TestBindRunInputKeyPrecedence(t *testing.T) {
	node := &workflow.Node{ID: "input-1", Type: "input"}

	// "input" beats the indexed key.
	asm := assemble(node, nil, Snapshot{}, RunInputs{
		"input":   "direct",
		"input_1": "indexed",
	})
	assert.Equal(t, "direct", asm.Inputs["input"])

	// Indexed key next.
	asm = assemble(node, nil, Snapshot{}, RunInputs{
		"input_1": "indexed",
		"input-1": "by id",
	})
	assert.Equal(t, "indexed", asm.Inputs["input"])

	// Raw node id last.
	asm = assemble(node, nil, Snapshot{}, RunInputs{
		"input-1": "by id",
	})
	assert.Equal(t, "by id", asm.Inputs["input"])
}

func TestBindRunInputDisplayName(t *testing.T) {
	node := &workflow.Node{
		ID:   "input-0",
		Type: "input",
		Data: workflow.NodeData{Params: map[string]interface{}{"nodeName": "Question"}},
	}

	asm := assemble(node, nil, Snapshot{}, RunInputs{"Question": "hi"})
	assert.Equal(t, "hi", asm.Inputs["input"])
}

func TestBindRunInputTypedWrapper(t *testing.T) {
	node := &workflow.Node{ID: "input-0", Type: "input"}

	asm := assemble(node, nil, Snapshot{}, RunInputs{
		"input": map[string]interface{}{"value": "img.png", "type": "Image"},
	})
	assert.Equal(t, "img.png", asm.Inputs["input"])
	assert.Equal(t, "Image", asm.Inputs["type"])
}

func TestBindRunInputEdgeValueWins(t *testing.T) {
	node := &workflow.Node{ID: "input-0", Type: "input"}
	edges := []workflow.Edge{{Source: "up", Target: "input-0"}}
	snap := Snapshot{"up": outputWith("output", "from edge")}

	asm := assemble(node, edges, snap, RunInputs{"input": "ambient"})
	assert.Equal(t, "from edge", asm.Inputs["input"])
}

func TestBindRunInputSkipsNonInputNodes(t *testing.T) {
	node := &workflow.Node{ID: "t", Type: "text_processor"}
	asm := assemble(node, nil, Snapshot{}, RunInputs{"input": "ambient"})
	_, bound := asm.Inputs["input"]
	assert.False(t, bound)
}

func TestInputIndex(t *testing.T) {
	assert.Equal(t, "2", inputIndex("input-2"))
	assert.Equal(t, "7", inputIndex("input_7"))
	assert.Equal(t, "0", inputIndex("input"))
	assert.Equal(t, "0", inputIndex("question_one"))
}

func TestCoerceInputValue(t *testing.T) {
	assert.Equal(t, "", coerceInputValue(nil))
	assert.Equal(t, "keep", coerceInputValue("keep"))
	m := map[string]interface{}{"k": "v"}
	assert.Equal(t, m, coerceInputValue(m))
	assert.Equal(t, "7", coerceInputValue(7))
}
