package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/flowrunner/workflow"
)

// testEngine registers a small set of synthetic handlers so scheduling can
// be exercised without the real node implementations.
func testEngine(opts *Options) *Engine {
	e := New(opts)
	e.Register("input", KindBuiltin, func(ctx context.Context, nc *NodeContext) (interface{}, error) {
		v, ok := nc.Inputs["input"]
		if !ok {
			v = nc.Params["value"]
		}
		return v, nil
	})
	e.Register("echo", KindBuiltin, func(ctx context.Context, nc *NodeContext) (interface{}, error) {
		return nc.Inputs["input"], nil
	})
	e.Register("fail", KindBuiltin, func(ctx context.Context, nc *NodeContext) (interface{}, error) {
		return nil, Errorf(KindHandlerError, "boom")
	})
	e.Register("condition", KindBuiltin, func(ctx context.Context, nc *NodeContext) (interface{}, error) {
		matched, _ := nc.Params["matched"].(string)
		if matched == "" {
			return map[string]interface{}{"output": nil, "matched_path": nil}, nil
		}
		return map[string]interface{}{"output": matched, "matched_path": matched}, nil
	})
	e.Register("block", KindBuiltin, func(ctx context.Context, nc *NodeContext) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	return e
}

func node(id, typ string, params map[string]interface{}) workflow.Node {
	return workflow.Node{ID: id, Type: typ, Data: workflow.NodeData{Params: params}}
}

func TestRunLinearChain(t *testing.T) {
	e := testEngine(nil)
	wf := &workflow.Workflow{
		Nodes: []workflow.Node{
			node("input-0", "input", nil),
			node("step", "echo", nil),
			node("sink", "echo", nil),
		},
		Edges: []workflow.Edge{
			{Source: "input-0", Target: "step"},
			{Source: "step", Target: "sink"},
		},
	}

	report, err := e.Run(context.Background(), wf, RunInputs{"input": "hello"})
	require.NoError(t, err)

	assert.Equal(t, RunCompleted, report.Status)
	assert.Equal(t, []string{"input-0", "step", "sink"}, report.ExecutionPath)
	assert.Equal(t, "hello", report.Outputs["sink"].Primary())
	assert.Equal(t, StatusCompleted, report.NodeResults["sink"].Status)
	assert.NotEmpty(t, report.RunID)
}

func TestRunDiamondFanIn(t *testing.T) {
	e := testEngine(nil)
	wf := &workflow.Workflow{
		Nodes: []workflow.Node{
			node("input-0", "input", nil),
			node("left", "echo", nil),
			node("right", "echo", nil),
			node("join", "echo", nil),
		},
		Edges: []workflow.Edge{
			{Source: "input-0", Target: "left"},
			{Source: "input-0", Target: "right"},
			{Source: "left", Target: "join"},
			{Source: "right", Target: "join"},
		},
	}

	report, err := e.Run(context.Background(), wf, RunInputs{"input": "x"})
	require.NoError(t, err)

	require.Equal(t, RunCompleted, report.Status)
	joined, ok := report.Outputs["join"].Primary().([]interface{})
	require.True(t, ok, "fan-in should bind a list")
	assert.Equal(t, []interface{}{"x", "x"}, joined)
}

func TestConditionRoutesMatchedBranch(t *testing.T) {
	e := testEngine(nil)
	wf := &workflow.Workflow{
		Nodes: []workflow.Node{
			node("input-0", "input", nil),
			node("cond", "condition", map[string]interface{}{"matched": "yes"}),
			node("then", "echo", nil),
			node("otherwise", "echo", nil),
		},
		Edges: []workflow.Edge{
			{Source: "input-0", Target: "cond"},
			{Source: "cond", Target: "then", SourceHandle: "yes"},
			{Source: "cond", Target: "otherwise", SourceHandle: "no"},
		},
	}

	report, err := e.Run(context.Background(), wf, RunInputs{"input": "x"})
	require.NoError(t, err)

	assert.Equal(t, RunCompleted, report.Status)
	assert.Equal(t, StatusCompleted, report.NodeResults["then"].Status)
	assert.Equal(t, StatusSkipped, report.NodeResults["otherwise"].Status)
	assert.Equal(t, SkipConditionSkipped, report.NodeResults["otherwise"].SkipReason)
	assert.NotContains(t, report.ExecutionPath, "otherwise")
}

func TestConditionNoMatchSkipsAllBranches(t *testing.T) {
	e := testEngine(nil)
	wf := &workflow.Workflow{
		Nodes: []workflow.Node{
			node("input-0", "input", nil),
			node("cond", "condition", nil),
			node("then", "echo", nil),
			node("otherwise", "echo", nil),
		},
		Edges: []workflow.Edge{
			{Source: "input-0", Target: "cond"},
			{Source: "cond", Target: "then", SourceHandle: "yes"},
			{Source: "cond", Target: "otherwise", SourceHandle: "no"},
		},
	}

	report, err := e.Run(context.Background(), wf, RunInputs{"input": "x"})
	require.NoError(t, err)

	// Unchosen branches do not count against a completed run.
	assert.Equal(t, RunCompleted, report.Status)
	assert.Equal(t, StatusSkipped, report.NodeResults["then"].Status)
	assert.Equal(t, StatusSkipped, report.NodeResults["otherwise"].Status)
}

func TestFailureIsolation(t *testing.T) {
	e := testEngine(nil)
	wf := &workflow.Workflow{
		Nodes: []workflow.Node{
			node("input-0", "input", nil),
			node("broken", "fail", nil),
			node("after-broken", "echo", nil),
			node("healthy", "echo", nil),
			node("after-healthy", "echo", nil),
		},
		Edges: []workflow.Edge{
			{Source: "input-0", Target: "broken"},
			{Source: "broken", Target: "after-broken"},
			{Source: "input-0", Target: "healthy"},
			{Source: "healthy", Target: "after-healthy"},
		},
	}

	report, err := e.Run(context.Background(), wf, RunInputs{"input": "x"})
	require.NoError(t, err)

	assert.Equal(t, RunPartial, report.Status)
	assert.Equal(t, StatusFailed, report.NodeResults["broken"].Status)
	require.NotNil(t, report.NodeResults["broken"].Error)
	assert.Equal(t, "handler_error", report.NodeResults["broken"].Error.Kind)
	assert.Equal(t, StatusSkipped, report.NodeResults["after-broken"].Status)
	assert.Equal(t, SkipUpstreamFailed, report.NodeResults["after-broken"].SkipReason)
	assert.Equal(t, StatusCompleted, report.NodeResults["after-healthy"].Status)

	// Only completed nodes count toward the execution path.
	assert.Equal(t, []string{"input-0", "healthy", "after-healthy"}, report.ExecutionPath)
	assert.NotContains(t, report.ExecutionPath, "broken")
	assert.NotContains(t, report.ExecutionPath, "after-broken")
}

func TestNodeObserverSeesCompletionsAndFailures(t *testing.T) {
	type seen struct {
		runID  string
		nodeID string
		status Status
	}
	var notified []seen
	e := testEngine(&Options{
		NodeObserver: func(runID, nodeID string, result NodeResult) {
			notified = append(notified, seen{runID, nodeID, result.Status})
		},
	})

	wf := &workflow.Workflow{
		Nodes: []workflow.Node{
			node("input-0", "input", nil),
			node("broken", "fail", nil),
			node("after-broken", "echo", nil),
		},
		Edges: []workflow.Edge{
			{Source: "input-0", Target: "broken"},
			{Source: "broken", Target: "after-broken"},
		},
	}

	report, err := e.Run(context.Background(), wf, RunInputs{"input": "x"})
	require.NoError(t, err)

	// The observer runs on the coordinator goroutine, so by the time Run
	// returns every notification has landed.
	require.Len(t, notified, 2)
	assert.Equal(t, seen{report.RunID, "input-0", StatusCompleted}, notified[0])
	assert.Equal(t, seen{report.RunID, "broken", StatusFailed}, notified[1])
}

func TestIntegrationTimeout(t *testing.T) {
	e := testEngine(&Options{IntegrationTimeout: 30 * time.Millisecond})
	e.Register("slow", KindIntegration, func(ctx context.Context, nc *NodeContext) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	wf := &workflow.Workflow{
		Nodes: []workflow.Node{node("fetch", "slow", nil)},
	}

	report, err := e.Run(context.Background(), wf, nil)
	require.NoError(t, err)

	assert.Equal(t, RunFailed, report.Status)
	require.NotNil(t, report.NodeResults["fetch"].Error)
	assert.Equal(t, "timeout", report.NodeResults["fetch"].Error.Kind)
}

func TestCancellation(t *testing.T) {
	e := testEngine(nil)
	wf := &workflow.Workflow{
		Nodes: []workflow.Node{node("stuck", "block", nil)},
	}

	runID := NewRunID()
	done := make(chan *Report, 1)
	go func() {
		report, err := e.RunWithID(context.Background(), runID, wf, nil)
		if err == nil {
			done <- report
		}
		close(done)
	}()

	// Wait for the node to be in flight, then cancel.
	require.Eventually(t, func() bool {
		snap, ok := e.Status(runID)
		return ok && snap.Statuses["stuck"] == StatusRunning
	}, 2*time.Second, 5*time.Millisecond)

	require.True(t, e.Cancel(runID))

	report := <-done
	require.NotNil(t, report)
	assert.Equal(t, RunCancelled, report.Status)
	require.NotNil(t, report.NodeResults["stuck"].Error)
	assert.Equal(t, "cancelled", report.NodeResults["stuck"].Error.Kind)
}

func TestCancelUnknownRun(t *testing.T) {
	e := testEngine(nil)
	assert.False(t, e.Cancel("no-such-run"))
	_, ok := e.Status("no-such-run")
	assert.False(t, ok)
}

func TestUnknownNodeType(t *testing.T) {
	e := testEngine(nil)
	wf := &workflow.Workflow{
		Nodes: []workflow.Node{node("mystery", "teleport", nil)},
	}

	report, err := e.Run(context.Background(), wf, nil)
	require.NoError(t, err)

	assert.Equal(t, RunFailed, report.Status)
	require.NotNil(t, report.NodeResults["mystery"].Error)
	assert.Equal(t, "unknown_node_type", report.NodeResults["mystery"].Error.Kind)
}

func TestInvalidWorkflowRejected(t *testing.T) {
	e := testEngine(nil)
	wf := &workflow.Workflow{
		Nodes: []workflow.Node{
			node("a", "echo", nil),
			node("b", "echo", nil),
		},
		Edges: []workflow.Edge{
			{Source: "a", Target: "b"},
			{Source: "b", Target: "a"},
		},
	}

	_, err := e.Run(context.Background(), wf, nil)
	require.Error(t, err)
	assert.Equal(t, KindInvalidWorkflow, KindOf(err))
}

func TestInputNodesSeedInDeclarationOrder(t *testing.T) {
	e := testEngine(nil)
	wf := &workflow.Workflow{
		Nodes: []workflow.Node{
			node("input-0", "input", map[string]interface{}{"value": "a"}),
			node("input-1", "input", map[string]interface{}{"value": "b"}),
			node("join", "echo", nil),
		},
		Edges: []workflow.Edge{
			{Source: "input-0", Target: "join"},
			{Source: "input-1", Target: "join"},
		},
	}

	report, err := e.Run(context.Background(), wf, nil)
	require.NoError(t, err)

	require.Equal(t, RunCompleted, report.Status)
	assert.Equal(t, []string{"input-0", "input-1", "join"}, report.ExecutionPath)
	assert.Equal(t, []interface{}{"a", "b"}, report.Outputs["join"].Primary())
}

func TestUnresolvedTemplateWarnsButDoesNotFail(t *testing.T) {
	e := testEngine(nil)
	wf := &workflow.Workflow{
		Nodes: []workflow.Node{
			node("input-0", "input", nil),
			node("step", "echo", map[string]interface{}{"note": "{{ghost.output}}"}),
		},
		Edges: []workflow.Edge{
			{Source: "input-0", Target: "step"},
		},
	}

	report, err := e.Run(context.Background(), wf, RunInputs{"input": "x"})
	require.NoError(t, err)

	assert.Equal(t, RunCompleted, report.Status)
	assert.NotEmpty(t, report.NodeResults["step"].Warnings)
}

func TestMemoryStoreSharedWithinRun(t *testing.T) {
	e := testEngine(nil)
	e.Register("remember", KindBuiltin, func(ctx context.Context, nc *NodeContext) (interface{}, error) {
		nc.Memory.Set("note", nc.Inputs["input"])
		return nc.Inputs["input"], nil
	})
	e.Register("recall", KindBuiltin, func(ctx context.Context, nc *NodeContext) (interface{}, error) {
		v, _ := nc.Memory.Get("note")
		return v, nil
	})

	wf := &workflow.Workflow{
		Nodes: []workflow.Node{
			node("input-0", "input", nil),
			node("w", "remember", nil),
			node("r", "recall", nil),
		},
		Edges: []workflow.Edge{
			{Source: "input-0", Target: "w"},
			{Source: "w", Target: "r"},
		},
	}

	report, err := e.Run(context.Background(), wf, RunInputs{"input": "kept"})
	require.NoError(t, err)
	assert.Equal(t, "kept", report.Outputs["r"].Primary())
}
