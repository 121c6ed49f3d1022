package nodes

import (
	"context"
	"encoding/json"

	"github.com/lyzr/flowrunner/engine"
	"github.com/lyzr/flowrunner/engine/condition"
)

// Condition selects the first matching path and publishes its id under
// matched_path. The scheduler routes outgoing edges off that field; unchosen
// branches are skipped downstream.
func Condition(ev *condition.Evaluator) engine.HandlerFunc {
	return func(ctx context.Context, nc *engine.NodeContext) (interface{}, error) {
		paths, err := decodePaths(nc.Params["paths"])
		if err != nil {
			return nil, engine.WrapError(engine.KindInvalidWorkflow, err, "node %s has malformed condition paths", nc.NodeID)
		}

		input := nc.Inputs["input"]
		res, err := ev.Select(paths, input)
		if err != nil {
			return nil, engine.WrapError(engine.KindHandlerError, err, "condition evaluation failed for node %s", nc.NodeID)
		}

		out := engine.NewNodeOutput()
		if res.Matched {
			out.Set("output", res.PathID)
			out.Set("matched_path", res.PathID)
			out.Set("selected_path", res.Index)
		} else {
			out.Set("output", nil)
			out.Set("matched_path", nil)
			out.Set("selected_path", nil)
		}
		out.Set("value", input)
		out.Set("evaluation", res.Evaluations)
		return out, nil
	}
}

// decodePaths converts the raw params value into typed paths via a JSON
// round trip, which also applies the key-alias tolerant unmarshalers.
func decodePaths(raw interface{}) ([]condition.Path, error) {
	if raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var paths []condition.Path
	if err := json.Unmarshal(data, &paths); err != nil {
		return nil, err
	}
	return paths, nil
}
