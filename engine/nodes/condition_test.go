package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/flowrunner/engine"
	"github.com/lyzr/flowrunner/engine/condition"
)

func conditionParams(paths ...interface{}) map[string]interface{} {
	return map[string]interface{}{"paths": paths}
}

func TestConditionMatchedPath(t *testing.T) {
	handler := Condition(condition.NewEvaluator())
	nc := nodeCtx(conditionParams(
		map[string]interface{}{
			"id": "ready",
			"clauses": []interface{}{
				map[string]interface{}{"inputField": "status", "operator": "equals", "value": "ready"},
			},
		},
	), map[string]interface{}{"input": map[string]interface{}{"status": "ready"}})

	v, err := handler(context.Background(), nc)
	require.NoError(t, err)
	out := v.(*engine.NodeOutput)

	matched, _ := out.Get("matched_path")
	assert.Equal(t, "ready", matched)
	assert.Equal(t, "ready", out.Primary())
	index, _ := out.Get("selected_path")
	assert.Equal(t, 0, index)

	evaluation, _ := out.Get("evaluation")
	assert.Len(t, evaluation.([]condition.PathEvaluation), 1)
}

func TestConditionNoMatch(t *testing.T) {
	handler := Condition(condition.NewEvaluator())
	nc := nodeCtx(conditionParams(
		map[string]interface{}{
			"id": "high",
			"clauses": []interface{}{
				map[string]interface{}{"input_field": "score", "operator": "greater_than", "value": 90},
			},
		},
	), map[string]interface{}{"input": map[string]interface{}{"score": 10}})

	v, err := handler(context.Background(), nc)
	require.NoError(t, err)
	out := v.(*engine.NodeOutput)

	matched, ok := out.Get("matched_path")
	assert.True(t, ok)
	assert.Nil(t, matched)
	index, _ := out.Get("selected_path")
	assert.Nil(t, index)

	value, _ := out.Get("value")
	assert.Equal(t, map[string]interface{}{"score": 10}, value)
}

func TestConditionElsePathMatchesUnconditionally(t *testing.T) {
	handler := Condition(condition.NewEvaluator())
	nc := nodeCtx(conditionParams(
		map[string]interface{}{
			"id": "big",
			"clauses": []interface{}{
				map[string]interface{}{"inputField": "n", "operator": "greater_than", "value": 100},
			},
		},
		map[string]interface{}{"id": "else"},
	), map[string]interface{}{"input": map[string]interface{}{"n": 1}})

	v, err := handler(context.Background(), nc)
	require.NoError(t, err)
	out := v.(*engine.NodeOutput)

	matched, _ := out.Get("matched_path")
	assert.Equal(t, "else", matched)
	index, _ := out.Get("selected_path")
	assert.Equal(t, 1, index)
}

func TestConditionMalformedPaths(t *testing.T) {
	handler := Condition(condition.NewEvaluator())
	nc := nodeCtx(map[string]interface{}{"paths": "not a list"}, nil)

	_, err := handler(context.Background(), nc)
	require.Error(t, err)
	assert.Equal(t, engine.KindInvalidWorkflow, engine.KindOf(err))
}
