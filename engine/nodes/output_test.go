package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputTemplateWins(t *testing.T) {
	nc := nodeCtx(
		map[string]interface{}{"output": "rendered result"},
		map[string]interface{}{"input": "ignored"},
	)
	v, err := Output(context.Background(), nc)
	require.NoError(t, err)
	assert.Equal(t, "rendered result", v)
}

func TestOutputTemplateParamAlias(t *testing.T) {
	nc := nodeCtx(map[string]interface{}{"template": "tpl"}, nil)
	v, err := Output(context.Background(), nc)
	require.NoError(t, err)
	assert.Equal(t, "tpl", v)
}

func TestOutputPassesInputThrough(t *testing.T) {
	nc := nodeCtx(nil, map[string]interface{}{"input": "payload"})
	v, err := Output(context.Background(), nc)
	require.NoError(t, err)
	assert.Equal(t, "payload", v)
}

func TestOutputJoinsListLineByLine(t *testing.T) {
	nc := nodeCtx(nil, map[string]interface{}{
		"input": []interface{}{"first", 2, "third"},
	})
	v, err := Output(context.Background(), nc)
	require.NoError(t, err)
	assert.Equal(t, "first\n2\nthird", v)
}

func TestOutputNoInput(t *testing.T) {
	v, err := Output(context.Background(), nodeCtx(nil, nil))
	require.NoError(t, err)
	assert.Equal(t, "", v)
}
