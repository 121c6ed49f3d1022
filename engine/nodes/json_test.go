package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/flowrunner/engine"
)

func runJSON(t *testing.T, params map[string]interface{}, input interface{}) map[string]interface{} {
	t.Helper()
	v, err := JSONHandler(context.Background(), nodeCtx(params, map[string]interface{}{"input": input}))
	require.NoError(t, err)
	return v.(map[string]interface{})
}

func TestJSONParseString(t *testing.T) {
	out := runJSON(t, nil, `{"name": "Ada", "age": 36}`)

	parsed := out["output"].(map[string]interface{})
	assert.Equal(t, "Ada", parsed["name"])
	assert.Equal(t, "object", out["type"])
}

func TestJSONParseInvalid(t *testing.T) {
	_, err := JSONHandler(context.Background(), nodeCtx(nil, map[string]interface{}{"input": "{broken"}))
	require.Error(t, err)
	assert.Equal(t, engine.KindHandlerError, engine.KindOf(err))
}

func TestJSONParsePassthroughForStructured(t *testing.T) {
	in := map[string]interface{}{"already": "structured"}
	out := runJSON(t, nil, in)
	assert.Equal(t, in, out["output"])
	assert.Equal(t, "object", out["type"])
}

func TestJSONStringify(t *testing.T) {
	out := runJSON(t, map[string]interface{}{"operation": "stringify"},
		map[string]interface{}{"k": "v"})

	assert.Equal(t, `{"k":"v"}`, out["output"])
	assert.Equal(t, false, out["formatted"])
}

func TestJSONStringifyFormatted(t *testing.T) {
	out := runJSON(t, map[string]interface{}{
		"operation":    "stringify",
		"formatOutput": true,
	}, map[string]interface{}{"k": "v"})

	assert.Equal(t, "{\n  \"k\": \"v\"\n}", out["output"])
}

func TestJSONExtractDottedPath(t *testing.T) {
	out := runJSON(t, map[string]interface{}{
		"operation": "extract",
		"path":      "user.emails.1",
	}, map[string]interface{}{
		"user": map[string]interface{}{
			"emails": []interface{}{"a@x.com", "b@x.com"},
		},
	})

	assert.Equal(t, "b@x.com", out["output"])
	assert.Equal(t, true, out["found"])
}

func TestJSONExtractDefaultValue(t *testing.T) {
	out := runJSON(t, map[string]interface{}{
		"operation":    "extract",
		"path":         "missing.key",
		"defaultValue": "fallback",
	}, map[string]interface{}{"present": 1})

	assert.Equal(t, "fallback", out["output"])
	assert.Equal(t, false, out["found"])
}

func TestJSONExtractWrapsPlainString(t *testing.T) {
	out := runJSON(t, map[string]interface{}{
		"operation": "extract",
		"path":      "text",
	}, "just words")

	assert.Equal(t, "just words", out["output"])
}

func TestJSONExtractEmptyPathReturnsWhole(t *testing.T) {
	out := runJSON(t, map[string]interface{}{"operation": "extract"}, `{"a": 1}`)
	doc := out["output"].(map[string]interface{})
	assert.Equal(t, float64(1), doc["a"])
}

func TestJSONTransformRenamesKeys(t *testing.T) {
	out := runJSON(t, map[string]interface{}{
		"operation": "transform",
		"transformKeys": []interface{}{
			[]interface{}{"old_name", "name"},
			[]interface{}{"ghost", "nothing"},
		},
	}, map[string]interface{}{"old_name": "Ada", "keep_out": true})

	transformed := out["output"].(map[string]interface{})
	assert.Equal(t, "Ada", transformed["name"])
	assert.NotContains(t, transformed, "old_name")
	assert.NotContains(t, transformed, "nothing")
}

func TestJSONUnknownOperation(t *testing.T) {
	_, err := JSONHandler(context.Background(), nodeCtx(map[string]interface{}{
		"operation": "mangle",
	}, nil))
	require.Error(t, err)
	assert.Equal(t, engine.KindInvalidWorkflow, engine.KindOf(err))
}
