package nodes

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/flowrunner/engine"
)

func runFile(t *testing.T, params map[string]interface{}, input interface{}) map[string]interface{} {
	t.Helper()
	v, err := FileTransformer(context.Background(), nodeCtx(params, map[string]interface{}{"input": input}))
	require.NoError(t, err)
	return v.(map[string]interface{})
}

func TestFileConvertBareString(t *testing.T) {
	out := runFile(t, nil, "file body")

	assert.Equal(t, "file body", out["content"])
	meta := out["metadata"].(map[string]interface{})
	assert.Equal(t, "unknown.txt", meta["filename"])
	assert.Equal(t, "text/plain", meta["type"])
	assert.Equal(t, 9, meta["size"])
}

func TestFileConvertBase64(t *testing.T) {
	out := runFile(t, map[string]interface{}{"outputFormat": "base64"}, "secret")

	encoded := out["content"].(string)
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, "secret", string(decoded))

	meta := out["metadata"].(map[string]interface{})
	assert.Equal(t, "base64", meta["encoding"])
	assert.Equal(t, 6, meta["original_size"])
}

func TestFileConvertJSON(t *testing.T) {
	payload := map[string]interface{}{
		"content": `{"k": 1}`,
		"metadata": map[string]interface{}{
			"filename": "data.txt",
		},
	}
	out := runFile(t, map[string]interface{}{"outputFormat": "json"}, payload)

	data := out["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["k"])
	meta := out["metadata"].(map[string]interface{})
	assert.Equal(t, "data.json", meta["filename"])
	assert.Equal(t, "application/json", meta["type"])
}

func TestFileConvertJSONWrapsPlainText(t *testing.T) {
	out := runFile(t, map[string]interface{}{"outputFormat": "json"}, "plain words")

	data := out["data"].(map[string]interface{})
	assert.Equal(t, "plain words", data["text"])
}

func TestFileExtractMetadata(t *testing.T) {
	payload := map[string]interface{}{
		"content": "....",
		"metadata": map[string]interface{}{
			"filename": "report.pdf",
			"type":     "unknown",
		},
	}
	out := runFile(t, map[string]interface{}{"operation": "extract"}, payload)

	meta := out["metadata"].(map[string]interface{})
	assert.Equal(t, "report.pdf", meta["filename"])
	assert.Equal(t, ".pdf", meta["extension"])
	assert.Equal(t, "report", meta["basename"])
	assert.Equal(t, 4, meta["size"])
}

func TestFileMissingContent(t *testing.T) {
	_, err := FileTransformer(context.Background(), nodeCtx(nil, nil))
	require.Error(t, err)
	assert.Equal(t, engine.KindMissingInput, engine.KindOf(err))
}

func TestFileUnknownOperation(t *testing.T) {
	_, err := FileTransformer(context.Background(), nodeCtx(map[string]interface{}{
		"operation": "shred",
	}, map[string]interface{}{"input": "x"}))
	require.Error(t, err)
	assert.Equal(t, engine.KindInvalidWorkflow, engine.KindOf(err))
}
