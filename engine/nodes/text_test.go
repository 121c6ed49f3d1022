package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/flowrunner/engine"
)

func runText(t *testing.T, params map[string]interface{}, input interface{}) map[string]interface{} {
	t.Helper()
	v, err := TextProcessor(context.Background(), nodeCtx(params, map[string]interface{}{"input": input}))
	require.NoError(t, err)
	return v.(map[string]interface{})
}

func TestTextTransformDefaultsToUppercase(t *testing.T) {
	out := runText(t, nil, "hello")
	assert.Equal(t, "HELLO", out["output"])
	assert.Equal(t, 5, out["original_length"])
	assert.Equal(t, 5, out["new_length"])
}

func TestTextTransformVariants(t *testing.T) {
	cases := []struct {
		transform string
		input     string
		want      string
	}{
		{"lowercase", "HeLLo", "hello"},
		{"capitalize", "hELLO world", "Hello world"},
		{"strip", "  padded  ", "padded"},
	}
	for _, tc := range cases {
		out := runText(t, map[string]interface{}{"transformType": tc.transform}, tc.input)
		assert.Equal(t, tc.want, out["output"], tc.transform)
	}
}

func TestTextTransformReplace(t *testing.T) {
	out := runText(t, map[string]interface{}{
		"transformType": "replace",
		"pattern":       "cat",
		"replacement":   "dog",
	}, "cat and cat")
	assert.Equal(t, "dog and dog", out["output"])
}

func TestTextTransformRegexReplace(t *testing.T) {
	out := runText(t, map[string]interface{}{
		"transformType": "regex_replace",
		"pattern":       `\d+`,
		"replacement":   "#",
	}, "a1 b22 c333")
	assert.Equal(t, "a# b# c#", out["output"])
}

func TestTextTransformBadRegex(t *testing.T) {
	_, err := TextProcessor(context.Background(), nodeCtx(map[string]interface{}{
		"transformType": "regex_replace",
		"pattern":       "([",
	}, map[string]interface{}{"input": "x"}))
	require.Error(t, err)
	assert.Equal(t, engine.KindHandlerError, engine.KindOf(err))
}

func TestTextExtract(t *testing.T) {
	out := runText(t, map[string]interface{}{
		"operation":      "extract",
		"extractPattern": `\b\w+@\w+\.\w+\b`,
	}, "mail a@b.com and c@d.org")

	assert.Equal(t, []string{"a@b.com", "c@d.org"}, out["matches"])
	assert.Equal(t, 2, out["count"])
}

func TestTextExtractNoPattern(t *testing.T) {
	out := runText(t, map[string]interface{}{"operation": "extract"}, "anything")
	assert.Equal(t, 0, out["count"])
}

func TestTextSplit(t *testing.T) {
	out := runText(t, map[string]interface{}{
		"operation":      "split",
		"splitDelimiter": "|",
	}, "a|b|c")

	assert.Equal(t, []string{"a", "b", "c"}, out["parts"])
	assert.Equal(t, 3, out["count"])
}

func TestTextAnalyze(t *testing.T) {
	out := runText(t, map[string]interface{}{"operation": "analyze"},
		"One two three. Four five!\nSix.")

	assert.Equal(t, 6, out["word_count"])
	assert.Equal(t, 3, out["sentence_count"])
	assert.Equal(t, 2, out["line_count"])
}

func TestTextUnknownOperation(t *testing.T) {
	_, err := TextProcessor(context.Background(), nodeCtx(map[string]interface{}{
		"operation": "reverse",
	}, map[string]interface{}{"input": "x"}))
	require.Error(t, err)
	assert.Equal(t, engine.KindInvalidWorkflow, engine.KindOf(err))
}
