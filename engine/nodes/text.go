package nodes

import (
	"context"
	"regexp"
	"strings"

	"github.com/lyzr/flowrunner/engine"
	"github.com/lyzr/flowrunner/engine/resolver"
)

var (
	wordPattern     = regexp.MustCompile(`\b\w+\b`)
	sentencePattern = regexp.MustCompile(`[.!?]+`)
)

// TextProcessor is the pure text transform node. Operations: transform
// (uppercase, lowercase, capitalize, title, strip, replace, regex_replace),
// extract (regex findall), split, analyze.
func TextProcessor(ctx context.Context, nc *engine.NodeContext) (interface{}, error) {
	operation, _ := nc.Params["operation"].(string)
	if operation == "" {
		operation = "transform"
	}
	text := resolver.Stringify(nc.Inputs["input"])

	switch operation {
	case "transform":
		transformed, err := transformText(text, nc)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"output":          transformed,
			"text":            transformed,
			"operation":       "transform",
			"original_length": len(text),
			"new_length":      len(transformed),
		}, nil

	case "extract":
		pattern, _ := nc.Params["extractPattern"].(string)
		if pattern == "" {
			return map[string]interface{}{
				"matches":   []interface{}{},
				"count":     0,
				"operation": "extract",
			}, nil
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, engine.WrapError(engine.KindHandlerError, err, "node %s: invalid extract pattern", nc.NodeID)
		}
		matches := re.FindAllString(text, -1)
		if matches == nil {
			matches = []string{}
		}
		return map[string]interface{}{
			"matches":   matches,
			"count":     len(matches),
			"operation": "extract",
			"pattern":   pattern,
		}, nil

	case "split":
		delimiter, ok := nc.Params["splitDelimiter"].(string)
		if !ok {
			delimiter = ","
		}
		parts := strings.Split(text, delimiter)
		return map[string]interface{}{
			"parts":     parts,
			"count":     len(parts),
			"operation": "split",
			"delimiter": delimiter,
		}, nil

	case "analyze":
		words := wordPattern.FindAllString(text, -1)
		sentences := 0
		for _, s := range sentencePattern.Split(text, -1) {
			if strings.TrimSpace(s) != "" {
				sentences++
			}
		}
		return map[string]interface{}{
			"character_count": len(text),
			"word_count":      len(words),
			"sentence_count":  sentences,
			"line_count":      strings.Count(text, "\n") + 1,
			"operation":       "analyze",
		}, nil

	default:
		return nil, engine.Errorf(engine.KindInvalidWorkflow, "node %s: unknown text operation %q", nc.NodeID, operation)
	}
}

func transformText(text string, nc *engine.NodeContext) (string, error) {
	transformType, _ := nc.Params["transformType"].(string)
	pattern, _ := nc.Params["pattern"].(string)
	replacement, _ := nc.Params["replacement"].(string)

	switch transformType {
	case "", "uppercase":
		return strings.ToUpper(text), nil
	case "lowercase":
		return strings.ToLower(text), nil
	case "capitalize":
		if text == "" {
			return text, nil
		}
		return strings.ToUpper(text[:1]) + strings.ToLower(text[1:]), nil
	case "title":
		return strings.Title(text), nil
	case "strip":
		return strings.TrimSpace(text), nil
	case "replace":
		return strings.ReplaceAll(text, pattern, replacement), nil
	case "regex_replace":
		re, err := regexp.Compile(pattern)
		if err != nil {
			return "", engine.WrapError(engine.KindHandlerError, err, "node %s: invalid replace pattern", nc.NodeID)
		}
		return re.ReplaceAllString(text, replacement), nil
	default:
		return "", engine.Errorf(engine.KindInvalidWorkflow, "node %s: unknown transform type %q", nc.NodeID, transformType)
	}
}
