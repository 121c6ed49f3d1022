package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/lyzr/flowrunner/engine"
	"github.com/tidwall/gjson"
)

// JSONHandler parses, stringifies, extracts from, and reshapes JSON values.
// Extraction paths use dotted notation with numeric list indexes.
func JSONHandler(ctx context.Context, nc *engine.NodeContext) (interface{}, error) {
	operation, _ := nc.Params["operation"].(string)
	if operation == "" {
		operation = "parse"
	}
	input := nc.Inputs["input"]

	switch operation {
	case "parse":
		if s, ok := input.(string); ok {
			var parsed interface{}
			if err := json.Unmarshal([]byte(s), &parsed); err != nil {
				return nil, engine.WrapError(engine.KindHandlerError, err, "node %s: input is not valid JSON", nc.NodeID)
			}
			return map[string]interface{}{
				"output":    parsed,
				"data":      parsed,
				"operation": "parse",
				"type":      jsonTypeName(parsed),
			}, nil
		}
		return map[string]interface{}{
			"output":    input,
			"data":      input,
			"operation": "parse",
			"type":      jsonTypeName(input),
		}, nil

	case "stringify":
		formatted, _ := nc.Params["formatOutput"].(bool)
		var data []byte
		var err error
		if formatted {
			data, err = json.MarshalIndent(input, "", "  ")
		} else {
			data, err = json.Marshal(input)
		}
		if err != nil {
			return nil, engine.WrapError(engine.KindHandlerError, err, "node %s: value cannot be stringified", nc.NodeID)
		}
		return map[string]interface{}{
			"output":    string(data),
			"string":    string(data),
			"operation": "stringify",
			"length":    len(data),
			"formatted": formatted,
		}, nil

	case "extract":
		path, _ := nc.Params["path"].(string)
		defaultValue := nc.Params["defaultValue"]
		doc := toJSONDocument(input)
		if path == "" {
			return map[string]interface{}{
				"output":    doc.value,
				"value":     doc.value,
				"operation": "extract",
				"path":      "",
			}, nil
		}
		r := gjson.GetBytes(doc.raw, path)
		value := defaultValue
		found := r.Exists()
		if found {
			value = r.Value()
		}
		return map[string]interface{}{
			"output":    value,
			"value":     value,
			"operation": "extract",
			"path":      path,
			"found":     found,
		}, nil

	case "transform":
		doc := toJSONDocument(input)
		obj, _ := doc.value.(map[string]interface{})
		transformed := make(map[string]interface{})
		var originalKeys []string
		for k := range obj {
			originalKeys = append(originalKeys, k)
		}
		for _, mapping := range keyMappings(nc.Params["transformKeys"]) {
			if v, ok := obj[mapping[0]]; ok {
				transformed[mapping[1]] = v
			}
		}
		var newKeys []string
		for k := range transformed {
			newKeys = append(newKeys, k)
		}
		return map[string]interface{}{
			"output":        transformed,
			"data":          transformed,
			"operation":     "transform",
			"original_keys": originalKeys,
			"new_keys":      newKeys,
		}, nil

	default:
		return nil, engine.Errorf(engine.KindInvalidWorkflow, "node %s: unknown json operation %q", nc.NodeID, operation)
	}
}

type jsonDocument struct {
	value interface{}
	raw   []byte
}

// toJSONDocument decodes string inputs when they hold JSON, wrapping
// non-JSON strings as {"text": ...} the way the extract path expects.
func toJSONDocument(input interface{}) jsonDocument {
	if s, ok := input.(string); ok {
		var parsed interface{}
		if err := json.Unmarshal([]byte(s), &parsed); err == nil {
			raw, _ := json.Marshal(parsed)
			return jsonDocument{value: parsed, raw: raw}
		}
		wrapped := map[string]interface{}{"text": s}
		raw, _ := json.Marshal(wrapped)
		return jsonDocument{value: wrapped, raw: raw}
	}
	raw, _ := json.Marshal(input)
	return jsonDocument{value: input, raw: raw}
}

// keyMappings reads the transformKeys param: a list of [old, new] pairs.
func keyMappings(raw interface{}) [][2]string {
	list, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	var mappings [][2]string
	for _, item := range list {
		pair, ok := item.([]interface{})
		if !ok || len(pair) != 2 {
			continue
		}
		oldKey, ok1 := pair[0].(string)
		newKey, ok2 := pair[1].(string)
		if ok1 && ok2 {
			mappings = append(mappings, [2]string{oldKey, newKey})
		}
	}
	return mappings
}

func jsonTypeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, int, int64, json.Number:
		return "number"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return fmt.Sprintf("%v", reflect.TypeOf(v))
	}
}
