package nodes

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/lyzr/flowrunner/engine"
	"github.com/lyzr/flowrunner/engine/resolver"
	"github.com/tidwall/gjson"
)

// Merge combines the values arriving on the node's declared path handles.
// The function param picks the combination strategy; legacy display names
// ("Pick First") and tag names (pick_first) are both accepted.
func Merge(ctx context.Context, nc *engine.NodeContext) (interface{}, error) {
	function := mergeFunction(nc.Params)
	paths := stringList(nc.Params["paths"])
	if len(paths) == 0 {
		paths = []string{"input"}
	}
	dataType, _ := nc.Params["type"].(string)
	delimiter, ok := nc.Params["joinDelimiter"].(string)
	if !ok {
		delimiter = " "
	}

	keys, values := gatherPaths(paths, nc.Inputs)

	switch function {
	case "pick_first":
		for _, v := range values {
			if v != nil {
				return v, nil
			}
		}
		return nil, nil

	case "join_all":
		return joinAll(values, dataType, delimiter), nil

	case "concat_arrays":
		var combined []interface{}
		for _, v := range values {
			if arr, ok := v.([]interface{}); ok {
				combined = append(combined, arr...)
			} else if v != nil {
				combined = append(combined, v)
			}
		}
		return combined, nil

	case "merge_objects":
		merged := make(map[string]interface{})
		for _, v := range values {
			if obj, ok := v.(map[string]interface{}); ok {
				deepMerge(merged, obj)
			}
		}
		return merged, nil

	case "avg", "min", "max":
		return reduceNumeric(function, values), nil

	case "create_object":
		obj := make(map[string]interface{}, len(values))
		for i, v := range values {
			obj[keys[i]] = v
		}
		return obj, nil

	default:
		return nil, engine.Errorf(engine.KindInvalidWorkflow, "node %s: unknown merge function %q", nc.NodeID, function)
	}
}

// mergeFunction normalizes the function param: "Pick First" and
// "pick_first" both mean pick_first; "Average" means avg.
func mergeFunction(params map[string]interface{}) string {
	raw, _ := params["function"].(string)
	if raw == "" {
		return "pick_first"
	}
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), " ", "_")
	switch name {
	case "concatenate_arrays":
		return "concat_arrays"
	case "average":
		return "avg"
	case "minimum":
		return "min"
	case "maximum":
		return "max"
	default:
		return name
	}
}

// gatherPaths collects values along the declared paths, in path order. A
// path may name an input handle directly or a dotted path into the bundled
// input object. A single "input" path holding a list from several edges is
// flattened.
func gatherPaths(paths []string, inputs map[string]interface{}) ([]string, []interface{}) {
	if len(paths) == 1 {
		if v, ok := inputs[paths[0]]; ok {
			if list, isList := v.([]interface{}); isList {
				keys := make([]string, len(list))
				for i := range list {
					keys[i] = paths[0]
				}
				return keys, list
			}
		}
	}

	var keys []string
	var values []interface{}
	for _, p := range paths {
		if v, ok := inputs[p]; ok {
			keys = append(keys, p)
			values = append(values, parseStructured(v))
			continue
		}
		// Dotted paths read into the primary input object.
		if strings.Contains(p, ".") {
			if obj, ok := parseStructured(inputs["input"]).(map[string]interface{}); ok {
				data, err := json.Marshal(obj)
				if err == nil {
					if r := gjson.GetBytes(data, p); r.Exists() {
						keys = append(keys, p)
						values = append(values, r.Value())
						continue
					}
				}
			}
		}
		keys = append(keys, p)
		values = append(values, nil)
	}
	return keys, values
}

// parseStructured decodes string values that carry JSON documents.
func parseStructured(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return v
	}
	t := strings.TrimSpace(s)
	if (strings.HasPrefix(t, "{") && strings.HasSuffix(t, "}")) ||
		(strings.HasPrefix(t, "[") && strings.HasSuffix(t, "]")) {
		var parsed interface{}
		if err := json.Unmarshal([]byte(t), &parsed); err == nil {
			return parsed
		}
	}
	return v
}

// joinAll combines values per the declared data type: strings join with the
// delimiter, numerics sum, structured types collect into a list.
func joinAll(values []interface{}, dataType, delimiter string) interface{} {
	nonNil := make([]interface{}, 0, len(values))
	for _, v := range values {
		if v != nil {
			nonNil = append(nonNil, v)
		}
	}

	switch strings.ToLower(dataType) {
	case "integer", "float", "number":
		sum := 0.0
		for _, v := range nonNil {
			n, ok := toNumber(v)
			if !ok {
				return joinStrings(nonNil, delimiter)
			}
			sum += n
		}
		if strings.EqualFold(dataType, "integer") {
			return int(sum)
		}
		return sum
	case "json", "any":
		return nonNil
	default:
		return joinStrings(nonNil, delimiter)
	}
}

func joinStrings(values []interface{}, delimiter string) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, resolver.Stringify(v))
	}
	return strings.Join(parts, delimiter)
}

func reduceNumeric(function string, values []interface{}) interface{} {
	var nums []float64
	for _, v := range values {
		if n, ok := toNumber(v); ok {
			nums = append(nums, n)
		}
	}
	if len(nums) == 0 {
		return nil
	}
	switch function {
	case "avg":
		sum := 0.0
		for _, n := range nums {
			sum += n
		}
		return sum / float64(len(nums))
	case "min":
		m := nums[0]
		for _, n := range nums[1:] {
			if n < m {
				m = n
			}
		}
		return m
	default:
		m := nums[0]
		for _, n := range nums[1:] {
			if n > m {
				m = n
			}
		}
		return m
	}
}

func toNumber(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		n, err := t.Float64()
		return n, err == nil
	case string:
		var n float64
		if err := json.Unmarshal([]byte(strings.TrimSpace(t)), &n); err == nil {
			return n, true
		}
	}
	return 0, false
}

func stringList(raw interface{}) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func deepMerge(target, source map[string]interface{}) {
	for key, value := range source {
		if existing, ok := target[key].(map[string]interface{}); ok {
			if incoming, ok := value.(map[string]interface{}); ok {
				deepMerge(existing, incoming)
				continue
			}
		}
		target[key] = value
	}
}
