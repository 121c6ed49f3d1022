// Package resolver implements the {{node.field}} variable mini-language.
// Resolution is a single pass: substituted values are not re-scanned for
// tokens. All functions are pure and safe for concurrent use.
package resolver

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Output is the read-only record shape the resolver reads fields from.
type Output interface {
	Get(field string) (interface{}, bool)
	Fields() []string
}

// Warning records an unresolved token. The token stays verbatim in the
// resolved string; the producing node does not fail.
type Warning struct {
	Token  string `json:"token"`
	Reason string `json:"reason"`
}

// tokenPattern matches '{{' WS? ref '.' field WS? '}}'. Tokens of any other
// shape are left untouched.
var tokenPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_\-]+)\.([A-Za-z0-9_\-]+)\s*\}\}`)

var trailingNumber = regexp.MustCompile(`(\d+)$`)

// metadataFields are never chosen by the first-non-metadata fallback.
var metadataFields = map[string]bool{
	"type":           true,
	"node_name":      true,
	"usage":          true,
	"model":          true,
	"execution_time": true,
	"input_raw":      true,
}

// fallbackOrder is the standard alias order tried when the requested field
// is absent.
var fallbackOrder = []string{"output", "text", "content", "response", "result", "value"}

// Resolve substitutes every {{node.field}} token in template with values
// from the output table. Unresolved tokens are preserved verbatim and
// reported as warnings.
func Resolve(template string, table map[string]Output) (string, []Warning) {
	if !strings.Contains(template, "{{") {
		return template, nil
	}

	var warnings []Warning
	resolved := tokenPattern.ReplaceAllStringFunc(template, func(token string) string {
		groups := tokenPattern.FindStringSubmatch(token)
		ref, field := groups[1], groups[2]

		key, ok := normalizeRef(ref, table)
		if !ok {
			warnings = append(warnings, Warning{
				Token:  ref + "." + field,
				Reason: fmt.Sprintf("node %q not found in output table", ref),
			})
			return token
		}

		value, ok := resolveField(table[key], field)
		if !ok {
			warnings = append(warnings, Warning{
				Token:  ref + "." + field,
				Reason: fmt.Sprintf("field %q not found in node %q", field, key),
			})
			return token
		}
		return Stringify(value)
	})

	return resolved, warnings
}

// ResolveConfig deep-copies a parameter mapping, resolving every string it
// contains, including strings nested in arrays and objects.
func ResolveConfig(config map[string]interface{}, table map[string]Output) (map[string]interface{}, []Warning) {
	var warnings []Warning
	resolved := resolveMap(config, table, &warnings)
	return resolved, warnings
}

func resolveValue(value interface{}, table map[string]Output, warnings *[]Warning) interface{} {
	switch v := value.(type) {
	case string:
		s, w := Resolve(v, table)
		*warnings = append(*warnings, w...)
		return s
	case map[string]interface{}:
		return resolveMap(v, table, warnings)
	case []interface{}:
		return resolveArray(v, table, warnings)
	default:
		// Primitives pass through.
		return value
	}
}

func resolveMap(m map[string]interface{}, table map[string]Output, warnings *[]Warning) map[string]interface{} {
	resolved := make(map[string]interface{}, len(m))
	for key, value := range m {
		resolved[key] = resolveValue(value, table, warnings)
	}
	return resolved
}

func resolveArray(arr []interface{}, table map[string]Output, warnings *[]Warning) []interface{} {
	resolved := make([]interface{}, len(arr))
	for i, value := range arr {
		resolved[i] = resolveValue(value, table, warnings)
	}
	return resolved
}

// ExtractRefs returns the (ref, field) pairs of every token in template, in
// order of appearance. Used by dry-run validation.
func ExtractRefs(template string) [][2]string {
	var refs [][2]string
	for _, m := range tokenPattern.FindAllStringSubmatch(template, -1) {
		refs = append(refs, [2]string{m[1], m[2]})
	}
	return refs
}

// NormalizeNodeRef maps a requested node reference onto an output-table key,
// tolerating the historical id conventions (input_0, input-0, input_input0).
func NormalizeNodeRef(ref string, keys []string) (string, bool) {
	table := make(map[string]Output, len(keys))
	for _, k := range keys {
		table[k] = nil
	}
	return normalizeRef(ref, table)
}

func normalizeRef(ref string, table map[string]Output) (string, bool) {
	// 1. Exact match.
	if _, ok := table[ref]; ok {
		return ref, true
	}

	// 2. Swap '-' and '_' and retry.
	if swapped := strings.ReplaceAll(ref, "-", "_"); swapped != ref {
		if _, ok := table[swapped]; ok {
			return swapped, true
		}
	}
	if swapped := strings.ReplaceAll(ref, "_", "-"); swapped != ref {
		if _, ok := table[swapped]; ok {
			return swapped, true
		}
	}

	refNum, refHasNum := trailingInt(ref)
	prefix := strings.TrimRight(strings.TrimRight(ref, "0123456789"), "-_")
	candidates := sortedKeys(table)

	// 3. Suffix-number alignment: same trailing integer and the requested
	// prefix appears inside the candidate.
	if refHasNum && prefix != "" {
		for _, key := range candidates {
			keyNum, keyHasNum := trailingInt(key)
			if keyHasNum && keyNum == refNum && strings.Contains(key, prefix) {
				return key, true
			}
		}
	}

	// 4. Prefix-family fuzzy: the requested ref's leading name family
	// appears in the candidate and both share the trailing integer.
	if refHasNum {
		family := leadingFamily(ref)
		if family != "" {
			for _, key := range candidates {
				if strings.Contains(key, family) && strings.HasSuffix(key, strconv.Itoa(refNum)) {
					return key, true
				}
			}
		}
	}

	return "", false
}

func trailingInt(s string) (int, bool) {
	m := trailingNumber.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

// leadingFamily returns the leading alphabetic run of an id, e.g. "input"
// for "input_0" and "openai" for "openai-3".
func leadingFamily(s string) string {
	for i, r := range s {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return s[:i]
		}
	}
	return s
}

func sortedKeys(table map[string]Output) []string {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// resolveField applies the field-fallback chain: exact, lowercase, standard
// alias order, then the first non-metadata field of the record.
func resolveField(out Output, field string) (interface{}, bool) {
	if out == nil {
		return nil, false
	}
	if v, ok := out.Get(field); ok {
		return v, true
	}
	if lower := strings.ToLower(field); lower != field {
		if v, ok := out.Get(lower); ok {
			return v, true
		}
	}
	for _, alias := range fallbackOrder {
		if v, ok := out.Get(alias); ok {
			return v, true
		}
	}
	for _, name := range out.Fields() {
		if !metadataFields[name] {
			v, _ := out.Get(name)
			return v, true
		}
	}
	return nil, false
}

// Stringify renders a resolved value into template text: strings pass
// through, nil becomes empty, objects and arrays take canonical JSON form,
// everything else takes its native textual form.
func Stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case []byte:
		return string(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
