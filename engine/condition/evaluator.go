// Package condition evaluates the path/clause rules of condition nodes.
// Paths are tried in order; the first matching path wins. Clause operators
// compare loosely: strings that look like numbers or booleans are coerced
// before comparison.
package condition

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/tidwall/gjson"
)

// Clause is a single comparison inside a path. InputField may be a dotted
// path into the node's input value.
type Clause struct {
	InputField string      `json:"inputField"`
	Operator   string      `json:"operator"`
	Value      interface{} `json:"value"`
}

type clauseJSON struct {
	InputField    string      `json:"inputField"`
	InputFieldAlt string      `json:"input_field"`
	Operator      string      `json:"operator"`
	Value         interface{} `json:"value"`
}

func (c *Clause) UnmarshalJSON(data []byte) error {
	var raw clauseJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.InputField = raw.InputField
	if c.InputField == "" {
		c.InputField = raw.InputFieldAlt
	}
	c.Operator = raw.Operator
	c.Value = raw.Value
	return nil
}

// Path is one branch of a condition node. A path with no clauses and no
// expression matches unconditionally, which is how an explicit else branch
// is written.
type Path struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Clauses         []Clause `json:"clauses"`
	LogicalOperator string   `json:"logicalOperator"`
	// Expression is an optional CEL expression evaluated with the node
	// input bound to "input". When present it is combined with the clause
	// results under the path's logical operator.
	Expression string `json:"expression,omitempty"`
}

type pathJSON struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Clauses            []Clause `json:"clauses"`
	LogicalOperator    string   `json:"logicalOperator"`
	LogicalOperatorAlt string   `json:"logical_operator"`
	Expression         string   `json:"expression"`
}

func (p *Path) UnmarshalJSON(data []byte) error {
	var raw pathJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.ID = raw.ID
	p.Name = raw.Name
	p.Clauses = raw.Clauses
	p.LogicalOperator = raw.LogicalOperator
	if p.LogicalOperator == "" {
		p.LogicalOperator = raw.LogicalOperatorAlt
	}
	p.Expression = raw.Expression
	return nil
}

// EffectiveID returns the path's id, defaulting to p<index>.
func (p *Path) EffectiveID(index int) string {
	if p.ID != "" {
		return p.ID
	}
	return "p" + strconv.Itoa(index)
}

// ClauseEvaluation records the outcome of one clause for the node output.
type ClauseEvaluation struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
	Result   bool        `json:"result"`
	Reason   string      `json:"reason"`
}

// PathEvaluation records the outcome of one path.
type PathEvaluation struct {
	Path    string             `json:"path"`
	Result  bool               `json:"result"`
	Reason  string             `json:"reason,omitempty"`
	Clauses []ClauseEvaluation `json:"clauses,omitempty"`
}

// Result is the outcome of selecting a path.
type Result struct {
	Matched     bool
	PathID      string
	Index       int
	Evaluations []PathEvaluation
}

// Evaluator selects condition paths. CEL expressions are compiled once and
// cached. Safe for concurrent use.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewEvaluator returns an evaluator with an empty program cache.
func NewEvaluator() *Evaluator {
	return &Evaluator{cache: make(map[string]cel.Program)}
}

// Select tries each path in order against the input value and returns the
// first match. A nil Result.Matched means no path matched.
func (e *Evaluator) Select(paths []Path, input interface{}) (*Result, error) {
	input = parseJSONString(input)

	// Marshal once; dotted field paths are read via gjson.
	var doc []byte
	switch input.(type) {
	case map[string]interface{}, []interface{}:
		doc, _ = json.Marshal(input)
	}

	res := &Result{Matched: false, Index: -1}
	for i := range paths {
		path := &paths[i]
		eval, matched, err := e.evaluatePath(path, i, input, doc)
		if err != nil {
			return nil, err
		}
		res.Evaluations = append(res.Evaluations, eval)
		if matched {
			res.Matched = true
			res.PathID = path.EffectiveID(i)
			res.Index = i
			return res, nil
		}
	}
	return res, nil
}

func (e *Evaluator) evaluatePath(path *Path, index int, input interface{}, doc []byte) (PathEvaluation, bool, error) {
	name := path.Name
	if name == "" {
		name = path.EffectiveID(index)
	}
	eval := PathEvaluation{Path: name}

	if len(path.Clauses) == 0 && path.Expression == "" {
		eval.Result = true
		eval.Reason = "unconditional path"
		return eval, true, nil
	}

	op := strings.ToUpper(path.LogicalOperator)
	if op == "" {
		op = "AND"
	}

	var results []bool
	for _, clause := range path.Clauses {
		ce := evaluateClause(&clause, input, doc)
		eval.Clauses = append(eval.Clauses, ce)
		results = append(results, ce.Result)
	}

	if path.Expression != "" {
		ok, err := e.evaluateCEL(path.Expression, input)
		if err != nil {
			return eval, false, fmt.Errorf("path %s: %w", name, err)
		}
		results = append(results, ok)
	}

	matched := combine(results, op)
	eval.Result = matched
	if matched {
		eval.Reason = "conditions met"
	} else {
		eval.Reason = "conditions not met"
	}
	return eval, matched, nil
}

func combine(results []bool, op string) bool {
	if len(results) == 0 {
		return false
	}
	if op == "OR" {
		for _, r := range results {
			if r {
				return true
			}
		}
		return false
	}
	for _, r := range results {
		if !r {
			return false
		}
	}
	return true
}

// parseJSONString decodes a string input that looks like a JSON document so
// dotted field paths work on stringified payloads.
func parseJSONString(input interface{}) interface{} {
	s, ok := input.(string)
	if !ok {
		return input
	}
	t := strings.TrimSpace(s)
	if (strings.HasPrefix(t, "{") && strings.HasSuffix(t, "}")) ||
		(strings.HasPrefix(t, "[") && strings.HasSuffix(t, "]")) {
		var parsed interface{}
		if err := json.Unmarshal([]byte(t), &parsed); err == nil {
			return parsed
		}
	}
	return input
}

func evaluateClause(clause *Clause, input interface{}, doc []byte) ClauseEvaluation {
	ce := ClauseEvaluation{
		Field:    clause.InputField,
		Operator: clause.Operator,
		Value:    clause.Value,
	}
	if clause.Operator == "" {
		ce.Reason = "invalid clause configuration"
		return ce
	}

	fieldValue, fieldExists := lookupField(clause.InputField, input, doc)
	if !fieldExists && clause.Operator != "is_empty" && clause.Operator != "is_not_empty" {
		ce.Reason = "field not found in input"
		return ce
	}

	ce.Result, ce.Reason = applyOperator(clause.Operator, fieldValue, clause.Value, fieldExists)
	return ce
}

// lookupField reads a dotted path out of the input. Non-structured inputs
// are compared whole regardless of the field name.
func lookupField(field string, input interface{}, doc []byte) (interface{}, bool) {
	if field == "" || doc == nil {
		return input, true
	}
	r := gjson.GetBytes(doc, field)
	if !r.Exists() {
		return nil, false
	}
	return r.Value(), true
}

func applyOperator(op string, field, compare interface{}, fieldExists bool) (bool, string) {
	switch op {
	case "is_empty":
		return !fieldExists || isEmpty(field), "emptiness check"
	case "is_not_empty":
		return fieldExists && !isEmpty(field), "emptiness check"
	}

	f := coerce(field)
	c := coerce(compare)

	switch op {
	case "==":
		return looseEqual(f, c), fmt.Sprintf("%v == %v", f, c)
	case "!=":
		return !looseEqual(f, c), fmt.Sprintf("%v != %v", f, c)
	case ">", ">=", "<", "<=":
		fn, fok := toFloat(f)
		cn, cok := toFloat(c)
		if !fok || !cok {
			// Fall back to lexicographic comparison for strings.
			fs, fsok := f.(string)
			cs, csok := c.(string)
			if !fsok || !csok {
				return false, "values not comparable"
			}
			return compareOrdered(strings.Compare(fs, cs), op), fmt.Sprintf("%q %s %q", fs, op, cs)
		}
		var cmp int
		switch {
		case fn < cn:
			cmp = -1
		case fn > cn:
			cmp = 1
		}
		return compareOrdered(cmp, op), fmt.Sprintf("%v %s %v", fn, op, cn)
	case "contains":
		return contains(field, compare), "containment check"
	case "not_contains":
		return !contains(field, compare), "containment check"
	case "startswith":
		fs, ok1 := field.(string)
		cs, ok2 := compare.(string)
		return ok1 && ok2 && strings.HasPrefix(fs, cs), "prefix check"
	case "endswith":
		fs, ok1 := field.(string)
		cs, ok2 := compare.(string)
		return ok1 && ok2 && strings.HasSuffix(fs, cs), "suffix check"
	case "matches_regex":
		fs, ok1 := field.(string)
		cs, ok2 := compare.(string)
		if !ok1 || !ok2 {
			return false, "regex requires string operands"
		}
		re, err := regexp.Compile(cs)
		if err != nil {
			return false, "invalid regex: " + err.Error()
		}
		return re.MatchString(fs), "regex match"
	case "in_list":
		return inList(field, compare), "membership check"
	case "not_in_list":
		return !inList(field, compare), "membership check"
	case "length_equals", "length_greater_than", "length_less_than":
		n, ok := lengthOf(field)
		if !ok {
			return false, "cannot determine length"
		}
		want, ok := toFloat(c)
		if !ok {
			return false, "length comparand is not numeric"
		}
		switch op {
		case "length_equals":
			return float64(n) == want, fmt.Sprintf("len == %v", want)
		case "length_greater_than":
			return float64(n) > want, fmt.Sprintf("len > %v", want)
		default:
			return float64(n) < want, fmt.Sprintf("len < %v", want)
		}
	case "date_before", "date_after", "date_equals", "date_between":
		return compareDates(op, field, compare)
	case "type_equals":
		want, _ := compare.(string)
		return typeName(field) == strings.ToLower(want), "type check"
	default:
		return false, "unsupported operator: " + op
	}
}

func compareOrdered(cmp int, op string) bool {
	switch op {
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	}
	return false
}

// coerce applies the loose comparison rules: strings spelling booleans or
// numbers become booleans or numbers; json.Number becomes float64.
func coerce(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		switch strings.ToLower(t) {
		case "true":
			return true
		case "false":
			return false
		}
		if n, err := strconv.ParseFloat(t, 64); err == nil && t != "" {
			return n
		}
		return t
	case json.Number:
		if n, err := t.Float64(); err == nil {
			return n
		}
		return t.String()
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}

func toFloat(v interface{}) (float64, bool) {
	n, ok := v.(float64)
	return n, ok
}

func looseEqual(a, b interface{}) bool {
	if an, ok := toFloat(a); ok {
		if bn, ok := toFloat(b); ok {
			return an == bn
		}
	}
	return reflect.DeepEqual(a, b)
}

func isEmpty(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []interface{}:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	default:
		return false
	}
}

func contains(field, compare interface{}) bool {
	switch f := field.(type) {
	case string:
		if c, ok := compare.(string); ok {
			return strings.Contains(f, c)
		}
		return strings.Contains(f, fmt.Sprintf("%v", compare))
	case []interface{}:
		for _, item := range f {
			if looseEqual(coerce(item), coerce(compare)) {
				return true
			}
		}
	case map[string]interface{}:
		for k, v := range f {
			if looseEqual(coerce(k), coerce(compare)) || looseEqual(coerce(v), coerce(compare)) {
				return true
			}
		}
	}
	return false
}

// inList accepts either a real list or a comma-separated string as the
// comparand.
func inList(field, compare interface{}) bool {
	switch c := compare.(type) {
	case []interface{}:
		for _, item := range c {
			if looseEqual(coerce(field), coerce(item)) {
				return true
			}
		}
	case string:
		fs := fmt.Sprintf("%v", field)
		for _, item := range strings.Split(c, ",") {
			if strings.TrimSpace(item) == fs {
				return true
			}
		}
	}
	return false
}

func lengthOf(v interface{}) (int, bool) {
	switch t := v.(type) {
	case string:
		return len(t), true
	case []interface{}:
		return len(t), true
	case map[string]interface{}:
		return len(t), true
	default:
		return 0, false
	}
}

func typeName(v interface{}) string {
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
		return "unknown"
	}
}

// dateLayouts are the accepted date formats, tried in order.
var dateLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
	"02/01/2006",
	"01-02-2006",
	"01/02/2006",
	"Jan 2 2006",
	"January 2 2006",
	"2 Jan 2006",
	"2 January 2006",
}

func parseDate(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if d, err := time.Parse(layout, s); err == nil {
				return d, true
			}
		}
		// Bare digits are unix seconds.
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(n, 0).UTC(), true
		}
	case float64:
		return time.Unix(int64(t), 0).UTC(), true
	case int:
		return time.Unix(int64(t), 0).UTC(), true
	case int64:
		return time.Unix(t, 0).UTC(), true
	}
	return time.Time{}, false
}

func compareDates(op string, field, compare interface{}) (bool, string) {
	fieldDate, ok := parseDate(field)
	if !ok {
		return false, fmt.Sprintf("could not parse date from %v", field)
	}

	if op == "date_between" {
		rangeStr, ok := compare.(string)
		if !ok {
			return false, "date_between needs 'start,end'"
		}
		parts := strings.SplitN(rangeStr, ",", 2)
		if len(parts) != 2 {
			return false, "date_between needs 'start,end'"
		}
		start, ok1 := parseDate(strings.TrimSpace(parts[0]))
		end, ok2 := parseDate(strings.TrimSpace(parts[1]))
		if !ok1 || !ok2 {
			return false, "invalid date range: " + rangeStr
		}
		in := !fieldDate.Before(start) && !fieldDate.After(end)
		return in, "date range check"
	}

	compareDate, ok := parseDate(compare)
	if !ok {
		return false, fmt.Sprintf("could not parse comparison date %v", compare)
	}
	switch op {
	case "date_before":
		return fieldDate.Before(compareDate), "date comparison"
	case "date_after":
		return fieldDate.After(compareDate), "date comparison"
	default: // date_equals compares the calendar day only
		fy, fm, fd := fieldDate.Date()
		cy, cm, cd := compareDate.Date()
		return fy == cy && fm == cm && fd == cd, "date comparison"
	}
}

// evaluateCEL compiles (once) and runs a CEL expression with the node input
// bound to "input".
func (e *Evaluator) evaluateCEL(expr string, input interface{}) (bool, error) {
	e.mu.RLock()
	prg, exists := e.cache[expr]
	e.mu.RUnlock()

	if !exists {
		var err error
		prg, err = compileCEL(expr)
		if err != nil {
			return false, err
		}
		e.mu.Lock()
		e.cache[expr] = prg
		e.mu.Unlock()
	}

	out, _, err := prg.Eval(map[string]interface{}{"input": input})
	if err != nil {
		return false, fmt.Errorf("expression evaluation error: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return boolean, got %T", out.Value())
	}
	return result, nil
}

func compileCEL(expr string) (cel.Program, error) {
	env, err := cel.NewEnv(cel.Variable("input", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("failed to create expression env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("expression compilation error: %w", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create expression program: %w", err)
	}
	return prg, nil
}

// CacheSize returns the number of compiled expressions held.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
