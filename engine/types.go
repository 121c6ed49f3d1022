package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/lyzr/flowrunner/engine/resolver"
)

// Status tracks a node through a run: pending -> running -> {completed,
// failed}, or pending -> skipped. All transitions are monotone.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSkipped
}

// RunStatus is the overall outcome of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Skip reasons recorded on skipped nodes.
const (
	SkipUpstreamFailed   = "upstream_failed"
	SkipConditionSkipped = "condition_skipped"
)

// aliasFields are materialized on every NodeOutput; readers may address any
// of them and receive the primary value unless the handler overrode one.
var aliasFields = []string{"output", "content", "text", "response", "value", "result"}

// NodeOutput is the normalized, insertion-ordered record a node publishes to
// the output table. Order matters: field-fallback resolution may take the
// first non-metadata field.
type NodeOutput struct {
	keys   []string
	values map[string]interface{}
}

// NewNodeOutput returns an empty output record.
func NewNodeOutput() *NodeOutput {
	return &NodeOutput{values: make(map[string]interface{})}
}

// Set stores a field, appending it to the record order when new.
func (o *NodeOutput) Set(key string, value interface{}) {
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

// SetDefault stores a field only when it is not already present.
func (o *NodeOutput) SetDefault(key string, value interface{}) {
	if _, exists := o.values[key]; !exists {
		o.Set(key, value)
	}
}

// Get returns a field value.
func (o *NodeOutput) Get(field string) (interface{}, bool) {
	v, ok := o.values[field]
	return v, ok
}

// Has reports field presence.
func (o *NodeOutput) Has(field string) bool {
	_, ok := o.values[field]
	return ok
}

// Fields returns the field names in insertion order.
func (o *NodeOutput) Fields() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Len returns the number of fields.
func (o *NodeOutput) Len() int { return len(o.keys) }

// Primary returns the canonical result value.
func (o *NodeOutput) Primary() interface{} {
	v, _ := o.values["output"]
	return v
}

// MarshalJSON preserves insertion order.
func (o *NodeOutput) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(o.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON restores a record, preserving the document's key order.
func (o *NodeOutput) UnmarshalJSON(data []byte) error {
	o.keys = nil
	o.values = make(map[string]interface{})

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok != json.Delim('{') {
		return &json.UnmarshalTypeError{Value: "non-object", Type: nil}
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key := keyTok.(string)
		var value interface{}
		if err := dec.Decode(&value); err != nil {
			return err
		}
		o.Set(key, value)
	}
	_, err = dec.Token() // closing brace
	return err
}

// Snapshot is a read-only view of the output table handed to handlers and
// the resolver. The NodeOutput values are immutable once published.
type Snapshot map[string]*NodeOutput

// ResolverTable adapts the snapshot to the resolver's table shape.
func (s Snapshot) ResolverTable() map[string]resolver.Output {
	table := make(map[string]resolver.Output, len(s))
	for id, out := range s {
		table[id] = out
	}
	return table
}

// Logger is the narrow logging surface engine components depend on.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// HandlerKind selects timeout and concurrency policy for a handler.
type HandlerKind int

const (
	// KindBuiltin handlers are CPU-bound and bounded by MaxInFlight.
	KindBuiltin HandlerKind = iota
	// KindIntegration handlers block on network I/O; unbounded, 60s default timeout.
	KindIntegration
	// KindAI handlers call model providers; unbounded, 120s default timeout.
	KindAI
)

// NodeContext is the uniform context a handler executes with. Params have
// already been passed through the template resolver; handlers must not
// re-interpret {{...}} tokens.
type NodeContext struct {
	RunID    string
	NodeID   string
	NodeType string
	NodeName string

	// Params is the node's parameter mapping after template resolution.
	Params map[string]interface{}

	// Inputs is the assembled input bundle keyed by target handle.
	Inputs map[string]interface{}

	// Outputs is a read-only view of the output table at assembly time.
	Outputs Snapshot

	// Memory is the run-scoped variable store shared by memory nodes.
	Memory *MemoryStore

	Logger Logger

	// Now is the run clock; handlers use it instead of time.Now so tests
	// can pin time.
	Now func() time.Time
}

// HandlerFunc executes one node. The returned value is passed through the
// output normalizer; errors should carry an engine error kind.
type HandlerFunc func(ctx context.Context, nc *NodeContext) (interface{}, error)

// ErrorInfo is the serializable form of a node failure.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// NodeResult records the per-node outcome in the run report.
type NodeResult struct {
	Status        Status             `json:"status"`
	ExecutionTime float64            `json:"execution_time"`
	Error         *ErrorInfo         `json:"error,omitempty"`
	SkipReason    string             `json:"skip_reason,omitempty"`
	Warnings      []resolver.Warning `json:"warnings,omitempty"`
}

// NodeObserver is notified when a node completes or fails. It runs on the
// coordinator goroutine; implementations must not block.
type NodeObserver func(runID, nodeID string, result NodeResult)

// Report is the final result of a run.
type Report struct {
	RunID         string                 `json:"run_id"`
	Status        RunStatus              `json:"status"`
	Outputs       map[string]*NodeOutput `json:"outputs"`
	NodeResults   map[string]NodeResult  `json:"node_results"`
	ExecutionPath []string               `json:"execution_path"`
	ExecutionTime float64                `json:"execution_time"`
}

// Snapshot of an in-flight run, served by Engine.Status.
type RunSnapshot struct {
	RunID         string            `json:"run_id"`
	Statuses      map[string]Status `json:"statuses"`
	ExecutionPath []string          `json:"execution_path"`
	StartedAt     time.Time         `json:"started_at"`
}

// RunInputs maps external input keys to values. A value may be a raw value
// or a typed wrapper {"value": ..., "type": "Text|Image|Audio|File|JSON"}.
type RunInputs map[string]interface{}

// Unwrap returns the raw value and declared type for an input entry.
func (in RunInputs) Unwrap(key string) (interface{}, string, bool) {
	v, ok := in[key]
	if !ok {
		return nil, "", false
	}
	if m, ok := v.(map[string]interface{}); ok {
		if inner, ok := m["value"]; ok {
			typ, _ := m["type"].(string)
			return inner, typ, true
		}
	}
	return v, "", true
}
