package nodes

import (
	"time"

	"github.com/lyzr/flowrunner/engine"
)

type testLogger struct{}

func (testLogger) Info(string, ...interface{})  {}
func (testLogger) Warn(string, ...interface{})  {}
func (testLogger) Error(string, ...interface{}) {}
func (testLogger) Debug(string, ...interface{}) {}

// pinnedNow is a Saturday mid-June in a leap year.
var pinnedNow = time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)

func nodeCtx(params, inputs map[string]interface{}) *engine.NodeContext {
	if params == nil {
		params = map[string]interface{}{}
	}
	if inputs == nil {
		inputs = map[string]interface{}{}
	}
	return &engine.NodeContext{
		RunID:    "test-run",
		NodeID:   "node-0",
		NodeType: "test",
		NodeName: "node-0",
		Params:   params,
		Inputs:   inputs,
		Outputs:  engine.Snapshot{},
		Memory:   engine.NewMemoryStore(),
		Logger:   testLogger{},
		Now:      func() time.Time { return pinnedNow },
	}
}
