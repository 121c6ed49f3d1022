// Package engine executes workflow graphs: it schedules nodes whose
// dependencies are satisfied, assembles their inputs, resolves templates,
// invokes handlers, and normalizes what they return into the shared output
// table. Independent branches run concurrently; a failing node only takes
// down the nodes that depend on it.
package engine

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/flowrunner/workflow"
)

const (
	defaultIntegrationTimeout = 60 * time.Second
	defaultAITimeout          = 120 * time.Second
)

// Options configure an Engine.
type Options struct {
	Logger Logger

	// MaxInFlight bounds concurrently running builtin handlers. Integration
	// and AI handlers are unbounded; they block on I/O. Defaults to the
	// number of CPUs.
	MaxInFlight int

	// IntegrationTimeout is the per-node deadline for integration handlers.
	// Defaults to 60s.
	IntegrationTimeout time.Duration

	// AITimeout is the per-node deadline for AI handlers. Defaults to 120s.
	AITimeout time.Duration

	// Now is the run clock, overridable in tests.
	Now func() time.Time

	// NodeObserver, when set, receives every node completion and failure.
	NodeObserver NodeObserver
}

// Engine owns the handler registry and the set of active runs.
type Engine struct {
	registry           *Registry
	logger             Logger
	maxInFlight        int64
	integrationTimeout time.Duration
	aiTimeout          time.Duration
	now                func() time.Time
	observer           NodeObserver

	mu   sync.RWMutex
	runs map[string]*run
}

// New creates an engine. A nil options pointer gets all defaults.
func New(opts *Options) *Engine {
	if opts == nil {
		opts = &Options{}
	}
	maxInFlight := opts.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = runtime.NumCPU()
	}
	integrationTimeout := opts.IntegrationTimeout
	if integrationTimeout <= 0 {
		integrationTimeout = defaultIntegrationTimeout
	}
	aiTimeout := opts.AITimeout
	if aiTimeout <= 0 {
		aiTimeout = defaultAITimeout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	return &Engine{
		registry:           NewRegistry(),
		logger:             logger,
		maxInFlight:        int64(maxInFlight),
		integrationTimeout: integrationTimeout,
		aiTimeout:          aiTimeout,
		now:                now,
		observer:           opts.NodeObserver,
		runs:               make(map[string]*run),
	}
}

// Register binds a handler to a node type tag.
func (e *Engine) Register(typeTag string, kind HandlerKind, fn HandlerFunc) {
	e.registry.Register(typeTag, kind, fn)
}

// Registry exposes the handler registry.
func (e *Engine) Registry() *Registry { return e.registry }

// Run executes a workflow to completion and returns its report. The context
// carries run-wide cancellation; Cancel(runID) has the same effect.
func (e *Engine) Run(ctx context.Context, wf *workflow.Workflow, inputs RunInputs) (*Report, error) {
	return e.RunWithID(ctx, NewRunID(), wf, inputs)
}

// RunWithID is Run with a caller-supplied run id, for callers that hand the
// id to a client before execution finishes.
func (e *Engine) RunWithID(ctx context.Context, runID string, wf *workflow.Workflow, inputs RunInputs) (*Report, error) {
	if err := wf.Validate(); err != nil {
		return nil, WrapError(KindInvalidWorkflow, err, "workflow validation failed")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := newRun(e, runID, wf, inputs, cancel)

	e.mu.Lock()
	e.runs[r.id] = r
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.runs, r.id)
		e.mu.Unlock()
	}()

	e.logger.Info("run started", "run_id", r.id, "nodes", len(wf.Nodes), "edges", len(wf.Edges))
	report := r.execute(runCtx)
	e.logger.Info("run finished", "run_id", r.id, "status", report.Status, "execution_time", report.ExecutionTime)
	return report, nil
}

// Cancel signals cancellation to an active run. It reports whether the run
// was found.
func (e *Engine) Cancel(runID string) bool {
	e.mu.RLock()
	r, ok := e.runs[runID]
	e.mu.RUnlock()
	if !ok {
		return false
	}
	r.requestCancel()
	return true
}

// Status returns a point-in-time snapshot of an active run.
func (e *Engine) Status(runID string) (*RunSnapshot, bool) {
	e.mu.RLock()
	r, ok := e.runs[runID]
	e.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return r.snapshot(), true
}

// NewRunID mints a run identifier.
func NewRunID() string { return uuid.NewString() }

// nopLogger discards everything; used when no logger is supplied.
type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Debug(string, ...interface{}) {}
