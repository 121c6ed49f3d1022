package engine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/lyzr/flowrunner/engine/resolver"
	"github.com/lyzr/flowrunner/workflow"
)

// edgeState tracks one edge through a run. An edge starts unresolved,
// becomes satisfied when its source completes and routes through it, or dead
// when the source failed, was skipped, or routed elsewhere.
type edgeState struct {
	resolved   bool
	satisfied  bool
	deadReason string
}

// completion is what a node goroutine reports back to the coordinator loop.
type completion struct {
	nodeID   string
	value    interface{}
	err      error
	warnings []resolver.Warning
	duration time.Duration
}

// run is the coordinator state for one execution. The coordinator loop is
// the single writer; the mutex exists for snapshot reads from other
// goroutines.
type run struct {
	id     string
	engine *Engine
	wf     *workflow.Workflow
	inputs RunInputs
	memory *MemoryStore
	cancel context.CancelFunc
	order  []string

	// sem bounds concurrently running builtin handlers for this run.
	sem *semaphore.Weighted

	completions chan completion

	mu        sync.Mutex
	statuses  map[string]Status
	outputs   Snapshot
	results   map[string]NodeResult
	path      []string
	edges     []edgeState
	started   time.Time
	inFlight  int
	cancelled bool
}

func newRun(e *Engine, runID string, wf *workflow.Workflow, inputs RunInputs, cancel context.CancelFunc) *run {
	r := &run{
		id:          runID,
		engine:      e,
		wf:          wf,
		inputs:      inputs,
		memory:      NewMemoryStore(),
		cancel:      cancel,
		order:       topoOrder(wf),
		sem:         semaphore.NewWeighted(e.maxInFlight),
		completions: make(chan completion, len(wf.Nodes)),
		statuses:    make(map[string]Status, len(wf.Nodes)),
		outputs:     make(Snapshot, len(wf.Nodes)),
		results:     make(map[string]NodeResult, len(wf.Nodes)),
		edges:       make([]edgeState, len(wf.Edges)),
		started:     e.now(),
	}
	for _, n := range wf.Nodes {
		r.statuses[n.ID] = StatusPending
	}
	return r
}

// topoOrder returns a topological order with ties broken by declaration
// order. Validate has already rejected cycles.
func topoOrder(wf *workflow.Workflow) []string {
	indegree := make(map[string]int, len(wf.Nodes))
	for _, n := range wf.Nodes {
		indegree[n.ID] = 0
	}
	for _, e := range wf.Edges {
		indegree[e.Target]++
	}

	order := make([]string, 0, len(wf.Nodes))
	placed := make(map[string]bool, len(wf.Nodes))
	for len(order) < len(wf.Nodes) {
		progressed := false
		for _, n := range wf.Nodes {
			if placed[n.ID] || indegree[n.ID] > 0 {
				continue
			}
			placed[n.ID] = true
			order = append(order, n.ID)
			for _, e := range wf.Edges {
				if e.Source == n.ID {
					indegree[e.Target]--
				}
			}
			progressed = true
		}
		if !progressed {
			// Unreachable on a validated DAG.
			for _, n := range wf.Nodes {
				if !placed[n.ID] {
					placed[n.ID] = true
					order = append(order, n.ID)
				}
			}
		}
	}
	return order
}

func (r *run) requestCancel() {
	r.mu.Lock()
	r.cancelled = true
	r.mu.Unlock()
	r.cancel()
}

func (r *run) snapshot() *RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	statuses := make(map[string]Status, len(r.statuses))
	for id, s := range r.statuses {
		statuses[id] = s
	}
	path := make([]string, len(r.path))
	copy(path, r.path)
	return &RunSnapshot{
		RunID:         r.id,
		Statuses:      statuses,
		ExecutionPath: path,
		StartedAt:     r.started,
	}
}

// execute drives the run to completion and assembles the report.
func (r *run) execute(ctx context.Context) *Report {
	r.seedInputs(ctx)
	r.dispatchReady(ctx)

	for {
		if r.allTerminal() {
			break
		}
		if r.isCancelled() {
			if r.inFlightCount() == 0 {
				break
			}
			c := <-r.completions
			r.handleCompletion(c)
			continue
		}
		if r.inFlightCount() == 0 {
			// No work in flight and nothing terminal left to wait for.
			break
		}
		select {
		case c := <-r.completions:
			r.handleCompletion(c)
			r.dispatchReady(ctx)
		case <-ctx.Done():
			r.mu.Lock()
			r.cancelled = true
			r.mu.Unlock()
		}
	}
	return r.finalize()
}

// seedInputs executes input-typed source nodes synchronously before
// scheduling so their outputs are in the table for every consumer,
// including nodes with no edge from them.
func (r *run) seedInputs(ctx context.Context) {
	for _, id := range r.order {
		node := r.wf.NodeByID(id)
		if node.Type != "input" || len(r.wf.Incoming(id)) > 0 {
			continue
		}
		fn, _, ok := r.engine.registry.Lookup(node.Type)
		if !ok {
			r.failNode(node, Errorf(KindUnknownNodeType, "no handler registered for type %q", node.Type), 0, nil)
			continue
		}

		asm, snap := r.assembleLocked(node)
		start := time.Now()
		value, err := fn(ctx, r.nodeContext(node, asm, snap))
		if err != nil {
			r.failNode(node, err, time.Since(start), asm.Warnings)
			continue
		}
		r.completeNode(node, value, time.Since(start), asm.Warnings)
	}
}

// dispatchReady sweeps for pending nodes whose incoming edges are all
// resolved, starting the runnable ones and skipping the dead ones, until a
// fixpoint is reached.
func (r *run) dispatchReady(ctx context.Context) {
	for changed := true; changed; {
		changed = false
		for _, id := range r.order {
			if r.status(id) != StatusPending {
				continue
			}
			resolved, anySatisfied, allConditionDead := r.edgeSummary(id)
			if !resolved {
				continue
			}
			if anySatisfied {
				if r.isCancelled() {
					continue
				}
				r.startNode(ctx, r.wf.NodeByID(id))
				changed = true
				continue
			}
			reason := SkipUpstreamFailed
			if allConditionDead {
				reason = SkipConditionSkipped
			}
			r.skipNode(r.wf.NodeByID(id), reason)
			changed = true
		}
	}
}

// edgeSummary reports whether all incoming edges of a node are resolved,
// whether any is satisfied, and whether every dead edge died to an unchosen
// condition branch. A node without incoming edges counts as satisfied.
func (r *run) edgeSummary(nodeID string) (resolved, anySatisfied, allConditionDead bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	resolved = true
	anySatisfied = true
	allConditionDead = true
	hasEdges := false
	for i, e := range r.wf.Edges {
		if e.Target != nodeID {
			continue
		}
		if !hasEdges {
			hasEdges = true
			anySatisfied = false
		}
		st := r.edges[i]
		if !st.resolved {
			resolved = false
			continue
		}
		if st.satisfied {
			anySatisfied = true
		} else if st.deadReason != SkipConditionSkipped {
			allConditionDead = false
		}
	}
	return resolved, anySatisfied, allConditionDead
}

// startNode assembles inputs on the coordinator goroutine, then runs the
// handler on its own goroutine under the kind's timeout policy.
func (r *run) startNode(ctx context.Context, node *workflow.Node) {
	fn, kind, ok := r.engine.registry.Lookup(node.Type)
	if !ok {
		r.failNode(node, Errorf(KindUnknownNodeType, "no handler registered for type %q", node.Type), 0, nil)
		return
	}

	asm, snap := r.assembleLocked(node)
	nc := r.nodeContext(node, asm, snap)

	r.mu.Lock()
	r.statuses[node.ID] = StatusRunning
	r.inFlight++
	r.mu.Unlock()

	r.engine.logger.Debug("node started", "run_id", r.id, "node_id", node.ID, "type", node.Type)

	go func() {
		start := time.Now()
		var value interface{}
		err := func() error {
			nodeCtx := ctx
			var cancelTimeout context.CancelFunc
			switch kind {
			case KindIntegration:
				nodeCtx, cancelTimeout = context.WithTimeout(ctx, r.engine.integrationTimeout)
			case KindAI:
				nodeCtx, cancelTimeout = context.WithTimeout(ctx, r.engine.aiTimeout)
			}
			if cancelTimeout != nil {
				defer cancelTimeout()
			}

			if kind == KindBuiltin {
				if err := r.sem.Acquire(nodeCtx, 1); err != nil {
					return WrapError(KindCancelled, err, "run cancelled before node %s started", node.ID)
				}
				defer r.sem.Release(1)
			}

			v, err := fn(nodeCtx, nc)
			if err != nil {
				if nodeCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
					return WrapError(KindTimeout, err, "node %s exceeded its %s deadline", node.ID, kindName(kind))
				}
				if ctx.Err() != nil {
					return WrapError(KindCancelled, err, "run cancelled while node %s was executing", node.ID)
				}
				return err
			}
			value = v
			return nil
		}()
		r.completions <- completion{
			nodeID:   node.ID,
			value:    value,
			err:      err,
			warnings: asm.Warnings,
			duration: time.Since(start),
		}
	}()
}

func kindName(kind HandlerKind) string {
	switch kind {
	case KindIntegration:
		return "integration"
	case KindAI:
		return "ai"
	default:
		return "builtin"
	}
}

func (r *run) handleCompletion(c completion) {
	r.mu.Lock()
	r.inFlight--
	r.mu.Unlock()

	node := r.wf.NodeByID(c.nodeID)
	if c.err != nil {
		r.failNode(node, c.err, c.duration, c.warnings)
		return
	}
	r.completeNode(node, c.value, c.duration, c.warnings)
}

// completeNode normalizes and publishes a successful result, then routes the
// node's outgoing edges.
func (r *run) completeNode(node *workflow.Node, value interface{}, duration time.Duration, warnings []resolver.Warning) {
	name := displayName(node)
	if name == "" {
		name = node.ID
	}
	out := Normalize(value, NormalizeMeta{NodeType: node.Type, NodeName: name})
	result := NodeResult{
		Status:        StatusCompleted,
		ExecutionTime: duration.Seconds(),
		Warnings:      warnings,
	}

	r.mu.Lock()
	r.outputs[node.ID] = out
	r.statuses[node.ID] = StatusCompleted
	r.results[node.ID] = result
	r.path = append(r.path, node.ID)
	r.mu.Unlock()

	r.engine.logger.Debug("node completed", "run_id", r.id, "node_id", node.ID, "execution_time", duration.Seconds())
	if r.engine.observer != nil {
		r.engine.observer(r.id, node.ID, result)
	}
	r.routeEdges(node, out)
}

func (r *run) failNode(node *workflow.Node, err error, duration time.Duration, warnings []resolver.Warning) {
	result := NodeResult{
		Status:        StatusFailed,
		ExecutionTime: duration.Seconds(),
		Error:         errorInfo(err),
		Warnings:      warnings,
	}

	r.mu.Lock()
	r.statuses[node.ID] = StatusFailed
	r.results[node.ID] = result
	r.mu.Unlock()

	r.engine.logger.Warn("node failed", "run_id", r.id, "node_id", node.ID, "error", err)
	if r.engine.observer != nil {
		r.engine.observer(r.id, node.ID, result)
	}
	r.deadenEdges(node.ID, SkipUpstreamFailed)
}

func (r *run) skipNode(node *workflow.Node, reason string) {
	r.mu.Lock()
	r.statuses[node.ID] = StatusSkipped
	r.results[node.ID] = NodeResult{Status: StatusSkipped, SkipReason: reason}
	r.mu.Unlock()

	r.engine.logger.Debug("node skipped", "run_id", r.id, "node_id", node.ID, "reason", reason)
	r.deadenEdges(node.ID, reason)
}

// routeEdges resolves a completed node's outgoing edges. Condition nodes
// satisfy only the matched path's handle; every other edge dies as an
// unchosen branch.
func (r *run) routeEdges(node *workflow.Node, out *NodeOutput) {
	matched := ""
	if node.Type == "condition" {
		if v, ok := out.Get("matched_path"); ok {
			matched, _ = v.(string)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.wf.Edges {
		if e.Source != node.ID || r.edges[i].resolved {
			continue
		}
		if node.Type == "condition" {
			taken := matched != "" && (e.SourceHandle == matched || e.SourceHandle == "")
			if taken {
				r.edges[i] = edgeState{resolved: true, satisfied: true}
			} else {
				r.edges[i] = edgeState{resolved: true, deadReason: SkipConditionSkipped}
			}
			continue
		}
		r.edges[i] = edgeState{resolved: true, satisfied: true}
	}
}

func (r *run) deadenEdges(nodeID, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.wf.Edges {
		if e.Source == nodeID && !r.edges[i].resolved {
			r.edges[i] = edgeState{resolved: true, deadReason: reason}
		}
	}
}

// assembleLocked builds a node's assembly against a consistent snapshot of
// the output table.
func (r *run) assembleLocked(node *workflow.Node) (*assembly, Snapshot) {
	r.mu.Lock()
	snap := make(Snapshot, len(r.outputs))
	for id, out := range r.outputs {
		snap[id] = out
	}
	live := make([]workflow.Edge, 0, 4)
	for i, e := range r.wf.Edges {
		if e.Target == node.ID && r.edges[i].satisfied {
			live = append(live, e)
		}
	}
	r.mu.Unlock()

	return assemble(node, live, snap, r.inputs), snap
}

func (r *run) nodeContext(node *workflow.Node, asm *assembly, snap Snapshot) *NodeContext {
	name := displayName(node)
	if name == "" {
		name = node.ID
	}
	return &NodeContext{
		RunID:    r.id,
		NodeID:   node.ID,
		NodeType: node.Type,
		NodeName: name,
		Params:   asm.Params,
		Inputs:   asm.Inputs,
		Outputs:  snap,
		Memory:   r.memory,
		Logger:   r.engine.logger,
		Now:      r.engine.now,
	}
}

func (r *run) status(nodeID string) Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statuses[nodeID]
}

func (r *run) allTerminal() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.statuses {
		if !s.Terminal() {
			return false
		}
	}
	return true
}

func (r *run) isCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

func (r *run) inFlightCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inFlight
}

// finalize computes the overall run status and assembles the report.
// Branches skipped by an unchosen condition path do not count against a
// completed run; branches skipped by upstream failure do.
func (r *run) finalize() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	anyFailed := false
	anyUpstreamSkip := false
	allTerminal := true
	for id, s := range r.statuses {
		switch s {
		case StatusFailed:
			anyFailed = true
		case StatusSkipped:
			if r.results[id].SkipReason == SkipUpstreamFailed {
				anyUpstreamSkip = true
			}
		case StatusCompleted:
		default:
			allTerminal = false
		}
	}

	terminalCompleted := false
	for _, n := range r.wf.Nodes {
		if len(r.wf.Outgoing(n.ID)) == 0 && r.statuses[n.ID] == StatusCompleted {
			terminalCompleted = true
			break
		}
	}

	var status RunStatus
	switch {
	case r.cancelled:
		status = RunCancelled
	case allTerminal && !anyFailed && !anyUpstreamSkip:
		status = RunCompleted
	case terminalCompleted:
		status = RunPartial
	default:
		status = RunFailed
	}

	results := make(map[string]NodeResult, len(r.statuses))
	for id, s := range r.statuses {
		if res, ok := r.results[id]; ok {
			results[id] = res
		} else {
			results[id] = NodeResult{Status: s}
		}
	}
	outputs := make(map[string]*NodeOutput, len(r.outputs))
	for id, out := range r.outputs {
		outputs[id] = out
	}
	path := make([]string, len(r.path))
	copy(path, r.path)

	return &Report{
		RunID:         r.id,
		Status:        status,
		Outputs:       outputs,
		NodeResults:   results,
		ExecutionPath: path,
		ExecutionTime: r.engine.now().Sub(r.started).Seconds(),
	}
}
