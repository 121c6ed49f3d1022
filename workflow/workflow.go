package workflow

import (
	"encoding/json"
	"fmt"
)

// Workflow is a directed acyclic graph of typed nodes. It is the unit the
// engine executes and the unit the API stores.
type Workflow struct {
	Nodes    []Node                 `json:"nodes"`
	Edges    []Edge                 `json:"edges"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Node is a vertex in the workflow graph.
type Node struct {
	ID   string   `json:"id"`
	Type string   `json:"type"`
	Data NodeData `json:"data,omitempty"`
}

// NodeData wraps the per-node parameter mapping.
type NodeData struct {
	Params map[string]interface{} `json:"params,omitempty"`
}

// Edge connects a source node to a target node. Handles are optional and
// name the output path on the source / input slot on the target.
type Edge struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty"`
}

// edgeJSON accepts both snake_case and the camelCase handle keys emitted by
// older workflow editors.
type edgeJSON struct {
	Source          string `json:"source"`
	Target          string `json:"target"`
	SourceHandle    string `json:"source_handle"`
	TargetHandle    string `json:"target_handle"`
	SourceHandleAlt string `json:"sourceHandle"`
	TargetHandleAlt string `json:"targetHandle"`
}

func (e *Edge) UnmarshalJSON(data []byte) error {
	var raw edgeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Source = raw.Source
	e.Target = raw.Target
	e.SourceHandle = raw.SourceHandle
	if e.SourceHandle == "" {
		e.SourceHandle = raw.SourceHandleAlt
	}
	e.TargetHandle = raw.TargetHandle
	if e.TargetHandle == "" {
		e.TargetHandle = raw.TargetHandleAlt
	}
	return nil
}

// Parse decodes a workflow document and validates its structure.
func Parse(data []byte) (*Workflow, error) {
	var wf Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("failed to decode workflow document: %w", err)
	}
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return &wf, nil
}

// Params returns the node's parameter mapping, never nil.
func (n *Node) Params() map[string]interface{} {
	if n.Data.Params == nil {
		return map[string]interface{}{}
	}
	return n.Data.Params
}

// StringParam returns a string parameter or the fallback when absent or not
// a string.
func (n *Node) StringParam(key, fallback string) string {
	if v, ok := n.Data.Params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}

// NodeByID returns the node with the given id, or nil.
func (w *Workflow) NodeByID(id string) *Node {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i]
		}
	}
	return nil
}

// Incoming returns the edges targeting the given node, in declaration order.
func (w *Workflow) Incoming(nodeID string) []Edge {
	var edges []Edge
	for _, e := range w.Edges {
		if e.Target == nodeID {
			edges = append(edges, e)
		}
	}
	return edges
}

// Outgoing returns the edges leaving the given node, in declaration order.
func (w *Workflow) Outgoing(nodeID string) []Edge {
	var edges []Edge
	for _, e := range w.Edges {
		if e.Source == nodeID {
			edges = append(edges, e)
		}
	}
	return edges
}

// Validate checks structural correctness: unique node ids, edges referencing
// known nodes, and acyclicity. Duplicate edges are permitted; the engine
// collapses them to a single dependency.
func (w *Workflow) Validate() error {
	seen := make(map[string]bool, len(w.Nodes))
	for _, n := range w.Nodes {
		if n.ID == "" {
			return fmt.Errorf("node with empty id")
		}
		if n.Type == "" {
			return fmt.Errorf("node %s has no type", n.ID)
		}
		if seen[n.ID] {
			return fmt.Errorf("duplicate node id: %s", n.ID)
		}
		seen[n.ID] = true
	}

	adjacency := make(map[string][]string, len(w.Nodes))
	for _, e := range w.Edges {
		if !seen[e.Source] {
			return fmt.Errorf("edge references non-existent node: %s", e.Source)
		}
		if !seen[e.Target] {
			return fmt.Errorf("edge references non-existent node: %s", e.Target)
		}
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
	}

	// DFS-based cycle detection.
	visited := make(map[string]bool, len(w.Nodes))
	recStack := make(map[string]bool, len(w.Nodes))

	var hasCycle func(nodeID string) bool
	hasCycle = func(nodeID string) bool {
		visited[nodeID] = true
		recStack[nodeID] = true
		for _, next := range adjacency[nodeID] {
			if !visited[next] {
				if hasCycle(next) {
					return true
				}
			} else if recStack[next] {
				return true
			}
		}
		recStack[nodeID] = false
		return false
	}

	for _, n := range w.Nodes {
		if !visited[n.ID] {
			if hasCycle(n.ID) {
				return fmt.Errorf("workflow contains a cycle through node %s", n.ID)
			}
		}
	}
	return nil
}
