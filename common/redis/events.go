package redis

import (
	"context"
	"fmt"
	"time"
)

// RunEvent is published to run subscribers as a workflow progresses.
type RunEvent struct {
	RunID      string      `json:"run_id"`
	WorkflowID string      `json:"workflow_id,omitempty"`
	NodeID     string      `json:"node_id,omitempty"`
	Type       string      `json:"type"` // run_started|node_completed|node_failed|run_finished
	Status     string      `json:"status,omitempty"`
	Error      string      `json:"error,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	Payload    interface{} `json:"payload,omitempty"`
}

// EventPublisher publishes run lifecycle events and caches finished run
// reports for later retrieval.
type EventPublisher struct {
	client    *Client
	logger    Logger
	reportTTL time.Duration
}

// NewEventPublisher creates an event publisher
func NewEventPublisher(client *Client, logger Logger, reportTTL time.Duration) *EventPublisher {
	return &EventPublisher{
		client:    client,
		logger:    logger,
		reportTTL: reportTTL,
	}
}

func runChannel(runID string) string { return "flowrunner:runs:" + runID }
func reportKey(runID string) string  { return "flowrunner:reports:" + runID }

// PublishRunStarted announces a new run
func (p *EventPublisher) PublishRunStarted(ctx context.Context, runID, workflowID string) {
	p.publish(ctx, RunEvent{
		RunID:      runID,
		WorkflowID: workflowID,
		Type:       "run_started",
		Timestamp:  time.Now().UTC(),
	})
}

// PublishNodeCompleted announces one node finishing successfully
func (p *EventPublisher) PublishNodeCompleted(ctx context.Context, runID, nodeID string, executionTime float64) {
	p.publish(ctx, RunEvent{
		RunID:     runID,
		NodeID:    nodeID,
		Type:      "node_completed",
		Timestamp: time.Now().UTC(),
		Payload:   map[string]interface{}{"execution_time": executionTime},
	})
}

// PublishNodeFailed announces one node failing
func (p *EventPublisher) PublishNodeFailed(ctx context.Context, runID, nodeID, errMsg string) {
	p.publish(ctx, RunEvent{
		RunID:     runID,
		NodeID:    nodeID,
		Type:      "node_failed",
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	})
}

// PublishRunFinished announces a finished run with its final status
func (p *EventPublisher) PublishRunFinished(ctx context.Context, runID, workflowID, status string) {
	p.publish(ctx, RunEvent{
		RunID:      runID,
		WorkflowID: workflowID,
		Type:       "run_finished",
		Status:     status,
		Timestamp:  time.Now().UTC(),
	})
}

func (p *EventPublisher) publish(ctx context.Context, ev RunEvent) {
	// Event delivery is best effort; a run never fails because Redis is down.
	if err := p.client.Publish(ctx, runChannel(ev.RunID), ev); err != nil {
		p.logger.Warn("run event publish failed", "run_id", ev.RunID, "type", ev.Type, "error", err)
	}
}

// CacheReport stores a finished run report under its run id
func (p *EventPublisher) CacheReport(ctx context.Context, runID, reportJSON string) error {
	if err := p.client.SetWithExpiry(ctx, reportKey(runID), reportJSON, p.reportTTL); err != nil {
		return fmt.Errorf("cache report for run %s: %w", runID, err)
	}
	return nil
}

// CachedReport fetches a previously cached run report
func (p *EventPublisher) CachedReport(ctx context.Context, runID string) (string, error) {
	return p.client.Get(ctx, reportKey(runID))
}
