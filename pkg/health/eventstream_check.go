// Package health provides health check implementations for the daemon's
// admin API.
package health

import (
	"context"
	"fmt"
)

// Check represents a health check.
type Check interface {
	// Name returns the name of the health check.
	Name() string
	// Check performs the health check and returns an error if unhealthy.
	Check(ctx context.Context) error
}

// Status represents the status of a health check.
type Status string

const (
	// StatusHealthy indicates the component is healthy.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy indicates the component is unhealthy.
	StatusUnhealthy Status = "unhealthy"
	// StatusDegraded indicates the component is working but degraded.
	StatusDegraded Status = "degraded"
)

// Result represents the result of a health check.
type Result struct {
	Name    string            `json:"name"`
	Status  Status            `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// EventStreamHub defines the interface for event stream hub health checks.
type EventStreamHub interface {
	// IsHealthy returns true if the hub's event loop is running.
	IsHealthy() bool
	// ConnectionCount returns the number of active operator connections.
	ConnectionCount() int
}

// EventStreamCheck checks the health of the event stream hub.
type EventStreamCheck struct {
	hub                     EventStreamHub
	maxConnectionsThreshold int
}

// EventStreamCheckOption configures an EventStreamCheck.
type EventStreamCheckOption func(*EventStreamCheck)

// WithMaxConnectionsThreshold sets the threshold above which the check reports degraded status.
func WithMaxConnectionsThreshold(threshold int) EventStreamCheckOption {
	return func(c *EventStreamCheck) {
		c.maxConnectionsThreshold = threshold
	}
}

// NewEventStreamCheck creates a new event stream health check.
func NewEventStreamCheck(hub EventStreamHub, opts ...EventStreamCheckOption) *EventStreamCheck {
	c := &EventStreamCheck{
		hub:                     hub,
		maxConnectionsThreshold: 10000, // Default: warn if > 10k connections
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the name of the health check.
func (c *EventStreamCheck) Name() string {
	return "eventstream"
}

// Check performs the event stream health check.
func (c *EventStreamCheck) Check(ctx context.Context) error {
	if !c.hub.IsHealthy() {
		return fmt.Errorf("event stream hub is not running")
	}
	return nil
}

// CheckDetailed performs a detailed health check and returns a Result.
func (c *EventStreamCheck) CheckDetailed(ctx context.Context) Result {
	if !c.hub.IsHealthy() {
		return Result{
			Name:    c.Name(),
			Status:  StatusUnhealthy,
			Message: "event stream hub is not running",
		}
	}

	connCount := c.hub.ConnectionCount()
	details := map[string]string{
		"connections": fmt.Sprintf("%d", connCount),
	}

	if c.maxConnectionsThreshold > 0 && connCount > c.maxConnectionsThreshold {
		return Result{
			Name:    c.Name(),
			Status:  StatusDegraded,
			Message: fmt.Sprintf("high connection count: %d", connCount),
			Details: details,
		}
	}

	return Result{
		Name:    c.Name(),
		Status:  StatusHealthy,
		Message: "event stream hub is running",
		Details: details,
	}
}
