package health

import (
	"context"
	"testing"
)

type mockEventStreamHub struct {
	healthy   bool
	connCount int
}

func (m *mockEventStreamHub) IsHealthy() bool      { return m.healthy }
func (m *mockEventStreamHub) ConnectionCount() int { return m.connCount }

func TestEventStreamCheck_Name(t *testing.T) {
	hub := &mockEventStreamHub{healthy: true}
	check := NewEventStreamCheck(hub)

	if check.Name() != "eventstream" {
		t.Errorf("expected name 'eventstream', got '%s'", check.Name())
	}
}

func TestEventStreamCheck_Healthy(t *testing.T) {
	hub := &mockEventStreamHub{healthy: true, connCount: 5}
	check := NewEventStreamCheck(hub)

	if err := check.Check(context.Background()); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	result := check.CheckDetailed(context.Background())
	if result.Status != StatusHealthy {
		t.Errorf("expected healthy status, got %s", result.Status)
	}
}

func TestEventStreamCheck_Unhealthy(t *testing.T) {
	hub := &mockEventStreamHub{healthy: false}
	check := NewEventStreamCheck(hub)

	if err := check.Check(context.Background()); err == nil {
		t.Error("expected error for unhealthy hub")
	}

	result := check.CheckDetailed(context.Background())
	if result.Status != StatusUnhealthy {
		t.Errorf("expected unhealthy status, got %s", result.Status)
	}
}

func TestEventStreamCheck_Degraded(t *testing.T) {
	hub := &mockEventStreamHub{healthy: true, connCount: 100}
	check := NewEventStreamCheck(hub, WithMaxConnectionsThreshold(10))

	result := check.CheckDetailed(context.Background())
	if result.Status != StatusDegraded {
		t.Errorf("expected degraded status, got %s", result.Status)
	}
}
