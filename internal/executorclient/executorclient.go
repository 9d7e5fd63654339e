// Package executorclient implements the gateway to the job executor
// (§4.4). A single executor connection is NOT safe for concurrent use —
// the underlying client serializes requests per connection — so this
// package caches one connection per cluster URL and gives each caller
// exclusive access to it for the duration of a call.
package executorclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/riverci/elasticagent/internal/resources"
)

// JobSpec describes a job to create on the executor (§6 bootstrap
// payload feeds into this at a higher level; this is the executor-facing
// shape).
type JobSpec struct {
	Role      string
	Name      string
	Resources resources.Vector
	Payload   []byte
}

// JobSummary is what the executor reports back about a running job,
// keyed by the agent identifier it was launched for (§3
// ExecutorJobSummary). Pending and Active are mutually exclusive phases
// of the same job: Pending while the executor has accepted the job but
// not yet started its task, Active once the task is running.
type JobSummary struct {
	Name      string
	Role      string
	Pending   bool
	Active    bool
	StartedAt int64
}

// TaskEvent is one entry of a job's task history, as returned by
// GetTaskHistory.
type TaskEvent struct {
	Status  string
	Message string
}

// Code classifies an ExecutorError the way business logic needs to react
// to it, so callers never inspect a raw response code directly (§9
// re-architecture note, §7).
type Code int

const (
	CodeUnknown Code = iota
	CodeNotFound
	CodeUnavailable
	CodeRejected
)

// ExecutorError is the typed error every Client method returns on
// failure (§7).
type ExecutorError struct {
	Code     Code
	Cluster  string
	Messages []string
}

func (e *ExecutorError) Error() string {
	return fmt.Sprintf("executor[%s]: %s", e.Cluster, joinMessages(e.Messages))
}

func joinMessages(msgs []string) string {
	switch len(msgs) {
	case 0:
		return "unknown error"
	case 1:
		return msgs[0]
	default:
		out := msgs[0]
		for _, m := range msgs[1:] {
			out += "; " + m
		}
		return out
	}
}

// Client is the executor gateway interface business logic depends on
// (§4.4). Implementations are not required to be safe for concurrent use;
// callers go through Gateway, which serializes per cluster.
type Client interface {
	ListJobs(ctx context.Context, cluster string) ([]JobSummary, error)
	GetQuota(ctx context.Context, cluster, role string) (resources.Quota, error)
	CreateJob(ctx context.Context, cluster string, spec JobSpec) error
	KillTasks(ctx context.Context, cluster string, names []string) error
	GetTaskHistory(ctx context.Context, cluster, name string) ([]TaskEvent, error)
}

// Dialer creates a fresh, unconnected Client for a cluster's executor
// URL. Supplied by the adapter layer (§1 out of scope: the actual
// Thrift/JSON-over-HTTP transport).
type Dialer func(ctx context.Context, url string) (Client, error)

// connEntry pairs a cached connection with the exclusive lock callers
// must hold while using it.
type connEntry struct {
	mu     sync.Mutex
	client Client
}

// Gateway caches one connection per cluster executor URL and exposes the
// same method set as Client, serializing calls per URL (§4.4 "connection
// cache keyed by URL", "per-connection exclusive lock").
type Gateway struct {
	dial   Dialer
	logger *slog.Logger

	mu    sync.Mutex
	byURL map[string]*connEntry
}

// New constructs a Gateway. logger defaults to slog.Default() when nil.
func New(dial Dialer, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		dial:   dial,
		logger: logger.With("component", "executorclient"),
		byURL:  make(map[string]*connEntry),
	}
}

// ensure returns the cached connEntry for url, dialing a fresh one if
// absent.
func (g *Gateway) ensure(ctx context.Context, url string) (*connEntry, error) {
	g.mu.Lock()
	entry, ok := g.byURL[url]
	if ok {
		g.mu.Unlock()
		return entry, nil
	}
	g.mu.Unlock()

	client, err := g.dial(ctx, url)
	if err != nil {
		return nil, &ExecutorError{Code: CodeUnavailable, Cluster: url, Messages: []string{err.Error()}}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if entry, ok := g.byURL[url]; ok {
		// another caller raced us; keep the one already installed.
		return entry, nil
	}
	entry = &connEntry{client: client}
	g.byURL[url] = entry
	g.logger.Debug("dialed executor connection", "url", url)
	return entry, nil
}

// Close drops and forgets the cached connection for url, if any, so the
// next call redials (§4.4 "close").
func (g *Gateway) Close(url string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.byURL, url)
}

// dirty drops the cached connection for url so the next call redials
// (§4.4 "on any raised error the caller marks the connection dirty; the
// gateway closes it and reopens on next use").
func (g *Gateway) dirty(url string) {
	g.Close(url)
}

func (g *Gateway) ListJobs(ctx context.Context, url string) ([]JobSummary, error) {
	entry, err := g.ensure(ctx, url)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	jobs, err := entry.client.ListJobs(ctx, url)
	if err != nil {
		g.dirty(url)
	}
	return jobs, err
}

func (g *Gateway) GetQuota(ctx context.Context, url, role string) (resources.Quota, error) {
	entry, err := g.ensure(ctx, url)
	if err != nil {
		return resources.Quota{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	quota, err := entry.client.GetQuota(ctx, url, role)
	if err != nil {
		g.dirty(url)
	}
	return quota, err
}

func (g *Gateway) CreateJob(ctx context.Context, url string, spec JobSpec) error {
	entry, err := g.ensure(ctx, url)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if err := entry.client.CreateJob(ctx, url, spec); err != nil {
		g.dirty(url)
		return err
	}
	return nil
}

func (g *Gateway) KillTasks(ctx context.Context, url string, names []string) error {
	entry, err := g.ensure(ctx, url)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if err := entry.client.KillTasks(ctx, url, names); err != nil {
		g.dirty(url)
		return err
	}
	return nil
}

func (g *Gateway) GetTaskHistory(ctx context.Context, url, name string) ([]TaskEvent, error) {
	entry, err := g.ensure(ctx, url)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	events, err := entry.client.GetTaskHistory(ctx, url, name)
	if err != nil {
		g.dirty(url)
	}
	return events, err
}
