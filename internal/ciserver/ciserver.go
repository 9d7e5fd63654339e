// Package ciserver implements the gateway to the CI server's agent
// management API (§4.5). Unlike executorclient, a CIServer client is
// safe for concurrent use — the CI server's API serializes internally —
// so Gateway does no per-connection locking of its own.
package ciserver

import (
	"context"
	"fmt"
)

// ConfigState is the configured (as opposed to observed) enablement of a
// CI agent registration (§3 CIAgentInfo).
type ConfigState string

const (
	ConfigEnabled  ConfigState = "enabled"
	ConfigDisabled ConfigState = "disabled"
)

// AgentState is the CI server's live observation of a registered agent
// (§3 CIAgentInfo).
type AgentState string

const (
	AgentIdle        AgentState = "idle"
	AgentBuilding    AgentState = "building"
	AgentMissing     AgentState = "missing"
	AgentLostContact AgentState = "lost_contact"
	AgentDisabled    AgentState = "disabled"
)

// AgentInfo is what the CI server reports about a registered agent,
// keyed by the same identifier the scheduler uses (§3 CIAgentInfo).
type AgentInfo struct {
	ID          string
	ConfigState ConfigState
	AgentState  AgentState
}

// Registered reports whether the CI server still considers this agent a
// live registration the scheduler can act on (§3 "registered" derived
// field): enabled in config, and not missing or out of contact.
func (a AgentInfo) Registered() bool {
	return a.ConfigState == ConfigEnabled && a.AgentState != AgentMissing && a.AgentState != AgentLostContact
}

// Building reports whether the CI server currently has this agent
// running a job (§4.7 retiring/draining branches).
func (a AgentInfo) Building() bool {
	return a.AgentState == AgentBuilding
}

// ServerInfo is the CI server's self-reported identity, as returned by
// GetServerInfo.
type ServerInfo struct {
	Version string
}

// Code classifies a CIServerError for business logic, mirroring the
// executorclient gateway's typed-error design (§7, §9).
type Code int

const (
	CodeUnknown Code = iota
	CodeNotFound
	CodeUnavailable
	CodeForbidden
)

// CIServerError is the typed error every Gateway method returns on
// failure.
type CIServerError struct {
	Code     Code
	Messages []string
}

func (e *CIServerError) Error() string {
	if len(e.Messages) == 0 {
		return "ciserver: unknown error"
	}
	msg := e.Messages[0]
	for _, m := range e.Messages[1:] {
		msg += "; " + m
	}
	return fmt.Sprintf("ciserver: %s", msg)
}

// API is the CI server gateway interface business logic depends on
// (§4.5, §6 server-ping / *-status-report RPCs).
type API interface {
	GetServerInfo(ctx context.Context) (ServerInfo, error)
	ListAgents(ctx context.Context) ([]AgentInfo, error)
	DisableAgents(ctx context.Context, ids []string) error
	DeleteAgents(ctx context.Context, ids []string) error
}

// Transport performs the actual RPC against the CI server. Supplied by
// the adapter layer (§1 out of scope: the plugin transport framing).
type Transport interface {
	GetServerInfo(ctx context.Context) (ServerInfo, error)
	ListAgents(ctx context.Context) ([]AgentInfo, error)
	DisableAgents(ctx context.Context, ids []string) error
	DeleteAgents(ctx context.Context, ids []string) error
}

// Gateway adapts a Transport to API, translating transport failures into
// CIServerError so callers never see a raw transport error.
type Gateway struct {
	transport Transport
}

// New constructs a Gateway over transport.
func New(transport Transport) *Gateway {
	return &Gateway{transport: transport}
}

func (g *Gateway) GetServerInfo(ctx context.Context) (ServerInfo, error) {
	info, err := g.transport.GetServerInfo(ctx)
	if err != nil {
		return ServerInfo{}, wrap(err)
	}
	return info, nil
}

func (g *Gateway) ListAgents(ctx context.Context) ([]AgentInfo, error) {
	agents, err := g.transport.ListAgents(ctx)
	if err != nil {
		return nil, wrap(err)
	}
	return agents, nil
}

func (g *Gateway) DisableAgents(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := g.transport.DisableAgents(ctx, ids); err != nil {
		return wrap(err)
	}
	return nil
}

func (g *Gateway) DeleteAgents(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := g.transport.DeleteAgents(ctx, ids); err != nil {
		return wrap(err)
	}
	return nil
}

func wrap(err error) error {
	if ciErr, ok := err.(*CIServerError); ok {
		return ciErr
	}
	return &CIServerError{Code: CodeUnavailable, Messages: []string{err.Error()}}
}
