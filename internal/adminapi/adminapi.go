// Package adminapi is the scheduler's operator-facing HTTP API: the
// surface elasticagentctl talks to for agents/clusters/clusters and for
// triggering an out-of-band reconciliation pass. It never mutates
// AgentRecord state itself — the only write path is driving the store
// and reconcile loop that already own that.
package adminapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/riverci/elasticagent/internal/record"
	"github.com/riverci/elasticagent/internal/reconcile"
	"github.com/riverci/elasticagent/internal/resources"
	"github.com/riverci/elasticagent/internal/store"
	applog "github.com/riverci/elasticagent/pkg/log"
	"github.com/riverci/elasticagent/pkg/health"
)

// Handler serves the admin API.
type Handler struct {
	store        *store.Store
	loop         *reconcile.Loop
	logger       applog.Logger
	mux          *http.ServeMux
	healthChecks []health.Check
}

// New builds a Handler. logger defaults to a no-op logger when nil.
// healthChecks are consulted by GET /healthz in addition to the
// always-present liveness check.
func New(st *store.Store, loop *reconcile.Loop, logger applog.Logger, healthChecks ...health.Check) *Handler {
	if logger == nil {
		logger = applog.NewNop()
	}
	h := &Handler{store: st, loop: loop, logger: logger, mux: http.NewServeMux(), healthChecks: healthChecks}
	h.routes()
	return h
}

func (h *Handler) routes() {
	h.mux.HandleFunc("GET /api/v1/agents", h.listAgents)
	h.mux.HandleFunc("GET /api/v1/agents/{id}", h.showAgent)
	h.mux.HandleFunc("GET /api/v1/clusters", h.listClusters)
	h.mux.HandleFunc("POST /api/v1/reconcile", h.reconcileNow)
	h.mux.HandleFunc("GET /healthz", h.healthz)
}

// ServeHTTP lets Handler be mounted directly as an http.Handler, wrapped
// in the request-logging middleware.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	applog.HTTPMiddleware(h.logger)(h.mux).ServeHTTP(w, r)
}

// agentView is the wire shape of one AgentRecord; record.Record carries
// no JSON tags of its own since nothing before this package ever
// serialized it.
type agentView struct {
	ID          string    `json:"id"`
	Cluster     string    `json:"cluster"`
	Role        string    `json:"role"`
	Env         string    `json:"env"`
	State       string    `json:"state"`
	LaunchedFor string    `json:"launched_for"`
	Retries     int       `json:"retries"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	LastActive  time.Time `json:"last_active"`
}

func toAgentView(id string, r record.Record) agentView {
	return agentView{
		ID:          id,
		Cluster:     r.Cluster,
		Role:        r.Role,
		Env:         r.Env,
		State:       string(r.State),
		LaunchedFor: r.LaunchedFor,
		Retries:     r.Retries,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		LastActive:  r.LastActive,
	}
}

type clusterView struct {
	Name        string               `json:"name"`
	ExecutorURL string               `json:"executor_url"`
	CIServerURL string               `json:"ci_server_url"`
	Quota       map[string]quotaView `json:"quota,omitempty"`
}

type quotaView struct {
	Available resources.Vector `json:"available"`
	Usage     resources.Vector `json:"usage"`
}

func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	views := make([]agentView, 0, len(snap.Agents))
	for id, rec := range snap.Agents {
		views = append(views, toAgentView(id, rec))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) showAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	snap := h.store.Snapshot()
	rec, ok := snap.Agents[id]
	if !ok {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toAgentView(id, rec))
}

func (h *Handler) listClusters(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	views := make([]clusterView, 0, len(snap.Clusters))
	for name, cs := range snap.Clusters {
		quota := make(map[string]quotaView, len(cs.Quota))
		for role, q := range cs.Quota {
			quota[role] = quotaView{Available: q.Available, Usage: q.Usage}
		}
		views = append(views, clusterView{
			Name:        name,
			ExecutorURL: cs.ExecutorURL,
			CIServerURL: cs.CIServerURL,
			Quota:       quota,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) reconcileNow(w http.ResponseWriter, r *http.Request) {
	if h.loop == nil {
		http.Error(w, "reconcile loop unavailable", http.StatusServiceUnavailable)
		return
	}
	h.loop.Ping(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	results := make([]health.Result, 0, len(h.healthChecks))
	status := http.StatusOK
	for _, c := range h.healthChecks {
		if err := c.Check(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			results = append(results, health.Result{Name: c.Name(), Status: health.StatusUnhealthy, Message: err.Error()})
			continue
		}
		results = append(results, health.Result{Name: c.Name(), Status: health.StatusHealthy})
	}
	writeJSON(w, status, map[string]any{"status": "ok", "checks": results})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
