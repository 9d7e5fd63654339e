// Package pluginapi is the single dispatch point for every CI server
// plugin RPC (§6). It mirrors the shape the original plugin's entry
// point used: one handler taking a request name and delegating to a
// pure function, rather than scattering request-name checks across the
// codebase (§9, grounded on original_source's GoPlugin.handle()). No
// method here touches the store directly — each calls into
// internal/store, internal/admission or internal/statemachine, exactly
// as those packages already expose for other callers.
package pluginapi

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/riverci/elasticagent/internal/admission"
	"github.com/riverci/elasticagent/internal/agentid"
	"github.com/riverci/elasticagent/internal/bootstrap"
	"github.com/riverci/elasticagent/internal/effect"
	"github.com/riverci/elasticagent/internal/executorclient"
	"github.com/riverci/elasticagent/internal/record"
	"github.com/riverci/elasticagent/internal/resources"
	"github.com/riverci/elasticagent/internal/store"
)

// Request names, matching the GoCD elastic agent extension's RPC
// catalogue (§6).
const (
	RequestGetIcon                    = "cd.go.elastic-agent.get-icon"
	RequestGetCapabilities            = "cd.go.elastic-agent.get-capabilities"
	RequestMigrateConfig              = "cd.go.elastic-agent.migrate-config"
	RequestGetClusterProfileMetadata  = "cd.go.elastic-agent.get-cluster-profile-metadata"
	RequestGetAgentProfileMetadata    = "cd.go.elastic-agent.get-elastic-agent-profile-metadata"
	RequestValidateClusterProfile     = "cd.go.elastic-agent.validate-cluster-profile"
	RequestValidateAgentProfile       = "cd.go.elastic-agent.validate-elastic-agent-profile"
	RequestServerPing                 = "cd.go.elastic-agent.server-ping"
	RequestShouldAssignWork           = "cd.go.elastic-agent.should-assign-work"
	RequestCreateAgent                = "cd.go.elastic-agent.create-agent"
	RequestJobCompletion              = "cd.go.elastic-agent.job-completion"
	RequestAgentStatusReport          = "cd.go.elastic-agent.agent-status-report"
	RequestClusterStatusReport        = "cd.go.elastic-agent.cluster-status-report"
)

// MetadataField describes one configurable setting exposed to the CI
// server's profile editor (§6 get-*-profile-metadata).
type MetadataField struct {
	Key      string
	Required bool
	Secure   bool
}

// ValidationError is one field-level complaint returned by a
// validate-*-profile call.
type ValidationError struct {
	Key     string
	Message string
}

// ClusterProfile is the settings map the CI server supplies for a
// cluster (§3).
type ClusterProfile struct {
	Cluster     string
	ExecutorURL string
	CIServerURL string
}

// AgentProfile is the settings map the CI server supplies for an elastic
// agent profile (§3).
type AgentProfile struct {
	Tag       string
	Resources resources.ProfileFields
}

// CreateAgentRequest is the payload of a create-agent RPC (§6).
type CreateAgentRequest struct {
	Cluster ClusterProfile
	Profile AgentProfile
	Env     string
	JobID   string
}

// StatusReport is a freeform human-readable report rendered for the
// *-status-report RPCs; the CI server wraps it in its own HTML shell.
type StatusReport struct {
	Lines []string
}

// Dispatcher is the narrow interface pluginapi needs to submit the
// createExecutorJob effect that requestNewAgent issues directly (§4.8:
// "createExecutorJob is the only effect initiated directly by
// requestNewAgent, outside the ping loop").
type Dispatcher interface {
	Submit(ctx context.Context, eff effect.Effect)
}

// Config carries this plugin's own bootstrap settings (§6), fed into
// every launching agent's bootstrap payload — as opposed to the
// per-cluster ClusterProfile/AgentProfile settings the CI server
// supplies over the RPC.
type Config struct {
	AutoRegisterKey string
	PluginID        string
	InstallerURL    string
}

// Server implements every plugin RPC (§6). It holds no state of its own
// beyond references to the store and the admission decisions; reconcile
// and dispatcher own every other side effect, but CreateAgent issues its
// own createExecutorJob effect directly (§4.8).
type Server struct {
	store       *store.Store
	dispatcher  Dispatcher
	cfg         Config
	now         func() time.Time
	newEffectID func() string
}

// New constructs a Server. now defaults to time.Now when nil, overridable
// in tests.
func New(st *store.Store, disp Dispatcher, cfg Config, now func() time.Time) *Server {
	if now == nil {
		now = time.Now
	}
	return &Server{
		store:       st,
		dispatcher:  disp,
		cfg:         cfg,
		now:         now,
		newEffectID: func() string { return uuid.NewString() },
	}
}

// Dispatch routes one plugin RPC by name to its handler (§6, §9).
// req must be the concrete request type each RPC documents below; an
// unrecognized name returns an error rather than panicking, matching the
// state machine's unknown-state discipline (§4.7).
func (s *Server) Dispatch(ctx context.Context, name string, req any) (any, error) {
	switch name {
	case RequestGetIcon:
		return s.GetIcon(), nil
	case RequestGetCapabilities:
		return s.GetCapabilities(), nil
	case RequestMigrateConfig:
		settings, _ := req.(map[string]string)
		return s.MigrateConfig(settings), nil
	case RequestGetClusterProfileMetadata:
		return s.GetClusterProfileMetadata(), nil
	case RequestGetAgentProfileMetadata:
		return s.GetAgentProfileMetadata(), nil
	case RequestValidateClusterProfile:
		settings, _ := req.(map[string]string)
		return s.ValidateClusterProfile(settings), nil
	case RequestValidateAgentProfile:
		settings, _ := req.(map[string]string)
		return s.ValidateAgentProfile(settings), nil
	case RequestShouldAssignWork:
		r, ok := req.(ShouldAssignWorkRequest)
		if !ok {
			return nil, fmt.Errorf("pluginapi: %s requires a ShouldAssignWorkRequest", name)
		}
		return s.ShouldAssignWork(r), nil
	case RequestCreateAgent:
		r, ok := req.(CreateAgentRequest)
		if !ok {
			return nil, fmt.Errorf("pluginapi: %s requires a CreateAgentRequest", name)
		}
		return s.CreateAgent(ctx, r)
	case RequestJobCompletion:
		id, ok := req.(string)
		if !ok {
			return nil, fmt.Errorf("pluginapi: %s requires an agent id", name)
		}
		return nil, s.JobCompletion(ctx, id)
	case RequestAgentStatusReport:
		id, ok := req.(string)
		if !ok {
			return nil, fmt.Errorf("pluginapi: %s requires an agent id", name)
		}
		return s.AgentStatusReport(id), nil
	case RequestClusterStatusReport:
		cluster, ok := req.(string)
		if !ok {
			return nil, fmt.Errorf("pluginapi: %s requires a cluster name", name)
		}
		return s.ClusterStatusReport(cluster), nil
	case RequestServerPing:
		return nil, nil // the reconciliation loop's own ticker drives pings; this RPC is a no-op trigger
	default:
		return nil, fmt.Errorf("pluginapi: unrecognized request %q", name)
	}
}

// GetIcon returns the plugin's icon metadata (§6). A real deployment
// would embed actual image bytes; that asset is not part of this
// scheduler's scope.
func (s *Server) GetIcon() map[string]string {
	return map[string]string{"content_type": "image/svg+xml", "data": ""}
}

// Capability flags the CI server uses to decide which RPCs it's allowed
// to send this plugin (§6).
type Capability struct {
	SupportsStatusReport        bool
	SupportsClusterStatusReport bool
	SupportsAgentStatusReport   bool
}

func (s *Server) GetCapabilities() Capability {
	return Capability{
		SupportsStatusReport:        true,
		SupportsClusterStatusReport: true,
		SupportsAgentStatusReport:   true,
	}
}

// MigrateConfig upgrades an older settings schema to the current one.
// There have been no schema changes yet, so this is the identity
// function; it exists so the RPC has a home when one is eventually
// needed.
func (s *Server) MigrateConfig(settings map[string]string) map[string]string {
	return settings
}

func (s *Server) GetClusterProfileMetadata() []MetadataField {
	return []MetadataField{
		{Key: "go_server_url", Required: true},
		{Key: "executor_url", Required: true},
		{Key: "auto_register_key", Required: true, Secure: true},
	}
}

func (s *Server) GetAgentProfileMetadata() []MetadataField {
	return []MetadataField{
		{Key: "tag", Required: true},
		{Key: "cpu"},
		{Key: "ram"},
		{Key: "disk"},
	}
}

func (s *Server) ValidateClusterProfile(settings map[string]string) []ValidationError {
	var errs []ValidationError
	if settings["go_server_url"] == "" {
		errs = append(errs, ValidationError{Key: "go_server_url", Message: "must not be blank"})
	}
	if settings["executor_url"] == "" {
		errs = append(errs, ValidationError{Key: "executor_url", Message: "must not be blank"})
	}
	return errs
}

func (s *Server) ValidateAgentProfile(settings map[string]string) []ValidationError {
	var errs []ValidationError
	if !agentid.ValidTag(settings["tag"]) {
		errs = append(errs, ValidationError{Key: "tag", Message: "must be lowercase letters only"})
	}
	req := resources.FromProfile(resources.ProfileFields{CPU: settings["cpu"], RAM: settings["ram"], Disk: settings["disk"]})
	if !req.InRange() {
		errs = append(errs, ValidationError{Key: "cpu", Message: "resource request out of range"})
	}
	return errs
}

// ShouldAssignWorkRequest is the payload of a should-assign-work RPC
// (§6): the CI server asks whether a specific agent can take on a
// specific profile's resource request.
type ShouldAssignWorkRequest struct {
	AgentID   string
	Resources resources.ProfileFields
}

func (s *Server) ShouldAssignWork(r ShouldAssignWorkRequest) bool {
	required := resources.FromProfile(r.Resources)
	return admission.ShouldAssignWork(s.store.Snapshot(), r.AgentID, required)
}

// CreateAgent decides whether to launch a new agent for req and, if so,
// allocates its name, installs a fresh Launching record, and issues the
// createExecutorJob effect directly — the only effect requestNewAgent
// emits outside the ping loop (§4.8). Its success dispatches
// {pending, "job created"}; its failure dispatches
// {failed, "create failed: <error type> <error>"}.
func (s *Server) CreateAgent(ctx context.Context, req CreateAgentRequest) (string, error) {
	now := s.now()
	snap := s.store.Snapshot()
	requested := resources.FromProfile(req.Profile.Resources)

	if !admission.ShouldCreateAgent(snap, req.Cluster.Cluster, req.Profile.Tag, req.Env, req.JobID, requested, now) {
		return "", nil
	}

	name := admission.AllocateAgentName(snap, req.Cluster.Cluster, req.Profile.Tag, req.Env, req.Profile.Tag)
	id := agentid.Form(req.Cluster.Cluster, req.Profile.Tag, req.Env, name)

	s.store.SetCluster(req.Cluster.Cluster, store.ClusterState{
		ExecutorURL: req.Cluster.ExecutorURL,
		CIServerURL: req.Cluster.CIServerURL,
	})

	s.store.UpdateAgent(id, func(current record.Record, exists bool) (record.Record, bool) {
		if exists {
			return current, true
		}
		return record.Init(req.Cluster.Cluster, req.Profile.Tag, req.Env, name, req.JobID, requested, now), true
	})

	task := bootstrap.Build(bootstrap.Params{
		InstallerURL:    s.cfg.InstallerURL,
		CIServerURL:     req.Cluster.CIServerURL,
		AutoRegisterKey: s.cfg.AutoRegisterKey,
		Environment:     req.Env,
		AgentID:         id,
		Hostname:        name,
		PluginID:        s.cfg.PluginID,
	})
	// Marshal failures here would mean a bug in bootstrap itself (the
	// payload has no user-controlled structure that could fail to
	// encode), so a nil payload on error is safe: the executor receives
	// an empty bootstrap and the agent fails the way it would for any
	// other launch failure.
	encoded, _ := task.Marshal()

	s.store.MarkInFlight(id)
	s.dispatcher.Submit(ctx, effect.Effect{
		ID:          s.newEffectID(),
		Kind:        effect.CreateExecutorJob,
		AgentID:     id,
		ExecutorURL: req.Cluster.ExecutorURL,
		CIServerURL: req.Cluster.CIServerURL,
		JobSpec: executorclient.JobSpec{
			Role:      req.Profile.Tag,
			Name:      name,
			Resources: requested,
			Payload:   encoded,
		},
		OnSuccess: record.Pending,
		OnFailure: record.Failed,
	})
	return id, nil
}

// JobCompletion marks the agent active on a job-completion report (§6):
// the CI server sends this between jobs, not only when the agent goes
// idle for good, so it must not itself drive retirement — that remains
// entirely the reconciliation loop's ciAgent.agentState observation
// (§4.7 running).
func (s *Server) JobCompletion(ctx context.Context, agentID string) error {
	now := s.now()
	s.store.UpdateAgent(agentID, func(current record.Record, exists bool) (record.Record, bool) {
		if !exists {
			return current, false
		}
		return current.MarkActive(now), true
	})
	return nil
}

func (s *Server) AgentStatusReport(agentID string) StatusReport {
	snap := s.store.Snapshot()
	r, ok := snap.Agents[agentID]
	if !ok {
		return StatusReport{Lines: []string{fmt.Sprintf("no record for %s", agentID)}}
	}
	return StatusReport{Lines: []string{
		fmt.Sprintf("state: %s", r.State),
		fmt.Sprintf("launched for: %s", r.LaunchedFor),
		fmt.Sprintf("retries: %d", r.Retries),
	}}
}

func (s *Server) ClusterStatusReport(cluster string) StatusReport {
	snap := s.store.Snapshot()
	count := 0
	for _, r := range snap.Agents {
		if r.Cluster == cluster {
			count++
		}
	}
	return StatusReport{Lines: []string{fmt.Sprintf("%d agents managed in %s", count, cluster)}}
}
