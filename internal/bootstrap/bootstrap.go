// Package bootstrap renders the agent bootstrap task (§6): the shell
// scripts the executor runs, in order, to install, configure and start
// a newly launching agent. It is pure rendering — no network calls, no
// file I/O — the rendered Task is handed to the executor as the job
// spec's payload.
package bootstrap

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// AutoregisterProperties are the key/value pairs the configure process
// writes to agent/config/autoregister.properties so the agent can
// register itself with the CI server on first boot (§6).
type AutoregisterProperties struct {
	AgentAutoRegisterKey string
	Hostname             string
	Environment          string
	ElasticAgentID       string
	ElasticPluginID      string
}

// Render produces the Java .properties file content for p.
func (p AutoregisterProperties) Render() string {
	return renderProperties(map[string]string{
		"agent.auto.register.key":                  p.AgentAutoRegisterKey,
		"agent.auto.register.hostname":             p.Hostname,
		"agent.auto.register.environments":         p.Environment,
		"agent.auto.register.elasticAgent.pluginId": p.ElasticPluginID,
		"agent.auto.register.elasticAgent.agentId":  p.ElasticAgentID,
	})
}

// WrapperProperties are the key/value pairs the configure process
// writes to agent/wrapper-config/wrapper-properties.conf (§6).
// wrapper.port is left as the executor's own interpolation template —
// this plugin doesn't know which port it'll be handed until runtime.
type WrapperProperties struct {
	CIServerURL string
}

// Render produces the wrapper-properties.conf fragment for p.
func (p WrapperProperties) Render() string {
	return renderProperties(map[string]string{
		"wrapper.app.parameter.100": "-serverUrl",
		"wrapper.app.parameter.101": p.CIServerURL,
		"wrapper.port":              "{{executor.ports[wrapper]}}",
		"wrapper.jvm.port.min":      "57345",
		"wrapper.jvm.port.max":      "61000",
	})
}

func renderProperties(pairs map[string]string) string {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, pairs[k])
	}
	return b.String()
}

// Process is one step of the bootstrap task. Every process in this task
// shares the same fixed constraints (§6), so they're baked into
// newProcess rather than threaded through as parameters.
type Process struct {
	Name        string `json:"name"`
	Script      string `json:"script"`
	MaxFailures int    `json:"max_failures"`
	Ephemeral   bool   `json:"ephemeral"`
	MinDuration int    `json:"min_duration"`
	Daemon      bool   `json:"daemon"`
	Final       bool   `json:"final"`
}

func newProcess(name, script string) Process {
	return Process{
		Name:        name,
		Script:      script,
		MaxFailures: 1,
		Ephemeral:   false,
		MinDuration: 5,
		Daemon:      false,
		Final:       false,
	}
}

// TaskConstraint orders the task's processes (§6 "a single constraint
// {order: [install, configure, run]}").
type TaskConstraint struct {
	Order []string `json:"order"`
}

// Task is the complete bootstrap task specification the executor runs
// for one agent (§6), carried as the createExecutorJob effect's job
// spec payload.
type Task struct {
	Processes        []Process        `json:"processes"`
	FinalizationWait int              `json:"finalization_wait"`
	MaxFailures      int              `json:"max_failures"`
	MaxConcurrency   int              `json:"max_concurrency"`
	Constraints      []TaskConstraint `json:"constraints"`
}

// Params is everything Build needs to render one agent's bootstrap
// task. AgentID is the full "cluster/role/env/name" wire id (written as
// agentId); Hostname is the short name segment (written as hostname).
type Params struct {
	InstallerURL    string
	CIServerURL     string
	AutoRegisterKey string
	Environment     string
	AgentID         string
	Hostname        string
	PluginID        string
	LogbackXML      string
}

// Build renders p's three ordered processes (§6): install fetches and
// unpacks the agent archive, configure writes its wrapper and
// autoregister properties and materializes the logback config, run
// starts the agent console.
func Build(p Params) Task {
	return Task{
		Processes: []Process{
			newProcess("install", installScript(p.InstallerURL)),
			newProcess("configure", configureScript(p)),
			newProcess("run", runScript()),
		},
		FinalizationWait: 30,
		MaxFailures:      1,
		MaxConcurrency:   0,
		Constraints:      []TaskConstraint{{Order: []string{"install", "configure", "run"}}},
	}
}

func installScript(sourceURL string) string {
	return fmt.Sprintf("set -e; wget -O a.zip %s; unzip a.zip; rm a.zip; mv agent-* agent", sourceURL)
}

func runScript() string {
	return `export PATH="$HOME/bin:$PATH"; agent/bin/agent console`
}

// configureScript writes wrapper-properties.conf and
// autoregister.properties, then base64-materializes the logback config
// and copies it to its two siblings (§6 "logback base64
// materialization... then copies it to two siblings").
func configureScript(p Params) string {
	wrapper := WrapperProperties{CIServerURL: p.CIServerURL}.Render()
	autoregister := AutoregisterProperties{
		AgentAutoRegisterKey: p.AutoRegisterKey,
		Hostname:             p.Hostname,
		Environment:          p.Environment,
		ElasticPluginID:      p.PluginID,
		ElasticAgentID:       p.AgentID,
	}.Render()

	var b strings.Builder
	b.WriteString("set -e\n")
	fmt.Fprintf(&b, "cat > agent/wrapper-config/wrapper-properties.conf <<'EOF'\n%sEOF\n", wrapper)
	fmt.Fprintf(&b, "cat > agent/config/autoregister.properties <<'EOF'\n%sEOF\n", autoregister)
	if p.LogbackXML != "" {
		encoded := base64.StdEncoding.EncodeToString([]byte(p.LogbackXML))
		fmt.Fprintf(&b, "echo '%s' | base64 -d > agent/config/logback-include.xml\n", encoded)
		b.WriteString("cp agent/config/logback-include.xml agent/config/logback-agent.xml\n")
		b.WriteString("cp agent/config/logback-include.xml agent/config/logback-agent-launcher.xml\n")
	}
	return b.String()
}

// Marshal renders t as the JSON job spec payload the executor's
// createJob RPC carries (§6).
func (t Task) Marshal() ([]byte, error) {
	return json.Marshal(t)
}
