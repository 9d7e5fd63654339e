// Package fixtures loads local YAML stand-ins for the ClusterProfile
// and AgentProfile settings that would otherwise only ever arrive over
// the CI server's plugin RPC (§6). Integration tests and local dev use
// it to seed a daemon without a live CI server to talk to.
package fixtures

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/riverci/elasticagent/internal/pluginapi"
	"github.com/riverci/elasticagent/internal/resources"
)

// Manifest is the top-level shape of a fixtures file.
type Manifest struct {
	Clusters []ClusterFixture `yaml:"clusters"`
}

// ClusterFixture is one cluster's profile plus the agent profiles it
// should be seeded with.
type ClusterFixture struct {
	Cluster     string         `yaml:"cluster"`
	ExecutorURL string         `yaml:"executor_url"`
	CIServerURL string         `yaml:"ci_server_url"`
	Agents      []AgentFixture `yaml:"agents,omitempty"`
}

// AgentFixture is one agent profile to seed within its parent cluster.
type AgentFixture struct {
	Tag   string `yaml:"tag"`
	CPU   string `yaml:"cpu,omitempty"`
	RAM   string `yaml:"ram,omitempty"`
	Disk  string `yaml:"disk,omitempty"`
	Env   string `yaml:"env,omitempty"`
	JobID string `yaml:"job_id,omitempty"`
}

// Load parses a fixtures manifest from path.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixtures file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse parses a fixtures manifest from a reader.
func Parse(r io.Reader) (*Manifest, error) {
	var m Manifest

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	if err := decoder.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode fixtures: %w", err)
	}

	if err := Validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks that every cluster fixture names itself and its
// upstream endpoints, and every agent fixture names a tag.
func Validate(m *Manifest) error {
	var errs []string

	if len(m.Clusters) == 0 {
		errs = append(errs, "at least one cluster is required")
	}

	seen := make(map[string]bool)
	for i, c := range m.Clusters {
		prefix := fmt.Sprintf("clusters[%d]", i)

		if c.Cluster == "" {
			errs = append(errs, prefix+".cluster is required")
		} else if seen[c.Cluster] {
			errs = append(errs, fmt.Sprintf("%s.cluster %q is duplicated", prefix, c.Cluster))
		}
		seen[c.Cluster] = true

		if c.ExecutorURL == "" {
			errs = append(errs, prefix+".executor_url is required")
		}
		if c.CIServerURL == "" {
			errs = append(errs, prefix+".ci_server_url is required")
		}

		for j, a := range c.Agents {
			if a.Tag == "" {
				errs = append(errs, fmt.Sprintf("%s.agents[%d].tag is required", prefix, j))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid fixtures manifest: %v", errs)
	}
	return nil
}

// ClusterProfile converts one fixture to the pluginapi.ClusterProfile
// that a create-agent request carries.
func (c ClusterFixture) ClusterProfile() pluginapi.ClusterProfile {
	return pluginapi.ClusterProfile{
		Cluster:     c.Cluster,
		ExecutorURL: c.ExecutorURL,
		CIServerURL: c.CIServerURL,
	}
}

// AgentProfile converts one agent fixture to the wire shape a real
// create-agent RPC would deliver.
func (a AgentFixture) AgentProfile() pluginapi.AgentProfile {
	return pluginapi.AgentProfile{
		Tag: a.Tag,
		Resources: resources.ProfileFields{
			CPU:  a.CPU,
			RAM:  a.RAM,
			Disk: a.Disk,
		},
	}
}

// CreateAgentRequests expands every agent fixture across every cluster
// fixture into the create-agent requests a CI server issuing them all
// at once would send.
func (m *Manifest) CreateAgentRequests() []pluginapi.CreateAgentRequest {
	var reqs []pluginapi.CreateAgentRequest
	for _, c := range m.Clusters {
		profile := c.ClusterProfile()
		for _, a := range c.Agents {
			reqs = append(reqs, pluginapi.CreateAgentRequest{
				Cluster: profile,
				Profile: a.AgentProfile(),
				Env:     a.Env,
				JobID:   a.JobID,
			})
		}
	}
	return reqs
}
