package bootstrap

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoregisterPropertiesRenderIncludesAllFiveKeys(t *testing.T) {
	p := AutoregisterProperties{
		AgentAutoRegisterKey: "secret",
		Hostname:             "build-agent-0",
		Environment:          "prod",
		ElasticAgentID:       "aws-dev/build/prod/build-agent-0",
		ElasticPluginID:      "elasticagent.aurora",
	}
	out := p.Render()
	assert.Contains(t, out, "agent.auto.register.key=secret")
	assert.Contains(t, out, "agent.auto.register.hostname=build-agent-0")
	assert.Contains(t, out, "agent.auto.register.environments=prod")
	assert.Contains(t, out, "agent.auto.register.elasticAgent.pluginId=elasticagent.aurora")
	assert.Contains(t, out, "agent.auto.register.elasticAgent.agentId=aws-dev/build/prod/build-agent-0")
}

func TestWrapperPropertiesRenderMatchesFixedKeys(t *testing.T) {
	p := WrapperProperties{CIServerURL: "http://ci"}
	out := p.Render()
	assert.Contains(t, out, "wrapper.app.parameter.100=-serverUrl")
	assert.Contains(t, out, "wrapper.app.parameter.101=http://ci")
	assert.Contains(t, out, "wrapper.port={{executor.ports[wrapper]}}")
	assert.Contains(t, out, "wrapper.jvm.port.min=57345")
	assert.Contains(t, out, "wrapper.jvm.port.max=61000")
}

func TestBuildProducesOrderedInstallConfigureRun(t *testing.T) {
	task := Build(Params{
		InstallerURL:    "http://installer/a.zip",
		CIServerURL:     "http://ci",
		AutoRegisterKey: "secret",
		Environment:     "prod",
		AgentID:         "aws-dev/build/prod/build-agent-0",
		Hostname:        "build-agent-0",
		PluginID:        "elasticagent.scheduler",
	})

	require.Len(t, task.Processes, 3)
	assert.Equal(t, "install", task.Processes[0].Name)
	assert.Equal(t, "configure", task.Processes[1].Name)
	assert.Equal(t, "run", task.Processes[2].Name)

	require.Len(t, task.Constraints, 1)
	assert.Equal(t, []string{"install", "configure", "run"}, task.Constraints[0].Order)
	assert.Equal(t, 30, task.FinalizationWait)
	assert.Equal(t, 1, task.MaxFailures)
	assert.Equal(t, 0, task.MaxConcurrency)

	for _, proc := range task.Processes {
		assert.Equal(t, 1, proc.MaxFailures)
		assert.False(t, proc.Ephemeral)
		assert.Equal(t, 5, proc.MinDuration)
		assert.False(t, proc.Daemon)
		assert.False(t, proc.Final)
	}
}

func TestBuildInstallScriptFetchesFromInstallerURL(t *testing.T) {
	task := Build(Params{InstallerURL: "http://installer/a.zip"})
	script := task.Processes[0].Script
	assert.Contains(t, script, "wget -O a.zip http://installer/a.zip")
	assert.Contains(t, script, "unzip a.zip")
	assert.Contains(t, script, "mv agent-* agent")
}

func TestBuildConfigureScriptWritesBothPropertyFiles(t *testing.T) {
	task := Build(Params{
		CIServerURL:     "http://ci",
		AutoRegisterKey: "secret",
		Environment:     "prod",
		AgentID:         "aws-dev/build/prod/build-agent-0",
		Hostname:        "build-agent-0",
		PluginID:        "elasticagent.scheduler",
	})
	script := task.Processes[1].Script
	assert.Contains(t, script, "agent/wrapper-config/wrapper-properties.conf")
	assert.Contains(t, script, "agent/config/autoregister.properties")
	assert.Contains(t, script, "wrapper.app.parameter.101=http://ci")
	assert.Contains(t, script, "agent.auto.register.elasticAgent.agentId=aws-dev/build/prod/build-agent-0")
}

func TestBuildConfigureScriptOmitsLogbackWhenEmpty(t *testing.T) {
	task := Build(Params{})
	assert.NotContains(t, task.Processes[1].Script, "logback")
}

func TestBuildConfigureScriptMaterializesLogbackAndCopiesSiblings(t *testing.T) {
	task := Build(Params{LogbackXML: "<configuration/>"})
	script := task.Processes[1].Script
	encoded := base64.StdEncoding.EncodeToString([]byte("<configuration/>"))
	assert.Contains(t, script, encoded)
	assert.Contains(t, script, "base64 -d > agent/config/logback-include.xml")
	assert.Contains(t, script, "cp agent/config/logback-include.xml agent/config/logback-agent.xml")
	assert.Contains(t, script, "cp agent/config/logback-include.xml agent/config/logback-agent-launcher.xml")
}

func TestBuildRunScriptStartsAgentConsole(t *testing.T) {
	task := Build(Params{})
	script := task.Processes[2].Script
	assert.Contains(t, script, `export PATH="$HOME/bin:$PATH"`)
	assert.Contains(t, script, "agent/bin/agent console")
}

func TestTaskMarshalProducesValidJobSpecPayload(t *testing.T) {
	task := Build(Params{InstallerURL: "http://installer/a.zip"})
	data, err := task.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"processes"`)
	assert.Contains(t, string(data), `"finalization_wait":30`)
}
