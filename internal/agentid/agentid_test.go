package agentid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormParseRoundTrip(t *testing.T) {
	raw := Form("aws-dev", "www", "prod", "build-agent-0")
	assert.Equal(t, "aws-dev/www/prod/build-agent-0", raw)

	id, ok := Parse(raw)
	require.True(t, ok)
	assert.Equal(t, ID{Cluster: "aws-dev", Role: "www", Env: "prod", Name: "build-agent-0"}, id)
	assert.Equal(t, raw, id.String())
}

func TestParseRejectsIllFormed(t *testing.T) {
	cases := []string{
		"too/few/parts",
		"a/b/c/d/e",
		"aws-dev/www/prod/not-a-valid-name",
		"aws-dev/www/prod/BUILD-agent-0",
		"/www/prod/build-agent-0",
	}
	for _, raw := range cases {
		_, ok := Parse(raw)
		assert.False(t, ok, "expected %q to be rejected", raw)
	}
}

func TestValidTag(t *testing.T) {
	assert.True(t, ValidTag("build"))
	assert.False(t, ValidTag("Build"))
	assert.False(t, ValidTag("build-2"))
	assert.False(t, ValidTag(""))
}

func TestNameFor(t *testing.T) {
	assert.Equal(t, "build-agent-3", NameFor("build", 3))
}
