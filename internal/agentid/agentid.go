// Package agentid formats and parses the scheduler's agent identifiers.
//
// An agent identifier is the string "cluster/role/env/name" used as the
// primary key for every AgentRecord, ExecutorJobSummary and CIAgentInfo.
// The codec is total on well-formed ids; ill-formed ids observed from the
// executor are filtered out rather than rejected with an error, since they
// simply are not ours to manage.
package agentid

import (
	"fmt"
	"regexp"
	"strings"
)

// ID is a parsed agent identifier.
type ID struct {
	Cluster string
	Role    string
	Env     string
	Name    string
}

// nameRE matches the "name" segment: [a-z]+-agent-[0-9]+.
var nameRE = regexp.MustCompile(`^[a-z]+-agent-[0-9]+$`)

// Form renders a parsed identifier back to its wire form.
func Form(cluster, role, env, name string) string {
	return strings.Join([]string{cluster, role, env, name}, "/")
}

// String renders id to its wire form.
func (id ID) String() string {
	return Form(id.Cluster, id.Role, id.Env, id.Name)
}

// Valid reports whether id's name segment matches [a-z]+-agent-[0-9]+.
func (id ID) Valid() bool {
	return nameRE.MatchString(id.Name)
}

// Parse splits a wire-form agent id into its four segments. It returns
// false if the id does not have exactly four "/"-separated segments or if
// the name segment does not match [a-z]+-agent-[0-9]+ — such ids are
// treated as "not one of ours" by callers, never as an error.
func Parse(raw string) (ID, bool) {
	parts := strings.Split(raw, "/")
	if len(parts) != 4 {
		return ID{}, false
	}
	id := ID{Cluster: parts[0], Role: parts[1], Env: parts[2], Name: parts[3]}
	if id.Cluster == "" || id.Role == "" || id.Env == "" {
		return ID{}, false
	}
	if !id.Valid() {
		return ID{}, false
	}
	return id, true
}

// tagRE matches agent-profile tags: [a-z]+.
var tagRE = regexp.MustCompile(`^[a-z]+$`)

// ValidTag reports whether tag is a legal AgentProfile.tag value.
func ValidTag(tag string) bool {
	return tagRE.MatchString(tag)
}

// NameFor builds the "name" segment for the nth agent of a given tag,
// e.g. NameFor("build", 3) == "build-agent-3".
func NameFor(tag string, n int) string {
	return fmt.Sprintf("%s-agent-%d", tag, n)
}
