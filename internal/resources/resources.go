// Package resources implements the {cpu, ram, disk} resource vector math
// shared by agent profiles, agent records and executor quotas.
package resources

import "strconv"

// Vector is a resource quantity: fractional CPUs, RAM in MiB, disk in MiB.
type Vector struct {
	CPU  float64
	RAM  float64
	Disk float64
}

// Default resources applied to a launched agent when the profile leaves a
// field blank (§4.3 — defaults are applied at launch time, never baked
// into the profile itself).
var Default = Vector{CPU: 1.0, RAM: 512, Disk: 1024}

// Range bounds for AgentProfile validation (§3).
const (
	MinCPU  = 0.1
	MaxCPU  = 32.0
	MinRAM  = 256.0
	MaxRAM  = 262144.0
	MinDisk = 256.0
	MaxDisk = 1048576.0
)

// ProfileFields carries the raw, possibly-blank profile settings as
// supplied by the CI server (everything arrives as strings over the plugin
// RPC, §6).
type ProfileFields struct {
	CPU  string
	RAM  string
	Disk string
}

// FromProfile parses a profile's resource fields, dropping blanks, and
// applying Default to any field left unset. Non-numeric values are
// treated as blank (dropped) — the profile-validation helpers (out of
// scope, §1) are responsible for rejecting malformed settings before the
// core ever sees them.
func FromProfile(p ProfileFields) Vector {
	v := Default
	if f, ok := parseFloat(p.CPU); ok {
		v.CPU = f
	}
	if f, ok := parseFloat(p.RAM); ok {
		v.RAM = f
	}
	if f, ok := parseFloat(p.Disk); ok {
		v.Disk = f
	}
	return v
}

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// InRange reports whether v's fields fall within the AgentProfile
// validation ranges (§3).
func (v Vector) InRange() bool {
	return v.CPU >= MinCPU && v.CPU <= MaxCPU &&
		v.RAM >= MinRAM && v.RAM <= MaxRAM &&
		v.Disk >= MinDisk && v.Disk <= MaxDisk
}

// Satisfies reports whether offered meets or exceeds required on every
// dimension (§4.3): satisfies(required, offered) = ∀k: offered[k] ≥ required[k].
func Satisfies(required, offered Vector) bool {
	return offered.CPU >= required.CPU &&
		offered.RAM >= required.RAM &&
		offered.Disk >= required.Disk
}

// Quota is a per-role resource envelope exposed by the executor (§3, §4.4).
type Quota struct {
	Available Vector
	Usage     Vector
}

// QuotaAvailable reports whether req can be admitted against q without
// exceeding quota. A zero field in q.Available means "unmetered" for that
// dimension (§4.3, B1) and the check is skipped for it.
func QuotaAvailable(q Quota, req Vector) bool {
	return dimAvailable(q.Available.CPU, q.Usage.CPU, req.CPU) &&
		dimAvailable(q.Available.RAM, q.Usage.RAM, req.RAM) &&
		dimAvailable(q.Available.Disk, q.Usage.Disk, req.Disk)
}

func dimAvailable(available, usage, req float64) bool {
	if available == 0 {
		return true // unmetered
	}
	return usage+req <= available
}
