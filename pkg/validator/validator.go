// Package validator implements the Command Validator (C1): a blacklist-only
// safety net that classifies shell commands as safe/unsafe with a risk
// level, before anything the LLM proposes reaches the SSH Executor.
package validator

import (
	"regexp"
	"strings"

	"github.com/homelab/warden/pkg/models"
)

// rule pairs a compiled pattern with the human-readable rejection reason.
type rule struct {
	pattern *regexp.Regexp
	reason  string
}

// blacklist is matched case-insensitively against each trimmed command.
// Grounded on original_source/app/command_validator.py's DANGEROUS_PATTERNS
// table; self-protection entries are generalized from hardcoded service
// names to the engine's own configured identity (see WithProtectedNames).
var blacklist = []rule{
	{regexp.MustCompile(`(?i)rm\s+-rf`), "recursive deletion detected"},
	{regexp.MustCompile(`(?i)rm\s+.*\*`), "wildcard deletion detected"},
	{regexp.MustCompile(`(?i)\breboot\b`), "system reboot detected"},
	{regexp.MustCompile(`(?i)\bshutdown\b`), "system shutdown detected"},
	{regexp.MustCompile(`(?i)\bpoweroff\b`), "system poweroff detected"},
	{regexp.MustCompile(`(?i)\bhalt\b`), "system halt detected"},

	{regexp.MustCompile(`(?i)\biptables\b`), "firewall modification detected"},
	{regexp.MustCompile(`(?i)\bufw\b`), "firewall modification detected"},
	{regexp.MustCompile(`(?i)\bnft\b`), "firewall modification detected"},

	{regexp.MustCompile(`(?i)docker\s+rm(?:\s+--help)?`), "container deletion detected"},
	{regexp.MustCompile(`(?i)docker\s+volume\s+rm`), "volume deletion detected"},
	{regexp.MustCompile(`(?i)systemctl\s+disable`), "service disable detected"},
	{regexp.MustCompile(`(?i)systemctl\s+mask`), "service mask detected"},

	{regexp.MustCompile(`(?i)sed\s+-i`), "in-place file edit detected"},
	{regexp.MustCompile(`>\s*/`), "file overwrite to a root path detected"},
	{regexp.MustCompile(`>>`), "file append detected"},
	{regexp.MustCompile(`(?i)\btee\b`), "file write via tee detected"},

	{regexp.MustCompile(`(?i)\bapt\b`), "package management detected"},
	{regexp.MustCompile(`(?i)\bapt-get\b`), "package management detected"},
	{regexp.MustCompile(`(?i)\bdpkg\b`), "package management detected"},
	{regexp.MustCompile(`(?i)\byum\b`), "package management detected"},
	{regexp.MustCompile(`(?i)\bdnf\b`), "package management detected"},

	{regexp.MustCompile(`(?i)\bmkfs`), "filesystem creation detected"},
	{regexp.MustCompile(`(?i)\bfdisk`), "disk partitioning detected"},
	{regexp.MustCompile(`(?i)\bdd\s+`), "direct disk write detected"},

	{regexp.MustCompile(`(?i)curl.*\|\s*(ba)?sh`), "pipe to shell detected"},
	{regexp.MustCompile(`(?i)wget.*\|\s*(ba)?sh`), "pipe to shell detected"},
	{regexp.MustCompile(`(?i)\bkill\s+-9`), "forceful process termination detected"},
}

// readOnly is the comprehensive read-only pattern table used to classify a
// validated command as diagnostic rather than actionable (§4.14 step 13).
// Diagnostic commands never count toward the attempt counter.
var readOnly = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^docker\s+(ps|logs|inspect|stats)\b`),
	regexp.MustCompile(`(?i)^systemctl\s+(status|show)\b`),
	regexp.MustCompile(`(?i)^journalctl\b`),
	regexp.MustCompile(`(?i)^curl\s+(-I|--head)\b`),
	regexp.MustCompile(`(?i)^(ping|dig|nslookup)\b`),
	regexp.MustCompile(`(?i)^(df|free|uptime)\b`),
	regexp.MustCompile(`(?i)^top\s+-b\b`),
	regexp.MustCompile(`(?i)^(ls|cat|head|tail|grep|find|wc|stat|file|which|du)\b`),
}

// simple matches the handful of simple restart/status commands the
// Pipeline still treats as "simple" for the HIGH-risk gate (§4.14 step 12)
// even though they are actionable.
var simple = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(docker|systemctl)\s+restart\b`),
	regexp.MustCompile(`(?i)^docker\s+(ps|logs|inspect|stats)\b`),
	regexp.MustCompile(`(?i)^systemctl\s+status\b`),
	regexp.MustCompile(`(?i)^journalctl\b`),
}

// Validator classifies shell commands against the blacklist. Self-protection
// entries are supplied at construction time, so the engine's own process and
// database names never need to be hardcoded into the pattern table.
type Validator struct {
	protected []*regexp.Regexp
}

// New builds a Validator that additionally rejects docker/systemctl
// stop/restart commands naming any of protectedNames (the engine's own
// container/service names and its database's), per §4.1's self-protection
// rule: restarts of these go through Self-Preservation instead.
func New(protectedNames ...string) *Validator {
	v := &Validator{}
	for _, name := range protectedNames {
		if name == "" {
			continue
		}
		pat := regexp.MustCompile(`(?i)(docker|systemctl)\s+(stop|restart)\s+.*` + regexp.QuoteMeta(name))
		v.protected = append(v.protected, pat)
	}
	return v
}

// Result is the outcome of validating a single command.
type Result struct {
	Safe   bool
	Risk   models.RiskLevel
	Reason string
}

// ValidateCommand checks a single command against the blacklist.
func (v *Validator) ValidateCommand(command string) Result {
	trimmed := strings.TrimSpace(command)

	for _, p := range v.protected {
		if p.MatchString(trimmed) {
			return Result{Safe: false, Risk: models.RiskHigh, Reason: "cannot stop/restart an engine-critical service via a generated command"}
		}
	}
	for _, r := range blacklist {
		if r.pattern.MatchString(trimmed) {
			return Result{Safe: false, Risk: models.RiskHigh, Reason: r.reason}
		}
	}
	return Result{Safe: true, Risk: models.RiskLow, Reason: "command passed safety checks"}
}

// PlanResult is the outcome of validating an ordered list of commands (a
// remediation plan).
type PlanResult struct {
	Safe     bool
	Accepted []string
	Rejected []string
	Reasons  []string
	MaxRisk  models.RiskLevel
}

// ValidatePlan batch-validates a plan. Rejection reasons are returned in
// input order, parallel to Rejected.
func (v *Validator) ValidatePlan(commands []string) PlanResult {
	out := PlanResult{Safe: true, MaxRisk: models.RiskLow}
	for _, cmd := range commands {
		res := v.ValidateCommand(cmd)
		if res.Safe {
			out.Accepted = append(out.Accepted, cmd)
			out.MaxRisk = out.MaxRisk.Max(res.Risk)
			continue
		}
		out.Safe = false
		out.Rejected = append(out.Rejected, cmd)
		out.Reasons = append(out.Reasons, cmd+": "+res.Reason)
	}
	if !out.Safe {
		out.MaxRisk = models.RiskHigh
	}
	return out
}

// IsReadOnly reports whether command is a diagnostic (read-only) command,
// per the comprehensive pattern table of §4.14 step 13.
func IsReadOnly(command string) bool {
	trimmed := strings.TrimSpace(command)
	for _, p := range readOnly {
		if p.MatchString(trimmed) {
			return true
		}
	}
	return false
}

// IsSimple reports whether command is one of the "simple" commands (restart,
// status, logs, journalctl) that the HIGH-risk gate (§4.14 step 12) allows
// through without escalating.
func IsSimple(command string) bool {
	trimmed := strings.TrimSpace(command)
	if IsReadOnly(trimmed) {
		return true
	}
	for _, p := range simple {
		if p.MatchString(trimmed) {
			return true
		}
	}
	return false
}

// ClassifyCommands splits commands into actionable (state-changing) and
// diagnostic (read-only) subsets, preserving order within each subset.
func ClassifyCommands(commands []string) (actionable, diagnostic []string) {
	for _, cmd := range commands {
		if IsReadOnly(cmd) {
			diagnostic = append(diagnostic, cmd)
		} else {
			actionable = append(actionable, cmd)
		}
	}
	return actionable, diagnostic
}

// AllSimple reports whether every command in the slice is "simple", used by
// the Pipeline's HIGH-risk gate.
func AllSimple(commands []string) bool {
	for _, cmd := range commands {
		if !IsSimple(cmd) {
			return false
		}
	}
	return true
}
