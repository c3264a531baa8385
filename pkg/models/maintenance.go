package models

import "time"

// MaintenanceWindow suppresses alerts for a host (or globally, when Host is
// empty) while active. The store does not limit the number of active windows
// per host: each Start inserts a new active window.
type MaintenanceWindow struct {
	ID              int64
	Host            string // "" = global, matches all hosts
	StartedAt       time.Time
	EndedAt         *time.Time
	IsActive        bool
	Reason          string
	CreatedBy       string
	SuppressedCount int
}

// Active reports whether the window currently suppresses alerts:
// is_active AND ended_at IS NULL.
func (w MaintenanceWindow) Active() bool {
	return w.IsActive && w.EndedAt == nil
}

// Matches reports whether this window applies to the given host: a global
// window (Host == "") matches every host.
func (w MaintenanceWindow) Matches(host string) bool {
	return w.Host == "" || w.Host == host
}

// HostStatus is the tri-state availability of a remote host tracked by the
// Host Monitor (§4.6).
type HostStatus string

// Host status values.
const (
	HostOnline   HostStatus = "ONLINE"
	HostOffline  HostStatus = "OFFLINE"
	HostChecking HostStatus = "CHECKING"
)

// HostState is the in-memory record of a single host's availability.
type HostState struct {
	Host           string
	Status         HostStatus
	FailureCount   int
	LastSuccessAt  time.Time
	LastAttemptAt  time.Time
	Error          string
}

// IsAvailable reports whether remediation may target this host: ONLINE and
// CHECKING are both available, only OFFLINE is not (§4.6).
func (h HostState) IsAvailable() bool {
	return h.Status != HostOffline
}

// Snapshot is an optional pre-change capture of container/service state,
// used by the rollback helper (SPEC_FULL.md §3 NEW).
type Snapshot struct {
	SnapshotID    string
	Host          string
	TargetType    string // "container" | "service"
	TargetName    string
	StateData     string // JSON blob
	AlertContext  string
	CreatedAt     time.Time
	RolledBackAt  *time.Time
	RollbackReason string
}

// ProactiveCheckType distinguishes the kind of periodic predictive check that
// produced a ProactiveCheck record (SPEC_FULL.md §4.16 NEW).
type ProactiveCheckType string

// Proactive check types.
const (
	ProactiveCheckDiskExhaustion   ProactiveCheckType = "disk_exhaustion"
	ProactiveCheckMemoryExhaustion ProactiveCheckType = "memory_exhaustion"
)

// ProactiveCheck records a single periodic exhaustion-prediction run, whether
// or not it found anything actionable.
type ProactiveCheck struct {
	ID          int64
	CheckType   ProactiveCheckType
	Target      string
	Finding     string
	ActionTaken string
	CreatedAt   time.Time
}
