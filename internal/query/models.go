package query

import "gapscan/internal/pattern"

// ChangeContext carries the intent flags that steer risk scoring and the
// advisory rule tables. It is extracted upstream; the service only reads it.
type ChangeContext struct {
	// Action is the requested change kind, e.g. "CREATE" or "MODIFY".
	Action string `json:"action"`
	// Category classifies the issue, e.g. "CONFIGURATION" or "INSTRUMENTATION".
	Category string `json:"category"`
	// OperationType names the telemetry artifact, e.g. "span" or "metric".
	OperationType string `json:"operation_type"`
}

// ImpactReport is the result of an impact analysis over a seed file set.
type ImpactReport struct {
	Direct           []string                     `json:"direct"`
	Indirect         []string                     `json:"indirect"`
	RiskScore        int                          `json:"risk_score"`
	Patterns         map[string][]pattern.Pattern `json:"patterns,omitempty"`
	BreakingChanges  []string                     `json:"breaking_changes,omitempty"`
	TestRequirements []string                     `json:"test_requirements,omitempty"`
}

// RelationshipSet maps a requested relationship kind to its targets, each
// list capped at the service's fan-out limit.
type RelationshipSet map[string][]string

// Relationship kinds accepted by Service.Relationships.
const (
	RelKindCalls        = "calls"
	RelKindCalledBy     = "called_by"
	RelKindDependencies = "dependencies"
	RelKindDependents   = "dependents"
)

// Cluster is a connected group of candidate files.
type Cluster struct {
	Name          string              `json:"name"`
	Files         []string            `json:"files"`
	Relationships map[string][]string `json:"relationships"`
	Patterns      []pattern.Pattern   `json:"architectural_patterns,omitempty"`
	EntryPoints   []string            `json:"entry_points,omitempty"`
	ConfigFiles   []string            `json:"configuration_files,omitempty"`
	Complexity    int                 `json:"complexity_score"`
}
