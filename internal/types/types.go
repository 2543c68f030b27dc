// Package types defines the derived records the pipeline produces from raw
// behavior events: friction incidents, mined process traces, automation
// proposals, health and cost snapshots, harvested knowledge, build learnings
// and trust certificates, plus the per-run agent execution audit record.
package types

import (
	"fmt"
	"time"
)

// FrictionType classifies a detected pain signal.
type FrictionType string

const (
	FrictionRageClick FrictionType = "rage_click"
	FrictionBacktrack FrictionType = "backtrack"
	FrictionErrorLoop FrictionType = "error_loop"
)

// IsValid reports whether t is a known friction type.
func (t FrictionType) IsValid() bool {
	switch t {
	case FrictionRageClick, FrictionBacktrack, FrictionErrorLoop:
		return true
	}
	return false
}

// Severity grades the magnitude of a friction incident.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
)

// IsValid reports whether s is a known severity.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium:
		return true
	}
	return false
}

// FrictionEvent is a detected pain signal, derived from a cluster of behavior
// events. Created once per detector run per qualifying cluster and never
// mutated afterwards.
type FrictionEvent struct {
	ID           string                 `json:"id"`
	TenantID     string                 `json:"tenant_id"`
	UserID       string                 `json:"user_id"`
	FrictionType FrictionType           `json:"friction_type"`
	Severity     Severity               `json:"severity"`
	Screen       string                 `json:"screen"`
	Element      string                 `json:"element,omitempty"`
	Count        int                    `json:"count"`
	// Details holds type-specific evidence (window_ms for rage clicks,
	// from/to/dt_ms for backtracks, the error signature for loops).
	Details map[string]interface{} `json:"details"`
	// SuggestedFix is optional best-effort oracle annotation
	SuggestedFix string    `json:"suggested_fix,omitempty"`
	DetectedAt   time.Time `json:"detected_at"`
}

// FrictionFilter narrows a friction event query. Zero values mean "any".
type FrictionFilter struct {
	TenantID string
	Type     FrictionType
	Severity Severity
	Since    time.Time
	Limit    int
}

// ProcessStep is one ordered screen in a mined trace.
type ProcessStep struct {
	Screen string `json:"screen"`
	Order  int    `json:"order"`
}

// ProcessTrace is a mined workflow variant. Variant is the dedup key: a trace
// observed again in a later run accumulates frequency rather than duplicating.
type ProcessTrace struct {
	ID          string        `json:"id"`
	TenantID    string        `json:"tenant_id"`
	ProcessName string        `json:"process_name"`
	Variant     string        `json:"variant"`
	Steps       []ProcessStep `json:"steps"`
	StepCount   int           `json:"step_count"`
	// TotalDurationMs is the mean duration across occurrences
	TotalDurationMs      int64     `json:"total_duration_ms"`
	BottleneckStep       string    `json:"bottleneck_step"`
	BottleneckDurationMs int64     `json:"bottleneck_duration_ms"`
	Frequency            int       `json:"frequency"`
	UserCount            int       `json:"user_count"`
	MermaidDiagram       string    `json:"mermaid_diagram"`
	AnalyzedAt           time.Time `json:"analyzed_at"`
}

// ProposalCategory is the closed set of automation proposal categories.
type ProposalCategory string

const (
	CategoryRepetitiveTask      ProposalCategory = "repetitive_task"
	CategoryCopyPaste           ProposalCategory = "copy_paste"
	CategoryPredictableDecision ProposalCategory = "predictable_decision"
	CategoryManualNotification  ProposalCategory = "manual_notification"
	CategoryManualReport        ProposalCategory = "manual_report"
	CategoryDataEntry           ProposalCategory = "data_entry"
	CategoryApprovalFlow        ProposalCategory = "approval_flow"
	CategoryScheduledTask       ProposalCategory = "scheduled_task"
	CategoryIntegration         ProposalCategory = "integration"
)

// IsValid reports whether c is a known proposal category.
func (c ProposalCategory) IsValid() bool {
	switch c {
	case CategoryRepetitiveTask, CategoryCopyPaste, CategoryPredictableDecision,
		CategoryManualNotification, CategoryManualReport, CategoryDataEntry,
		CategoryApprovalFlow, CategoryScheduledTask, CategoryIntegration:
		return true
	}
	return false
}

// ProposalStatus tracks review state. Transitions are driven by an external
// reviewer; the pipeline only ever creates proposals in StatusProposed.
type ProposalStatus string

const (
	StatusProposed    ProposalStatus = "proposed"
	StatusAccepted    ProposalStatus = "accepted"
	StatusRejected    ProposalStatus = "rejected"
	StatusImplemented ProposalStatus = "implemented"
)

// AutomationProposal is a suggested automation produced by the scout.
// ROI is derived, never stored: see ROIHoursPerMonth.
type AutomationProposal struct {
	ID                 string           `json:"id"`
	TenantID           string           `json:"tenant_id"`
	Title              string           `json:"title"`
	Description        string           `json:"description"`
	Category           ProposalCategory `json:"category"`
	CurrentTimeMinutes float64          `json:"current_time_minutes"`
	FrequencyPerWeek   float64          `json:"frequency_per_week"`
	EstimatedDevHours  float64          `json:"estimated_dev_hours"`
	Status             ProposalStatus   `json:"status"`
	ProposedAt         time.Time        `json:"proposed_at"`
}

// weeksPerMonth converts a weekly frequency into a monthly one.
const weeksPerMonth = 4.33

// ROIHoursPerMonth computes hours saved per month from the stored fields
// alone. Recomputed deterministically on every read; never persisted.
func (p *AutomationProposal) ROIHoursPerMonth() float64 {
	return p.CurrentTimeMinutes / 60 * p.FrequencyPerWeek * weeksPerMonth
}

// Validate checks the fields the scout requires before persisting. Proposals
// that fail validation are dropped, not retried.
func (p *AutomationProposal) Validate() error {
	if p.Title == "" {
		return fmt.Errorf("proposal missing title")
	}
	if p.Description == "" {
		return fmt.Errorf("proposal missing description")
	}
	if !p.Category.IsValid() {
		return fmt.Errorf("invalid proposal category: %q", p.Category)
	}
	if p.CurrentTimeMinutes <= 0 {
		return fmt.Errorf("current_time_minutes must be positive (got %v)", p.CurrentTimeMinutes)
	}
	return nil
}

// HealthStatus grades a component snapshot.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck is one component snapshot from a rover run. Append-only, one
// row per component per run; prior snapshots are never mutated.
type HealthCheck struct {
	ID          string                   `json:"id"`
	Component   string                   `json:"component"`
	Status      HealthStatus             `json:"status"`
	Metrics     map[string]interface{}   `json:"metrics"`
	Anomalies   []map[string]interface{} `json:"anomalies"`
	Suggestions []map[string]interface{} `json:"suggestions"`
	CheckedAt   time.Time                `json:"checked_at"`
}

// CostAlert flags a projected overspend on one service.
type CostAlert struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// CostRecord is one billing snapshot per service per watcher run.
// ProjectedCost is a linear day-of-month extrapolation of ActualCost.
type CostRecord struct {
	ID            string                 `json:"id"`
	Service       string                 `json:"service"`
	PeriodStart   time.Time              `json:"period_start"`
	PeriodEnd     time.Time              `json:"period_end"`
	ActualCost    float64                `json:"actual_cost"`
	ProjectedCost float64                `json:"projected_cost"`
	Budget        float64                `json:"budget"`
	UsageMetrics  map[string]interface{} `json:"usage_metrics"`
	Alerts        []CostAlert            `json:"alerts,omitempty"`
	RecordedAt    time.Time              `json:"recorded_at"`
}

// KnowledgeItem is a harvested, searchable fact. Append-only; a later
// semantic index consumes these records but is external to the pipeline.
type KnowledgeItem struct {
	ID       string   `json:"id"`
	Category string   `json:"category"`
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	// Source names the agent that produced the underlying record
	Source   string   `json:"source"`
	SourceID string   `json:"source_id"`
	Tags     []string `json:"tags"`
	// Confidence is 0..1
	Confidence  float64   `json:"confidence"`
	HarvestedAt time.Time `json:"harvested_at"`
}

// LearningType is the closed set of build learning classifications.
type LearningType string

const (
	LearningPatternSuccess     LearningType = "pattern_success"
	LearningPatternFailure     LearningType = "pattern_failure"
	LearningErrorFix           LearningType = "error_fix"
	LearningPerformanceInsight LearningType = "performance_insight"
	LearningSecurityFix        LearningType = "security_fix"
	LearningUXImprovement      LearningType = "ux_improvement"
	LearningCodeStyle          LearningType = "code_style"
	LearningTestStrategy       LearningType = "test_strategy"
	LearningArchitectureChoice LearningType = "architecture_choice"
)

// IsValid reports whether t is a known learning type.
func (t LearningType) IsValid() bool {
	switch t {
	case LearningPatternSuccess, LearningPatternFailure, LearningErrorFix,
		LearningPerformanceInsight, LearningSecurityFix, LearningUXImprovement,
		LearningCodeStyle, LearningTestStrategy, LearningArchitectureChoice:
		return true
	}
	return false
}

// BuildLearning is a durable rule extracted from one build. Append-only,
// keyed by build.
type BuildLearning struct {
	ID           string       `json:"id"`
	BuildID      string       `json:"build_id"`
	ModuleType   string       `json:"module_type"`
	LearningType LearningType `json:"learning_type"`
	Description  string       `json:"description"`
	Confidence   float64      `json:"confidence"`
	LearnedAt    time.Time    `json:"learned_at"`
}

// TrustCertificate is the signed quality score for one build. Unique on
// BuildID; re-certifying a build overwrites the prior certificate.
type TrustCertificate struct {
	BuildID          string                 `json:"build_id"`
	Module           string                 `json:"module"`
	Version          string                 `json:"version"`
	TrustScore       float64                `json:"trust_score"`
	Evidence         map[string]interface{} `json:"evidence"`
	GatesPassed      int                    `json:"gates_passed"`
	GatesTotal       int                    `json:"gates_total"`
	TestsPassed      int                    `json:"tests_passed"`
	TestsTotal       int                    `json:"tests_total"`
	SecurityScore    float64                `json:"security_score"`
	PerformanceScore float64                `json:"performance_score"`
	CertifiedAt      time.Time              `json:"certified_at"`
}

// BuildResult is the structured build-completion summary handed to the
// learning accumulator and trust certifier.
type BuildResult struct {
	Module           string   `json:"module"`
	Version          string   `json:"version"`
	TestsPassed      int      `json:"tests_passed"`
	TestsTotal       int      `json:"tests_total"`
	GatesPassed      int      `json:"gates_passed"`
	GatesTotal       int      `json:"gates_total"`
	SecurityClean    bool     `json:"security_clean"`
	SecurityWarnings bool     `json:"security_warnings"`
	P95Ms            float64  `json:"p95_ms"`
	HealRounds       int      `json:"heal_rounds"`
	ErrorsFixed      []string `json:"errors_fixed"`
}

// ExecutionStatus is the terminal state of one agent run.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
)

// AgentExecution is the audit record every agent writes on completion,
// success or failure. Operability depends on this row, not on external log
// aggregation.
type AgentExecution struct {
	ID             string          `json:"id"`
	AgentName      string          `json:"agent_name"`
	Status         ExecutionStatus `json:"status"`
	OutputSummary  string          `json:"output_summary"`
	ItemsProcessed int             `json:"items_processed"`
	DurationMs     int64           `json:"duration_ms"`
	AITokensUsed   int64           `json:"ai_tokens_used"`
	Error          string          `json:"error,omitempty"`
	CompletedAt    time.Time       `json:"completed_at"`
}

// APILogEntry is one request observation from the HTTP boundary. The health
// rover reads these for error-rate and latency percentile checks.
type APILogEntry struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	Method     string    `json:"method"`
	StatusCode int       `json:"status_code"`
	DurationMs int64     `json:"duration_ms"`
	TenantID   string    `json:"tenant_id,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
