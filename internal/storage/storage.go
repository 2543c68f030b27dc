package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/lai-labs/spyglass/internal/events"
	"github.com/lai-labs/spyglass/internal/storage/postgres"
	"github.com/lai-labs/spyglass/internal/storage/sqlite"
	"github.com/lai-labs/spyglass/internal/types"
)

// Storage defines the interface for pipeline storage backends
type Storage interface {
	// Behavior Events - raw interaction events from tracked sessions
	StoreBehaviorEvents(ctx context.Context, evts []*events.BehaviorEvent) error
	GetBehaviorEvents(ctx context.Context, filter events.Filter) ([]*events.BehaviorEvent, error)
	// PruneBehaviorEvents deletes up to limit events older than cutoff and
	// reports how many were removed
	PruneBehaviorEvents(ctx context.Context, cutoff time.Time, limit int) (int64, error)

	// Friction Events - detected UX friction (rage clicks, backtracks, error loops)
	StoreFrictionEvents(ctx context.Context, frictions []*types.FrictionEvent) error
	GetFrictionEvents(ctx context.Context, filter types.FrictionFilter) ([]*types.FrictionEvent, error)

	// Process Traces - mined navigation variants, accumulated by (process, variant)
	UpsertProcessTraces(ctx context.Context, traces []*types.ProcessTrace) error
	GetProcessTraces(ctx context.Context, since time.Time, limit int) ([]*types.ProcessTrace, error)

	// Automation Proposals
	StoreAutomationProposals(ctx context.Context, proposals []*types.AutomationProposal) error
	GetAutomationProposals(ctx context.Context, since time.Time, limit int) ([]*types.AutomationProposal, error)

	// System Health
	StoreHealthChecks(ctx context.Context, checks []*types.HealthCheck) error
	GetRecentHealthChecks(ctx context.Context, limit int) ([]*types.HealthCheck, error)

	// Cost Tracking
	StoreCostRecord(ctx context.Context, record *types.CostRecord) error
	GetCostRecords(ctx context.Context, since time.Time, limit int) ([]*types.CostRecord, error)

	// Knowledge Base
	StoreKnowledgeItems(ctx context.Context, items []*types.KnowledgeItem) error
	SearchKnowledge(ctx context.Context, query string, limit int) ([]*types.KnowledgeItem, error)

	// Build Learnings
	StoreBuildLearnings(ctx context.Context, learnings []*types.BuildLearning) error
	GetBuildLearnings(ctx context.Context, since time.Time, limit int) ([]*types.BuildLearning, error)

	// Trust Certificates - one per build, re-certification replaces
	UpsertTrustCertificate(ctx context.Context, cert *types.TrustCertificate) error
	GetTrustCertificate(ctx context.Context, buildID string) (*types.TrustCertificate, error)

	// Agent Executions - audit trail of every agent run
	RecordAgentExecution(ctx context.Context, exec *types.AgentExecution) error
	GetRecentAgentExecutions(ctx context.Context, agentName string, limit int) ([]*types.AgentExecution, error)
	SumAITokensUsed(ctx context.Context, since time.Time) (int64, error)

	// API Logs
	StoreAPILog(ctx context.Context, entry *types.APILogEntry) error
	GetAPILogs(ctx context.Context, since time.Time, limit int) ([]*types.APILogEntry, error)

	// Operational introspection
	TableRowCounts(ctx context.Context) (map[string]int64, error)
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// Config holds database configuration
type Config struct {
	// Driver selects the backend: "sqlite" (default) or "postgres"
	Driver string

	// Path is the SQLite database file path
	// Special value ":memory:" creates an in-memory database (useful for tests)
	Path string

	// DSN is the PostgreSQL connection string, used when Driver is "postgres"
	DSN string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Driver: "sqlite",
		Path:   ".spyglass/spyglass.db",
	}
}

// NewStorage creates a storage backend for the configured driver
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	switch cfg.Driver {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = ".spyglass/spyglass.db"
		}
		return sqlite.New(path)
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres driver requires a DSN")
		}
		return postgres.New(ctx, &postgres.Config{DSN: cfg.DSN})
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Driver)
	}
}
