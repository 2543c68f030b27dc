package sqlite

import "github.com/lai-labs/spyglass/internal/storage/migrations"

const schema = `
-- Raw interaction events from tracked sessions
CREATE TABLE IF NOT EXISTS behavior_events (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    screen TEXT NOT NULL DEFAULT '',
    element TEXT NOT NULL DEFAULT '',
    metadata TEXT NOT NULL DEFAULT '{}',
    timestamp DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_behavior_events_session ON behavior_events(session_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_behavior_events_tenant ON behavior_events(tenant_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_behavior_events_type ON behavior_events(event_type, timestamp);
CREATE INDEX IF NOT EXISTS idx_behavior_events_timestamp ON behavior_events(timestamp);

-- Detected friction incidents
CREATE TABLE IF NOT EXISTS friction_events (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    friction_type TEXT NOT NULL,
    severity TEXT NOT NULL,
    screen TEXT NOT NULL DEFAULT '',
    element TEXT NOT NULL DEFAULT '',
    count INTEGER NOT NULL DEFAULT 0,
    details TEXT NOT NULL DEFAULT '{}',
    suggested_fix TEXT NOT NULL DEFAULT '',
    detected_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_friction_events_detected ON friction_events(detected_at);
CREATE INDEX IF NOT EXISTS idx_friction_events_severity ON friction_events(severity, detected_at);
CREATE INDEX IF NOT EXISTS idx_friction_events_type ON friction_events(friction_type);

-- Mined workflow variants, unique per (tenant, variant)
CREATE TABLE IF NOT EXISTS process_traces (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    process_name TEXT NOT NULL,
    variant TEXT NOT NULL,
    steps TEXT NOT NULL DEFAULT '[]',
    step_count INTEGER NOT NULL DEFAULT 0,
    total_duration_ms INTEGER NOT NULL DEFAULT 0,
    bottleneck_step TEXT NOT NULL DEFAULT '',
    bottleneck_duration_ms INTEGER NOT NULL DEFAULT 0,
    frequency INTEGER NOT NULL DEFAULT 1,
    user_count INTEGER NOT NULL DEFAULT 1,
    mermaid_diagram TEXT NOT NULL DEFAULT '',
    analyzed_at DATETIME NOT NULL,
    UNIQUE(tenant_id, variant)
);

CREATE INDEX IF NOT EXISTS idx_process_traces_analyzed ON process_traces(analyzed_at);
CREATE INDEX IF NOT EXISTS idx_process_traces_frequency ON process_traces(frequency);

-- Scout output
CREATE TABLE IF NOT EXISTS automation_proposals (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT NOT NULL,
    category TEXT NOT NULL,
    current_time_minutes REAL NOT NULL,
    frequency_per_week REAL NOT NULL DEFAULT 0,
    estimated_dev_hours REAL NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'proposed',
    proposed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_automation_proposals_proposed ON automation_proposals(proposed_at);
CREATE INDEX IF NOT EXISTS idx_automation_proposals_status ON automation_proposals(status);

-- Rover snapshots, append-only
CREATE TABLE IF NOT EXISTS system_health_checks (
    id TEXT PRIMARY KEY,
    component TEXT NOT NULL,
    status TEXT NOT NULL,
    metrics TEXT NOT NULL DEFAULT '{}',
    anomalies TEXT NOT NULL DEFAULT '[]',
    suggestions TEXT NOT NULL DEFAULT '[]',
    checked_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_health_checks_checked ON system_health_checks(checked_at);
CREATE INDEX IF NOT EXISTS idx_health_checks_component ON system_health_checks(component, checked_at);

-- Cost watcher snapshots
CREATE TABLE IF NOT EXISTS cost_tracking (
    id TEXT PRIMARY KEY,
    service TEXT NOT NULL,
    period_start DATETIME NOT NULL,
    period_end DATETIME NOT NULL,
    actual_cost REAL NOT NULL DEFAULT 0,
    projected_cost REAL NOT NULL DEFAULT 0,
    budget REAL NOT NULL DEFAULT 0,
    usage_metrics TEXT NOT NULL DEFAULT '{}',
    alerts TEXT NOT NULL DEFAULT '[]',
    recorded_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cost_tracking_recorded ON cost_tracking(recorded_at);

-- Harvested knowledge, append-only
CREATE TABLE IF NOT EXISTS knowledge_base (
    id TEXT PRIMARY KEY,
    category TEXT NOT NULL,
    title TEXT NOT NULL,
    content TEXT NOT NULL,
    source TEXT NOT NULL DEFAULT '',
    source_id TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '[]',
    confidence REAL NOT NULL DEFAULT 0,
    harvested_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_knowledge_base_harvested ON knowledge_base(harvested_at);
CREATE INDEX IF NOT EXISTS idx_knowledge_base_category ON knowledge_base(category);

-- Build learnings, append-only
CREATE TABLE IF NOT EXISTS build_learnings (
    id TEXT PRIMARY KEY,
    build_id TEXT NOT NULL,
    module_type TEXT NOT NULL DEFAULT '',
    learning_type TEXT NOT NULL,
    description TEXT NOT NULL,
    confidence REAL NOT NULL DEFAULT 0,
    learned_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_build_learnings_build ON build_learnings(build_id);
CREATE INDEX IF NOT EXISTS idx_build_learnings_learned ON build_learnings(learned_at);

-- Trust certificates, one per build
CREATE TABLE IF NOT EXISTS trust_certificates (
    build_id TEXT PRIMARY KEY,
    module TEXT NOT NULL DEFAULT '',
    version TEXT NOT NULL DEFAULT '',
    trust_score REAL NOT NULL,
    evidence TEXT NOT NULL DEFAULT '{}',
    gates_passed INTEGER NOT NULL DEFAULT 0,
    gates_total INTEGER NOT NULL DEFAULT 0,
    tests_passed INTEGER NOT NULL DEFAULT 0,
    tests_total INTEGER NOT NULL DEFAULT 0,
    security_score REAL NOT NULL DEFAULT 0,
    performance_score REAL NOT NULL DEFAULT 0,
    certified_at DATETIME NOT NULL
);

-- Agent run audit trail
CREATE TABLE IF NOT EXISTS agent_executions (
    id TEXT PRIMARY KEY,
    agent_name TEXT NOT NULL,
    status TEXT NOT NULL,
    output_summary TEXT NOT NULL DEFAULT '',
    items_processed INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    ai_tokens_used INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    completed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_agent_executions_completed ON agent_executions(completed_at);
CREATE INDEX IF NOT EXISTS idx_agent_executions_agent ON agent_executions(agent_name, completed_at);

-- HTTP boundary observations
CREATE TABLE IF NOT EXISTS api_logs (
    id TEXT PRIMARY KEY,
    path TEXT NOT NULL,
    method TEXT NOT NULL,
    status_code INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    tenant_id TEXT NOT NULL DEFAULT '',
    request_id TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_api_logs_created ON api_logs(created_at);
CREATE INDEX IF NOT EXISTS idx_api_logs_status ON api_logs(status_code, created_at);
`

const dropSchema = `
DROP TABLE IF EXISTS api_logs;
DROP TABLE IF EXISTS agent_executions;
DROP TABLE IF EXISTS trust_certificates;
DROP TABLE IF EXISTS build_learnings;
DROP TABLE IF EXISTS knowledge_base;
DROP TABLE IF EXISTS cost_tracking;
DROP TABLE IF EXISTS system_health_checks;
DROP TABLE IF EXISTS automation_proposals;
DROP TABLE IF EXISTS process_traces;
DROP TABLE IF EXISTS friction_events;
DROP TABLE IF EXISTS behavior_events;
`

// initialSchema is migration 1: every pipeline table and index. Later schema
// changes land as higher-versioned migrations alongside it.
var initialSchema = migrations.Migration{
	Version:     1,
	Description: "initial pipeline schema",
	Up:          schema,
	Down:        dropSchema,
}

// trackedTables are the tables TableRowCounts reports on, in a stable order.
var trackedTables = []string{
	"behavior_events",
	"friction_events",
	"process_traces",
	"automation_proposals",
	"system_health_checks",
	"cost_tracking",
	"knowledge_base",
	"build_learnings",
	"trust_certificates",
	"agent_executions",
	"api_logs",
}
