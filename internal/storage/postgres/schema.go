package postgres

import "github.com/lai-labs/spyglass/internal/storage/migrations"

const schema = `
CREATE TABLE IF NOT EXISTS behavior_events (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    screen TEXT NOT NULL DEFAULT '',
    element TEXT NOT NULL DEFAULT '',
    metadata JSONB NOT NULL DEFAULT '{}',
    timestamp TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_behavior_events_session ON behavior_events(session_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_behavior_events_tenant ON behavior_events(tenant_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_behavior_events_type ON behavior_events(event_type, timestamp);
CREATE INDEX IF NOT EXISTS idx_behavior_events_timestamp ON behavior_events(timestamp);

CREATE TABLE IF NOT EXISTS friction_events (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    friction_type TEXT NOT NULL,
    severity TEXT NOT NULL,
    screen TEXT NOT NULL DEFAULT '',
    element TEXT NOT NULL DEFAULT '',
    count INTEGER NOT NULL DEFAULT 0,
    details JSONB NOT NULL DEFAULT '{}',
    suggested_fix TEXT NOT NULL DEFAULT '',
    detected_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_friction_events_detected ON friction_events(detected_at);
CREATE INDEX IF NOT EXISTS idx_friction_events_severity ON friction_events(severity, detected_at);

CREATE TABLE IF NOT EXISTS process_traces (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    process_name TEXT NOT NULL,
    variant TEXT NOT NULL,
    steps JSONB NOT NULL DEFAULT '[]',
    step_count INTEGER NOT NULL DEFAULT 0,
    total_duration_ms BIGINT NOT NULL DEFAULT 0,
    bottleneck_step TEXT NOT NULL DEFAULT '',
    bottleneck_duration_ms BIGINT NOT NULL DEFAULT 0,
    frequency INTEGER NOT NULL DEFAULT 1,
    user_count INTEGER NOT NULL DEFAULT 1,
    mermaid_diagram TEXT NOT NULL DEFAULT '',
    analyzed_at TIMESTAMPTZ NOT NULL,
    UNIQUE(tenant_id, variant)
);

CREATE INDEX IF NOT EXISTS idx_process_traces_analyzed ON process_traces(analyzed_at);

CREATE TABLE IF NOT EXISTS automation_proposals (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT NOT NULL,
    category TEXT NOT NULL,
    current_time_minutes DOUBLE PRECISION NOT NULL,
    frequency_per_week DOUBLE PRECISION NOT NULL DEFAULT 0,
    estimated_dev_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'proposed',
    proposed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_automation_proposals_proposed ON automation_proposals(proposed_at);

CREATE TABLE IF NOT EXISTS system_health_checks (
    id TEXT PRIMARY KEY,
    component TEXT NOT NULL,
    status TEXT NOT NULL,
    metrics JSONB NOT NULL DEFAULT '{}',
    anomalies JSONB NOT NULL DEFAULT '[]',
    suggestions JSONB NOT NULL DEFAULT '[]',
    checked_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_health_checks_checked ON system_health_checks(checked_at);

CREATE TABLE IF NOT EXISTS cost_tracking (
    id TEXT PRIMARY KEY,
    service TEXT NOT NULL,
    period_start TIMESTAMPTZ NOT NULL,
    period_end TIMESTAMPTZ NOT NULL,
    actual_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
    projected_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
    budget DOUBLE PRECISION NOT NULL DEFAULT 0,
    usage_metrics JSONB NOT NULL DEFAULT '{}',
    alerts JSONB NOT NULL DEFAULT '[]',
    recorded_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cost_tracking_recorded ON cost_tracking(recorded_at);

CREATE TABLE IF NOT EXISTS knowledge_base (
    id TEXT PRIMARY KEY,
    category TEXT NOT NULL,
    title TEXT NOT NULL,
    content TEXT NOT NULL,
    source TEXT NOT NULL DEFAULT '',
    source_id TEXT NOT NULL DEFAULT '',
    tags JSONB NOT NULL DEFAULT '[]',
    confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
    harvested_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_knowledge_base_harvested ON knowledge_base(harvested_at);

CREATE TABLE IF NOT EXISTS build_learnings (
    id TEXT PRIMARY KEY,
    build_id TEXT NOT NULL,
    module_type TEXT NOT NULL DEFAULT '',
    learning_type TEXT NOT NULL,
    description TEXT NOT NULL,
    confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
    learned_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_build_learnings_build ON build_learnings(build_id);

CREATE TABLE IF NOT EXISTS trust_certificates (
    build_id TEXT PRIMARY KEY,
    module TEXT NOT NULL DEFAULT '',
    version TEXT NOT NULL DEFAULT '',
    trust_score DOUBLE PRECISION NOT NULL,
    evidence JSONB NOT NULL DEFAULT '{}',
    gates_passed INTEGER NOT NULL DEFAULT 0,
    gates_total INTEGER NOT NULL DEFAULT 0,
    tests_passed INTEGER NOT NULL DEFAULT 0,
    tests_total INTEGER NOT NULL DEFAULT 0,
    security_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    performance_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    certified_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS agent_executions (
    id TEXT PRIMARY KEY,
    agent_name TEXT NOT NULL,
    status TEXT NOT NULL,
    output_summary TEXT NOT NULL DEFAULT '',
    items_processed INTEGER NOT NULL DEFAULT 0,
    duration_ms BIGINT NOT NULL DEFAULT 0,
    ai_tokens_used BIGINT NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    completed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_agent_executions_completed ON agent_executions(completed_at);
CREATE INDEX IF NOT EXISTS idx_agent_executions_agent ON agent_executions(agent_name, completed_at);

CREATE TABLE IF NOT EXISTS api_logs (
    id TEXT PRIMARY KEY,
    path TEXT NOT NULL,
    method TEXT NOT NULL,
    status_code INTEGER NOT NULL,
    duration_ms BIGINT NOT NULL DEFAULT 0,
    tenant_id TEXT NOT NULL DEFAULT '',
    request_id TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL
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
