package agent

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lai-labs/spyglass/internal/types"
)

var (
	// agentRunsTotal counts runs by agent and terminal status
	agentRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spyglass_agent_runs_total",
		Help: "Total agent runs by agent and status",
	}, []string{"agent", "status"})

	// agentRunDuration tracks run latency per agent
	agentRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "spyglass_agent_run_duration_seconds",
		Help:    "Agent run duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
	}, []string{"agent"})
)

func recordRun(agent string, status types.ExecutionStatus, d time.Duration) {
	agentRunsTotal.WithLabelValues(agent, string(status)).Inc()
	agentRunDuration.WithLabelValues(agent).Observe(d.Seconds())
}
