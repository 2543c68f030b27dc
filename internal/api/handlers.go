package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lai-labs/spyglass/internal/events"
	"github.com/lai-labs/spyglass/internal/types"
)

const defaultListLimit = 50

// newAPILogEntry snapshots one finished request
func newAPILogEntry(c *gin.Context, elapsed time.Duration) *types.APILogEntry {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	return &types.APILogEntry{
		ID:         uuid.New().String(),
		Path:       path,
		Method:     c.Request.Method,
		StatusCode: c.Writer.Status(),
		DurationMs: elapsed.Milliseconds(),
		TenantID:   c.GetHeader("X-Tenant-ID"),
		RequestID:  c.GetString("request_id"),
		CreatedAt:  time.Now().UTC(),
	}
}

type ingestRequest struct {
	Events []*events.BehaviorEvent `json:"events"`
}

// handleIngestEvents accepts a capture batch. The whole batch is rejected
// when any event is malformed so the tracker's at-least-once retry never
// splits a flush.
func (s *Server) handleIngestEvents(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if len(req.Events) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "events must not be empty"})
		return
	}
	if len(req.Events) > s.cfg.MaxBatchSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("batch of %d exceeds limit of %d", len(req.Events), s.cfg.MaxBatchSize),
		})
		return
	}

	now := time.Now().UTC()
	for i, e := range req.Events {
		if e.SessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("event %d missing session_id", i)})
			return
		}
		if !e.Type.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("event %d has unknown event_type %q", i, e.Type)})
			return
		}
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		if e.TenantID == "" {
			e.TenantID = events.AnonymousID
		}
		if e.UserID == "" {
			e.UserID = events.AnonymousID
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = now
		}
		if e.Metadata == nil {
			e.Metadata = map[string]interface{}{}
		}
	}

	if err := s.store.StoreBehaviorEvents(c.Request.Context(), req.Events); err != nil {
		slog.Error("failed to store event batch", "events", len(req.Events), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store events"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": len(req.Events)})
}

type dispatchRequest struct {
	Action string `json:"action"`
}

// handleDispatchAgent triggers agent runs. Agent failures still return 200:
// the audit row in the response carries the failure.
func (s *Server) handleDispatchAgent(c *gin.Context) {
	var req dispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if req.Action == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":         "action is required",
			"valid_actions": s.dispatcher.ValidActions(),
		})
		return
	}

	result, err := s.dispatcher.Dispatch(c.Request.Context(), req.Action)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":         err.Error(),
			"valid_actions": s.dispatcher.ValidActions(),
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

type buildCompleteRequest struct {
	BuildID string             `json:"build_id"`
	Result  *types.BuildResult `json:"result"`
}

// handleBuildComplete certifies a finished build and accumulates learnings
// from it. Certification is mandatory; learning is best effort.
func (s *Server) handleBuildComplete(c *gin.Context) {
	var req buildCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if req.BuildID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "build_id is required"})
		return
	}
	if req.Result == nil || req.Result.Module == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "result.module is required"})
		return
	}

	cert, err := s.certifier.Certify(c.Request.Context(), req.BuildID, req.Result)
	if err != nil {
		slog.Error("certification failed", "build_id", req.BuildID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to certify build"})
		return
	}

	learnings, _, err := s.accumulator.Accumulate(c.Request.Context(), req.BuildID, req.Result)
	if err != nil {
		slog.Error("learning accumulation failed", "build_id", req.BuildID, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"certificate": cert,
		"learnings":   len(learnings),
	})
}

// handleHealth reports liveness plus the latest rover snapshots
func (s *Server) handleHealth(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	checks, err := s.store.GetRecentHealthChecks(c.Request.Context(), 3)
	if err != nil {
		slog.Error("failed to load health checks", "error", err)
		checks = nil
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": checks})
}

func (s *Server) handleListFrictions(c *gin.Context) {
	filter := types.FrictionFilter{
		TenantID: c.Query("tenant_id"),
		Type:     types.FrictionType(c.Query("type")),
		Severity: types.Severity(c.Query("severity")),
		Since:    parseSince(c),
		Limit:    parseLimit(c),
	}
	frictions, err := s.store.GetFrictionEvents(c.Request.Context(), filter)
	if err != nil {
		slog.Error("failed to list frictions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list frictions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"frictions": frictions})
}

func (s *Server) handleListTraces(c *gin.Context) {
	traces, err := s.store.GetProcessTraces(c.Request.Context(), parseSince(c), parseLimit(c))
	if err != nil {
		slog.Error("failed to list traces", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list traces"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"traces": traces})
}

// handleListProposals returns proposals with the ROI recomputed on read
func (s *Server) handleListProposals(c *gin.Context) {
	proposals, err := s.store.GetAutomationProposals(c.Request.Context(), parseSince(c), parseLimit(c))
	if err != nil {
		slog.Error("failed to list proposals", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list proposals"})
		return
	}
	out := make([]gin.H, 0, len(proposals))
	for _, p := range proposals {
		out = append(out, gin.H{
			"proposal":           p,
			"roi_hours_per_month": p.ROIHoursPerMonth(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"proposals": out})
}

func (s *Server) handleListCosts(c *gin.Context) {
	records, err := s.store.GetCostRecords(c.Request.Context(), parseSince(c), parseLimit(c))
	if err != nil {
		slog.Error("failed to list cost records", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list cost records"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"costs": records})
}

func (s *Server) handleSearchKnowledge(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	items, err := s.store.SearchKnowledge(c.Request.Context(), query, parseLimit(c))
	if err != nil {
		slog.Error("knowledge search failed", "query", query, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) handleGetCertificate(c *gin.Context) {
	buildID := c.Param("build_id")
	cert, err := s.store.GetTrustCertificate(c.Request.Context(), buildID)
	if err != nil {
		slog.Error("failed to load certificate", "build_id", buildID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load certificate"})
		return
	}
	if cert == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no certificate for build %q", buildID)})
		return
	}
	c.JSON(http.StatusOK, cert)
}

func parseLimit(c *gin.Context) int {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	return n
}

func parseSince(c *gin.Context) time.Time {
	raw := c.Query("since")
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
