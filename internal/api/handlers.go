package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"brigade/internal/agents"
	"brigade/internal/analytics"
	"brigade/internal/models"
)

// OrchestrateRequest is the body of POST /api/v1/orchestrate.
type OrchestrateRequest struct {
	Prompt         string `json:"prompt" binding:"required"`
	ProjectID      string `json:"project_id"`
	ConversationID string `json:"conversation_id"`
	Background     string `json:"background"`
	Wait           bool   `json:"wait"`
}

// ProcessRequest is the body of POST /api/v1/departments/:id/process.
type ProcessRequest struct {
	Prompt             string `json:"prompt" binding:"required"`
	ProjectID          string `json:"project_id"`
	ConversationID     string `json:"conversation_id"`
	DisableSpecialists bool   `json:"disable_specialists"`
}

// Orchestrate enqueues a run. With wait set it blocks and returns the
// result; otherwise it answers 202 and runs in the background.
func (s *Server) Orchestrate(c *gin.Context) {
	var req OrchestrateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pc := agents.ProjectContext{
		ProjectID:      req.ProjectID,
		ConversationID: req.ConversationID,
		Background:     req.Background,
	}
	runID, err := s.deps.Orchestrator.Enqueue(c.Request.Context(), req.Prompt, pc)
	if err != nil {
		s.respondError(c, err)
		return
	}

	if req.Wait {
		res, err := s.deps.Orchestrator.Execute(c.Request.Context(), runID, req.Prompt, pc)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.deps.Orchestrator.Execute(s.baseCtx, runID, req.Prompt, pc); err != nil {
			s.logger.Warn("background orchestration failed", "run", runID, "error", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"run_id": runID,
		"status": models.RunQueued,
		"stream": fmt.Sprintf("/api/v1/runs/%s/stream", runID),
	})
}

func (s *Server) GetRun(c *gin.Context) {
	run, err := s.deps.Runs.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) ActiveRuns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"runs": s.deps.Monitor.ActiveRuns()})
}

// ProcessDepartment runs a single department synchronously. The id may be a
// department id or slug.
func (s *Server) ProcessDepartment(c *gin.Context) {
	var req ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := s.deps.Departments.Process(c.Request.Context(), c.Param("id"), req.Prompt, agents.ProcessOptions{
		DisableSpecialists: req.DisableSpecialists,
		Context: agents.TaskContext{
			ProjectID:      req.ProjectID,
			ConversationID: req.ConversationID,
		},
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) GetExecution(c *gin.Context) {
	rec, err := s.deps.Executions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Analyze runs an analysis. Query params: from, to (RFC 3339 or
// YYYY-MM-DD), department, agent, status (repeatable or comma separated),
// review_status, project_id, min_quality, max_quality, bucket.
func (s *Server) Analyze(c *gin.Context) {
	f, err := parseFilters(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	report, err := s.deps.Analytics.Analyze(c.Request.Context(), f)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func parseFilters(c *gin.Context) (analytics.Filters, error) {
	var f analytics.Filters
	var err error
	if f.From, err = parseTime(c.Query("from"), false); err != nil {
		return f, fmt.Errorf("from: %w", err)
	}
	if f.To, err = parseTime(c.Query("to"), true); err != nil {
		return f, fmt.Errorf("to: %w", err)
	}
	f.DepartmentIDs = listParam(c, "department")
	f.AgentIDs = listParam(c, "agent")
	for _, st := range listParam(c, "status") {
		f.Statuses = append(f.Statuses, models.ExecutionStatus(st))
	}
	f.ReviewStatus = models.ReviewStatus(c.Query("review_status"))
	f.ProjectID = c.Query("project_id")
	if f.MinQuality, err = parseFloat(c.Query("min_quality")); err != nil {
		return f, fmt.Errorf("min_quality: %w", err)
	}
	if f.MaxQuality, err = parseFloat(c.Query("max_quality")); err != nil {
		return f, fmt.Errorf("max_quality: %w", err)
	}
	f.Bucket = analytics.TimeBucket(c.Query("bucket"))
	return f, f.Validate()
}

// parseTime accepts RFC 3339 or a bare date. A bare end date covers the
// whole day.
func parseTime(v string, endOfDay bool) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, fmt.Errorf("invalid time %q", v)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func parseFloat(v string) (*float64, error) {
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", v)
	}
	return &f, nil
}

func listParam(c *gin.Context, key string) []string {
	var out []string
	for _, v := range c.QueryArray(key) {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
