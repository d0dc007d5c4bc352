// Package api exposes orchestration, run progress and analytics over HTTP.
package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"brigade/internal/agents"
	"brigade/internal/analytics"
	"brigade/internal/models"
	"brigade/internal/monitoring"
)

// Orchestrator starts and runs master orchestrations.
type Orchestrator interface {
	Enqueue(ctx context.Context, prompt string, pc agents.ProjectContext) (string, error)
	Execute(ctx context.Context, runID, prompt string, pc agents.ProjectContext) (*agents.OrchestratorResult, error)
}

// RunReader reads persisted runs and streams their changes.
type RunReader interface {
	GetRun(ctx context.Context, id string) (*models.OrchestrationRun, error)
	Subscribe(id string) (<-chan models.RunEvent, func())
}

// ExecutionReader loads one audit record with its events.
type ExecutionReader interface {
	Get(ctx context.Context, id string) (*models.AuditExecution, error)
}

// Analyzer produces analytics reports.
type Analyzer interface {
	Analyze(ctx context.Context, f analytics.Filters) (*analytics.Report, error)
}

// ActiveRunLister reports in-flight runs.
type ActiveRunLister interface {
	ActiveRuns() []monitoring.RunSnapshot
}

// Deps are the collaborators behind the HTTP handlers.
type Deps struct {
	Orchestrator Orchestrator
	Departments  agents.DepartmentProcessor
	Runs         RunReader
	Executions   ExecutionReader
	Analytics    Analyzer
	Monitor      ActiveRunLister
	Logger       *slog.Logger
}

// Server is the brigade HTTP API.
type Server struct {
	Router *gin.Engine
	deps   Deps
	logger *slog.Logger

	// background orchestrations outlive the request that started them
	baseCtx context.Context
	wg      sync.WaitGroup
}

// NewServer builds the router. ctx bounds background orchestrations started
// by asynchronous requests.
func NewServer(ctx context.Context, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		Router:  gin.New(),
		deps:    deps,
		logger:  logger,
		baseCtx: ctx,
	}
	s.Router.Use(gin.Logger(), gin.Recovery())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := s.Router.Group("/api/v1")
	{
		v1.POST("/orchestrate", s.Orchestrate)

		v1.GET("/runs/active", s.ActiveRuns)
		v1.GET("/runs/:id", s.GetRun)
		v1.GET("/runs/:id/stream", s.StreamRun)

		v1.POST("/departments/:id/process", s.ProcessDepartment)

		v1.GET("/analytics", s.Analyze)
		v1.GET("/executions/:id", s.GetExecution)
	}
}

// Wait blocks until background orchestrations have finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

// MetricsRouter serves a Prometheus handler on its own engine so it can be
// bound to a separate port.
func MetricsRouter(h http.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics", gin.WrapH(h))
	return r
}
