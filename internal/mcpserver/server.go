// Package mcpserver exposes orchestration and analytics as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"brigade/internal/agents"
	"brigade/internal/analytics"
)

const (
	ToolOrchestrate       = "orchestrate"
	ToolProcessDepartment = "process_department"
	ToolAnalyzeExecutions = "analyze_executions"
)

// Orchestrator runs a blocking master orchestration.
type Orchestrator interface {
	Orchestrate(ctx context.Context, prompt string, pc agents.ProjectContext) (*agents.OrchestratorResult, error)
}

// Analyzer produces analytics reports.
type Analyzer interface {
	Analyze(ctx context.Context, f analytics.Filters) (*analytics.Report, error)
}

// Server wraps an mcp-go server with the brigade tools registered.
type Server struct {
	mcp          *server.MCPServer
	orchestrator Orchestrator
	departments  agents.DepartmentProcessor
	analytics    Analyzer
	logger       *slog.Logger
}

// New builds the MCP server and registers its tools.
func New(version string, o Orchestrator, d agents.DepartmentProcessor, a Analyzer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		mcp: server.NewMCPServer("brigade", version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
		),
		orchestrator: o,
		departments:  d,
		analytics:    a,
		logger:       logger,
	}
	s.registerTools()
	return s
}

// ServeStdio serves MCP over stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

type tool struct {
	def     mcp.Tool
	handler server.ToolHandlerFunc
}

func (s *Server) registerTools() {
	for _, t := range s.tools() {
		s.mcp.AddTool(t.def, t.handler)
	}
}

func (s *Server) tools() []tool {
	return []tool{
		{mcp.NewTool(ToolOrchestrate,
			mcp.WithDescription("Route a request to the relevant departments and return the aggregated, quality-scored result"),
			mcp.WithString("prompt",
				mcp.Required(),
				mcp.Description("The request to orchestrate"),
			),
			mcp.WithString("project_id",
				mcp.Description("Project the request belongs to"),
			),
		), s.handleOrchestrate},

		{mcp.NewTool(ToolProcessDepartment,
			mcp.WithDescription("Run a single department on a request"),
			mcp.WithString("department",
				mcp.Required(),
				mcp.Description("Department id or slug"),
			),
			mcp.WithString("prompt",
				mcp.Required(),
				mcp.Description("The request for the department"),
			),
			mcp.WithBoolean("disable_specialists",
				mcp.Description("Let the department head answer alone"),
			),
		), s.handleProcessDepartment},

		{mcp.NewTool(ToolAnalyzeExecutions,
			mcp.WithDescription("Analyze recorded agent executions: metrics, charts, insights"),
			mcp.WithString("from",
				mcp.Description("Start of the window, RFC 3339 or YYYY-MM-DD"),
			),
			mcp.WithString("to",
				mcp.Description("End of the window, RFC 3339 or YYYY-MM-DD"),
			),
			mcp.WithString("department",
				mcp.Description("Only this department"),
			),
			mcp.WithString("agent",
				mcp.Description("Only this agent"),
			),
			mcp.WithString("bucket",
				mcp.Description("Time series granularity: hour, day, week or month"),
			),
		), s.handleAnalyze},
	}
}

func (s *Server) handleOrchestrate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := req.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pc := agents.ProjectContext{ProjectID: req.GetString("project_id", "")}

	res, err := s.orchestrator.Orchestrate(ctx, prompt, pc)
	if err != nil {
		s.logger.Warn("orchestrate tool failed", "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) handleProcessDepartment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dept, err := req.RequireString("department")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	prompt, err := req.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := s.departments.Process(ctx, dept, prompt, agents.ProcessOptions{
		DisableSpecialists: req.GetBool("disable_specialists", false),
	})
	if err != nil {
		s.logger.Warn("process_department tool failed", "department", dept, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) handleAnalyze(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var f analytics.Filters
	var err error
	if f.From, err = parseTime(req.GetString("from", ""), false); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("from: %v", err)), nil
	}
	if f.To, err = parseTime(req.GetString("to", ""), true); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("to: %v", err)), nil
	}
	if d := req.GetString("department", ""); d != "" {
		f.DepartmentIDs = []string{d}
	}
	if a := req.GetString("agent", ""); a != "" {
		f.AgentIDs = []string{a}
	}
	f.Bucket = analytics.TimeBucket(req.GetString("bucket", ""))

	report, err := s.analytics.Analyze(ctx, f)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(report)
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

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
