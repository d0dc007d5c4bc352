package capability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"brigade/internal/agents"
	"brigade/internal/models"
	"brigade/internal/quality"
)

// Pricing is the USD cost per token of one model family.
type Pricing struct {
	Input  float64
	Output float64
}

// DefaultPricing applies when a model has no entry in the pricing table.
var DefaultPricing = Pricing{Input: 3.0 / 1_000_000, Output: 15.0 / 1_000_000}

var modelPricing = map[string]Pricing{
	"gpt-4o-mini": {Input: 0.15 / 1_000_000, Output: 0.60 / 1_000_000},
	"gpt-4o":      {Input: 2.50 / 1_000_000, Output: 10.0 / 1_000_000},
	"claude":      {Input: 3.0 / 1_000_000, Output: 15.0 / 1_000_000},
	"haiku":       {Input: 0.80 / 1_000_000, Output: 4.0 / 1_000_000},
}

// PriceFor picks the longest pricing key contained in the model name.
func PriceFor(model string) Pricing {
	model = strings.ToLower(model)
	best, bestLen := DefaultPricing, 0
	for key, p := range modelPricing {
		if strings.Contains(model, key) && len(key) > bestLen {
			best, bestLen = p, len(key)
		}
	}
	return best
}

const assessmentInstructions = `After your answer, rate your own work on its final lines, one per line, each from 0 to 100:
CONFIDENCE: <n>
COMPLETENESS: <n>
RELEVANCE: <n>
CONSISTENCY: <n>
CREATIVITY: <n>
TECHNICAL: <n>`

// AgentLookup loads an agent by id.
type AgentLookup interface {
	Get(ctx context.Context, id string) (*models.Agent, error)
}

// Invoker runs an agent's instructions through a Provider.
type Invoker struct {
	agents   AgentLookup
	registry *Registry
	provider Provider
	logger   *slog.Logger
}

func NewInvoker(lookup AgentLookup, registry *Registry, provider Provider, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Invoker{agents: lookup, registry: registry, provider: provider, logger: logger}
}

// Invoke implements agents.Invoker.
func (i *Invoker) Invoke(ctx context.Context, agentID, prompt string, tc agents.TaskContext) (*agents.Invocation, error) {
	agent, err := i.agents.Get(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("loading agent %s: %w", agentID, err)
	}

	req := Request{
		System:      i.systemPrompt(agent),
		Prompt:      prompt,
		Temperature: agent.Temperature,
		MaxTokens:   agent.TokenBudget,
	}

	start := time.Now()
	resp, err := i.provider.Complete(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		i.logger.Warn("capability invocation failed",
			"agent", agentID, "department", tc.DepartmentID, "attempt", tc.Attempt, "error", err)
		return nil, err
	}

	dims := quality.ParseDimensions(resp.Text)
	inv := &agents.Invocation{
		Output:  quality.StripAssessment(resp.Text),
		Elapsed: elapsed,
		Model:   resp.Model,
		Usage: agents.TokenUsage{
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
		},
	}
	if len(dims) > 0 {
		inv.Dimensions = dims
	} else if overall, ok := quality.ParseOverall(resp.Text); ok {
		inv.QualityScore = &overall
	}
	price := PriceFor(resp.Model)
	inv.Usage.Cost = float64(resp.InputTokens)*price.Input + float64(resp.OutputTokens)*price.Output

	i.logger.Debug("capability invoked",
		"agent", agentID, "provider", i.provider.Name(), "elapsed", elapsed,
		"input_tokens", resp.InputTokens, "output_tokens", resp.OutputTokens)
	return inv, nil
}

func (i *Invoker) systemPrompt(a *models.Agent) string {
	var b strings.Builder
	if a.SystemPrompt != "" {
		b.WriteString(a.SystemPrompt)
	} else {
		fmt.Fprintf(&b, "You are %s", firstNonEmpty(a.Name, a.ID))
		if a.Specialization != "" {
			fmt.Fprintf(&b, ", a %s specialist", a.Specialization)
		}
		if a.DepartmentID != "" {
			fmt.Fprintf(&b, " in the %s department", a.DepartmentID)
		}
		b.WriteString(".")
	}
	if g := i.registry.Guidance(a.Capabilities); g != "" {
		b.WriteString("\n\nGuidelines:\n")
		b.WriteString(g)
	}
	if a.Level != models.LevelMaster {
		b.WriteString("\n")
		b.WriteString(assessmentInstructions)
	}
	return b.String()
}
