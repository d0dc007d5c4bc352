package capability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"brigade/internal/agents"
	"brigade/internal/models"
	"brigade/internal/quality"
)

type fakeLLM struct {
	reply    string
	info     map[string]any
	err      error
	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (f *fakeLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	for _, o := range options {
		o(&f.opts)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply, GenerationInfo: f.info}}}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

type agentTable map[string]models.Agent

func (t agentTable) Get(_ context.Context, id string) (*models.Agent, error) {
	a, ok := t[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &a, nil
}

func textOf(m llms.MessageContent) string {
	if len(m.Parts) == 0 {
		return ""
	}
	if tc, ok := m.Parts[0].(llms.TextContent); ok {
		return tc.Text
	}
	return ""
}

func TestRegistryValidate(t *testing.T) {
	r := DefaultRegistry()
	assert.NoError(t, r.Validate([]models.Agent{{ID: "a", Capabilities: models.StringSlice{"Code", "testing"}}}))

	err := r.Validate([]models.Agent{{ID: "a", Capabilities: models.StringSlice{"code", "eval"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a:eval")
}

func TestRegistryGuidance(t *testing.T) {
	r := NewRegistry(Static("x", "do x"), Static("y", ""))
	assert.Equal(t, "- do x\n", r.Guidance([]string{"X", "y", "missing"}))
	assert.Equal(t, []string{"x", "y"}, r.Names())
}

func TestPriceFor(t *testing.T) {
	assert.Equal(t, modelPricing["gpt-4o-mini"], PriceFor("GPT-4o-mini-2024"))
	assert.Equal(t, modelPricing["gpt-4o"], PriceFor("gpt-4o"))
	assert.Equal(t, modelPricing["haiku"], PriceFor("claude-3-5-haiku"))
	assert.Equal(t, DefaultPricing, PriceFor("mistral-large"))
}

func TestLangChainProviderComplete(t *testing.T) {
	llm := &fakeLLM{reply: "hello", info: map[string]any{"PromptTokens": 12, "CompletionTokens": 3}}
	p := NewLangChainProvider("openai", llm, "gpt-4o-mini")

	resp, err := p.Complete(context.Background(), Request{System: "be brief", Prompt: "hi", Temperature: 0.2, MaxTokens: 50})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, int64(12), resp.InputTokens)
	assert.Equal(t, int64(3), resp.OutputTokens)
	assert.Equal(t, "gpt-4o-mini", resp.Model)

	require.Len(t, llm.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, llm.messages[0].Role)
	assert.Equal(t, "be brief", textOf(llm.messages[0]))
	assert.Equal(t, "hi", textOf(llm.messages[1]))
	assert.Equal(t, 50, llm.opts.MaxTokens)
	assert.InDelta(t, 0.2, llm.opts.Temperature, 1e-9)
}

func TestLangChainProviderError(t *testing.T) {
	boom := errors.New("rate limit exceeded")
	p := NewLangChainProvider("openai", &fakeLLM{err: boom}, "")
	_, err := p.Complete(context.Background(), Request{Prompt: "hi"})
	assert.ErrorIs(t, err, boom)
}

func TestNewProviderRejectsUnknown(t *testing.T) {
	_, err := NewProvider(context.Background(), ProviderConfig{Provider: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestInvokerParsesSelfAssessment(t *testing.T) {
	llm := &fakeLLM{
		reply: "The answer.\nCONFIDENCE: 80\nRELEVANCE: 90\nTECHNICAL: 70",
		info:  map[string]any{"PromptTokens": 1000, "CompletionTokens": 1000},
	}
	table := agentTable{"coder": {
		ID: "coder", Name: "Coder", Level: models.LevelSpecialist, DepartmentID: "engineering",
		Specialization: "code", Capabilities: models.StringSlice{"code"}, Temperature: 0.3, TokenBudget: 512,
	}}
	inv := NewInvoker(table, nil, NewLangChainProvider("openai", llm, "gpt-4o"), nil)

	got, err := inv.Invoke(context.Background(), "coder", "write a parser", agents.TaskContext{DepartmentID: "engineering"})
	require.NoError(t, err)
	assert.Equal(t, "The answer.", got.Output)
	assert.Equal(t, map[quality.Dimension]float64{
		quality.Confidence: 80,
		quality.Relevance:  90,
		quality.Technical:  70,
	}, got.Dimensions)
	assert.Nil(t, got.QualityScore)
	assert.Equal(t, int64(2000), got.Usage.Total())
	assert.InDelta(t, 0.0125, got.Usage.Cost, 1e-9)

	system := textOf(llm.messages[0])
	assert.Contains(t, system, "Coder, a code specialist in the engineering department")
	assert.Contains(t, system, "idiomatic code")
	assert.Contains(t, system, "CONFIDENCE: <n>")
	assert.Equal(t, 512, llm.opts.MaxTokens)
}

func TestInvokerOverallScoreAndMaster(t *testing.T) {
	llm := &fakeLLM{reply: "[]\nSCORE: 75", info: map[string]any{"PromptTokens": 1, "CompletionTokens": 1}}
	table := agentTable{"master": {ID: "master", Level: models.LevelMaster, SystemPrompt: "Route requests."}}
	inv := NewInvoker(table, DefaultRegistry(), NewLangChainProvider("openai", llm, ""), nil)

	got, err := inv.Invoke(context.Background(), "master", "p", agents.TaskContext{})
	require.NoError(t, err)
	require.NotNil(t, got.QualityScore)
	assert.InDelta(t, 75, *got.QualityScore, 1e-9)
	assert.Equal(t, "[]", got.Output)
	assert.Equal(t, "Route requests.", textOf(llm.messages[0]))
}

func TestInvokerUnknownAgent(t *testing.T) {
	inv := NewInvoker(agentTable{}, nil, NewLangChainProvider("openai", &fakeLLM{}, ""), nil)
	_, err := inv.Invoke(context.Background(), "ghost", "p", agents.TaskContext{})
	assert.ErrorIs(t, err, models.ErrNotFound)
}
