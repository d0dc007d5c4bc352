package capability

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChainProvider completes through any langchaingo model.
type LangChainProvider struct {
	name  string
	llm   llms.Model
	model string
}

// NewOpenAIProvider targets the OpenAI API or a compatible endpoint such as
// GitHub Models.
func NewOpenAIProvider(token, baseURL, model string) (*LangChainProvider, error) {
	if token == "" {
		return nil, fmt.Errorf("an API token is required for the OpenAI provider")
	}
	opts := []openai.Option{openai.WithToken(token)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	if model != "" {
		opts = append(opts, openai.WithModel(model))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}
	name := ProviderOpenAI
	if baseURL == gitHubModelsURL {
		name = ProviderGitHubModels
	}
	return NewLangChainProvider(name, client, model), nil
}

// NewLangChainProvider wraps an existing model.
func NewLangChainProvider(name string, llm llms.Model, model string) *LangChainProvider {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &LangChainProvider{name: name, llm: llm, model: model}
}

func (p *LangChainProvider) Name() string { return p.name }

func (p *LangChainProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	model := firstNonEmpty(req.Model, p.model)

	var messages []llms.MessageContent
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	opts := []llms.CallOption{
		llms.WithModel(model),
		llms.WithTemperature(req.Temperature),
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}

	resp, err := p.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to generate completion: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from %s", p.name)
	}

	choice := resp.Choices[0]
	out := &Response{Text: choice.Content, Model: model}
	out.InputTokens = usageInt(choice.GenerationInfo, "PromptTokens")
	out.OutputTokens = usageInt(choice.GenerationInfo, "CompletionTokens")
	if out.InputTokens == 0 {
		out.InputTokens = int64(llms.CountTokens(model, req.System+"\n"+req.Prompt))
	}
	if out.OutputTokens == 0 {
		out.OutputTokens = int64(llms.CountTokens(model, choice.Content))
	}
	return out, nil
}

func usageInt(info map[string]any, key string) int64 {
	switch v := info[key].(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}
