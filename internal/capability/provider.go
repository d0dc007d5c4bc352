package capability

import (
	"context"
	"fmt"
	"os"
)

// Provider names accepted by NewProvider.
const (
	ProviderOpenAI       = "openai"
	ProviderGitHubModels = "github_models"
	ProviderAzureOpenAI  = "azure_openai"
	ProviderAnthropic    = "anthropic"
	ProviderBedrock      = "bedrock"
)

const gitHubModelsURL = "https://models.inference.ai.azure.com"

// Request is one completion call.
type Request struct {
	System      string
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Response is a completion and its token usage. Zero token counts mean the
// provider did not report them.
type Response struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
	Model        string
}

// Provider completes prompts with a language model.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// ProviderConfig selects and configures a provider.
type ProviderConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Region   string
}

// NewProvider builds the provider named by cfg.Provider. Missing keys fall
// back to the provider's usual environment variable.
func NewProvider(ctx context.Context, cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAIProvider(firstNonEmpty(cfg.APIKey, os.Getenv("OPENAI_API_KEY")), cfg.BaseURL, cfg.Model)
	case ProviderGitHubModels:
		token := firstNonEmpty(cfg.APIKey, os.Getenv("GITHUB_TOKEN"))
		if token == "" {
			return nil, fmt.Errorf("GITHUB_TOKEN environment variable is required for GitHub Models")
		}
		return NewOpenAIProvider(token, firstNonEmpty(cfg.BaseURL, gitHubModelsURL), firstNonEmpty(cfg.Model, "gpt-4o-mini"))
	case ProviderAzureOpenAI:
		return NewAzureProvider(
			firstNonEmpty(cfg.BaseURL, os.Getenv("AZURE_OPENAI_ENDPOINT")),
			firstNonEmpty(cfg.APIKey, os.Getenv("AZURE_OPENAI_API_KEY")),
			firstNonEmpty(cfg.Model, os.Getenv("AZURE_OPENAI_DEPLOYMENT_NAME")),
		)
	case ProviderAnthropic:
		return NewAnthropicProvider(ctx, AnthropicConfig{
			APIKey: firstNonEmpty(cfg.APIKey, os.Getenv("ANTHROPIC_API_KEY")),
			Model:  cfg.Model,
		})
	case ProviderBedrock:
		return NewAnthropicProvider(ctx, AnthropicConfig{
			Model:      cfg.Model,
			UseBedrock: true,
			Region:     cfg.Region,
		})
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
