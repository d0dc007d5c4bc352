package capability

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"
)

const defaultAnthropicMaxTokens = 4096

type AnthropicConfig struct {
	APIKey     string
	Model      string
	UseBedrock bool
	Region     string
}

// AnthropicProvider completes through the Anthropic Messages API, directly
// or through AWS Bedrock.
type AnthropicProvider struct {
	client  anthropic.Client
	model   anthropic.Model
	bedrock bool
}

func NewAnthropicProvider(ctx context.Context, cfg AnthropicConfig) (*AnthropicProvider, error) {
	var opts []option.RequestOption
	if cfg.UseBedrock {
		var loadOpts []func(*config.LoadOptions) error
		if cfg.Region != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	if cfg.UseBedrock && !strings.Contains(string(model), "anthropic.") {
		model = anthropic.Model("us.anthropic." + string(model) + "-v1:0")
	}

	return &AnthropicProvider{
		client:  anthropic.NewClient(opts...),
		model:   model,
		bedrock: cfg.UseBedrock,
	}, nil
}

func (p *AnthropicProvider) Name() string {
	if p.bedrock {
		return ProviderBedrock
	}
	return ProviderAnthropic
}

func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	model := p.model
	if req.Model != "" {
		model = anthropic.Model(req.Model)
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic completion failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("empty response from %s", p.Name())
	}
	return &Response{
		Text:         text.String(),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		Model:        string(model),
	}, nil
}
