package capability

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/ai/azopenai"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
)

// AzureProvider completes through an Azure OpenAI deployment.
type AzureProvider struct {
	client     *azopenai.Client
	deployment string
}

func NewAzureProvider(endpoint, apiKey, deployment string) (*AzureProvider, error) {
	if endpoint == "" || apiKey == "" || deployment == "" {
		return nil, fmt.Errorf("Azure OpenAI configuration missing: ensure AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_API_KEY, and AZURE_OPENAI_DEPLOYMENT_NAME are set")
	}
	client, err := azopenai.NewClientWithKeyCredential(endpoint, azcore.NewKeyCredential(apiKey), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure OpenAI client: %w", err)
	}
	return &AzureProvider{client: client, deployment: deployment}, nil
}

func (p *AzureProvider) Name() string { return ProviderAzureOpenAI }

func (p *AzureProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	var messages []azopenai.ChatRequestMessageClassification
	if req.System != "" {
		messages = append(messages, &azopenai.ChatRequestSystemMessage{
			Content: azopenai.NewChatRequestSystemMessageContent(req.System),
		})
	}
	messages = append(messages, &azopenai.ChatRequestUserMessage{
		Content: azopenai.NewChatRequestUserMessageContent(req.Prompt),
	})

	deployment := firstNonEmpty(req.Model, p.deployment)
	opts := azopenai.ChatCompletionsOptions{
		Messages:       messages,
		Temperature:    to.Ptr(float32(req.Temperature)),
		DeploymentName: to.Ptr(deployment),
	}
	if req.MaxTokens > 0 {
		opts.MaxTokens = to.Ptr(int32(req.MaxTokens))
	}

	resp, err := p.client.GetChatCompletions(ctx, opts, nil)
	if err != nil {
		return nil, fmt.Errorf("Azure OpenAI completion failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil || resp.Choices[0].Message.Content == nil {
		return nil, fmt.Errorf("empty response from Azure OpenAI")
	}

	out := &Response{Text: *resp.Choices[0].Message.Content, Model: deployment}
	if u := resp.Usage; u != nil {
		if u.PromptTokens != nil {
			out.InputTokens = int64(*u.PromptTokens)
		}
		if u.CompletionTokens != nil {
			out.OutputTokens = int64(*u.CompletionTokens)
		}
	}
	return out, nil
}
