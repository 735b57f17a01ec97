package classifier

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

const maxTokens = 4096

var apiVersionPattern = regexp.MustCompile(`^v\d+(alpha|beta)?\d*$`)

// Completer sends a single user prompt to a model and returns the text reply
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// NewCompleter builds the SDK client matching the provider's wire format
func NewCompleter(ctx context.Context, settings ProviderSettings, apiKey string) (Completer, error) {
	switch settings.Format {
	case FormatOpenAI:
		return newOpenAICompleter(settings, apiKey), nil
	case FormatAnthropic:
		return newAnthropicCompleter(settings, apiKey), nil
	case FormatGemini:
		return newGeminiCompleter(ctx, settings, apiKey)
	default:
		return nil, fmt.Errorf("%w: unsupported API format %q", ErrUnknownProvider, settings.Format)
	}
}

type openAICompleter struct {
	client *openai.Client
	model  string
}

func newOpenAICompleter(settings ProviderSettings, apiKey string) *openAICompleter {
	cfg := openai.DefaultConfig(apiKey)
	if settings.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(settings.BaseURL, "/")
	}
	return &openAICompleter{
		client: openai.NewClientWithConfig(cfg),
		model:  settings.Model,
	}
}

func (c *openAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

type anthropicCompleter struct {
	client anthropic.Client
	model  string
}

func newAnthropicCompleter(settings ProviderSettings, apiKey string) *anthropicCompleter {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if settings.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(settings.BaseURL))
	}
	return &anthropicCompleter{
		client: anthropic.NewClient(opts...),
		model:  settings.Model,
	}
}

func (c *anthropicCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude message failed: %w", err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", nil
}

type geminiCompleter struct {
	client *genai.Client
	model  string
}

func newGeminiCompleter(ctx context.Context, settings ProviderSettings, apiKey string) (*geminiCompleter, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if settings.BaseURL != "" {
		// The SDK appends the API version itself
		base := strings.TrimRight(settings.BaseURL, "/")
		if i := strings.LastIndex(base, "/"); i >= 0 && apiVersionPattern.MatchString(base[i+1:]) {
			cfg.HTTPOptions.APIVersion = base[i+1:]
			base = base[:i]
		}
		cfg.HTTPOptions.BaseURL = base + "/"
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &geminiCompleter{client: client, model: settings.Model}, nil
}

func (c *geminiCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate content failed: %w", err)
	}
	return resp.Text(), nil
}
