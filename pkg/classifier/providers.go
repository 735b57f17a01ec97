package classifier

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownProvider is returned for a provider that is neither known nor given a base URL
var ErrUnknownProvider = errors.New("unknown AI provider")

// APIFormat is the wire protocol a provider speaks
type APIFormat string

const (
	FormatOpenAI    APIFormat = "openai"
	FormatAnthropic APIFormat = "anthropic"
	FormatGemini    APIFormat = "gemini"
)

// ProviderSettings is the resolved endpoint for a provider
type ProviderSettings struct {
	Name    string
	Format  APIFormat
	BaseURL string
	Model   string
}

var providerDefaults = map[string]ProviderSettings{
	"claude":      {Format: FormatAnthropic, BaseURL: "https://api.anthropic.com", Model: "claude-sonnet-4-5-20250514"},
	"openai":      {Format: FormatOpenAI, BaseURL: "https://api.openai.com/v1", Model: "gpt-4o-mini"},
	"ollama":      {Format: FormatOpenAI, BaseURL: "http://localhost:11434/v1", Model: "llama3.2"},
	"deepseek":    {Format: FormatOpenAI, BaseURL: "https://api.deepseek.com/v1", Model: "deepseek-chat"},
	"gemini":      {Format: FormatGemini, BaseURL: "https://generativelanguage.googleapis.com/v1beta", Model: "gemini-2.0-flash"},
	"moonshot":    {Format: FormatOpenAI, BaseURL: "https://api.moonshot.cn/v1", Model: "moonshot-v1-8k"},
	"qwen":        {Format: FormatOpenAI, BaseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1", Model: "qwen-turbo"},
	"zhipu":       {Format: FormatOpenAI, BaseURL: "https://open.bigmodel.cn/api/paas/v4", Model: "glm-4-flash"},
	"groq":        {Format: FormatOpenAI, BaseURL: "https://api.groq.com/openai/v1", Model: "llama-3.1-8b-instant"},
	"mistral":     {Format: FormatOpenAI, BaseURL: "https://api.mistral.ai/v1", Model: "mistral-small-latest"},
	"together":    {Format: FormatOpenAI, BaseURL: "https://api.together.xyz/v1", Model: "meta-llama/Llama-3-8b-chat-hf"},
	"xai":         {Format: FormatOpenAI, BaseURL: "https://api.x.ai/v1", Model: "grok-2-latest"},
	"openrouter":  {Format: FormatOpenAI, BaseURL: "https://openrouter.ai/api/v1", Model: "meta-llama/llama-3-8b-instruct"},
	"siliconflow": {Format: FormatOpenAI, BaseURL: "https://api.siliconflow.cn/v1", Model: "Qwen/Qwen2.5-7B-Instruct"},
	"fireworks":   {Format: FormatOpenAI, BaseURL: "https://api.fireworks.ai/inference/v1", Model: "accounts/fireworks/models/llama-v3p1-8b-instruct"},
	"cohere":      {Format: FormatOpenAI, BaseURL: "https://api.cohere.com/v1", Model: "command-r"},
	"deepinfra":   {Format: FormatOpenAI, BaseURL: "https://api.deepinfra.com/v1/openai", Model: "meta-llama/Meta-Llama-3-8B-Instruct"},
	"perplexity":  {Format: FormatOpenAI, BaseURL: "https://api.perplexity.ai", Model: "llama-3.1-sonar-small-128k-online"},
}

// ResolveProvider applies the provider's defaults to the optional overrides.
// Unknown providers are treated as OpenAI-compatible when baseURL is set.
func ResolveProvider(provider, baseURL, model string) (ProviderSettings, error) {
	name := strings.ToLower(strings.TrimSpace(provider))

	settings, ok := providerDefaults[name]
	if !ok {
		if baseURL == "" {
			return ProviderSettings{}, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
		}
		settings = ProviderSettings{Format: FormatOpenAI, Model: "gpt-4o-mini"}
	}
	settings.Name = name

	if baseURL != "" {
		settings.BaseURL = baseURL
	}
	if model != "" {
		settings.Model = model
	}
	return settings, nil
}

// Providers lists the built-in provider names
func Providers() []string {
	names := make([]string, 0, len(providerDefaults))
	for name := range providerDefaults {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RequiresAPIKey reports whether the provider needs a key. Only local ollama runs without one.
func RequiresAPIKey(provider string) bool {
	return strings.ToLower(strings.TrimSpace(provider)) != "ollama"
}

// DefaultBatchSize returns how many bookmarks go into one request for provider
func DefaultBatchSize(provider string) int {
	if strings.ToLower(strings.TrimSpace(provider)) == "ollama" {
		return 10
	}
	return 20
}
