// Package anthropic implements llm.ProviderBackend over
// github.com/anthropics/anthropic-sdk-go, giving the rate-limited client a
// second chat-generation provider to rotate across (C3's "keys within a
// model before rotating to the next model" spans both providers when both
// are registered under distinct model names).
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/rivergate/chronicle/llm"
)

// Backend adapts anthropic-sdk-go to llm.ProviderBackend. Anthropic has no
// batch or embeddings endpoint in this SDK surface, so SubmitBatch/Poll/
// Embed return ErrUnsupported — a provider-level limitation, not a bug:
// the rate-limited Client only routes batch/embed calls to backends
// registered for a model that supports them.
type Backend struct {
	Model string
}

var _ llm.ProviderBackend = (*Backend)(nil)

// ErrUnsupported is returned by the operations Anthropic's chat-only API
// surface does not provide.
var ErrUnsupported = errors.New("anthropic: operation not supported by this backend")

func New(model string) *Backend {
	return &Backend{Model: model}
}

func (b *Backend) Name() string { return "anthropic" }

func (b *Backend) client(apiKey string) anthropic.Client {
	return anthropic.NewClient(option.WithAPIKey(apiKey))
}

func splitSystem(messages []llm.Message) (system string, rest []llm.Message) {
	for _, m := range messages {
		if m.Role == llm.RoleSystem {
			if system != "" {
				system += "\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

func toAnthropicMessages(messages []llm.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llm.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		case llm.RoleTool:
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}

func toAnthropicTools(tools []llm.Tool) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema map[string]any
		if t.ParametersJSONSchema != "" {
			_ = json.Unmarshal([]byte(t.ParametersJSONSchema), &schema)
		}
		out = append(out, anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
			Properties: schema["properties"],
		}, t.Name))
	}
	return out
}

func (b *Backend) Call(ctx context.Context, apiKey string, messages []llm.Message, settings llm.Settings) (*llm.Response, error) {
	client := b.client(apiKey)
	system, rest := splitSystem(messages)

	maxTokens := int64(settings.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(b.Model),
		MaxTokens: maxTokens,
		Messages:  toAnthropicMessages(rest),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if tools := toAnthropicTools(settings.Tools); tools != nil {
		params.Tools = tools
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyHTTPErr(err)
	}

	var content string
	var calls []llm.ToolCall
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += b.Text
		case anthropic.ToolUseBlock:
			calls = append(calls, llm.ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: string(b.Input),
			})
		}
	}

	return &llm.Response{Content: content, ToolCalls: calls, Model: string(resp.Model)}, nil
}

func (b *Backend) Stream(ctx context.Context, apiKey string, messages []llm.Message, settings llm.Settings) (<-chan llm.StreamChunk, error) {
	client := b.client(apiKey)
	system, rest := splitSystem(messages)

	maxTokens := int64(settings.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(b.Model),
		MaxTokens: maxTokens,
		Messages:  toAnthropicMessages(rest),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	stream := client.Messages.NewStreaming(ctx, params)
	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		for stream.Next() {
			event := stream.Current()
			if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
				if textDelta, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok {
					out <- llm.StreamChunk{DeltaContent: textDelta.Text}
				}
			}
		}
		out <- llm.StreamChunk{Done: true}
	}()
	return out, stream.Err()
}

func (b *Backend) SubmitBatch(ctx context.Context, apiKey string, reqs []llm.BatchRequest) (llm.BatchHandle, error) {
	return llm.BatchHandle{}, ErrUnsupported
}

func (b *Backend) Poll(ctx context.Context, apiKey string, handle llm.BatchHandle) (llm.BatchPoll, error) {
	return llm.BatchPoll{}, ErrUnsupported
}

func (b *Backend) Embed(ctx context.Context, apiKey string, texts []string, role llm.EmbedRole) ([][]float32, error) {
	return nil, ErrUnsupported
}

func classifyHTTPErr(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden {
			return fmt.Errorf("%w: %v", llm.ErrFatal, err)
		}
	}
	return err
}

// IsRateLimitErr classifies an Anthropic SDK error as a rate-limit error.
func IsRateLimitErr(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}
