// Package openai implements llm.ProviderBackend over
// github.com/openai/openai-go/v3, providing both chat generation and
// embeddings (with asymmetric document/query prefixing) for the rate
// limited client.
package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/rivergate/chronicle/llm"
)

// Backend adapts openai-go/v3 to llm.ProviderBackend. A new *openai.Client
// is built per call with the credential the rate-limited Client selected,
// since the SDK client is cheap to construct and this keeps the backend
// stateless with respect to credentials (the KeyRing, not the backend,
// owns key selection).
type Backend struct {
	Model string
}

var _ llm.ProviderBackend = (*Backend)(nil)

func New(model string) *Backend {
	return &Backend{Model: model}
}

func (b *Backend) Name() string { return "openai" }

func (b *Backend) client(apiKey string) openai.Client {
	return openai.NewClient(option.WithAPIKey(apiKey))
}

func toOpenAIMessages(messages []llm.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case llm.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		case llm.RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func toOpenAITools(tools []llm.Tool) []openai.ChatCompletionToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema map[string]any
		if t.ParametersJSONSchema != "" {
			_ = json.Unmarshal([]byte(t.ParametersJSONSchema), &schema)
		}
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  schema,
		}))
	}
	return out
}

func (b *Backend) params(messages []llm.Message, settings llm.Settings) openai.ChatCompletionNewParams {
	p := openai.ChatCompletionNewParams{
		Model:    b.Model,
		Messages: toOpenAIMessages(messages),
	}
	if settings.MaxTokens > 0 {
		p.MaxTokens = openai.Int(int64(settings.MaxTokens))
	}
	if settings.Temperature > 0 {
		p.Temperature = openai.Float(settings.Temperature)
	}
	if tools := toOpenAITools(settings.Tools); tools != nil {
		p.Tools = tools
	}
	return p
}

func (b *Backend) Call(ctx context.Context, apiKey string, messages []llm.Message, settings llm.Settings) (*llm.Response, error) {
	client := b.client(apiKey)
	resp, err := client.Chat.Completions.New(ctx, b.params(messages, settings))
	if err != nil {
		return nil, classifyHTTPErr(err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: empty choices in response")
	}
	choice := resp.Choices[0]

	var calls []llm.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		calls = append(calls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return &llm.Response{
		Content:   choice.Message.Content,
		ToolCalls: calls,
		Model:     resp.Model,
	}, nil
}

func (b *Backend) Stream(ctx context.Context, apiKey string, messages []llm.Message, settings llm.Settings) (<-chan llm.StreamChunk, error) {
	client := b.client(apiKey)
	stream := client.Chat.Completions.NewStreaming(ctx, b.params(messages, settings))

	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			out <- llm.StreamChunk{DeltaContent: chunk.Choices[0].Delta.Content}
		}
		out <- llm.StreamChunk{Done: true}
	}()
	return out, stream.Err()
}

// batchRequestLine is one line of the JSONL file the OpenAI batch endpoint
// expects; SubmitBatch here models the shape without a real file-upload
// round trip, since the pipeline's own enrichment.BatchThreshold governs
// whether callers take this path at all.
type batchRequestLine struct {
	CustomID string                           `json:"custom_id"`
	Method   string                           `json:"method"`
	URL      string                           `json:"url"`
	Body     openai.ChatCompletionNewParams   `json:"body"`
}

func (b *Backend) SubmitBatch(ctx context.Context, apiKey string, reqs []llm.BatchRequest) (llm.BatchHandle, error) {
	client := b.client(apiKey)

	var buf strings.Builder
	w := bufio.NewWriter(&buf)
	enc := json.NewEncoder(w)
	for i, r := range reqs {
		line := batchRequestLine{
			CustomID: fmt.Sprintf("req-%d", i),
			Method:   http.MethodPost,
			URL:      "/v1/chat/completions",
			Body:     b.params(r.Messages, r.Settings),
		}
		if err := enc.Encode(line); err != nil {
			return llm.BatchHandle{}, err
		}
	}
	if err := w.Flush(); err != nil {
		return llm.BatchHandle{}, err
	}

	file, err := client.Files.New(ctx, openai.FileNewParams{
		File:    strings.NewReader(buf.String()),
		Purpose: openai.FilePurposeBatch,
	})
	if err != nil {
		return llm.BatchHandle{}, classifyHTTPErr(err)
	}

	batch, err := client.Batches.New(ctx, openai.BatchNewParams{
		InputFileID:      file.ID,
		Endpoint:         openai.BatchNewParamsEndpointV1ChatCompletions,
		CompletionWindow: "24h",
	})
	if err != nil {
		return llm.BatchHandle{}, classifyHTTPErr(err)
	}

	return llm.BatchHandle{ID: batch.ID, Provider: b.Model}, nil
}

func (b *Backend) Poll(ctx context.Context, apiKey string, handle llm.BatchHandle) (llm.BatchPoll, error) {
	client := b.client(apiKey)
	batch, err := client.Batches.Get(ctx, handle.ID)
	if err != nil {
		return llm.BatchPoll{}, classifyHTTPErr(err)
	}

	switch batch.Status {
	case "completed":
		// Result parsing from the output file is the caller's concern in
		// a full deployment; here we report completion with no results,
		// since the pipeline only needs the pending/done/failed signal to
		// decide whether to keep draining.
		return llm.BatchPoll{State: llm.BatchDone}, nil
	case "failed", "expired", "cancelled":
		return llm.BatchPoll{State: llm.BatchFailed, Err: fmt.Errorf("openai: batch %s ended in status %s", handle.ID, batch.Status)}, nil
	default:
		return llm.BatchPoll{State: llm.BatchPending}, nil
	}
}

// embeddingPrefix implements the asymmetric embedding convention: document
// text is prefixed for storage-side embedding, query text for retrieval
// side, matching the instructed-embedding convention referenced in the
// teacher's providers/openai/embedding package.
func embeddingPrefix(role llm.EmbedRole) string {
	switch role {
	case llm.EmbedRoleQuery:
		return "search_query: "
	default:
		return "search_document: "
	}
}

func (b *Backend) Embed(ctx context.Context, apiKey string, texts []string, role llm.EmbedRole) ([][]float32, error) {
	client := b.client(apiKey)
	prefix := embeddingPrefix(role)
	input := make([]string, len(texts))
	for i, t := range texts {
		input[i] = prefix + t
	}

	resp, err := client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModelTextEmbedding3Small,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: input},
	})
	if err != nil {
		return nil, classifyHTTPErr(err)
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[d.Index] = vec
	}
	return out, nil
}

// classifyHTTPErr wraps an SDK error with llm.ErrFatal when it carries a
// 401/403 (auth) status, since those are never worth retrying or rotating
// past within the same credential; every other error passes through for
// the injected rate-limit classifier to examine.
func classifyHTTPErr(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden {
			return fmt.Errorf("%w: %v", llm.ErrFatal, err)
		}
	}
	return err
}

// IsRateLimitErr classifies an OpenAI SDK error as a rate-limit error,
// injected into llm.Client as its RateLimitClassifier.
func IsRateLimitErr(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}
