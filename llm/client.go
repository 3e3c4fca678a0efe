// Package llm implements the rate-limited, key-rotating, batch-capable LLM
// client: C3 of the pipeline core. It wraps a narrow ProviderBackend behind
// uniform rate limiting, key/model rotation, and retry, so provider
// implementations never see those concerns.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/rivergate/chronicle/llm/ratelimit"
)

// Role distinguishes the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn in a chat-style generation request.
type Message struct {
	Role    Role
	Content string
	// ToolCallID links a RoleTool message back to the tool call it answers.
	ToolCallID string
}

// Tool describes a callable surface offered to the model, matching the
// writer agent's fixed tool set (rag_search, recent_posts,
// pipeline_metadata).
type Tool struct {
	Name        string
	Description string
	// ParametersJSONSchema is the tool's parameter schema encoded as JSON.
	ParametersJSONSchema string
}

// ToolCall is a model-issued invocation of one of the offered Tools.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON
}

// Settings bundles per-request generation parameters.
type Settings struct {
	Temperature float64
	MaxTokens   int
	Tools       []Tool
}

// Response is a single-shot generation result.
type Response struct {
	Content   string
	ToolCalls []ToolCall
	Model     string
}

// StreamChunk is one increment of a streamed generation.
type StreamChunk struct {
	DeltaContent string
	Done         bool
}

// BatchHandle identifies a request batch submitted to a provider's batch
// endpoint.
type BatchHandle struct {
	ID       string
	Provider string
}

// BatchState is the lifecycle of a submitted batch.
type BatchState string

const (
	BatchPending BatchState = "pending"
	BatchDone    BatchState = "done"
	BatchFailed  BatchState = "failed"
)

// BatchResult is the outcome of one request within a batch, in submission
// order.
type BatchResult struct {
	Response *Response
	Err      error
}

// BatchPoll is the result of polling a BatchHandle.
type BatchPoll struct {
	State   BatchState
	Results []BatchResult // populated only when State == BatchDone
	Err     error         // populated only when State == BatchFailed
}

// EmbedRole selects the asymmetric embedding prompt: documents and queries
// are embedded with distinct prompts tuned for their respective roles.
type EmbedRole string

const (
	EmbedRoleDocument EmbedRole = "document"
	EmbedRoleQuery    EmbedRole = "query"
)

var (
	// ErrPromptTooLarge is returned (wrapped) when a request exceeds the
	// provider's or a pre-flight estimate's context budget. C10 catches
	// this to trigger a window split.
	ErrPromptTooLarge = errors.New("llm: prompt too large")
	// ErrFatal marks an error the client will never retry nor rotate past:
	// auth failure or quota exhaustion across every configured key.
	ErrFatal = errors.New("llm: fatal provider error")
)

// ProviderBackend is the narrow per-provider surface the Client composes
// rate limiting, rotation, and retry around. A provider implementation
// never sees the rate limiter or key ring directly.
type ProviderBackend interface {
	Name() string
	Call(ctx context.Context, apiKey string, messages []Message, settings Settings) (*Response, error)
	Stream(ctx context.Context, apiKey string, messages []Message, settings Settings) (<-chan StreamChunk, error)
	SubmitBatch(ctx context.Context, apiKey string, reqs []BatchRequest) (BatchHandle, error)
	Poll(ctx context.Context, apiKey string, handle BatchHandle) (BatchPoll, error)
	Embed(ctx context.Context, apiKey string, texts []string, role EmbedRole) ([][]float32, error)
}

// BatchRequest is one unit submitted to SubmitBatch.
type BatchRequest struct {
	Messages []Message
	Settings Settings
}

// RateLimitClassifier decides whether an error returned by a backend call
// should trigger key rotation. Injected rather than hardcoded to one
// provider's error type, per SPEC_FULL.md §3 (C3).
type RateLimitClassifier func(error) bool

// Client is the centralized, rate-limited, key-rotating LLM client. A
// single Client is constructed once (per SPEC_FULL.md's "centralized
// client instantiation" factory) and shared by every caller: enrichment
// workers, the writer agent, and the RAG index's embedder.
type Client struct {
	backends    map[string]ProviderBackend // keyed by model name's backend
	keyRing     *KeyRing
	limiter     *ratelimit.Limiter
	retry       RetryPolicy
	isRateLimit RateLimitClassifier
}

// Config bundles Client construction dependencies.
type Config struct {
	Backends    map[string]ProviderBackend // model name -> backend
	KeyRing     *KeyRing
	Limiter     *ratelimit.Limiter
	Retry       RetryPolicy
	IsRateLimit RateLimitClassifier
}

// NewClient constructs a Client. Backends, KeyRing, Limiter and
// IsRateLimit are required; construction fails fast on a nil one rather
// than deferring the failure to the first call. A Retry with zero
// MaxAttempts is replaced by DefaultRetryPolicy.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Backends == nil {
		return nil, errors.New("llm: backends map is required")
	}
	if cfg.KeyRing == nil {
		return nil, errors.New("llm: key ring is required")
	}
	if cfg.Limiter == nil {
		return nil, errors.New("llm: limiter is required")
	}
	if cfg.IsRateLimit == nil {
		return nil, errors.New("llm: rate-limit classifier is required")
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryPolicy()
	}
	return &Client{
		backends:    cfg.Backends,
		keyRing:     cfg.KeyRing,
		limiter:     cfg.Limiter,
		retry:       retry,
		isRateLimit: cfg.IsRateLimit,
	}, nil
}

// backendFor resolves the backend registered for a rotation model name.
func (c *Client) backendFor(model string) (ProviderBackend, error) {
	b, ok := c.backends[model]
	if !ok {
		return nil, fmt.Errorf("%w: no backend registered for model %q", ErrFatal, model)
	}
	return b, nil
}

// Request performs a single-shot generation call. It acquires the rate
// limiter, picks the current (model, key) from the KeyRing, and retries
// transient errors with backoff; a classified rate-limit error rotates the
// key ring immediately, so the next attempt uses the new credential. That
// attempt counts against the retry budget like any other.
func (c *Client) Request(ctx context.Context, messages []Message, settings Settings) (*Response, error) {
	return Do(ctx, c.retry, func(ctx context.Context) (*Response, error) {
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		model, key, err := c.keyRing.Next()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFatal, err)
		}
		backend, err := c.backendFor(model)
		if err != nil {
			return nil, err
		}
		resp, err := backend.Call(ctx, key.Key, messages, settings)
		return resp, c.classify(err)
	})
}

// RequestStream performs a streaming generation call. Rate-limit
// acquisition and key selection happen once up front; mid-stream errors
// are not retried, since partially-delivered output cannot be safely
// replayed into the same channel.
func (c *Client) RequestStream(ctx context.Context, messages []Message, settings Settings) (<-chan StreamChunk, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	model, key, err := c.keyRing.Next()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFatal, err)
	}
	backend, err := c.backendFor(model)
	if err != nil {
		return nil, err
	}
	ch, err := backend.Stream(ctx, key.Key, messages, settings)
	if err != nil {
		if c.isRateLimit(err) {
			c.keyRing.RotateOnRateLimit()
		}
		return nil, err
	}
	return ch, nil
}

// SubmitBatch submits reqs to the provider's batch endpoint and returns a
// handle for Poll.
func (c *Client) SubmitBatch(ctx context.Context, reqs []BatchRequest) (BatchHandle, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return BatchHandle{}, err
	}
	model, key, err := c.keyRing.Next()
	if err != nil {
		return BatchHandle{}, fmt.Errorf("%w: %v", ErrFatal, err)
	}
	backend, err := c.backendFor(model)
	if err != nil {
		return BatchHandle{}, err
	}
	handle, err := backend.SubmitBatch(ctx, key.Key, reqs)
	return handle, c.classify(err)
}

// Poll checks the status of a previously submitted batch. Polling is
// cooperative: it performs exactly one provider round-trip and returns
// immediately, yielding to the caller's scheduler between polls rather
// than blocking until completion.
func (c *Client) Poll(ctx context.Context, handle BatchHandle) (BatchPoll, error) {
	backend, err := c.backendFor(handle.Provider)
	if err != nil {
		return BatchPoll{}, err
	}
	_, key, err := c.keyRing.Next()
	if err != nil {
		return BatchPoll{}, fmt.Errorf("%w: %v", ErrFatal, err)
	}
	return backend.Poll(ctx, key.Key, handle)
}

// Embed generates embeddings for texts under the given role. Mixing
// Document and Query texts in a single call is not representable by this
// signature (role applies uniformly), matching the "mixing is a
// programming error, rejected at the boundary" requirement — callers that
// need both roles make two calls.
func (c *Client) Embed(ctx context.Context, model string, texts []string, role EmbedRole) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return Do(ctx, c.retry, func(ctx context.Context) ([][]float32, error) {
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		_, key, err := c.keyRing.Next()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFatal, err)
		}
		backend, err := c.backendFor(model)
		if err != nil {
			return nil, err
		}
		vecs, err := backend.Embed(ctx, key.Key, texts, role)
		return vecs, c.classify(err)
	})
}

// classify rotates the key ring immediately on a classified rate-limit
// error (so the next retry attempt uses the next credential) and passes
// every other error through unmodified, per the injected-classifier
// contract in SPEC_FULL.md §3.
func (c *Client) classify(err error) error {
	if err == nil {
		return nil
	}
	if c.isRateLimit(err) {
		c.keyRing.RotateOnRateLimit()
	}
	return err
}
