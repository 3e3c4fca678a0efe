// Package writer implements the writer agent (C8): the only component
// that invokes the LLM to produce archival content, turning one window
// into zero or more persisted posts.
package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rivergate/chronicle/cache"
	"github.com/rivergate/chronicle/document"
	"github.com/rivergate/chronicle/llm"
	"github.com/rivergate/chronicle/rag"
	"github.com/rivergate/chronicle/repository"
	"github.com/rivergate/chronicle/window"
)

const (
	retrievalTopK                  = 5
	retrievalMinSimilarity         = 0.5
	retrievalFingerprintSampleSize = 20
	maxToolRounds                  = 6
	writerPromptVersion            = "v1"
	defaultMaxPromptTokens         = 100_000
	defaultTokenEncoding           = "cl100k_base"
)

// ErrPromptTooLarge is returned when a window's assembled prompt exceeds
// the configured token budget, either by pre-flight estimate or because the
// provider rejected it. The pipeline runner catches this to trigger a
// window split, the same way it catches llm.ErrPromptTooLarge elsewhere.
var ErrPromptTooLarge = errors.New("writer: prompt too large")

// Config bundles Agent construction dependencies. All fields are required
// except MaxPromptTokens and TokenEncoding, which default.
type Config struct {
	Client          *llm.Client
	Index           *rag.Index
	Repo            repository.Store
	L3              *cache.L3WriterOutput
	Metadata        MetadataProvider
	MaxPromptTokens int
	TokenEncoding   string
}

// Agent is the writer: one generation path, no feature flags choosing
// between alternate implementations.
type Agent struct {
	client *llm.Client
	index  *rag.Index
	repo   repository.Store
	l3     *cache.L3WriterOutput
	meta   MetadataProvider
	tokens *tokenEstimator

	maxPromptTokens int
}

// NewAgent constructs an Agent, failing fast on a missing dependency rather
// than deferring the failure to the first Write call.
func NewAgent(cfg Config) (*Agent, error) {
	if cfg.Client == nil {
		return nil, errors.New("writer: client is required")
	}
	if cfg.Index == nil {
		return nil, errors.New("writer: index is required")
	}
	if cfg.Repo == nil {
		return nil, errors.New("writer: repo is required")
	}
	if cfg.L3 == nil {
		return nil, errors.New("writer: l3 cache is required")
	}
	if cfg.Metadata == nil {
		return nil, errors.New("writer: metadata provider is required")
	}

	encoding := cfg.TokenEncoding
	if encoding == "" {
		encoding = defaultTokenEncoding
	}
	tokens, err := newTokenEstimator(encoding)
	if err != nil {
		return nil, err
	}

	maxPromptTokens := cfg.MaxPromptTokens
	if maxPromptTokens <= 0 {
		maxPromptTokens = defaultMaxPromptTokens
	}

	return &Agent{
		client:          cfg.Client,
		index:           cfg.Index,
		repo:            cfg.Repo,
		l3:              cfg.L3,
		meta:            cfg.Metadata,
		tokens:          tokens,
		maxPromptTokens: maxPromptTokens,
	}, nil
}

// rawPost is the shape the model's JSON reply is parsed into, before
// sanitization and identifier derivation.
type rawPost struct {
	Title         string   `json:"title"`
	Content       string   `json:"content"`
	Authors       []string `json:"authors"`
	Date          string   `json:"date"`
	Disambiguator string   `json:"disambiguator"`
}

// Write turns one window into zero or more persisted posts: assemble the
// prompt, check the L3 cache, invoke the model with its tool surface if
// the cache misses, parse the result, and persist + reindex each post.
func (a *Agent) Write(ctx context.Context, w *window.Window) ([]*document.Document, error) {
	if len(w.Entries) == 0 {
		return nil, nil
	}

	profiles, err := a.loadAuthorProfiles(ctx, w)
	if err != nil {
		return nil, err
	}

	windowPrompt, err := renderWindowPrompt(w, profiles)
	if err != nil {
		return nil, err
	}

	if n := a.tokens.Estimate(windowPrompt); n > a.maxPromptTokens {
		return nil, fmt.Errorf("%w: window %s estimated at %d tokens, budget is %d", ErrPromptTooLarge, w.Label, n, a.maxPromptTokens)
	}

	windowFP, enrichFP, retrievalFP, err := a.computeFingerprints(ctx, w)
	if err != nil {
		return nil, err
	}
	semanticHash := a.l3.SemanticHash(windowFP, enrichFP, retrievalFP, writerPromptVersion)

	raw, err := a.l3.Get(semanticHash)
	switch {
	case err == nil:
		return a.persistPosts(ctx, w, raw)
	case !errors.Is(err, cache.ErrMiss):
		return nil, fmt.Errorf("writer: l3 cache get: %w", err)
	}

	resp, err := a.converse(ctx, windowPrompt)
	if err != nil {
		return nil, err
	}

	raw = []byte(resp.Content)
	if err := a.l3.Put(semanticHash, raw); err != nil {
		return nil, fmt.Errorf("writer: l3 cache put: %w", err)
	}
	return a.persistPosts(ctx, w, raw)
}

// converse drives the tool-calling loop: it keeps feeding tool results back
// to the model until it returns a final answer with no further tool calls,
// or the round budget is exhausted.
func (a *Agent) converse(ctx context.Context, windowPrompt string) (*llm.Response, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemInstructions},
		{Role: llm.RoleUser, Content: windowPrompt},
	}
	settings := llm.Settings{Temperature: 0.4, MaxTokens: 4096, Tools: writerTools}

	for round := 0; round < maxToolRounds; round++ {
		resp, err := a.client.Request(ctx, messages, settings)
		if err != nil {
			if errors.Is(err, llm.ErrPromptTooLarge) {
				return nil, fmt.Errorf("%w: %v", ErrPromptTooLarge, err)
			}
			return nil, fmt.Errorf("writer: request: %w", err)
		}
		if len(resp.ToolCalls) == 0 {
			return resp, nil
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
		for _, call := range resp.ToolCalls {
			result, err := a.dispatchTool(ctx, call)
			if err != nil {
				result = fmt.Sprintf("error: %v", err)
			}
			messages = append(messages, llm.Message{Role: llm.RoleTool, Content: result, ToolCallID: call.ID})
		}
	}
	return nil, fmt.Errorf("writer: exceeded %d tool-call rounds without a final answer", maxToolRounds)
}

// loadAuthorProfiles fetches the profile document for each distinct author
// in the window, skipping authors with no profile yet rather than failing
// the whole window on it.
func (a *Agent) loadAuthorProfiles(ctx context.Context, w *window.Window) ([]*document.Document, error) {
	seen := make(map[string]bool)
	var profiles []*document.Document
	for _, e := range w.Entries {
		if seen[e.AuthorID] {
			continue
		}
		seen[e.AuthorID] = true

		d, err := a.repo.Get(ctx, e.AuthorID, document.TypeProfile)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("writer: load profile %q: %w", e.AuthorID, err)
		}
		profiles = append(profiles, d)
	}
	return profiles, nil
}

// computeFingerprints derives the three inputs to the L3 semantic hash
// besides the prompt version. Each must be cheap to compute without an LLM
// call, since they gate whether an LLM call happens at all.
func (a *Agent) computeFingerprints(ctx context.Context, w *window.Window) (windowFP, enrichFP, retrievalFP string, err error) {
	windowParts := make([]string, 0, 1+2*len(w.Entries))
	windowParts = append(windowParts, w.Label)

	mediaRefs := make(map[string]bool)
	authors := make(map[string]bool)
	for _, e := range w.Entries {
		windowParts = append(windowParts, e.ID, e.Timestamp.UTC().Format(time.RFC3339Nano))
		authors[e.AuthorID] = true
		for _, m := range e.MediaRefs {
			mediaRefs[m] = true
		}
	}
	windowFP = cache.ContentHash(windowParts...)

	var enrichParts []string
	for parent := range mediaRefs {
		docs, lerr := a.repo.List(ctx, repository.ListOptions{Filter: repository.Filter{DocType: document.TypeEnrichment, ParentID: parent}})
		if lerr != nil {
			return "", "", "", fmt.Errorf("writer: list enrichments for %q: %w", parent, lerr)
		}
		for _, d := range docs {
			enrichParts = append(enrichParts, d.ID, d.UpdatedAt.UTC().Format(time.RFC3339Nano))
		}
	}
	for author := range authors {
		d, gerr := a.repo.Get(ctx, author, document.TypeProfile)
		if gerr != nil {
			if errors.Is(gerr, repository.ErrNotFound) {
				continue
			}
			return "", "", "", fmt.Errorf("writer: get profile %q: %w", author, gerr)
		}
		enrichParts = append(enrichParts, d.ID, d.UpdatedAt.UTC().Format(time.RFC3339Nano))
	}
	sort.Strings(enrichParts)
	enrichFP = cache.ContentHash(enrichParts...)

	recent, rerr := a.repo.RecentPosts(ctx, retrievalFingerprintSampleSize)
	if rerr != nil {
		return "", "", "", fmt.Errorf("writer: recent posts: %w", rerr)
	}
	retrievalParts := make([]string, 0, 2*len(recent))
	for _, d := range recent {
		if d.SourceWindow == w.Label {
			continue // this window's own earlier output must not change its key
		}
		retrievalParts = append(retrievalParts, d.ID, d.UpdatedAt.UTC().Format(time.RFC3339Nano))
	}
	retrievalFP = cache.ContentHash(retrievalParts...)

	return windowFP, enrichFP, retrievalFP, nil
}

// persistPosts parses the model's (or cached) JSON reply and persists each
// post it names.
func (a *Agent) persistPosts(ctx context.Context, w *window.Window, raw []byte) ([]*document.Document, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var posts []rawPost
	if err := json.Unmarshal(raw, &posts); err != nil {
		return nil, fmt.Errorf("writer: parse model output: %w", err)
	}

	docs := make([]*document.Document, 0, len(posts))
	for i, p := range posts {
		postDate, err := sanitizeDate(p.Date, w.StartTime)
		if err != nil {
			return nil, fmt.Errorf("writer: post %d: %w", i, err)
		}

		disambiguator := p.Disambiguator
		if disambiguator == "" {
			disambiguator = fmt.Sprintf("%s-%d", w.Label, i)
		}
		id := document.Slug(p.Title, disambiguator)

		doc, err := document.New(id, document.TypePost, p.Title, p.Authors, p.Content, document.ContentTypeMarkdown, postDate, postDate, document.WithSourceWindow(w.Label))
		if err != nil {
			return nil, fmt.Errorf("writer: build post %d: %w", i, err)
		}
		if err := a.repo.Upsert(ctx, doc); err != nil {
			return nil, fmt.Errorf("writer: persist post %q: %w", id, err)
		}
		if err := a.index.IndexOne(ctx, doc); err != nil {
			return nil, fmt.Errorf("writer: index post %q: %w", id, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// sanitizeDate enforces testable property 4: a post's date is always the
// window's start time, never a range. raw is still validated as a single
// RFC3339 instant so a model that emits a range (by any separator) is
// rejected rather than silently truncated.
func sanitizeDate(raw string, windowStart time.Time) (time.Time, error) {
	if raw == "" {
		return windowStart, nil
	}
	if containsRangeMarker(raw) {
		return time.Time{}, fmt.Errorf("date %q looks like a range, not a single instant", raw)
	}
	if _, err := time.Parse(time.RFC3339, raw); err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", raw, err)
	}
	return windowStart, nil
}

func containsRangeMarker(raw string) bool {
	markers := []string{" to ", "..", "/", " - "}
	for _, m := range markers {
		if strings.Contains(raw, m) {
			return true
		}
	}
	return false
}
