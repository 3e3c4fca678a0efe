package writer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rivergate/chronicle/llm"
)

const (
	toolRAGSearch        = "rag_search"
	toolRecentPosts      = "recent_posts"
	toolPipelineMetadata = "pipeline_metadata"
)

// writerTools is the fixed tool surface offered to every generation call;
// it never varies per window, so it is declared once rather than rebuilt
// per request.
var writerTools = []llm.Tool{
	{
		Name:                 toolRAGSearch,
		Description:          "Search previously published posts by semantic similarity to a query.",
		ParametersJSONSchema: `{"type":"object","properties":{"query":{"type":"string"},"top_k":{"type":"integer"}},"required":["query"]}`,
	},
	{
		Name:                 toolRecentPosts,
		Description:          "List the most recently published posts, newest first.",
		ParametersJSONSchema: `{"type":"object","properties":{"limit":{"type":"integer"}}}`,
	},
	{
		Name:                 toolPipelineMetadata,
		Description:          "Return identifying metadata about the current pipeline run.",
		ParametersJSONSchema: `{"type":"object","properties":{}}`,
	},
}

// dispatchTool executes one model-issued tool call and returns its result
// as the raw text fed back into the conversation as a RoleTool message.
func (a *Agent) dispatchTool(ctx context.Context, call llm.ToolCall) (string, error) {
	switch call.Name {
	case toolRAGSearch:
		return a.callRAGSearch(ctx, call.Arguments)
	case toolRecentPosts:
		return a.callRecentPosts(ctx, call.Arguments)
	case toolPipelineMetadata:
		out, err := json.Marshal(a.meta.Metadata())
		if err != nil {
			return "", fmt.Errorf("writer: marshal pipeline metadata: %w", err)
		}
		return string(out), nil
	default:
		return "", fmt.Errorf("writer: unknown tool %q", call.Name)
	}
}

func (a *Agent) callRAGSearch(ctx context.Context, rawArgs string) (string, error) {
	var args struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
	}
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return "", fmt.Errorf("writer: parse rag_search args: %w", err)
	}
	topK := args.TopK
	if topK <= 0 {
		topK = retrievalTopK
	}
	hits, err := a.index.Search(ctx, args.Query, topK, retrievalMinSimilarity)
	if err != nil {
		return "", fmt.Errorf("writer: rag_search: %w", err)
	}
	out, err := json.Marshal(hits)
	if err != nil {
		return "", fmt.Errorf("writer: marshal rag_search result: %w", err)
	}
	return string(out), nil
}

func (a *Agent) callRecentPosts(ctx context.Context, rawArgs string) (string, error) {
	var args struct {
		Limit int `json:"limit"`
	}
	// An empty or malformed body just falls back to the default limit —
	// this tool call takes no required arguments.
	_ = json.Unmarshal([]byte(rawArgs), &args)
	limit := args.Limit
	if limit <= 0 {
		limit = retrievalFingerprintSampleSize
	}
	posts, err := a.repo.RecentPosts(ctx, limit)
	if err != nil {
		return "", fmt.Errorf("writer: recent_posts: %w", err)
	}
	summaries := make([]map[string]string, 0, len(posts))
	for _, p := range posts {
		summaries = append(summaries, map[string]string{"id": p.ID, "title": p.Title})
	}
	out, err := json.Marshal(summaries)
	if err != nil {
		return "", fmt.Errorf("writer: marshal recent_posts result: %w", err)
	}
	return string(out), nil
}
