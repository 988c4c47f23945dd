package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/ragpipe-go/internal/budget"
	"github.com/54b3r/ragpipe-go/internal/logging"
	"github.com/54b3r/ragpipe-go/internal/rag"
)

const llmSystemPrompt = `You judge how relevant text passages are to a user question.
Score each passage from 0 (irrelevant) to 1 (directly answers the question).
Reply with a JSON array only, one object per passage, for example:
[{"index": 1, "score": 0.92}, {"index": 2, "score": 0.10}]
Use the passage numbers exactly as given. Do not add commentary.`

// LLMReranker asks a chat model to score passages.
type LLMReranker struct {
	model model.BaseChatModel
	// maxTokens bounds the prompt; lower-ranked passages are dropped to fit.
	maxTokens int
}

// NewLLMReranker returns an LLMReranker over m. maxTokens <= 0 uses
// budget.DefaultMaxContextTokens.
func NewLLMReranker(m model.BaseChatModel, maxTokens int) *LLMReranker {
	if maxTokens <= 0 {
		maxTokens = budget.DefaultMaxContextTokens
	}
	return &LLMReranker{model: m, maxTokens: maxTokens}
}

// Name implements Reranker.
func (r *LLMReranker) Name() string { return ProviderLLM }

type llmScore struct {
	Index int     `json:"index"`
	Score float32 `json:"score"`
}

// Rerank implements Reranker.
func (r *LLMReranker) Rerank(ctx context.Context, query string, passages []rag.Passage, s Settings) (string, error) {
	if len(passages) == 0 {
		return "", nil
	}
	log := logging.FromContext(ctx)

	fixed := []*schema.Message{
		schema.SystemMessage(llmSystemPrompt),
		schema.UserMessage("Question: " + query),
	}
	candidates := budget.TrimPassages(fixed, passages, r.maxTokens)
	if len(candidates) < len(passages) {
		log.Warn("rerank: passages dropped to fit the prompt budget",
			slog.Int("kept", len(candidates)),
			slog.Int("dropped", len(passages)-len(candidates)),
			slog.Int("max_tokens", r.maxTokens),
		)
	}
	if len(candidates) == 0 {
		return "", nil
	}

	msgs := []*schema.Message{fixed[0], schema.UserMessage(buildPrompt(query, candidates))}
	resp, err := r.model.Generate(ctx, msgs)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("rerank: %w", ctx.Err())
		}
		return "", fmt.Errorf("rerank: %w: generate: %w", rag.ErrProvider, err)
	}
	if resp == nil {
		return "", fmt.Errorf("rerank: %w: empty model response", rag.ErrProvider)
	}

	scores, err := parseScores(resp.Content)
	if err != nil {
		return "", fmt.Errorf("rerank: %w: %w", rag.ErrProvider, err)
	}

	scored := make([]rag.Passage, 0, len(scores))
	seen := make(map[int]bool, len(scores))
	for _, sc := range scores {
		i := sc.Index - 1
		if i < 0 || i >= len(candidates) || seen[i] {
			continue
		}
		seen[i] = true
		p := candidates[i]
		p.Score = sc.Score
		scored = append(scored, p)
	}
	return FormatContext(Select(scored, s)), nil
}

func buildPrompt(query string, passages []rag.Passage) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(query)
	b.WriteString("\n\nPassages:\n")
	for i, p := range passages {
		fmt.Fprintf(&b, "\n%d. %s\n", i+1, strings.TrimSpace(p.Text))
	}
	return b.String()
}

// parseScores extracts the JSON array from a model reply, tolerating code
// fences and surrounding prose.
func parseScores(content string) ([]llmScore, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON array in model response")
	}
	var scores []llmScore
	if err := json.Unmarshal([]byte(content[start:end+1]), &scores); err != nil {
		return nil, fmt.Errorf("decode model scores: %w", err)
	}
	return scores, nil
}
