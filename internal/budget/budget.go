// Package budget estimates prompt sizes for the LLM reranker and trims the
// candidate passage list to fit a model's context window. Backends use
// different tokenizers, so estimation uses a conservative character
// heuristic: 1 token ≈ 4 characters.
package budget

import (
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/ragpipe-go/internal/rag"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input budget in tokens. It fits
	// 8k-context models while leaving room for the output.
	DefaultMaxContextTokens = 6000

	// passageOverhead approximates the numbering and separators added around
	// each passage in a prompt.
	passageOverhead = 8
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// EstimatePassages returns the estimated token count of passages rendered
// into a prompt.
func EstimatePassages(passages []rag.Passage) int {
	total := 0
	for _, p := range passages {
		total += passageOverhead + Estimate(p.Text) + Estimate(p.Citation)
	}
	return total
}

// TrimPassages drops passages from the end of the list until fixed plus the
// remaining passages fit within maxTokens. passages must be ordered best
// first, so the lowest-scored candidates go first.
//
// When even the first passage does not fit, the empty slice is returned;
// fixed messages are never dropped here.
func TrimPassages(fixed []*schema.Message, passages []rag.Passage, maxTokens int) []rag.Passage {
	if len(passages) == 0 {
		return passages
	}
	remaining := maxTokens - EstimateMessages(fixed)
	used := 0
	for i, p := range passages {
		cost := passageOverhead + Estimate(p.Text) + Estimate(p.Citation)
		if used+cost > remaining {
			return passages[:i]
		}
		used += cost
	}
	return passages
}
