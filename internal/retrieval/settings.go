package retrieval

import (
	"context"

	"github.com/54b3r/ragpipe-go/internal/config"
	"github.com/54b3r/ragpipe-go/internal/rerank"
)

// Settings are the per-user retrieval settings for one session.
type Settings struct {
	// TopK is the number of passages requested from the vector store.
	TopK int `json:"topK"`

	// Rerank holds the top-N and relevance threshold passed to the reranker.
	Rerank rerank.Settings `json:"rerank"`
}

// DefaultSettings are used when nothing else is configured.
var DefaultSettings = Settings{
	TopK:   5,
	Rerank: rerank.Settings{TopN: 3},
}

// SettingsFromEnv reads RETRIEVAL_TOP_K, RERANK_TOP_N and
// RERANK_RELEVANCE_THRESHOLD over DefaultSettings.
func SettingsFromEnv() Settings {
	return Settings{
		TopK: config.Int("RETRIEVAL_TOP_K", DefaultSettings.TopK),
		Rerank: rerank.Settings{
			TopN:               config.Int("RERANK_TOP_N", DefaultSettings.Rerank.TopN),
			RelevanceThreshold: config.Float32("RERANK_RELEVANCE_THRESHOLD", DefaultSettings.Rerank.RelevanceThreshold),
		},
	}
}

// SettingsSource resolves a user's settings. The settings store itself is
// an external collaborator.
type SettingsSource interface {
	Settings(ctx context.Context, userID string) (Settings, error)
}

// StaticSettings serves the same settings to every user.
type StaticSettings Settings

// Settings implements SettingsSource.
func (s StaticSettings) Settings(context.Context, string) (Settings, error) {
	return Settings(s), nil
}
