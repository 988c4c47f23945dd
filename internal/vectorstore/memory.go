package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/54b3r/ragpipe-go/internal/rag"
)

// MemoryStore is an in-process Provider using brute-force cosine similarity.
type MemoryStore struct {
	mu sync.RWMutex
	// points is keyed by user id, then point id.
	points map[string]map[string]rag.VectorPoint
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{points: make(map[string]map[string]rag.VectorPoint)}
}

// Name implements Provider.
func (s *MemoryStore) Name() string { return ProviderMemory }

// Upsert implements Provider.
func (s *MemoryStore) Upsert(_ context.Context, userID string, embeddings []rag.Embedding) (int, error) {
	if err := validateUpsert(userID); err != nil {
		return 0, err
	}
	points, err := toPoints(userID, embeddings)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.points[userID]
	if !ok {
		ns = make(map[string]rag.VectorPoint)
		s.points[userID] = ns
	}
	for _, p := range points {
		ns[p.PointID] = p
	}
	return len(points), nil
}

// Query implements Provider.
func (s *MemoryStore) Query(ctx context.Context, userID string, vector []float32, topK int) (*rag.QueryResult, error) {
	if err := validateQuery(userID, vector, topK); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	passages := make([]rag.Passage, 0, len(s.points[userID]))
	for _, p := range s.points[userID] {
		if len(p.Vector) != len(vector) {
			continue
		}
		passages = append(passages, rag.PassageFromPayload(p.PointID, cosineSimilarity(vector, p.Vector), p.Payload))
	}
	s.mu.RUnlock()

	sort.Slice(passages, func(i, j int) bool {
		if passages[i].Score != passages[j].Score {
			return passages[i].Score > passages[j].Score
		}
		return passages[i].EmbeddingID < passages[j].EmbeddingID
	})
	if len(passages) > topK {
		passages = passages[:topK]
	}
	return &rag.QueryResult{Context: passages}, nil
}

// Delete implements Provider.
func (s *MemoryStore) Delete(_ context.Context, userID string, file rag.File) (int, error) {
	if err := validateDelete(userID, file); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, p := range s.points[userID] {
		if matchesDocument(p.Payload.Metadata, file) {
			delete(s.points[userID], id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of points stored for userID.
func (s *MemoryStore) Len(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points[userID])
}

// Close implements Provider.
func (s *MemoryStore) Close() error { return nil }

// cosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either has zero magnitude.
func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
