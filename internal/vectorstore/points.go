package vectorstore

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/54b3r/ragpipe-go/internal/rag"
)

// pointNamespace seeds the UUIDv5 point ids.
var pointNamespace = uuid.MustParse("5b9d3c0e-8f4a-4c1e-9a57-2f6e1d7c4b21")

// PointID returns the deterministic point id for an embedding in userID's
// namespace. Re-upserting the same embedding id targets the same point.
func PointID(userID, embeddingID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(userID+"/"+embeddingID)).String()
}

// toPoints maps embeddings to vector points, forcing the userId metadata to
// the namespace being written.
func toPoints(userID string, embeddings []rag.Embedding) ([]rag.VectorPoint, error) {
	points := make([]rag.VectorPoint, 0, len(embeddings))
	for _, e := range embeddings {
		if e.ID == "" {
			return nil, fmt.Errorf("vectorstore: embedding without id: %w", rag.ErrValidation)
		}
		if len(e.Values) == 0 {
			return nil, fmt.Errorf("vectorstore: embedding %s has no values: %w", e.ID, rag.ErrValidation)
		}
		meta := make(map[string]string, len(e.Metadata)+1)
		for k, v := range e.Metadata {
			meta[k] = v
		}
		meta[rag.MetaUserID] = userID

		points = append(points, rag.VectorPoint{
			PointID: PointID(userID, e.ID),
			Vector:  e.Values,
			Payload: rag.Payload{EmbeddingID: e.ID, Metadata: meta},
		})
	}
	return points, nil
}

func validateUpsert(userID string) error {
	if userID == "" {
		return fmt.Errorf("vectorstore: userId is required: %w", rag.ErrValidation)
	}
	return nil
}

func validateQuery(userID string, vector []float32, topK int) error {
	if userID == "" {
		return fmt.Errorf("vectorstore: userId is required: %w", rag.ErrValidation)
	}
	if len(vector) == 0 {
		return fmt.Errorf("vectorstore: query vector is empty: %w", rag.ErrValidation)
	}
	if topK <= 0 {
		return fmt.Errorf("vectorstore: topK must be positive, got %d: %w", topK, rag.ErrValidation)
	}
	return nil
}

func validateDelete(userID string, file rag.File) error {
	if userID == "" {
		return fmt.Errorf("vectorstore: userId is required: %w", rag.ErrValidation)
	}
	if file.Name == "" && file.URL == "" {
		return fmt.Errorf("vectorstore: delete needs a document name or url: %w", rag.ErrValidation)
	}
	return nil
}

// matchesDocument reports whether meta belongs to the document identified by
// file's name or url.
func matchesDocument(meta map[string]string, file rag.File) bool {
	if file.Name != "" && meta[rag.MetaName] == file.Name {
		return true
	}
	return file.URL != "" && meta[rag.MetaURL] == file.URL
}
