package vectorstore

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/ragpipe-go/internal/rag"
)

// Payload field names. Metadata is stored as a nested struct so that filters
// address it as "metadata.<key>".
const (
	payloadEmbeddingID = "embeddingId"
	payloadMetadata    = "metadata"

	fieldUserID = payloadMetadata + "." + rag.MetaUserID
	fieldName   = payloadMetadata + "." + rag.MetaName
	fieldURL    = payloadMetadata + "." + rag.MetaURL
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this
	// collection. Only used when the collection has to be created.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements Provider backed by a Qdrant instance.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore creates a new QdrantStore, ensuring the target collection
// and its user-namespace index exist.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "ragpipe"
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return store, nil
}

// Client exposes the gRPC client for readiness probes.
func (s *QdrantStore) Client() *qdrant.Client { return s.client }

// Name implements Provider.
func (s *QdrantStore) Name() string { return ProviderQdrant }

// ensureCollection creates the Qdrant collection if it does not already
// exist, with a keyword index on the user namespace field.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}
	if s.cfg.VectorSize == 0 {
		return fmt.Errorf("qdrant: collection %q does not exist and no vector size is configured: %w", s.cfg.Collection, rag.ErrValidation)
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.cfg.Collection,
		FieldName:      fieldUserID,
		FieldType:      qdrant.PtrOf(qdrant.FieldType_FieldTypeKeyword),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to index %s: %w", fieldUserID, err)
	}
	return nil
}

// Upsert implements Provider.
func (s *QdrantStore) Upsert(ctx context.Context, userID string, embeddings []rag.Embedding) (int, error) {
	if err := validateUpsert(userID); err != nil {
		return 0, err
	}
	points, err := toPoints(userID, embeddings)
	if err != nil {
		return 0, err
	}
	if len(points) == 0 {
		return 0, nil
	}

	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		payload, err := qdrant.TryValueMap(map[string]any{
			payloadEmbeddingID: p.Payload.EmbeddingID,
			payloadMetadata:    stringMapToAny(p.Payload.Metadata),
		})
		if err != nil {
			return 0, fmt.Errorf("qdrant: encode payload for %s: %w", p.Payload.EmbeddingID, err)
		}
		structs = append(structs, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.PointID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payload,
		})
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         structs,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: upsert failed: %w: %w", rag.ErrProvider, err)
	}
	return len(structs), nil
}

// Query implements Provider.
func (s *QdrantStore) Query(ctx context.Context, userID string, vector []float32, topK int) (*rag.QueryResult, error) {
	if err := validateQuery(userID, vector, topK); err != nil {
		return nil, err
	}

	limit := uint64(topK)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         userFilter(userID),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w: %w", rag.ErrProvider, err)
	}

	passages := make([]rag.Passage, 0, len(results))
	for _, r := range results {
		passages = append(passages, rag.PassageFromPayload(r.GetId().GetUuid(), r.GetScore(), decodePayload(r.GetPayload())))
	}
	return &rag.QueryResult{Context: passages}, nil
}

// Delete implements Provider. It counts the matching points first so the
// caller learns how many were removed.
func (s *QdrantStore) Delete(ctx context.Context, userID string, file rag.File) (int, error) {
	if err := validateDelete(userID, file); err != nil {
		return 0, err
	}
	filter := documentFilter(userID, file)

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Filter:         filter,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count failed: %w: %w", rag.ErrProvider, err)
	}
	if count == 0 {
		return 0, nil
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: delete failed: %w: %w", rag.ErrProvider, err)
	}
	return int(count), nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// userFilter restricts a request to userID's namespace.
func userFilter(userID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(fieldUserID, userID)},
	}
}

// documentFilter matches userID's points whose name or url equals the ones
// set on file. Unset fields are not part of the filter.
func documentFilter(userID string, file rag.File) *qdrant.Filter {
	f := userFilter(userID)
	if file.Name != "" {
		f.Should = append(f.Should, qdrant.NewMatch(fieldName, file.Name))
	}
	if file.URL != "" {
		f.Should = append(f.Should, qdrant.NewMatch(fieldURL, file.URL))
	}
	return f
}

// decodePayload rebuilds a rag.Payload from a Qdrant payload map.
func decodePayload(p map[string]*qdrant.Value) rag.Payload {
	out := rag.Payload{
		EmbeddingID: p[payloadEmbeddingID].GetStringValue(),
		Metadata:    make(map[string]string),
	}
	for k, v := range p[payloadMetadata].GetStructValue().GetFields() {
		out.Metadata[k] = v.GetStringValue()
	}
	return out
}

func stringMapToAny(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
