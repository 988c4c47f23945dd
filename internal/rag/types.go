// Package rag defines the domain types shared by every stage of the knowledge
// retrieval pipeline: source files and their chunks, embeddings, persisted
// vector points, and scored query results. Concrete embedding clients and
// vector stores exchange these types so no stage depends on a specific
// backend.
package rag

// File identifies the source document of a chunk batch. It is supplied by
// the upload/document collaborator and consumed read-only.
type File struct {
	// Name is the human-readable document name (e.g. "Refund Policy.pdf").
	Name string `json:"name"`

	// Key is the storage key assigned to the uploaded file.
	Key string `json:"key"`

	// URL is the location the document can be retrieved from.
	URL string `json:"url"`
}

// Chunk is a unit of parsed document content produced by the external
// parsing/chunking collaborator. Chunks are immutable.
type Chunk struct {
	// Text is the opaque chunk content.
	Text string `json:"text"`

	// Metadata holds provider-supplied metadata (page number, filetype, ...).
	// Values may be nested maps or slices; they are flattened before storage.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Page is the page/position hint. Zero means unknown.
	Page int `json:"page,omitempty"`
}

// Well-known metadata keys carried on every Embedding and VectorPoint payload.
const (
	MetaText       = "text"
	MetaUserID     = "userId"
	MetaURL        = "url"
	MetaCitation   = "citation"
	MetaName       = "name"
	MetaKey        = "key"
	MetaChunkIndex = "chunkIndex"
	MetaFiletype   = "filetype"
)

// Embedding is the vector representation of one chunk plus its provenance.
// The ID is reproducible from the file name, key and chunk index so that a
// repeated embedding run for the same document overwrites prior vectors.
type Embedding struct {
	// ID is the stable embedding identifier ("<name>#<key>#<n>").
	ID string

	// Values is the embedding vector. Dimensionality is fixed per provider.
	Values []float32

	// Metadata is the flat key/value provenance stored alongside the vector.
	Metadata map[string]string
}

// Payload is the store-side envelope around an embedding's metadata.
type Payload struct {
	// EmbeddingID is the originating Embedding.ID.
	EmbeddingID string `json:"embeddingId"`

	// Metadata is the flat embedding metadata. It always retains text,
	// userId, url and citation so a context block can be rebuilt without a
	// secondary lookup.
	Metadata map[string]string `json:"metadata"`
}

// VectorPoint is the persisted form of an Embedding inside a vector store.
type VectorPoint struct {
	// PointID is the store-local identifier.
	PointID string

	// Vector holds the same values as the source Embedding.
	Vector []float32

	// Payload wraps the embedding id and metadata.
	Payload Payload
}

// Passage is a single scored hit returned by a similarity query.
type Passage struct {
	// PointID is the store-local id of the matched point.
	PointID string `json:"pointId"`

	// EmbeddingID is the stable embedding id of the matched point.
	EmbeddingID string `json:"embeddingId"`

	// Text is the chunk text.
	Text string `json:"text"`

	// Citation is the human-readable source reference.
	Citation string `json:"citation,omitempty"`

	// URL is the source document URL.
	URL string `json:"url,omitempty"`

	// Score is the similarity score; higher is more similar.
	Score float32 `json:"score"`

	// Metadata is the full flat payload metadata.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// QueryResult is returned by a vector store similarity query. Context is
// ordered by descending Score.
type QueryResult struct {
	Context []Passage
}

// PassageFromPayload rebuilds a Passage from a stored payload.
func PassageFromPayload(pointID string, score float32, p Payload) Passage {
	return Passage{
		PointID:     pointID,
		EmbeddingID: p.EmbeddingID,
		Text:        p.Metadata[MetaText],
		Citation:    p.Metadata[MetaCitation],
		URL:         p.Metadata[MetaURL],
		Score:       score,
		Metadata:    p.Metadata,
	}
}
