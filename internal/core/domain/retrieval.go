package domain

// Chunk is a stored unit of ingested text. Chunks are immutable once saved.
type Chunk struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	ChunkIndex int               `json:"chunk_index"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata"`
}

// Metadata keys written by ingestion.
const (
	MetaSourceFile = "source_file"
	MetaDocumentID = "document_id"
	MetaChunkIndex = "chunk_index"
	MetaMimeType   = "mime_type"
)

// SimilarityHit is a raw nearest-neighbour result. Distance is cosine
// distance (1 - similarity, range 0..2); lower is better.
type SimilarityHit struct {
	Text     string
	Metadata map[string]string
	Distance float64
}

// RankedHit is a single ranker's output with a per-ranker relevance score.
type RankedHit struct {
	Text     string
	Metadata map[string]string
	Score    float64
}

// RetrievedChunk is one entry of a fused result list.
type RetrievedChunk struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
	Score    float64           `json:"score"`
}

func (c RetrievedChunk) SourceFile() string {
	return c.Metadata[MetaSourceFile]
}

// QueryOptions tunes a retrieval call. Zero values select the configured defaults.
type QueryOptions struct {
	TopK           int
	ScoreThreshold *float64
	SemanticOnly   bool
}

func Threshold(v float64) *float64 {
	return &v
}

type Answer struct {
	Text    string           `json:"text"`
	Sources []RetrievedChunk `json:"sources"`
}
