package retrieval

import "context"

// DocumentChunk is one embedded passage of an ingested document.
type DocumentChunk struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
	Embedding  []float32      `json:"-"`
	Similarity float64        `json:"similarity,omitempty"`
}

// Embedder generates embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Repository stores chunks and retrieves them by vector similarity.
type Repository interface {
	InsertChunk(ctx context.Context, chunk DocumentChunk) error
	Search(ctx context.Context, embedding []float32, threshold float64, limit int) ([]DocumentChunk, error)
	Close() error
}

// IngestResult reports the outcome of one document ingestion.
type IngestResult struct {
	Filename        string `json:"filename"`
	ChunksProcessed int    `json:"chunks_processed"`
	Message         string `json:"message"`
}
