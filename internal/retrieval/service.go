package retrieval

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/NeethishS/Echo-Session/internal/logger"
)

// Service is the optional knowledge-base capability: embed uploaded
// documents, retrieve them by vector similarity. It is separately invocable
// and not part of the per-turn chat flow.
type Service struct {
	repo      Repository
	embedder  Embedder
	threshold float64
	limit     int
}

func NewService(repo Repository, embedder Embedder, threshold float64, limit int) *Service {
	if limit <= 0 {
		limit = 3
	}
	return &Service{repo: repo, embedder: embedder, threshold: threshold, limit: limit}
}

// Ingest reads, splits, embeds and stores one uploaded document. PDF files
// are extracted to plain text; everything else is treated as UTF-8 text.
// A chunk that fails to store is skipped, not fatal, mirroring the
// best-effort contract of ingestion.
func (s *Service) Ingest(ctx context.Context, filename string, data []byte) (*IngestResult, error) {
	var content string
	if strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		text, err := extractPDFText(data)
		if err != nil {
			return nil, fmt.Errorf("extract pdf text: %w", err)
		}
		content = text
	} else {
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("document %q is not valid UTF-8 text", filename)
		}
		content = string(data)
	}

	content = NormalizeWhitespace(content)
	if content == "" {
		return nil, fmt.Errorf("empty document")
	}

	chunks := ChunkText(content, defaultChunkSize)
	stored := 0
	for _, chunk := range chunks {
		embedding, err := s.embedder.Embed(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("embed chunk: %w", err)
		}
		err = s.repo.InsertChunk(ctx, DocumentChunk{
			Content:   chunk,
			Metadata:  map[string]any{"filename": filename},
			Embedding: embedding,
		})
		if err != nil {
			logger.L.Warn("failed to store document chunk", "filename", filename, "error", err)
			continue
		}
		stored++
	}

	return &IngestResult{
		Filename:        filename,
		ChunksProcessed: stored,
		Message:         "Document successfully ingested into Knowledge Base.",
	}, nil
}

// Query embeds the query string and returns the matched passages joined with
// separators, ready to drop into a prompt. A failed search returns an empty
// context rather than an error so callers can treat retrieval as optional.
func (s *Service) Query(ctx context.Context, query string) string {
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		logger.L.Warn("query embedding failed", "error", err)
		return ""
	}

	chunks, err := s.repo.Search(ctx, embedding, s.threshold, s.limit)
	if err != nil {
		logger.L.Warn("vector search failed", "error", err)
		return ""
	}

	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Content)
		b.WriteString("\n---\n")
	}
	return b.String()
}

func (s *Service) Close() error {
	return s.repo.Close()
}

func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	textReader, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(textReader); err != nil {
		return "", err
	}
	return buf.String(), nil
}
