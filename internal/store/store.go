// Package store persists chunks with their embeddings and answers nearest
// neighbour queries. Three backends share one contract: MySQL rows with an
// in-process vector index, PostgreSQL with pgvector, and Elasticsearch kNN.
package store

import (
	"context"

	"baria-go/internal/model"
)

// Store is the storage contract of the retrieval service.
//
// Insert is idempotent: documents are inserted only when absent and a chunk
// whose (document_id, content_hash) already exists is skipped and not counted.
// Search returns at most topK results by descending cosine similarity, ties
// broken by insertion order.
type Store interface {
	Name() string
	ExistingHashes(ctx context.Context, documentID int64, hashes []string) (map[string]bool, error)
	Insert(ctx context.Context, docs []model.Document, chunks []model.NewChunk) (int, error)
	Search(ctx context.Context, query []float32, topK int) ([]model.QueryResult, error)
	// DeleteDocument removes a document and its chunks and reports the chunks
	// removed. It returns errors.ErrNotFound when nothing matched.
	DeleteDocument(ctx context.Context, documentID int64) (int64, error)
	ListDocuments(ctx context.Context) ([]model.DocumentSummary, error)
	Count(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}
