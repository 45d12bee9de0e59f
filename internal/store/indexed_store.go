package store

import (
	"context"
	"fmt"

	"baria-go/internal/model"
	"baria-go/internal/repository"
	"baria-go/internal/vectorindex"
	"baria-go/pkg/log"
)

const loadBatchSize = 500

// IndexedStore keeps chunk rows in a ChunkRepository (MySQL, or memory for
// development) and their vectors in an in-process index rebuilt by Load.
type IndexedStore struct {
	name  string
	repo  repository.ChunkRepository
	index vectorindex.Index
}

func NewIndexedStore(name string, repo repository.ChunkRepository, index vectorindex.Index) *IndexedStore {
	return &IndexedStore{name: name, repo: repo, index: index}
}

func (s *IndexedStore) Name() string { return s.name }

// Load fills the vector index from the chunks table.
func (s *IndexedStore) Load(ctx context.Context) (int, error) {
	loaded := 0
	err := s.repo.Scan(ctx, loadBatchSize, func(batch []model.Chunk) error {
		entries := make([]vectorindex.Entry, 0, len(batch))
		for _, c := range batch {
			if len(c.Embedding) != s.index.Dim() {
				log.Warnf("[IndexedStore] chunk %d has %d dimensions, index expects %d; skipped", c.ID, len(c.Embedding), s.index.Dim())
				continue
			}
			entries = append(entries, vectorindex.Entry{ID: c.ID, DocumentID: c.DocumentID, Vector: c.Embedding})
		}
		if err := s.index.Add(entries...); err != nil {
			return err
		}
		loaded += len(entries)
		return nil
	})
	if err != nil {
		return loaded, fmt.Errorf("load vector index: %w", err)
	}
	log.Infof("[IndexedStore] vector index loaded with %d chunks", loaded)
	return loaded, nil
}

func (s *IndexedStore) ExistingHashes(ctx context.Context, documentID int64, hashes []string) (map[string]bool, error) {
	return s.repo.ExistingHashes(ctx, documentID, hashes)
}

func (s *IndexedStore) Insert(ctx context.Context, docs []model.Document, chunks []model.NewChunk) (int, error) {
	inserted, err := s.repo.Insert(ctx, docs, chunks)
	if err != nil {
		return 0, fmt.Errorf("insert chunks: %w", err)
	}
	entries := make([]vectorindex.Entry, len(inserted))
	for i, c := range inserted {
		entries[i] = vectorindex.Entry{ID: c.ID, DocumentID: c.DocumentID, Vector: c.Embedding}
	}
	if err := s.index.Add(entries...); err != nil {
		return 0, fmt.Errorf("add to vector index: %w", err)
	}
	return len(inserted), nil
}

func (s *IndexedStore) Search(ctx context.Context, query []float32, topK int) ([]model.QueryResult, error) {
	hits := s.index.Search(query, topK)
	if len(hits) == 0 {
		return []model.QueryResult{}, nil
	}
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	rows, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load chunk rows: %w", err)
	}
	results := make([]model.QueryResult, 0, len(hits))
	for _, h := range hits {
		row, ok := rows[h.ID]
		if !ok {
			// deleted between index lookup and row fetch
			continue
		}
		results = append(results, model.QueryResult{
			ID:         row.ID,
			DocumentID: row.DocumentID,
			Source:     row.Source,
			Content:    row.Content,
			Score:      h.Score,
		})
	}
	return results, nil
}

func (s *IndexedStore) DeleteDocument(ctx context.Context, documentID int64) (int64, error) {
	removed, err := s.repo.DeleteDocument(ctx, documentID)
	if err != nil {
		return 0, err
	}
	s.index.RemoveDocument(documentID)
	return removed, nil
}

func (s *IndexedStore) ListDocuments(ctx context.Context) ([]model.DocumentSummary, error) {
	return s.repo.ListDocuments(ctx)
}

func (s *IndexedStore) Count(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx)
}

func (s *IndexedStore) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
