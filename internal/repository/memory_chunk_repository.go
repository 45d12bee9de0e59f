package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"baria-go/internal/model"
	apperrors "baria-go/pkg/errors"
)

// memoryChunkRepository is a process-local ChunkRepository for development
// and the "memory" retrieval backend. Nothing survives a restart.
type memoryChunkRepository struct {
	mu     sync.RWMutex
	nextID int64
	docs   map[int64]model.Document
	chunks map[int64]model.Chunk
	byHash map[int64]map[string]int64
}

func NewMemoryChunkRepository() ChunkRepository {
	return &memoryChunkRepository{
		docs:   make(map[int64]model.Document),
		chunks: make(map[int64]model.Chunk),
		byHash: make(map[int64]map[string]int64),
	}
}

func (r *memoryChunkRepository) ExistingHashes(_ context.Context, documentID int64, hashes []string) (map[string]bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	found := make(map[string]bool)
	for _, h := range hashes {
		if _, ok := r.byHash[documentID][h]; ok {
			found[h] = true
		}
	}
	return found, nil
}

func (r *memoryChunkRepository) Insert(_ context.Context, docs []model.Document, chunks []model.NewChunk) ([]model.Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, d := range docs {
		if _, ok := r.docs[d.ID]; !ok {
			d.CreatedAt = now
			r.docs[d.ID] = d
		}
	}
	var inserted []model.Chunk
	for _, c := range chunks {
		hashes := r.byHash[c.DocumentID]
		if hashes == nil {
			hashes = make(map[string]int64)
			r.byHash[c.DocumentID] = hashes
		}
		if _, dup := hashes[c.ContentHash]; dup {
			continue
		}
		r.nextID++
		row := model.Chunk{
			ID:          r.nextID,
			DocumentID:  c.DocumentID,
			Source:      c.Source,
			Content:     c.Content,
			ContentHash: c.ContentHash,
			Embedding:   c.Embedding,
			CreatedAt:   now,
		}
		r.chunks[row.ID] = row
		hashes[c.ContentHash] = row.ID
		inserted = append(inserted, row)
	}
	return inserted, nil
}

func (r *memoryChunkRepository) FindByIDs(_ context.Context, ids []int64) (map[int64]model.Chunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int64]model.Chunk, len(ids))
	for _, id := range ids {
		c, ok := r.chunks[id]
		if !ok {
			continue
		}
		if d, ok := r.docs[c.DocumentID]; ok {
			c.Source = d.Source
		}
		out[id] = c
	}
	return out, nil
}

func (r *memoryChunkRepository) Scan(ctx context.Context, batchSize int, fn func([]model.Chunk) error) error {
	r.mu.RLock()
	all := make([]model.Chunk, 0, len(r.chunks))
	for _, c := range r.chunks {
		all = append(all, c)
	}
	r.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	if batchSize <= 0 {
		batchSize = len(all)
	}
	for start := 0; start < len(all); start += batchSize {
		end := start + batchSize
		if end > len(all) {
			end = len(all)
		}
		if err := fn(all[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *memoryChunkRepository) DeleteDocument(_ context.Context, documentID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for id, c := range r.chunks {
		if c.DocumentID == documentID {
			delete(r.chunks, id)
			removed++
		}
	}
	_, hadDoc := r.docs[documentID]
	delete(r.docs, documentID)
	delete(r.byHash, documentID)
	if !hadDoc && removed == 0 {
		return 0, apperrors.ErrNotFound
	}
	return removed, nil
}

func (r *memoryChunkRepository) ListDocuments(_ context.Context) ([]model.DocumentSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[int64]int64)
	for _, c := range r.chunks {
		counts[c.DocumentID]++
	}
	out := make([]model.DocumentSummary, 0, len(r.docs))
	for _, d := range r.docs {
		out = append(out, model.DocumentSummary{ID: d.ID, Source: d.Source, Chunks: counts[d.ID], CreatedAt: model.LocalTime(d.CreatedAt)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryChunkRepository) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.chunks)), nil
}

func (r *memoryChunkRepository) Ping(context.Context) error { return nil }
