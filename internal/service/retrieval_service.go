// Package service holds the business logic between the HTTP handlers and the
// storage, embedding and LLM layers.
package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"baria-go/internal/model"
	"baria-go/internal/store"
	"baria-go/pkg/embedding"
	apperrors "baria-go/pkg/errors"
	"baria-go/pkg/hash"
	"baria-go/pkg/log"
	"baria-go/pkg/metrics"
)

// RetrievalService indexes passages and answers semantic queries.
type RetrievalService interface {
	Index(ctx context.Context, chunks []model.IndexChunk) (int, error)
	// Search returns at most topK results. minScore, when set, drops weaker hits.
	Search(ctx context.Context, query string, topK int, minScore *float64) ([]model.QueryResult, error)
	DeleteDocument(ctx context.Context, documentID int64) (int64, error)
	ListDocuments(ctx context.Context) ([]model.DocumentSummary, error)
	Stats(ctx context.Context) (Stats, error)
	Ping(ctx context.Context) error
}

// Stats is what /health reports about the index.
type Stats struct {
	Backend string `json:"backend"`
	Chunks  int64  `json:"chunks"`
}

// RetrievalOptions carries the retrieval settings of config.RetrievalConfig.
type RetrievalOptions struct {
	DefaultDocumentID int64
	DefaultSource     string
	EmbedConcurrency  int
	EmbedBatchSize    int
}

type retrievalService struct {
	store    store.Store
	embedder embedding.Embedder
	metrics  *metrics.Metrics
	opts     RetrievalOptions
}

func NewRetrievalService(st store.Store, embedder embedding.Embedder, m *metrics.Metrics, opts RetrievalOptions) RetrievalService {
	if opts.DefaultSource == "" {
		opts.DefaultSource = "unknown"
	}
	if opts.EmbedConcurrency <= 0 {
		opts.EmbedConcurrency = 1
	}
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = 32
	}
	return &retrievalService{store: st, embedder: embedder, metrics: m, opts: opts}
}

type docKey struct {
	documentID int64
	hash       string
}

func (s *retrievalService) Index(ctx context.Context, chunks []model.IndexChunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	for i, c := range chunks {
		if strings.TrimSpace(c.Content) == "" {
			return 0, apperrors.Invalidf("chunk %d: content is empty", i)
		}
		if c.DocumentID != nil && *c.DocumentID < 0 {
			return 0, apperrors.Invalidf("chunk %d: document_id must not be negative, got %d", i, *c.DocumentID)
		}
	}

	var (
		docs    []model.Document
		seenDoc = make(map[int64]bool)
		seen    = make(map[docKey]bool)
		pending []model.NewChunk
		byDoc   = make(map[int64][]string)
	)
	for _, c := range chunks {
		docID := s.opts.DefaultDocumentID
		if c.DocumentID != nil {
			docID = *c.DocumentID
		}
		source := strings.TrimSpace(c.Source)
		if source == "" {
			source = s.opts.DefaultSource
		}
		if !seenDoc[docID] {
			seenDoc[docID] = true
			docs = append(docs, model.Document{ID: docID, Source: source})
		}
		k := docKey{documentID: docID, hash: hash.Content(c.Content)}
		if seen[k] {
			continue
		}
		seen[k] = true
		byDoc[docID] = append(byDoc[docID], k.hash)
		pending = append(pending, model.NewChunk{
			DocumentID:  docID,
			Source:      source,
			Content:     c.Content,
			ContentHash: k.hash,
		})
	}

	existing := make(map[docKey]bool)
	for docID, hashes := range byDoc {
		found, err := s.store.ExistingHashes(ctx, docID, hashes)
		if err != nil {
			return 0, fmt.Errorf("lookup existing chunks: %w", err)
		}
		for h := range found {
			existing[docKey{documentID: docID, hash: h}] = true
		}
	}
	fresh := pending[:0]
	for _, c := range pending {
		if !existing[docKey{documentID: c.DocumentID, hash: c.ContentHash}] {
			fresh = append(fresh, c)
		}
	}
	skipped := len(chunks) - len(fresh)

	if err := s.embedAll(ctx, fresh); err != nil {
		return 0, err
	}

	inserted, err := s.store.Insert(ctx, docs, fresh)
	if err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}
	s.metrics.AddIndexed(inserted)
	log.Infof("[RetrievalService] indexed %d chunks, skipped %d duplicates, backend=%s", inserted, skipped, s.store.Name())
	return inserted, nil
}

// embedAll fills Embedding on every chunk, embedding batches in parallel.
func (s *retrievalService) embedAll(ctx context.Context, chunks []model.NewChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	dim := s.embedder.Dimensions()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.EmbedConcurrency)
	for start := 0; start < len(chunks); start += s.opts.EmbedBatchSize {
		end := start + s.opts.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Content
			}
			vecs, err := s.embedder.Embed(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed chunks: %w", err)
			}
			if len(vecs) != len(batch) {
				return apperrors.Newf(apperrors.ErrDependencyUnavailable, http.StatusServiceUnavailable,
					"embedding returned %d vectors for %d texts", len(vecs), len(batch))
			}
			for i, v := range vecs {
				if len(v) != dim {
					return apperrors.Newf(apperrors.ErrDimensionMismatch, http.StatusInternalServerError,
						"embedding has %d dimensions, expected %d", len(v), dim)
				}
				batch[i].Embedding = v
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *retrievalService) Search(ctx context.Context, query string, topK int, minScore *float64) ([]model.QueryResult, error) {
	if strings.TrimSpace(query) == "" {
		return []model.QueryResult{}, nil
	}
	if topK <= 0 {
		return nil, apperrors.Invalidf("top_k must be positive, got %d", topK)
	}
	start := time.Now()
	results, err := s.search(ctx, query, topK)
	if err != nil {
		s.metrics.ObserveSearch(time.Since(start).Seconds(), 0, err)
		return nil, err
	}
	if minScore != nil {
		kept := results[:0]
		for _, r := range results {
			if r.Score >= *minScore {
				kept = append(kept, r)
			}
		}
		results = kept
	}
	s.metrics.ObserveSearch(time.Since(start).Seconds(), len(results), nil)
	return results, nil
}

func (s *retrievalService) search(ctx context.Context, query string, topK int) ([]model.QueryResult, error) {
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) != s.embedder.Dimensions() {
		return nil, apperrors.Newf(apperrors.ErrDimensionMismatch, http.StatusInternalServerError,
			"query embedding has unexpected shape")
	}
	results, err := s.store.Search(ctx, vecs[0], topK)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrDependencyUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: search %s: %v", apperrors.ErrDependencyUnavailable, s.store.Name(), err)
	}
	if results == nil {
		results = []model.QueryResult{}
	}
	return results, nil
}

func (s *retrievalService) DeleteDocument(ctx context.Context, documentID int64) (int64, error) {
	removed, err := s.store.DeleteDocument(ctx, documentID)
	if err != nil {
		return 0, err
	}
	log.Infof("[RetrievalService] deleted document %d with %d chunks", documentID, removed)
	return removed, nil
}

func (s *retrievalService) ListDocuments(ctx context.Context) ([]model.DocumentSummary, error) {
	return s.store.ListDocuments(ctx)
}

func (s *retrievalService) Stats(ctx context.Context) (Stats, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return Stats{Backend: s.store.Name()}, err
	}
	return Stats{Backend: s.store.Name(), Chunks: n}, nil
}

func (s *retrievalService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
