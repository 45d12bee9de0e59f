package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baria-go/internal/model"
	"baria-go/internal/repository"
	"baria-go/internal/vectorindex"
	apperrors "baria-go/pkg/errors"
)

func chunk(doc int64, content string, vec ...float32) model.NewChunk {
	return model.NewChunk{DocumentID: doc, Source: "memo", Content: content, ContentHash: content, Embedding: vec}
}

func TestIndexedStoreInsertAndSearch(t *testing.T) {
	ctx := context.Background()
	s := NewIndexedStore("memory", repository.NewMemoryChunkRepository(), vectorindex.NewFlat(2))

	n, err := s.Insert(ctx, []model.Document{{ID: 1, Source: "memo"}}, []model.NewChunk{
		chunk(1, "water", 1, 0),
		chunk(1, "coffee", 0, 1),
		chunk(1, "tea", 0.6, 0.8),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.Insert(ctx, nil, []model.NewChunk{chunk(1, "water", 1, 0)})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	res, err := s.Search(ctx, []float32{0, 1}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "coffee", res[0].Content)
	assert.InDelta(t, 1.0, res[0].Score, 1e-6)
	assert.Equal(t, "tea", res[1].Content)
	assert.InDelta(t, 0.8, res[1].Score, 1e-6)
	assert.Equal(t, "memo", res[0].Source)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.Equal(t, "memory", s.Name())
}

func TestIndexedStoreSearchUsesDocumentSource(t *testing.T) {
	ctx := context.Background()
	s := NewIndexedStore("memory", repository.NewMemoryChunkRepository(), vectorindex.NewFlat(2))

	first := chunk(5, "old", 1, 0)
	first.Source = "first"
	_, err := s.Insert(ctx, []model.Document{{ID: 5, Source: "first"}}, []model.NewChunk{first})
	require.NoError(t, err)

	second := chunk(5, "new", 0.9, 0.1)
	second.Source = "second"
	n, err := s.Insert(ctx, []model.Document{{ID: 5, Source: "second"}}, []model.NewChunk{second})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	docs, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "first", docs[0].Source)

	res, err := s.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	for _, r := range res {
		assert.Equal(t, "first", r.Source, "hit %q", r.Content)
	}
}

func TestIndexedStoreDeleteDocument(t *testing.T) {
	ctx := context.Background()
	s := NewIndexedStore("memory", repository.NewMemoryChunkRepository(), vectorindex.NewFlat(2))
	_, err := s.Insert(ctx, []model.Document{{ID: 1}, {ID: 2}}, []model.NewChunk{
		chunk(1, "a", 1, 0),
		chunk(2, "b", 1, 0.1),
	})
	require.NoError(t, err)

	removed, err := s.DeleteDocument(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	res, err := s.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, int64(2), res[0].DocumentID)

	_, err = s.DeleteDocument(ctx, 1)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestIndexedStoreLoadRebuildsIndex(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryChunkRepository()
	first := NewIndexedStore("memory", repo, vectorindex.NewFlat(2))
	_, err := first.Insert(ctx, nil, []model.NewChunk{chunk(1, "a", 1, 0), chunk(1, "b", 0, 1)})
	require.NoError(t, err)

	restarted := NewIndexedStore("memory", repo, vectorindex.NewIVF(2, 0, 1))
	res, err := restarted.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Empty(t, res)

	loaded, err := restarted.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)
	res, err = restarted.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "a", res[0].Content)
}

func TestIndexedStoreSearchEmpty(t *testing.T) {
	s := NewIndexedStore("memory", repository.NewMemoryChunkRepository(), vectorindex.NewFlat(2))
	res, err := s.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Empty(t, res)
}
