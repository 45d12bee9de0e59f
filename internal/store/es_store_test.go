package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baria-go/internal/model"
	apperrors "baria-go/pkg/errors"
)

func newTestESStore(t *testing.T, h http.HandlerFunc) *ESStore {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return &ESStore{client: client, chunkIndex: "chunks", docIndex: "chunks_documents", dim: 2, candidateFactor: 10}
}

func TestCosineFromScore(t *testing.T) {
	assert.InDelta(t, 1.0, cosineFromScore(1), 1e-12)
	assert.InDelta(t, 0.0, cosineFromScore(0.5), 1e-12)
	assert.InDelta(t, -1.0, cosineFromScore(0), 1e-12)
	assert.Equal(t, 1.0, cosineFromScore(1.2))
}

func TestChunkIDIsStableAndPositive(t *testing.T) {
	a := chunkID(chunkKey(1, "abc"))
	assert.Equal(t, a, chunkID(chunkKey(1, "abc")))
	assert.NotEqual(t, a, chunkID(chunkKey(2, "abc")))
	assert.Greater(t, a, int64(0))
}

func TestESSearchConvertsScoresAndBreaksTies(t *testing.T) {
	var body map[string]interface{}
	s := newTestESStore(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/_mget") {
			fmt.Fprint(w, `{"docs":[{"_id":"1","found":true,"_source":{"id":1,"source":"m"}}]}`)
			return
		}
		require.True(t, strings.HasSuffix(r.URL.Path, "/chunks/_search"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		fmt.Fprint(w, `{"hits":{"hits":[
			{"_score":0.9,"_source":{"chunk_id":3,"document_id":1,"source":"m","content":"late","seq":30}},
			{"_score":0.9,"_source":{"chunk_id":2,"document_id":1,"source":"m","content":"early","seq":20}},
			{"_score":1.0,"_source":{"chunk_id":1,"document_id":1,"source":"m","content":"best","seq":10}}
		]}}`)
	})

	res, err := s.Search(context.Background(), []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, []string{"best", "early", "late"}, []string{res[0].Content, res[1].Content, res[2].Content})
	assert.InDelta(t, 1.0, res[0].Score, 1e-9)
	assert.InDelta(t, 0.8, res[1].Score, 1e-9)

	knn := body["knn"].(map[string]interface{})
	assert.Equal(t, float64(30), knn["num_candidates"])
	assert.Equal(t, float64(3), knn["k"])
}

func TestESSearchLabelsHitsWithDocumentSource(t *testing.T) {
	var mgetIDs []string
	s := newTestESStore(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/chunks_documents/_mget") {
			var body struct {
				IDs []string `json:"ids"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			mgetIDs = body.IDs
			fmt.Fprint(w, `{"docs":[
				{"_id":"5","found":true,"_source":{"id":5,"source":"first"}},
				{"_id":"6","found":false}
			]}`)
			return
		}
		fmt.Fprint(w, `{"hits":{"hits":[
			{"_score":1.0,"_source":{"chunk_id":1,"document_id":5,"source":"second","content":"new","seq":2}},
			{"_score":0.9,"_source":{"chunk_id":2,"document_id":5,"source":"first","content":"old","seq":1}},
			{"_score":0.8,"_source":{"chunk_id":3,"document_id":6,"source":"orphan","content":"x","seq":3}}
		]}}`)
	})

	res, err := s.Search(context.Background(), []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, []string{"5", "6"}, mgetIDs)
	assert.Equal(t, "first", res[0].Source)
	assert.Equal(t, "first", res[1].Source)
	assert.Equal(t, "orphan", res[2].Source)
}

func TestESSearchDimensionMismatch(t *testing.T) {
	s := newTestESStore(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := s.Search(context.Background(), []float32{1, 0, 0}, 3)
	assert.True(t, apperrors.Is(err, apperrors.ErrDimensionMismatch))
}

func TestESInsertSkipsExistingChunks(t *testing.T) {
	var mu sync.Mutex
	var created []string
	s := newTestESStore(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if strings.Contains(r.URL.Path, "/_create/1_dup") {
			w.WriteHeader(http.StatusConflict)
			fmt.Fprint(w, `{"error":{"type":"version_conflict_engine_exception"}}`)
			return
		}
		created = append(created, r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"result":"created"}`)
	})

	n, err := s.Insert(context.Background(), []model.Document{{ID: 1, Source: "m"}}, []model.NewChunk{
		{DocumentID: 1, Source: "m", Content: "x", ContentHash: "dup", Embedding: []float32{1, 0}},
		{DocumentID: 1, Source: "m", Content: "y", ContentHash: "new", Embedding: []float32{0, 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, created, "/chunks_documents/_create/1")
	assert.Contains(t, created, "/chunks/_create/1_new")
}

func TestESDeleteDocumentNotFound(t *testing.T) {
	s := newTestESStore(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/_delete_by_query") {
			fmt.Fprint(w, `{"deleted":0}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"result":"not_found"}`)
	})
	_, err := s.DeleteDocument(context.Background(), 9)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}
