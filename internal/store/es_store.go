package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"baria-go/internal/model"
	apperrors "baria-go/pkg/errors"
	"baria-go/pkg/es"
	"baria-go/pkg/hash"
	"baria-go/pkg/log"
)

// ESStore keeps chunks in an Elasticsearch dense_vector index searched with
// approximate kNN. num_candidates = topK * candidateFactor is the accuracy knob.
type ESStore struct {
	client          *elasticsearch.Client
	chunkIndex      string
	docIndex        string
	dim             int
	candidateFactor int
	seq             atomic.Int64
}

// NewESStore creates the chunk and document indices when missing.
func NewESStore(ctx context.Context, client *elasticsearch.Client, index string, dim, candidateFactor int) (*ESStore, error) {
	if candidateFactor <= 0 {
		candidateFactor = 10
	}
	s := &ESStore{
		client:          client,
		chunkIndex:      index,
		docIndex:        index + "_documents",
		dim:             dim,
		candidateFactor: candidateFactor,
	}
	s.seq.Store(time.Now().UnixNano())
	if err := es.EnsureIndex(ctx, client, s.chunkIndex, chunkMapping(dim)); err != nil {
		return nil, err
	}
	if err := es.EnsureIndex(ctx, client, s.docIndex, documentMapping); err != nil {
		return nil, err
	}
	return s, nil
}

func chunkMapping(dim int) string {
	return fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"chunk_id":     { "type": "long" },
				"document_id":  { "type": "long" },
				"source":       { "type": "keyword" },
				"content":      { "type": "text" },
				"content_hash": { "type": "keyword" },
				"seq":          { "type": "long" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				}
			}
		}
	}`, dim)
}

const documentMapping = `{
	"mappings": {
		"properties": {
			"id":         { "type": "long" },
			"source":     { "type": "keyword" },
			"created_at": { "type": "date" }
		}
	}
}`

// chunkKey is the Elasticsearch _id; creating an existing _id fails with 409.
func chunkKey(documentID int64, contentHash string) string {
	return strconv.FormatInt(documentID, 10) + "_" + contentHash
}

// chunkID derives a stable positive numeric id from the chunk key.
func chunkID(key string) int64 {
	return hash.ID(key)
}

// cosineFromScore undoes Elasticsearch's (1 + cos) / 2 scaling.
func cosineFromScore(score float64) float64 {
	c := 2*score - 1
	if c > 1 {
		return 1
	}
	if c < -1 {
		return -1
	}
	return c
}

func (s *ESStore) Name() string { return "elasticsearch" }

func (s *ESStore) do(ctx context.Context, req esapi.Request) (*esapi.Response, error) {
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrDependencyUnavailable, http.StatusServiceUnavailable, err.Error())
	}
	return res, nil
}

func decodeBody(res *esapi.Response, v interface{}) error {
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return fmt.Errorf("elasticsearch returned %s: %s", res.Status(), msg)
	}
	if v == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(v)
}

func jsonBody(v interface{}) (*bytes.Reader, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(raw), nil
}

func (s *ESStore) ExistingHashes(ctx context.Context, documentID int64, hashes []string) (map[string]bool, error) {
	found := make(map[string]bool)
	if len(hashes) == 0 {
		return found, nil
	}
	body, err := jsonBody(map[string]interface{}{
		"size":    len(hashes),
		"_source": []string{"content_hash"},
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"document_id": documentID}},
					map[string]interface{}{"terms": map[string]interface{}{"content_hash": hashes}},
				},
			},
		},
	})
	if err != nil {
		return nil, err
	}
	res, err := s.do(ctx, esapi.SearchRequest{Index: []string{s.chunkIndex}, Body: body})
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Hits struct {
			Hits []struct {
				Source struct {
					ContentHash string `json:"content_hash"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := decodeBody(res, &parsed); err != nil {
		return nil, fmt.Errorf("query existing hashes: %w", err)
	}
	for _, h := range parsed.Hits.Hits {
		found[h.Source.ContentHash] = true
	}
	return found, nil
}

// create indexes body under id unless the id exists. It reports whether a
// new document was written.
func (s *ESStore) create(ctx context.Context, index, id string, doc interface{}, refresh string) (bool, error) {
	body, err := jsonBody(doc)
	if err != nil {
		return false, err
	}
	res, err := s.do(ctx, esapi.CreateRequest{Index: index, DocumentID: id, Body: body, Refresh: refresh})
	if err != nil {
		return false, err
	}
	if res.StatusCode == http.StatusConflict {
		res.Body.Close()
		return false, nil
	}
	if err := decodeBody(res, nil); err != nil {
		return false, fmt.Errorf("create %s/%s: %w", index, id, err)
	}
	return true, nil
}

func (s *ESStore) Insert(ctx context.Context, docs []model.Document, chunks []model.NewChunk) (int, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	for _, d := range docs {
		doc := model.EsDocument{ID: d.ID, Source: d.Source, CreatedAt: now}
		if _, err := s.create(ctx, s.docIndex, strconv.FormatInt(d.ID, 10), doc, "true"); err != nil {
			return 0, err
		}
	}
	inserted := 0
	for i, c := range chunks {
		key := chunkKey(c.DocumentID, c.ContentHash)
		refresh := "false"
		if i == len(chunks)-1 {
			refresh = "wait_for"
		}
		created, err := s.create(ctx, s.chunkIndex, key, model.EsChunk{
			ChunkID:     chunkID(key),
			DocumentID:  c.DocumentID,
			Source:      c.Source,
			Content:     c.Content,
			ContentHash: c.ContentHash,
			Vector:      c.Embedding,
			Seq:         s.seq.Add(1),
		}, refresh)
		if err != nil {
			return inserted, err
		}
		if created {
			inserted++
		}
	}
	return inserted, nil
}

func (s *ESStore) Search(ctx context.Context, query []float32, topK int) ([]model.QueryResult, error) {
	if len(query) != s.dim {
		return nil, apperrors.Newf(apperrors.ErrDimensionMismatch, http.StatusInternalServerError,
			"query has %d dimensions, store expects %d", len(query), s.dim)
	}
	body, err := jsonBody(map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   query,
			"k":              topK,
			"num_candidates": topK * s.candidateFactor,
		},
		"_source": map[string]interface{}{"excludes": []string{"vector"}},
		"size":    topK,
	})
	if err != nil {
		return nil, err
	}
	res, err := s.do(ctx, esapi.SearchRequest{Index: []string{s.chunkIndex}, Body: body})
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Hits struct {
			Hits []struct {
				Score  float64       `json:"_score"`
				Source model.EsChunk `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := decodeBody(res, &parsed); err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}

	type ranked struct {
		r   model.QueryResult
		seq int64
	}
	hits := make([]ranked, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		hits = append(hits, ranked{
			r: model.QueryResult{
				ID:         h.Source.ChunkID,
				DocumentID: h.Source.DocumentID,
				Source:     h.Source.Source,
				Content:    h.Source.Content,
				Score:      cosineFromScore(h.Score),
			},
			seq: h.Source.Seq,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].r.Score != hits[j].r.Score {
			return hits[i].r.Score > hits[j].r.Score
		}
		return hits[i].seq < hits[j].seq
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	ids := make([]int64, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.r.DocumentID)
	}
	sources, err := s.documentSources(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]model.QueryResult, len(hits))
	for i, h := range hits {
		out[i] = h.r
		if src, ok := sources[h.r.DocumentID]; ok {
			out[i].Source = src
		}
	}
	return out, nil
}

// documentSources fetches the source label of each document with one mget.
// Missing documents are absent from the map.
func (s *ESStore) documentSources(ctx context.Context, ids []int64) (map[int64]string, error) {
	sources := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return sources, nil
	}
	keys := make([]string, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			keys = append(keys, strconv.FormatInt(id, 10))
		}
	}
	body, err := jsonBody(map[string]interface{}{"ids": keys})
	if err != nil {
		return nil, err
	}
	res, err := s.do(ctx, esapi.MgetRequest{Index: s.docIndex, Body: body})
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Docs []struct {
			Found  bool             `json:"found"`
			Source model.EsDocument `json:"_source"`
		} `json:"docs"`
	}
	if err := decodeBody(res, &parsed); err != nil {
		return nil, fmt.Errorf("load document sources: %w", err)
	}
	for _, d := range parsed.Docs {
		if d.Found {
			sources[d.Source.ID] = d.Source.Source
		}
	}
	return sources, nil
}

func (s *ESStore) DeleteDocument(ctx context.Context, documentID int64) (int64, error) {
	body, err := jsonBody(map[string]interface{}{
		"query": map[string]interface{}{"term": map[string]interface{}{"document_id": documentID}},
	})
	if err != nil {
		return 0, err
	}
	refresh := true
	res, err := s.do(ctx, esapi.DeleteByQueryRequest{Index: []string{s.chunkIndex}, Body: body, Refresh: &refresh})
	if err != nil {
		return 0, err
	}
	var parsed struct {
		Deleted int64 `json:"deleted"`
	}
	if err := decodeBody(res, &parsed); err != nil {
		return 0, fmt.Errorf("delete chunks of document %d: %w", documentID, err)
	}

	res, err = s.do(ctx, esapi.DeleteRequest{Index: s.docIndex, DocumentID: strconv.FormatInt(documentID, 10), Refresh: "true"})
	if err != nil {
		return parsed.Deleted, err
	}
	docFound := res.StatusCode != http.StatusNotFound
	if docFound {
		if err := decodeBody(res, nil); err != nil {
			return parsed.Deleted, fmt.Errorf("delete document %d: %w", documentID, err)
		}
	} else {
		res.Body.Close()
	}
	if !docFound && parsed.Deleted == 0 {
		return 0, apperrors.ErrNotFound
	}
	log.Infof("[ESStore] document %d deleted with %d chunks", documentID, parsed.Deleted)
	return parsed.Deleted, nil
}

func (s *ESStore) ListDocuments(ctx context.Context) ([]model.DocumentSummary, error) {
	body, err := jsonBody(map[string]interface{}{
		"size": 1000,
		"sort": []interface{}{map[string]interface{}{"id": "asc"}},
	})
	if err != nil {
		return nil, err
	}
	res, err := s.do(ctx, esapi.SearchRequest{Index: []string{s.docIndex}, Body: body})
	if err != nil {
		return nil, err
	}
	var docs struct {
		Hits struct {
			Hits []struct {
				Source model.EsDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := decodeBody(res, &docs); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	body, err = jsonBody(map[string]interface{}{
		"size": 0,
		"aggs": map[string]interface{}{
			"per_document": map[string]interface{}{"terms": map[string]interface{}{"field": "document_id", "size": 1000}},
		},
	})
	if err != nil {
		return nil, err
	}
	res, err = s.do(ctx, esapi.SearchRequest{Index: []string{s.chunkIndex}, Body: body})
	if err != nil {
		return nil, err
	}
	var aggs struct {
		Aggregations struct {
			PerDocument struct {
				Buckets []struct {
					Key      int64 `json:"key"`
					DocCount int64 `json:"doc_count"`
				} `json:"buckets"`
			} `json:"per_document"`
		} `json:"aggregations"`
	}
	if err := decodeBody(res, &aggs); err != nil {
		return nil, fmt.Errorf("count chunks per document: %w", err)
	}
	counts := make(map[int64]int64, len(aggs.Aggregations.PerDocument.Buckets))
	for _, b := range aggs.Aggregations.PerDocument.Buckets {
		counts[b.Key] = b.DocCount
	}

	out := make([]model.DocumentSummary, 0, len(docs.Hits.Hits))
	for _, h := range docs.Hits.Hits {
		created, _ := time.Parse(time.RFC3339, h.Source.CreatedAt)
		out = append(out, model.DocumentSummary{
			ID:        h.Source.ID,
			Source:    h.Source.Source,
			Chunks:    counts[h.Source.ID],
			CreatedAt: model.LocalTime(created),
		})
	}
	return out, nil
}

func (s *ESStore) Count(ctx context.Context) (int64, error) {
	res, err := s.do(ctx, esapi.CountRequest{Index: []string{s.chunkIndex}})
	if err != nil {
		return 0, err
	}
	var parsed struct {
		Count int64 `json:"count"`
	}
	if err := decodeBody(res, &parsed); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return parsed.Count, nil
}

func (s *ESStore) Ping(ctx context.Context) error {
	res, err := s.do(ctx, esapi.PingRequest{})
	if err != nil {
		return err
	}
	return decodeBody(res, nil)
}
