package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"baria-go/internal/model"
	"baria-go/pkg/database"
	apperrors "baria-go/pkg/errors"
	"baria-go/pkg/log"
)

// PgvectorStore keeps chunks in PostgreSQL with an ivfflat cosine index.
type PgvectorStore struct {
	pg     *database.Postgres
	dim    int
	lists  int
	probes int
}

// NewPgvectorStore creates the schema when missing. lists <= 0 uses 100.
func NewPgvectorStore(ctx context.Context, pg *database.Postgres, dim, lists, probes int) (*PgvectorStore, error) {
	if lists <= 0 {
		lists = 100
	}
	if probes <= 0 {
		probes = 1
	}
	s := &PgvectorStore{pg: pg, dim: dim, lists: lists, probes: probes}
	for _, stmt := range schemaStatements(dim, lists) {
		if _, err := pg.DB.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("ensure pgvector schema: %w", err)
		}
	}
	log.Infof("[PgvectorStore] schema ready, dim: %d, lists: %d, probes: %d", dim, lists, probes)
	return s, nil
}

func schemaStatements(dim, lists int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS documents (
			id         BIGINT PRIMARY KEY,
			source     TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id           BIGSERIAL PRIMARY KEY,
			document_id  BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			source       TEXT NOT NULL,
			content      TEXT NOT NULL,
			content_hash CHAR(64) NOT NULL,
			embedding    vector(%d) NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (document_id, content_hash)
		)`, dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS chunks_embedding_ivfflat
			ON chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d)`, lists),
	}
}

// searchQuery ranks chunks by cosine distance and labels each hit with its
// document's source.
const searchQuery = `SELECT c.id, c.document_id, d.source, c.content, 1 - (c.embedding <=> $1::vector) AS score
	FROM chunks c
	JOIN documents d ON d.id = c.document_id
	ORDER BY c.embedding <=> $1::vector, c.id
	LIMIT $2`

// vectorLiteral renders v in pgvector text form, e.g. [0.1,-0.2].
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func (s *PgvectorStore) Name() string { return "pgvector" }

func (s *PgvectorStore) ExistingHashes(ctx context.Context, documentID int64, hashes []string) (map[string]bool, error) {
	found := make(map[string]bool)
	if len(hashes) == 0 {
		return found, nil
	}
	rows, err := s.pg.DB.QueryContext(ctx,
		`SELECT content_hash FROM chunks WHERE document_id = $1 AND content_hash = ANY($2)`,
		documentID, pq.Array(hashes))
	if err != nil {
		return nil, fmt.Errorf("query existing hashes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		found[strings.TrimSpace(h)] = true
	}
	return found, rows.Err()
}

func (s *PgvectorStore) Insert(ctx context.Context, docs []model.Document, chunks []model.NewChunk) (int, error) {
	inserted := 0
	err := s.pg.InTx(ctx, func(tx *sql.Tx) error {
		for _, d := range docs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO documents (id, source) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
				d.ID, d.Source); err != nil {
				return fmt.Errorf("insert document %d: %w", d.ID, err)
			}
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (document_id, source, content, content_hash, embedding)
			VALUES ($1, $2, $3, $4, $5::vector)
			ON CONFLICT (document_id, content_hash) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("prepare chunk insert: %w", err)
		}
		defer stmt.Close()
		for _, c := range chunks {
			res, err := stmt.ExecContext(ctx, c.DocumentID, c.Source, c.Content, c.ContentHash, vectorLiteral(c.Embedding))
			if err != nil {
				return fmt.Errorf("insert chunk: %w", err)
			}
			n, _ := res.RowsAffected()
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *PgvectorStore) Search(ctx context.Context, query []float32, topK int) ([]model.QueryResult, error) {
	if len(query) != s.dim {
		return nil, apperrors.Newf(apperrors.ErrDimensionMismatch, http.StatusInternalServerError, "query has %d dimensions, store expects %d", len(query), s.dim)
	}
	results := []model.QueryResult{}
	err := s.pg.InTx(ctx, func(tx *sql.Tx) error {
		// SET LOCAL does not accept bind parameters
		if _, err := tx.ExecContext(ctx, "SET LOCAL ivfflat.probes = "+strconv.Itoa(s.probes)); err != nil {
			return fmt.Errorf("set ivfflat.probes: %w", err)
		}
		rows, err := tx.QueryContext(ctx, searchQuery, vectorLiteral(query), topK)
		if err != nil {
			return fmt.Errorf("vector search: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r model.QueryResult
			if err := rows.Scan(&r.ID, &r.DocumentID, &r.Source, &r.Content, &r.Score); err != nil {
				return err
			}
			results = append(results, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *PgvectorStore) DeleteDocument(ctx context.Context, documentID int64) (int64, error) {
	var removed int64
	err := s.pg.InTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
		if err != nil {
			return err
		}
		removed, _ = res.RowsAffected()
		res, err = tx.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, documentID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 && removed == 0 {
			return apperrors.ErrNotFound
		}
		return nil
	})
	return removed, err
}

func (s *PgvectorStore) ListDocuments(ctx context.Context) ([]model.DocumentSummary, error) {
	rows, err := s.pg.DB.QueryContext(ctx, `SELECT d.id, d.source, d.created_at, COUNT(c.id)
		FROM documents d LEFT JOIN chunks c ON c.document_id = d.id
		GROUP BY d.id, d.source, d.created_at
		ORDER BY d.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.DocumentSummary{}
	for rows.Next() {
		var d model.DocumentSummary
		var created time.Time
		if err := rows.Scan(&d.ID, &d.Source, &created, &d.Chunks); err != nil {
			return nil, err
		}
		d.CreatedAt = model.LocalTime(created)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PgvectorStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.pg.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

func (s *PgvectorStore) Ping(ctx context.Context) error {
	return s.pg.DB.PingContext(ctx)
}
