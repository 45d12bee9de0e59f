package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"baria-go/internal/model"
	apperrors "baria-go/pkg/errors"
)

// ChunkRepository persists documents and chunks in MySQL.
type ChunkRepository interface {
	ExistingHashes(ctx context.Context, documentID int64, hashes []string) (map[string]bool, error)
	// Insert writes documents (insert-if-absent) and chunks in one transaction
	// and returns the chunks actually inserted, with their ids.
	Insert(ctx context.Context, docs []model.Document, chunks []model.NewChunk) ([]model.Chunk, error)
	// FindByIDs returns chunks without embeddings. Source is the document's
	// label when the document row exists.
	FindByIDs(ctx context.Context, ids []int64) (map[int64]model.Chunk, error)
	// Scan walks every chunk with its embedding in id order.
	Scan(ctx context.Context, batchSize int, fn func([]model.Chunk) error) error
	DeleteDocument(ctx context.Context, documentID int64) (int64, error)
	ListDocuments(ctx context.Context) ([]model.DocumentSummary, error)
	Count(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

type chunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) ChunkRepository {
	return &chunkRepository{db: db}
}

func (r *chunkRepository) ExistingHashes(ctx context.Context, documentID int64, hashes []string) (map[string]bool, error) {
	found := make(map[string]bool)
	if len(hashes) == 0 {
		return found, nil
	}
	var existing []string
	err := r.db.WithContext(ctx).Model(&model.Chunk{}).
		Where("document_id = ? AND content_hash IN ?", documentID, hashes).
		Pluck("content_hash", &existing).Error
	if err != nil {
		return nil, err
	}
	for _, h := range existing {
		found[h] = true
	}
	return found, nil
}

func (r *chunkRepository) Insert(ctx context.Context, docs []model.Document, chunks []model.NewChunk) ([]model.Chunk, error) {
	var inserted []model.Chunk
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range docs {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&docs[i]).Error; err != nil {
				return err
			}
		}
		// row by row so ids stay exact when duplicates are skipped
		for _, c := range chunks {
			row := model.Chunk{
				DocumentID:  c.DocumentID,
				Source:      c.Source,
				Content:     c.Content,
				ContentHash: c.ContentHash,
				Embedding:   c.Embedding,
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 && row.ID != 0 {
				inserted = append(inserted, row)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

func (r *chunkRepository) FindByIDs(ctx context.Context, ids []int64) (map[int64]model.Chunk, error) {
	out := make(map[int64]model.Chunk, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []model.Chunk
	err := r.db.WithContext(ctx).Table("chunks AS c").
		Select("c.id, c.document_id, COALESCE(d.source, c.source) AS source, c.content, c.content_hash, c.created_at").
		Joins("LEFT JOIN documents d ON d.id = c.document_id").
		Where("c.id IN ?", ids).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, c := range rows {
		out[c.ID] = c
	}
	return out, nil
}

func (r *chunkRepository) Scan(ctx context.Context, batchSize int, fn func([]model.Chunk) error) error {
	var batch []model.Chunk
	res := r.db.WithContext(ctx).Order("id").FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
		return fn(batch)
	})
	return res.Error
}

func (r *chunkRepository) DeleteDocument(ctx context.Context, documentID int64) (int64, error) {
	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("document_id = ?", documentID).Delete(&model.Chunk{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected
		res = tx.Delete(&model.Document{}, documentID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 && removed == 0 {
			return apperrors.ErrNotFound
		}
		return nil
	})
	return removed, err
}

func (r *chunkRepository) ListDocuments(ctx context.Context) ([]model.DocumentSummary, error) {
	var rows []struct {
		ID        int64
		Source    string
		Chunks    int64
		CreatedAt time.Time
	}
	err := r.db.WithContext(ctx).Table("documents AS d").
		Select("d.id, d.source, d.created_at, COUNT(c.id) AS chunks").
		Joins("LEFT JOIN chunks c ON c.document_id = d.id").
		Group("d.id, d.source, d.created_at").
		Order("d.id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]model.DocumentSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.DocumentSummary{ID: row.ID, Source: row.Source, Chunks: row.Chunks, CreatedAt: model.LocalTime(row.CreatedAt)})
	}
	return out, nil
}

func (r *chunkRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Chunk{}).Count(&n).Error
	return n, err
}

func (r *chunkRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return errors.Join(apperrors.ErrDependencyUnavailable, err)
	}
	return nil
}
