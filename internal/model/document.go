// Package model holds the persisted records and the request/response shapes
// shared by services and handlers.
package model

import "time"

// Document is a source leaflet or protocol. Its metadata is written once.
type Document struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Source    string    `gorm:"type:varchar(255);not null" json:"source"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Document) TableName() string {
	return "documents"
}

// Chunk is one indexed passage. (DocumentID, ContentHash) is unique.
type Chunk struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID  int64     `gorm:"not null;uniqueIndex:idx_chunk_doc_hash,priority:1" json:"document_id"`
	Source      string    `gorm:"type:varchar(255);not null" json:"source"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	ContentHash string    `gorm:"type:char(64);not null;uniqueIndex:idx_chunk_doc_hash,priority:2" json:"content_hash"`
	Embedding   []float32 `gorm:"serializer:json;type:mediumtext;not null" json:"-"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Chunk) TableName() string {
	return "chunks"
}

// IndexChunk is one element of an index request. DocumentID is optional.
type IndexChunk struct {
	DocumentID *int64 `json:"document_id,omitempty"`
	Source     string `json:"source"`
	Content    string `json:"content"`
}

// NewChunk is a validated, hashed and embedded chunk ready for storage.
type NewChunk struct {
	DocumentID  int64
	Source      string
	Content     string
	ContentHash string
	Embedding   []float32
}

// QueryResult is one search hit. Score is cosine similarity in [-1, 1].
type QueryResult struct {
	ID         int64   `json:"id"`
	DocumentID int64   `json:"document_id"`
	Source     string  `json:"source"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}

// DocumentSummary is a document with its chunk count.
type DocumentSummary struct {
	ID        int64     `json:"id"`
	Source    string    `json:"source"`
	Chunks    int64     `json:"chunks"`
	CreatedAt LocalTime `json:"created_at"`
}
