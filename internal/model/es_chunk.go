package model

// EsChunk is the Elasticsearch document of a chunk.
type EsChunk struct {
	ChunkID     int64     `json:"chunk_id"`
	DocumentID  int64     `json:"document_id"`
	Source      string    `json:"source"`
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	Vector      []float32 `json:"vector"`
	Seq         int64     `json:"seq"`
}

// EsDocument is the Elasticsearch record of a document.
type EsDocument struct {
	ID        int64  `json:"id"`
	Source    string `json:"source"`
	CreatedAt string `json:"created_at"`
}
