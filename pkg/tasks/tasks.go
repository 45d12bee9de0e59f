// Package tasks defines the messages exchanged over Kafka.
package tasks

import "time"

// DocumentProcessingTask asks the ingestion consumer to extract, split and
// index an uploaded document.
type DocumentProcessingTask struct {
	TaskID     string `json:"task_id"`
	DocumentID int64  `json:"document_id"`
	Source     string `json:"source"`
	ObjectName string `json:"object_name"`
	FileName   string `json:"file_name"`
}

// RedFlagAlert is published when a patient message screens critical.
type RedFlagAlert struct {
	UserID      string    `json:"user_id"`
	Text        string    `json:"text"`
	MaxSeverity int       `json:"max_severity"`
	Categories  []string  `json:"categories"`
	DetectedAt  time.Time `json:"detected_at"`
}
